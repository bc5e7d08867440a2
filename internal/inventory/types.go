package inventory

import (
	"errors"
	"strings"
	"time"
)

// EmployeeStatus tracks the directory lifecycle of a person.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
	EmployeeDeleted  EmployeeStatus = "deleted"
)

// AssetStatus tracks where an asset currently is in its lifecycle.
type AssetStatus string

const (
	AssetAvailable   AssetStatus = "available"
	AssetAssigned    AssetStatus = "assigned"
	AssetMaintenance AssetStatus = "maintenance"
	AssetRetired     AssetStatus = "retired"
	AssetLost        AssetStatus = "lost"
)

// AssetType is the classified category of an asset.
type AssetType string

const (
	TypeLaptop     AssetType = "laptop"
	TypeDesktop    AssetType = "desktop"
	TypeTablet     AssetType = "tablet"
	TypePhone      AssetType = "phone"
	TypeMonitor    AssetType = "monitor"
	TypePeripheral AssetType = "peripheral"
	TypeOther      AssetType = "other"
)

// Employee is a person tracked by the system. ExternalID is the directory
// user id; empty means the row is not directory-managed.
type Employee struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Department   string         `json:"department"`
	JobTitle     string         `json:"job_title,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	StartDate    *time.Time     `json:"start_date,omitempty"`
	Status       EmployeeStatus `json:"status"`
	ExternalID   string         `json:"external_id,omitempty"`
	ExternalUPN  string         `json:"external_upn,omitempty"`
	EmployeeNo   string         `json:"employee_no,omitempty"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Asset is a tracked piece of equipment. AssignedTo is a weak reference:
// the row survives employee removal, only the reference is cleared.
type Asset struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Type           AssetType   `json:"type"`
	SerialNumber   string      `json:"serial_number"`
	Manufacturer   string      `json:"manufacturer,omitempty"`
	Model          string      `json:"model,omitempty"`
	OS             string      `json:"os,omitempty"`
	OSVersion      string      `json:"os_version,omitempty"`
	Status         AssetStatus `json:"status"`
	AssignedTo     string      `json:"assigned_to,omitempty"`
	ExternalID     string      `json:"external_id,omitempty"`
	PurchaseDate   *time.Time  `json:"purchase_date,omitempty"`
	WarrantyExpiry *time.Time  `json:"warranty_expiry,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	LastSyncedAt   *time.Time  `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// StatusCounts is a per-status breakdown used by dashboards.
type StatusCounts map[string]int

// Total sums the breakdown across all statuses.
func (c StatusCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

var (
	ErrNotFound            = errors.New("inventory: not found")
	ErrDuplicateEmail      = errors.New("inventory: email already in use")
	ErrDuplicateSerial     = errors.New("inventory: serial number already in use")
	ErrDuplicateExternalID = errors.New("inventory: external id already in use")
	ErrInvalidInput        = errors.New("inventory: invalid input")
)

// Validate checks the minimal fields required before persisting an employee.
func (e *Employee) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(e.Email) == "" {
		return ErrInvalidInput
	}
	if e.Status == "" {
		return ErrInvalidInput
	}
	return nil
}

// Validate checks the minimal fields required before persisting an asset.
func (a *Asset) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(a.SerialNumber) == "" {
		return ErrInvalidInput
	}
	if a.Type == "" {
		return ErrInvalidInput
	}
	if a.Status == "" {
		return ErrInvalidInput
	}
	return nil
}
