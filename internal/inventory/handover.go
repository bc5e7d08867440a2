package inventory

import (
	"fmt"
	"time"
)

// HandoverStatus tracks the signing workflow of a handover.
type HandoverStatus string

const (
	HandoverPending    HandoverStatus = "pending"
	HandoverInProgress HandoverStatus = "in_progress"
	HandoverCompleted  HandoverStatus = "completed"
	HandoverCancelled  HandoverStatus = "cancelled"
)

// Handover records the transfer of one or more assets to an employee.
type Handover struct {
	ID          string         `json:"id"`
	Reference   string         `json:"reference"`
	EmployeeID  string         `json:"employee_id"`
	AssetIDs    []string       `json:"asset_ids"`
	Status      HandoverStatus `json:"status"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// WelcomePack bundles the onboarding info handed to a new employee.
type WelcomePack struct {
	ID             string    `json:"id"`
	EmployeeID     string    `json:"employee_id"`
	ITContact      string    `json:"it_contact,omitempty"`
	HelpdeskEmail  string    `json:"helpdesk_email,omitempty"`
	OfficeLocation string    `json:"office_location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// HandoverReference formats a per-year sequential reference like HOV-2026-0042.
func HandoverReference(year, seq int) string {
	return fmt.Sprintf("HOV-%d-%04d", year, seq)
}
