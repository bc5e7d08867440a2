package dirsync

import (
	"fmt"
	"strings"

	"assettrack.org/internal/directory"
	"assettrack.org/internal/inventory"
)

// serialPrefix is prepended to the external device id when the remote record
// carries no serial number. The synthesis is deterministic: the same device
// always yields the same serial, which keeps re-runs idempotent because the
// serial is a local uniqueness key.
const serialPrefix = "AZURE-"

// defaultDepartment is used when the directory has no department set.
const defaultDepartment = "Unassigned"

// MappingError marks a single malformed remote record. It is logged and the
// record skipped; it never aborts a pass.
type MappingError struct {
	Kind   string // "user" or "device"
	ID     string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("dirsync: cannot map %s %q: %s", e.Kind, e.ID, e.Reason)
}

// PersonRecord is the normalized shape of a directory user, ready to diff
// against a local employee.
type PersonRecord struct {
	ExternalID  string
	Name        string
	Email       string
	Department  string
	JobTitle    string
	Phone       string
	ExternalUPN string
	EmployeeNo  string
}

// DeviceRecord is the normalized shape of a directory device.
type DeviceRecord struct {
	ExternalID   string
	Name         string
	Type         inventory.AssetType
	SerialNumber string
	Manufacturer string
	Model        string
	OS           string
	OSVersion    string
}

// MapUser normalizes one raw directory user. The email falls back to the
// principal name when the mail attribute is blank, mirroring how directory
// tenants without Exchange leave mail unset.
func MapUser(raw directory.RawUser) (PersonRecord, error) {
	if strings.TrimSpace(raw.DisplayName) == "" && strings.TrimSpace(raw.ID) == "" {
		return PersonRecord{}, &MappingError{Kind: "user", ID: raw.ID, Reason: "both display name and id missing"}
	}
	if strings.TrimSpace(raw.ID) == "" {
		return PersonRecord{}, &MappingError{Kind: "user", ID: raw.DisplayName, Reason: "id missing"}
	}

	email := strings.TrimSpace(raw.Mail)
	if email == "" {
		email = strings.TrimSpace(raw.UserPrincipalName)
	}
	if email == "" {
		return PersonRecord{}, &MappingError{Kind: "user", ID: raw.ID, Reason: "no mail or principal name"}
	}

	dept := strings.TrimSpace(raw.Department)
	if dept == "" {
		dept = defaultDepartment
	}

	name := strings.TrimSpace(raw.DisplayName)
	if name == "" {
		name = email
	}

	return PersonRecord{
		ExternalID:  raw.ID,
		Name:        name,
		Email:       email,
		Department:  dept,
		JobTitle:    strings.TrimSpace(raw.JobTitle),
		Phone:       strings.TrimSpace(raw.MobilePhone),
		ExternalUPN: strings.TrimSpace(raw.UserPrincipalName),
		EmployeeNo:  strings.TrimSpace(raw.EmployeeID),
	}, nil
}

// MapDevice normalizes one raw directory device, classifying its asset type
// from the operating system string and synthesizing a serial number when the
// record has none.
func MapDevice(raw directory.RawDevice) (DeviceRecord, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return DeviceRecord{}, &MappingError{Kind: "device", ID: raw.DisplayName, Reason: "id missing"}
	}

	name := strings.TrimSpace(raw.DisplayName)
	if name == "" {
		name = "Device " + raw.ID
	}

	serial := strings.TrimSpace(raw.SerialNumber)
	if serial == "" {
		serial = serialPrefix + raw.ID
	}

	return DeviceRecord{
		ExternalID:   raw.ID,
		Name:         name,
		Type:         classifyDevice(raw.OperatingSystem, raw.DisplayName, raw.Model),
		SerialNumber: serial,
		Manufacturer: strings.TrimSpace(raw.Manufacturer),
		Model:        strings.TrimSpace(raw.Model),
		OS:           strings.TrimSpace(raw.OperatingSystem),
		OSVersion:    strings.TrimSpace(raw.OperatingSystemVersion),
	}, nil
}

// classifyDevice infers the asset category from the operating system string.
// Desktop-vs-laptop cannot be told apart from the directory record alone, so
// Windows and macOS default to laptop; mobile operating systems split into
// tablet when the model or name carries a tablet hint, else phone.
func classifyDevice(osName, displayName, model string) inventory.AssetType {
	os := strings.ToLower(osName)
	switch {
	case strings.Contains(os, "windows"), strings.Contains(os, "mac"):
		return inventory.TypeLaptop
	case strings.Contains(os, "ipados"):
		return inventory.TypeTablet
	case strings.Contains(os, "ios"), strings.Contains(os, "android"):
		if isTabletHint(displayName) || isTabletHint(model) {
			return inventory.TypeTablet
		}
		return inventory.TypePhone
	default:
		return inventory.TypeOther
	}
}

var tabletHints = []string{"ipad", "tab", "tablet", "surface"}

func isTabletHint(s string) bool {
	s = strings.ToLower(s)
	for _, hint := range tabletHints {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
