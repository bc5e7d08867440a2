package dirsync

import (
	"fmt"
	"time"
)

// Summary is the structured result of one reconciliation pass. Degraded
// flags record sub-collections that could not be fetched; their stages were
// skipped rather than allowed to mis-deactivate local rows.
type Summary struct {
	PassID string `json:"pass_id"`

	EmployeesCreated     int `json:"employees_created"`
	EmployeesUpdated     int `json:"employees_updated"`
	EmployeesLinked      int `json:"employees_linked"`
	EmployeesDeactivated int `json:"employees_deactivated"`
	EmployeesReactivated int `json:"employees_reactivated"`
	EmployeesDeleted     int `json:"employees_deleted"`

	DevicesCreated    int `json:"devices_created"`
	DevicesUpdated    int `json:"devices_updated"`
	DevicesAssigned   int `json:"devices_assigned"`
	DevicesUnassigned int `json:"devices_unassigned"`
	AssetsCleaned     int `json:"assets_cleaned"`

	RecordsSkipped   int `json:"records_skipped"`
	ConflictsSkipped int `json:"conflicts_skipped"`

	UsersDegraded        bool `json:"users_degraded"`
	DevicesDegraded      bool `json:"devices_degraded"`
	DeletedUsersDegraded bool `json:"deleted_users_degraded"`

	Warnings []string `json:"warnings,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Mutations is the total number of local changes the pass applied. Timestamp
// refreshes are not mutations, and reactivations are a subset of the updated
// count rather than an extra write.
func (s *Summary) Mutations() int {
	return s.EmployeesCreated + s.EmployeesUpdated + s.EmployeesLinked +
		s.EmployeesDeactivated + s.EmployeesDeleted +
		s.DevicesCreated + s.DevicesUpdated + s.DevicesAssigned +
		s.DevicesUnassigned + s.AssetsCleaned
}

// Degraded reports whether any sub-collection fetch failed during the pass.
func (s *Summary) Degraded() bool {
	return s.UsersDegraded || s.DevicesDegraded || s.DeletedUsersDegraded
}

func (s *Summary) warnf(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Snapshot is a read-only status report assembled from local data alone.
type Snapshot struct {
	Employees       map[string]int `json:"employees"`
	Assets          map[string]int `json:"assets"`
	EmployeesLinked int            `json:"employees_linked"`
	AssetsLinked    int            `json:"assets_linked"`
	LastRun         *Summary       `json:"last_run,omitempty"`
}
