package inventory

import "context"

// EmployeeFilter narrows List results. Zero value means no filtering.
type EmployeeFilter struct {
	Status     EmployeeStatus
	Department string
	// ExternalOnly restricts the listing to directory-managed rows.
	ExternalOnly bool
}

// AssetFilter narrows asset listings.
type AssetFilter struct {
	Status       AssetStatus
	Type         AssetType
	AssignedTo   string
	ExternalOnly bool
}

// Store is the persisted collection of employees, assets and handovers.
// Uniqueness invariants (email, serial number, non-empty external ids) are
// owned by the implementation; violations map to the ErrDuplicate* sentinels.
type Store interface {
	// Employees
	GetEmployee(ctx context.Context, id string) (Employee, error)
	GetEmployeeByExternalID(ctx context.Context, externalID string) (Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (Employee, error)
	ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error)
	CreateEmployee(ctx context.Context, e Employee) (Employee, error)
	UpdateEmployee(ctx context.Context, e Employee) (Employee, error)
	CountEmployeesByStatus(ctx context.Context) (StatusCounts, error)

	// Assets
	GetAsset(ctx context.Context, id string) (Asset, error)
	GetAssetByExternalID(ctx context.Context, externalID string) (Asset, error)
	GetAssetBySerial(ctx context.Context, serial string) (Asset, error)
	ListAssets(ctx context.Context, f AssetFilter) ([]Asset, error)
	CreateAsset(ctx context.Context, a Asset) (Asset, error)
	UpdateAsset(ctx context.Context, a Asset) (Asset, error)
	CountAssetsByStatus(ctx context.Context) (StatusCounts, error)

	// UnassignByOwner clears the owner reference on every asset assigned to
	// the employee and resets those assets to available. Returns how many
	// rows were touched.
	UnassignByOwner(ctx context.Context, employeeID string) (int, error)

	// Handovers
	CreateHandover(ctx context.Context, h Handover) (Handover, error)
	GetHandover(ctx context.Context, id string) (Handover, error)
	ListHandovers(ctx context.Context, employeeID string) ([]Handover, error)
	CompleteHandover(ctx context.Context, id string) (Handover, error)

	// Welcome packs
	CreateWelcomePack(ctx context.Context, p WelcomePack) (WelcomePack, error)
	ListWelcomePacks(ctx context.Context, employeeID string) ([]WelcomePack, error)
}
