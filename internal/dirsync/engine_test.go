package dirsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assettrack.org/internal/directory"
	"assettrack.org/internal/inventory"
)

type fakeDirectory struct {
	authErr error

	users    []directory.RawUser
	usersErr error

	devices    []directory.RawDevice
	devicesErr error

	userDevices      map[string][]directory.RawDevice
	userDevicesErr   map[string]error
	userDevicesCalls int

	deleted    []directory.RawDeletedUser
	deletedErr error
}

func (f *fakeDirectory) Authenticate(ctx context.Context) (directory.Token, error) {
	if f.authErr != nil {
		return directory.Token{}, f.authErr
	}
	return directory.Token{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeDirectory) ListUsers(ctx context.Context) ([]directory.RawUser, error) {
	return f.users, f.usersErr
}

func (f *fakeDirectory) ListDevices(ctx context.Context) ([]directory.RawDevice, error) {
	return f.devices, f.devicesErr
}

func (f *fakeDirectory) ListUserDevices(ctx context.Context, id string) ([]directory.RawDevice, error) {
	f.userDevicesCalls++
	if err, ok := f.userDevicesErr[id]; ok {
		return nil, err
	}
	return f.userDevices[id], nil
}

func (f *fakeDirectory) ListDeletedUsers(ctx context.Context) ([]directory.RawDeletedUser, error) {
	return f.deleted, f.deletedErr
}

func newTestEngine(dir *fakeDirectory) (*Engine, *inventory.InMemory) {
	store := inventory.NewInMemory()
	return NewEngine(dir, store, zap.NewNop()), store
}

func TestFullSyncScenario(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "New Nina", Mail: "nina@corp.example", Department: "Sales", AccountEnabled: true},
			{ID: "E2", DisplayName: "Existing Egon", Mail: "egon@corp.example", Department: "IT", AccountEnabled: true},
		},
		deleted: []directory.RawDeletedUser{{ID: "E3", DisplayName: "Gone Greta"}},
	}
	engine, store := newTestEngine(dir)

	// Egon pre-exists locally without an external id; Greta is linked and
	// owns two assets.
	egon, err := store.CreateEmployee(ctx, inventory.Employee{Name: "Egon", Email: "egon@corp.example", Department: "IT", Status: inventory.EmployeeActive})
	require.NoError(t, err)
	greta, err := store.CreateEmployee(ctx, inventory.Employee{Name: "Greta", Email: "greta@corp.example", Department: "HR", Status: inventory.EmployeeActive, ExternalID: "E3"})
	require.NoError(t, err)
	a1, _ := store.CreateAsset(ctx, inventory.Asset{Name: "Laptop", Type: inventory.TypeLaptop, SerialNumber: "SN-1", Status: inventory.AssetAssigned, AssignedTo: greta.ID})
	a2, _ := store.CreateAsset(ctx, inventory.Asset{Name: "Phone", Type: inventory.TypePhone, SerialNumber: "SN-2", Status: inventory.AssetAssigned, AssignedTo: greta.ID})

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.EmployeesCreated)
	assert.Equal(t, 1, s.EmployeesLinked)
	assert.Equal(t, 1, s.EmployeesDeleted)
	assert.Equal(t, 2, s.AssetsCleaned)
	assert.False(t, s.Degraded())

	// New person created for E1.
	nina, err := store.GetEmployeeByExternalID(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, inventory.EmployeeActive, nina.Status)

	// Egon's row adopted the external id instead of being duplicated.
	gotEgon, err := store.GetEmployeeByExternalID(ctx, "E2")
	require.NoError(t, err)
	assert.Equal(t, egon.ID, gotEgon.ID)

	// Greta is deleted and her assets released.
	gotGreta, _ := store.GetEmployee(ctx, greta.ID)
	assert.Equal(t, inventory.EmployeeDeleted, gotGreta.Status)
	for _, id := range []string{a1.ID, a2.ID} {
		a, _ := store.GetAsset(ctx, id)
		assert.Empty(t, a.AssignedTo)
		assert.Equal(t, inventory.AssetAvailable, a.Status)
	}
}

func TestFullSyncIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Nina", Mail: "nina@corp.example", AccountEnabled: true},
		},
		userDevices: map[string][]directory.RawDevice{
			"E1": {{ID: "D1", DisplayName: "nina-laptop", OperatingSystem: "Windows"}},
		},
		devices: []directory.RawDevice{
			{ID: "D1", DisplayName: "nina-laptop", OperatingSystem: "Windows"},
			{ID: "D2", DisplayName: "spare-ipad", OperatingSystem: "iPadOS"},
		},
	}
	engine, _ := newTestEngine(dir)

	first, err := engine.RunFullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EmployeesCreated)
	assert.Equal(t, 2, first.DevicesCreated)
	assert.Equal(t, 1, first.DevicesAssigned)

	second, err := engine.RunFullSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Mutations(), "unchanged snapshot must produce zero mutations, got %+v", second)
}

func TestTieBreakNeverDuplicatesEmail(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Ana", Mail: "a@x.com", AccountEnabled: true},
		},
	}
	engine, store := newTestEngine(dir)

	_, err := store.CreateEmployee(ctx, inventory.Employee{Name: "Ana", Email: "a@x.com", Department: "IT", Status: inventory.EmployeeActive})
	require.NoError(t, err)

	_, err = engine.RunFullSync(ctx)
	require.NoError(t, err)

	all, _ := store.ListEmployees(ctx, inventory.EmployeeFilter{})
	require.Len(t, all, 1, "tie-break must link, not duplicate")
	assert.Equal(t, "E1", all[0].ExternalID)
}

func TestConflictingExternalIDSkipped(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E-NEW", DisplayName: "Ana", Mail: "a@x.com", AccountEnabled: true},
		},
	}
	engine, store := newTestEngine(dir)

	_, err := store.CreateEmployee(ctx, inventory.Employee{Name: "Ana", Email: "a@x.com", Department: "IT", Status: inventory.EmployeeActive, ExternalID: "E-OLD"})
	require.NoError(t, err)

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.ConflictsSkipped)
	local, _ := store.GetEmployeeByEmail(ctx, "a@x.com")
	assert.Equal(t, "E-OLD", local.ExternalID, "conflict must never overwrite silently")
}

func TestDevicesPermissionDeniedDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Nina", Mail: "nina@corp.example", AccountEnabled: true},
		},
		devicesErr: &directory.APIError{Status: 403, Kind: directory.KindPermissionDenied},
	}
	engine, store := newTestEngine(dir)

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err, "permission failure on devices must not raise")

	assert.Equal(t, 1, s.EmployeesCreated)
	assert.True(t, s.DevicesDegraded)
	assert.Zero(t, s.DevicesCreated)

	assets, _ := store.ListAssets(ctx, inventory.AssetFilter{})
	assert.Empty(t, assets)
}

func TestDegradedUserFetchSuppressesDeactivation(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		usersErr: &directory.APIError{Status: 503, Kind: directory.KindServerError},
	}
	engine, store := newTestEngine(dir)

	emp, err := store.CreateEmployee(ctx, inventory.Employee{Name: "Nina", Email: "nina@corp.example", Department: "IT", Status: inventory.EmployeeActive, ExternalID: "E1"})
	require.NoError(t, err)

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.True(t, s.UsersDegraded)
	assert.Zero(t, s.EmployeesDeactivated)
	got, _ := store.GetEmployee(ctx, emp.ID)
	assert.Equal(t, inventory.EmployeeActive, got.Status, "transient fetch failure must not deactivate anyone")
}

func TestMissingFromActiveSetDeactivates(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{} // empty active set, empty deleted feed
	engine, store := newTestEngine(dir)

	emp, _ := store.CreateEmployee(ctx, inventory.Employee{Name: "Nina", Email: "nina@corp.example", Department: "IT", Status: inventory.EmployeeActive, ExternalID: "E1"})
	manual, _ := store.CreateEmployee(ctx, inventory.Employee{Name: "Mia", Email: "mia@corp.example", Department: "IT", Status: inventory.EmployeeActive})

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.EmployeesDeactivated)
	got, _ := store.GetEmployee(ctx, emp.ID)
	assert.Equal(t, inventory.EmployeeInactive, got.Status)

	// Manual rows without an external id are never touched.
	gotManual, _ := store.GetEmployee(ctx, manual.ID)
	assert.Equal(t, inventory.EmployeeActive, gotManual.Status)
}

func TestReactivation(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Nina", Mail: "nina@corp.example", AccountEnabled: true},
		},
	}
	engine, store := newTestEngine(dir)

	emp, _ := store.CreateEmployee(ctx, inventory.Employee{Name: "Nina", Email: "nina@corp.example", Department: "Unassigned", Status: inventory.EmployeeInactive, ExternalID: "E1"})

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.EmployeesReactivated)
	assert.Equal(t, 1, s.EmployeesUpdated)
	assert.Equal(t, 1, s.Mutations(), "a reactivation is one store write")
	got, _ := store.GetEmployee(ctx, emp.ID)
	assert.Equal(t, inventory.EmployeeActive, got.Status)
}

func TestAuthFailureIsFatal(t *testing.T) {
	dir := &fakeDirectory{authErr: &directory.AuthError{Status: 401, Detail: "invalid_client"}}
	engine, _ := newTestEngine(dir)

	s, err := engine.RunFullSync(context.Background())
	require.Error(t, err)
	assert.Nil(t, s, "no partial summary on auth failure")
}

func TestStandaloneDeviceKeepsLocalStatus(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		devices: []directory.RawDevice{
			{ID: "D1", DisplayName: "bench-laptop", OperatingSystem: "Windows"},
		},
	}
	engine, store := newTestEngine(dir)

	// Same device already tracked locally and under maintenance.
	_, err := store.CreateAsset(ctx, inventory.Asset{Name: "bench-laptop", Type: inventory.TypeLaptop, SerialNumber: "AZURE-D1", Status: inventory.AssetMaintenance})
	require.NoError(t, err)

	_, err = engine.RunDevicesOnly(ctx)
	require.NoError(t, err)

	got, err := store.GetAssetByExternalID(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, inventory.AssetMaintenance, got.Status, "standalone upsert must not reset local status")
}

func TestDeviceSerialConflictSkipped(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		devices: []directory.RawDevice{
			{ID: "D-NEW", DisplayName: "laptop", OperatingSystem: "Windows", SerialNumber: "SN-1"},
		},
	}
	engine, store := newTestEngine(dir)

	// Same serial, already bound to a different remote device.
	_, err := store.CreateAsset(ctx, inventory.Asset{Name: "laptop", Type: inventory.TypeLaptop, SerialNumber: "SN-1", Status: inventory.AssetAvailable, ExternalID: "D-OLD"})
	require.NoError(t, err)

	s, err := engine.RunDevicesOnly(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.ConflictsSkipped)
	assert.Zero(t, s.DevicesCreated)
	assert.Zero(t, s.DevicesUpdated)
	got, err := store.GetAssetBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "D-OLD", got.ExternalID, "conflicting serial match must not be rebound")
}

func TestRunEmployeesOnlySkipsDevices(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Nina", Mail: "nina@corp.example", AccountEnabled: true},
		},
		userDevices: map[string][]directory.RawDevice{
			"E1": {{ID: "D1", DisplayName: "laptop", OperatingSystem: "Windows"}},
		},
	}
	engine, store := newTestEngine(dir)

	_, err := engine.RunEmployeesOnly(ctx)
	require.NoError(t, err)

	assert.Zero(t, dir.userDevicesCalls)
	assets, _ := store.ListAssets(ctx, inventory.AssetFilter{})
	assert.Empty(t, assets)
}

func TestRunAssignmentsOnly(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		userDevices: map[string][]directory.RawDevice{
			"E1": {{ID: "D1", DisplayName: "laptop", OperatingSystem: "Windows", SerialNumber: "SN-9"}},
		},
	}
	engine, store := newTestEngine(dir)

	emp, _ := store.CreateEmployee(ctx, inventory.Employee{Name: "Nina", Email: "nina@corp.example", Department: "IT", Status: inventory.EmployeeActive, ExternalID: "E1"})
	// Device exists unassigned, matched by serial.
	_, err := store.CreateAsset(ctx, inventory.Asset{Name: "laptop", Type: inventory.TypeLaptop, SerialNumber: "SN-9", Status: inventory.AssetAvailable})
	require.NoError(t, err)

	s, err := engine.RunAssignmentsOnly(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.DevicesAssigned)
	got, _ := store.GetAssetBySerial(ctx, "SN-9")
	assert.Equal(t, emp.ID, got.AssignedTo)
	assert.Equal(t, inventory.AssetAssigned, got.Status)
}

func TestSyncStatusNeedsNoRemote(t *testing.T) {
	ctx := context.Background()
	// A directory that always fails: SyncStatus must not care.
	dir := &fakeDirectory{authErr: &directory.AuthError{Status: 401}}
	engine, store := newTestEngine(dir)

	_, _ = store.CreateEmployee(ctx, inventory.Employee{Name: "Nina", Email: "nina@corp.example", Department: "IT", Status: inventory.EmployeeActive, ExternalID: "E1"})
	_, _ = store.CreateAsset(ctx, inventory.Asset{Name: "laptop", Type: inventory.TypeLaptop, SerialNumber: "SN-1", Status: inventory.AssetAvailable})

	snap, err := engine.SyncStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Employees["active"])
	assert.Equal(t, 1, snap.Assets["available"])
	assert.Equal(t, 1, snap.EmployeesLinked)
	assert.Zero(t, snap.AssetsLinked)
}

func TestPerUserDeviceFailureDoesNotDegradeOthers(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		users: []directory.RawUser{
			{ID: "E1", DisplayName: "Nina", Mail: "nina@corp.example", AccountEnabled: true},
			{ID: "E2", DisplayName: "Omar", Mail: "omar@corp.example", AccountEnabled: true},
		},
		userDevices: map[string][]directory.RawDevice{
			"E2": {{ID: "D2", DisplayName: "omar-phone", OperatingSystem: "iOS"}},
		},
		userDevicesErr: map[string]error{
			"E1": &directory.APIError{Status: 500, Kind: directory.KindServerError},
		},
	}
	engine, store := newTestEngine(dir)

	s, err := engine.RunFullSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, s.DevicesCreated)
	assert.NotEmpty(t, s.Warnings)
	assert.False(t, s.DevicesDegraded, "a single user's device failure is a warning, not a collection degradation")

	got, err := store.GetAssetByExternalID(ctx, "D2")
	require.NoError(t, err)
	assert.Equal(t, inventory.TypePhone, got.Type)
}
