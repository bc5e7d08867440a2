package dirsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"assettrack.org/internal/directory"
	"assettrack.org/internal/ids"
	"assettrack.org/internal/inventory"
	"assettrack.org/internal/obs"
)

// DirectoryAPI is the remote surface the reconciler consumes. The concrete
// implementation is directory.Client; tests substitute a fake.
type DirectoryAPI interface {
	Authenticate(ctx context.Context) (directory.Token, error)
	ListUsers(ctx context.Context) ([]directory.RawUser, error)
	ListDevices(ctx context.Context) ([]directory.RawDevice, error)
	ListUserDevices(ctx context.Context, userExternalID string) ([]directory.RawDevice, error)
	ListDeletedUsers(ctx context.Context) ([]directory.RawDeletedUser, error)
}

// Engine runs one-way reconciliation passes from the directory into the
// local store. The local store stays authoritative for everything the
// directory does not know about: manual rows, assignment history, handovers.
type Engine struct {
	dir    DirectoryAPI
	store  inventory.Store
	logger *zap.Logger
	now    func() time.Time

	// passMu serializes passes: upserts on the same external id, email or
	// serial must never race, and one pass at a time is the simplest rule
	// that guarantees it.
	passMu sync.Mutex

	lastMu sync.RWMutex
	last   *Summary
}

// NewEngine wires a reconciler.
func NewEngine(dir DirectoryAPI, store inventory.Store, logger *zap.Logger) *Engine {
	return &Engine{
		dir:    dir,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunFullSync executes a complete pass: users, deletions, devices and
// assignments. It returns an error only when authentication is impossible;
// partial remote failures are reported inside the summary instead.
func (e *Engine) RunFullSync(ctx context.Context) (*Summary, error) {
	return e.run(ctx, true, true)
}

// RunEmployeesOnly syncs people (upsert, deactivation, deletion) and leaves
// devices untouched.
func (e *Engine) RunEmployeesOnly(ctx context.Context) (*Summary, error) {
	return e.run(ctx, true, false)
}

// RunDevicesOnly syncs devices and their owner assignments without touching
// employee lifecycle state.
func (e *Engine) RunDevicesOnly(ctx context.Context) (*Summary, error) {
	return e.run(ctx, false, true)
}

// RunAssignmentsOnly re-derives device ownership from the per-user device
// associations. Standalone devices are not fetched.
func (e *Engine) RunAssignmentsOnly(ctx context.Context) (*Summary, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	s := &Summary{PassID: ids.New(), StartedAt: e.now()}
	defer e.finish(s)

	if _, err := e.dir.Authenticate(ctx); err != nil {
		return nil, err
	}
	people, ok := e.activeLinkedPeople(ctx, s)
	if !ok {
		return s, nil
	}
	e.syncUserDevices(ctx, s, people)
	return s, nil
}

// SyncStatus reports local counts by status without touching the remote API.
func (e *Engine) SyncStatus(ctx context.Context) (*Snapshot, error) {
	employees, err := e.store.CountEmployeesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	assets, err := e.store.CountAssetsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	linkedEmp, err := e.store.ListEmployees(ctx, inventory.EmployeeFilter{ExternalOnly: true})
	if err != nil {
		return nil, err
	}
	linkedAssets, err := e.store.ListAssets(ctx, inventory.AssetFilter{ExternalOnly: true})
	if err != nil {
		return nil, err
	}

	e.lastMu.RLock()
	last := e.last
	e.lastMu.RUnlock()

	return &Snapshot{
		Employees:       employees,
		Assets:          assets,
		EmployeesLinked: len(linkedEmp),
		AssetsLinked:    len(linkedAssets),
		LastRun:         last,
	}, nil
}

func (e *Engine) run(ctx context.Context, people, devices bool) (*Summary, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	s := &Summary{PassID: ids.New(), StartedAt: e.now()}
	defer e.finish(s)

	// Authentication failure is the one fatal error: without a token no
	// sub-collection can be fetched and no meaningful summary exists.
	if _, err := e.dir.Authenticate(ctx); err != nil {
		obs.SyncPassFinished("error", time.Since(s.StartedAt))
		return nil, err
	}

	if people {
		activeUsers, deleted := e.fetchPeople(ctx, s)

		if err := ctx.Err(); err != nil {
			return s, err
		}
		seen := e.upsertPeople(ctx, s, activeUsers)

		if err := ctx.Err(); err != nil {
			return s, err
		}
		e.deactivateMissing(ctx, s, seen, deleted)

		if err := ctx.Err(); err != nil {
			return s, err
		}
		e.deleteRemoved(ctx, s, deleted)
	}

	if devices {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		linked, ok := e.activeLinkedPeople(ctx, s)
		if ok {
			assignedExt := e.syncUserDevices(ctx, s, linked)
			e.syncStandaloneDevices(ctx, s, assignedExt)
		}
	}

	return s, nil
}

func (e *Engine) finish(s *Summary) {
	s.Duration = time.Since(s.StartedAt)

	e.lastMu.Lock()
	e.last = s
	e.lastMu.Unlock()

	outcome := "ok"
	if s.Degraded() {
		outcome = "degraded"
	}
	obs.SyncPassFinished(outcome, s.Duration)
	obs.SyncMutations(s.Mutations())

	e.logger.Info("sync pass finished",
		zap.String("pass_id", s.PassID),
		zap.Int("employees_created", s.EmployeesCreated),
		zap.Int("employees_updated", s.EmployeesUpdated),
		zap.Int("employees_deactivated", s.EmployeesDeactivated),
		zap.Int("employees_deleted", s.EmployeesDeleted),
		zap.Int("devices_created", s.DevicesCreated),
		zap.Int("devices_assigned", s.DevicesAssigned),
		zap.Int("records_skipped", s.RecordsSkipped),
		zap.Bool("degraded", s.Degraded()),
		zap.Duration("duration", s.Duration),
	)
}

// fetchPeople pulls the active-user and deleted-user collections. Either
// fetch failing degrades its dependent stages instead of aborting the pass.
func (e *Engine) fetchPeople(ctx context.Context, s *Summary) ([]directory.RawUser, []directory.RawDeletedUser) {
	users, err := e.dir.ListUsers(ctx)
	if err != nil {
		s.UsersDegraded = true
		s.warnf("user listing failed: %v", err)
		obs.SyncDegraded("users")
		e.logger.Warn("user sync degraded", zap.Error(err))
	}

	deleted, err := e.dir.ListDeletedUsers(ctx)
	if err != nil {
		s.DeletedUsersDegraded = true
		s.warnf("deleted-user listing failed: %v", err)
		obs.SyncDegraded("deleted_users")
		e.logger.Warn("deleted-user sync degraded", zap.Error(err))
	}
	return users, deleted
}

// upsertPeople applies create/link/update decisions for every remote user
// and returns the set of external ids observed. Decisions are computed per
// record before any write so the logic stays testable in isolation.
func (e *Engine) upsertPeople(ctx context.Context, s *Summary, users []directory.RawUser) map[string]bool {
	seen := make(map[string]bool, len(users))
	if s.UsersDegraded {
		return seen
	}

	for _, raw := range users {
		rec, err := MapUser(raw)
		if err != nil {
			s.RecordsSkipped++
			e.logger.Warn("skipping malformed user record", zap.Error(err))
			continue
		}
		seen[rec.ExternalID] = true

		d := e.planPerson(ctx, rec)
		switch d.action {
		case actionCreate:
			if err := e.createPerson(ctx, rec); err != nil {
				s.RecordsSkipped++
				s.warnf("create %s: %v", rec.Email, err)
				continue
			}
			s.EmployeesCreated++
		case actionLink:
			if err := e.applyPerson(ctx, d.existing, rec); err != nil {
				s.RecordsSkipped++
				s.warnf("link %s: %v", rec.Email, err)
				continue
			}
			s.EmployeesLinked++
		case actionUpdate:
			if err := e.applyPerson(ctx, d.existing, rec); err != nil {
				s.RecordsSkipped++
				s.warnf("update %s: %v", rec.Email, err)
				continue
			}
			s.EmployeesUpdated++
			if d.reactivated {
				s.EmployeesReactivated++
			}
		case actionNoop:
			// Refresh the sync timestamp only; not counted as a mutation.
			e.touchPerson(ctx, d.existing)
		case actionConflict:
			s.ConflictsSkipped++
			s.warnf("conflicting external ids for email %s (local %q, remote %q); record skipped",
				rec.Email, d.existing.ExternalID, rec.ExternalID)
			e.logger.Warn("identity conflict",
				zap.String("email", rec.Email),
				zap.String("local_external_id", d.existing.ExternalID),
				zap.String("remote_external_id", rec.ExternalID),
			)
		}
	}
	return seen
}

// deactivateMissing transitions linked employees absent from the active set
// to inactive. Deleted-feed members are stage 4's concern; a degraded user
// fetch suppresses this stage entirely so a transient failure never
// deactivates anyone.
func (e *Engine) deactivateMissing(ctx context.Context, s *Summary, seen map[string]bool, deleted []directory.RawDeletedUser) {
	if s.UsersDegraded {
		return
	}

	deletedSet := make(map[string]bool, len(deleted))
	for _, d := range deleted {
		deletedSet[d.ID] = true
	}

	employees, err := e.store.ListEmployees(ctx, inventory.EmployeeFilter{Status: inventory.EmployeeActive, ExternalOnly: true})
	if err != nil {
		s.warnf("listing local employees: %v", err)
		return
	}
	for _, emp := range employees {
		if seen[emp.ExternalID] || deletedSet[emp.ExternalID] {
			continue
		}
		emp.Status = inventory.EmployeeInactive
		if _, err := e.store.UpdateEmployee(ctx, emp); err != nil {
			s.warnf("deactivate %s: %v", emp.Email, err)
			continue
		}
		s.EmployeesDeactivated++
		e.logger.Info("employee deactivated", zap.String("email", emp.Email), zap.String("external_id", emp.ExternalID))
	}
}

// deleteRemoved transitions employees found in the deleted-user feed to
// deleted and cascades: their assets are unassigned and reset to available.
// Assets themselves are never deleted.
func (e *Engine) deleteRemoved(ctx context.Context, s *Summary, deleted []directory.RawDeletedUser) {
	if s.DeletedUsersDegraded {
		return
	}

	for _, d := range deleted {
		emp, err := e.store.GetEmployeeByExternalID(ctx, d.ID)
		if err != nil {
			if errors.Is(err, inventory.ErrNotFound) {
				continue
			}
			s.warnf("lookup deleted user %s: %v", d.ID, err)
			continue
		}
		if emp.Status == inventory.EmployeeDeleted {
			continue
		}

		cleaned, err := e.store.UnassignByOwner(ctx, emp.ID)
		if err != nil {
			s.warnf("unassign assets of %s: %v", emp.Email, err)
			continue
		}
		s.DevicesUnassigned += cleaned
		s.AssetsCleaned += cleaned

		emp.Status = inventory.EmployeeDeleted
		if _, err := e.store.UpdateEmployee(ctx, emp); err != nil {
			s.warnf("mark deleted %s: %v", emp.Email, err)
			continue
		}
		s.EmployeesDeleted++
		e.logger.Info("employee deleted upstream",
			zap.String("email", emp.Email),
			zap.String("external_id", emp.ExternalID),
			zap.Int("assets_released", cleaned),
		)
	}
}

// activeLinkedPeople returns the local active employees carrying an external
// id, keyed by that id. Device assignment resolves owners through this map.
func (e *Engine) activeLinkedPeople(ctx context.Context, s *Summary) (map[string]inventory.Employee, bool) {
	employees, err := e.store.ListEmployees(ctx, inventory.EmployeeFilter{Status: inventory.EmployeeActive, ExternalOnly: true})
	if err != nil {
		s.warnf("listing local employees: %v", err)
		return nil, false
	}
	byExt := make(map[string]inventory.Employee, len(employees))
	for _, emp := range employees {
		byExt[emp.ExternalID] = emp
	}
	return byExt, true
}

// syncUserDevices walks each linked person's registered devices, upserting
// and assigning them. A per-user fetch failure degrades only that user.
func (e *Engine) syncUserDevices(ctx context.Context, s *Summary, people map[string]inventory.Employee) map[string]bool {
	assignedExt := make(map[string]bool)

	for extID, emp := range people {
		if err := ctx.Err(); err != nil {
			return assignedExt
		}
		devices, err := e.dir.ListUserDevices(ctx, extID)
		if err != nil {
			s.warnf("devices of %s: %v", emp.Email, err)
			e.logger.Warn("user device listing failed", zap.String("email", emp.Email), zap.Error(err))
			continue
		}
		for _, raw := range devices {
			rec, err := MapDevice(raw)
			if err != nil {
				s.RecordsSkipped++
				e.logger.Warn("skipping malformed device record", zap.Error(err))
				continue
			}
			assignedExt[rec.ExternalID] = true
			e.upsertDevice(ctx, s, rec, emp.ID)
		}
	}
	return assignedExt
}

// syncStandaloneDevices upserts devices not registered to any user. Their
// local status is preserved when already set; new rows start available.
func (e *Engine) syncStandaloneDevices(ctx context.Context, s *Summary, assignedExt map[string]bool) {
	devices, err := e.dir.ListDevices(ctx)
	if err != nil {
		s.DevicesDegraded = true
		s.warnf("device listing failed: %v", err)
		obs.SyncDegraded("devices")
		e.logger.Warn("device sync degraded", zap.Error(err))
		return
	}

	for _, raw := range devices {
		if assignedExt[raw.ID] {
			continue
		}
		rec, err := MapDevice(raw)
		if err != nil {
			s.RecordsSkipped++
			e.logger.Warn("skipping malformed device record", zap.Error(err))
			continue
		}
		e.upsertDevice(ctx, s, rec, "")
	}
}
