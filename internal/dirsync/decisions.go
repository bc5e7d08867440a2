package dirsync

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"assettrack.org/internal/inventory"
)

type action int

const (
	actionCreate action = iota
	actionLink
	actionUpdate
	actionNoop
	actionConflict
)

// personDecision is the computed outcome for one remote person before any
// write happens. Keeping the decision separate from persistence makes the
// diff logic unit-testable without a store.
type personDecision struct {
	action      action
	existing    inventory.Employee
	reactivated bool
}

// planPerson resolves which local row (if any) a remote person attaches to.
// External id is the primary key; email is the secondary match used to adopt
// pre-existing manual rows instead of duplicating them. A local row whose
// email matches but which already carries a different external id is a
// conflict: skipped and flagged, never overwritten.
func (e *Engine) planPerson(ctx context.Context, rec PersonRecord) personDecision {
	existing, err := e.store.GetEmployeeByExternalID(ctx, rec.ExternalID)
	if err == nil {
		return decideExisting(existing, rec)
	}
	if !errors.Is(err, inventory.ErrNotFound) {
		e.logger.Warn("external id lookup failed", zap.String("external_id", rec.ExternalID), zap.Error(err))
	}

	byEmail, err := e.store.GetEmployeeByEmail(ctx, rec.Email)
	if err == nil {
		if byEmail.ExternalID == "" {
			return personDecision{action: actionLink, existing: byEmail}
		}
		return personDecision{action: actionConflict, existing: byEmail}
	}
	if !errors.Is(err, inventory.ErrNotFound) {
		e.logger.Warn("email lookup failed", zap.String("email", rec.Email), zap.Error(err))
	}

	return personDecision{action: actionCreate}
}

// decideExisting diffs a remote record against the local row already linked
// to its external id.
func decideExisting(existing inventory.Employee, rec PersonRecord) personDecision {
	reactivated := existing.Status != inventory.EmployeeActive
	if !reactivated && !personChanged(existing, rec) {
		return personDecision{action: actionNoop, existing: existing}
	}
	return personDecision{action: actionUpdate, existing: existing, reactivated: reactivated}
}

func personChanged(existing inventory.Employee, rec PersonRecord) bool {
	return existing.Name != rec.Name ||
		existing.Email != rec.Email ||
		existing.Department != rec.Department ||
		existing.JobTitle != rec.JobTitle ||
		existing.Phone != rec.Phone ||
		existing.ExternalUPN != rec.ExternalUPN ||
		existing.EmployeeNo != rec.EmployeeNo
}

func (e *Engine) createPerson(ctx context.Context, rec PersonRecord) error {
	now := e.now()
	_, err := e.store.CreateEmployee(ctx, inventory.Employee{
		Name:         rec.Name,
		Email:        rec.Email,
		Department:   rec.Department,
		JobTitle:     rec.JobTitle,
		Phone:        rec.Phone,
		Status:       inventory.EmployeeActive,
		ExternalID:   rec.ExternalID,
		ExternalUPN:  rec.ExternalUPN,
		EmployeeNo:   rec.EmployeeNo,
		LastSyncedAt: &now,
	})
	return err
}

// applyPerson merges the remote record onto an existing row. Used for both
// field updates and external-id adoption (linking); the row always comes out
// active, since the directory reported the account as enabled.
func (e *Engine) applyPerson(ctx context.Context, existing inventory.Employee, rec PersonRecord) error {
	now := e.now()
	existing.Name = rec.Name
	existing.Email = rec.Email
	existing.Department = rec.Department
	existing.JobTitle = rec.JobTitle
	existing.Phone = rec.Phone
	existing.ExternalID = rec.ExternalID
	existing.ExternalUPN = rec.ExternalUPN
	existing.EmployeeNo = rec.EmployeeNo
	existing.Status = inventory.EmployeeActive
	existing.LastSyncedAt = &now
	_, err := e.store.UpdateEmployee(ctx, existing)
	return err
}

func (e *Engine) touchPerson(ctx context.Context, existing inventory.Employee) {
	now := e.now()
	existing.LastSyncedAt = &now
	if _, err := e.store.UpdateEmployee(ctx, existing); err != nil {
		e.logger.Warn("sync timestamp refresh failed", zap.String("email", existing.Email), zap.Error(err))
	}
}

// upsertDevice creates or updates one asset from a normalized device record.
// ownerID is empty for standalone devices; in that case local status and any
// manual assignment are preserved.
func (e *Engine) upsertDevice(ctx context.Context, s *Summary, rec DeviceRecord, ownerID string) {
	now := e.now()

	existing, err := e.store.GetAssetByExternalID(ctx, rec.ExternalID)
	if errors.Is(err, inventory.ErrNotFound) {
		// Secondary key: a manually entered asset with the same serial is
		// adopted rather than duplicated.
		existing, err = e.store.GetAssetBySerial(ctx, rec.SerialNumber)
	}
	if errors.Is(err, inventory.ErrNotFound) {
		asset := inventory.Asset{
			Name:         rec.Name,
			Type:         rec.Type,
			SerialNumber: rec.SerialNumber,
			Manufacturer: rec.Manufacturer,
			Model:        rec.Model,
			OS:           rec.OS,
			OSVersion:    rec.OSVersion,
			Status:       inventory.AssetAvailable,
			ExternalID:   rec.ExternalID,
			LastSyncedAt: &now,
		}
		if ownerID != "" {
			asset.AssignedTo = ownerID
			asset.Status = inventory.AssetAssigned
		}
		if _, err := e.store.CreateAsset(ctx, asset); err != nil {
			s.RecordsSkipped++
			s.warnf("create device %s: %v", rec.SerialNumber, err)
			return
		}
		s.DevicesCreated++
		if ownerID != "" {
			s.DevicesAssigned++
		}
		return
	}
	if err != nil {
		s.warnf("device lookup %s: %v", rec.ExternalID, err)
		return
	}

	// Serial match against an asset already bound to a different remote
	// device: skipped and flagged, never rebound.
	if existing.ExternalID != "" && existing.ExternalID != rec.ExternalID {
		s.ConflictsSkipped++
		e.logger.Warn("device conflict skipped",
			zap.String("serial", rec.SerialNumber),
			zap.String("local_external_id", existing.ExternalID),
			zap.String("remote_external_id", rec.ExternalID))
		return
	}

	changed := existing.Name != rec.Name ||
		existing.Type != rec.Type ||
		existing.Manufacturer != rec.Manufacturer ||
		existing.Model != rec.Model ||
		existing.OS != rec.OS ||
		existing.OSVersion != rec.OSVersion ||
		existing.ExternalID != rec.ExternalID

	existing.Name = rec.Name
	existing.Type = rec.Type
	existing.Manufacturer = rec.Manufacturer
	existing.Model = rec.Model
	existing.OS = rec.OS
	existing.OSVersion = rec.OSVersion
	existing.ExternalID = rec.ExternalID
	existing.LastSyncedAt = &now

	reassigned := false
	if ownerID != "" && existing.AssignedTo != ownerID {
		existing.AssignedTo = ownerID
		existing.Status = inventory.AssetAssigned
		reassigned = true
	}

	if _, err := e.store.UpdateAsset(ctx, existing); err != nil {
		s.warnf("update device %s: %v", rec.SerialNumber, err)
		return
	}
	if changed {
		s.DevicesUpdated++
	}
	if reassigned {
		s.DevicesAssigned++
	}
}
