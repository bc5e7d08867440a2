package httpapi

import (
	"context"
	"net/http"

	"assettrack.org/internal/audit"
	"assettrack.org/internal/dirsync"
)

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	a.runSync(w, r, "sync.full", a.engine.RunFullSync)
}

func (a *API) handleSyncEmployees(w http.ResponseWriter, r *http.Request) {
	a.runSync(w, r, "sync.employees", a.engine.RunEmployeesOnly)
}

func (a *API) handleSyncDevices(w http.ResponseWriter, r *http.Request) {
	a.runSync(w, r, "sync.devices", a.engine.RunDevicesOnly)
}

func (a *API) handleSyncAssignments(w http.ResponseWriter, r *http.Request) {
	a.runSync(w, r, "sync.assignments", a.engine.RunAssignmentsOnly)
}

// runSync executes a pass synchronously. An authentication failure against
// the directory maps to 502: the request was fine, the upstream was not.
func (a *API) runSync(w http.ResponseWriter, r *http.Request, event string, pass func(context.Context) (*dirsync.Summary, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.engine == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory sync is not configured")
		return
	}

	summary, err := pass(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "directory sync failed: "+err.Error())
		return
	}

	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"pass_id":   summary.PassID,
		"mutations": summary.Mutations(),
		"degraded":  summary.Degraded(),
	})
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.engine == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory sync is not configured")
		return
	}
	snapshot, err := a.engine.SyncStatus(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
