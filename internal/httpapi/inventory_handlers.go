package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"assettrack.org/internal/audit"
	"assettrack.org/internal/inventory"
)

type createHandoverRequest struct {
	EmployeeID string   `json:"employee_id"`
	AssetIDs   []string `json:"asset_ids"`
	Notes      string   `json:"notes"`
}

type createWelcomePackRequest struct {
	EmployeeID     string `json:"employee_id"`
	ITContact      string `json:"it_contact"`
	HelpdeskEmail  string `json:"helpdesk_email"`
	OfficeLocation string `json:"office_location"`
	Notes          string `json:"notes"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (a *API) handleEmployeesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter := inventory.EmployeeFilter{
		Status:       inventory.EmployeeStatus(r.URL.Query().Get("status")),
		Department:   r.URL.Query().Get("department"),
		ExternalOnly: r.URL.Query().Get("linked") == "true",
	}
	items, err := a.store.ListEmployees(r.Context(), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[inventory.Employee]{Items: items, Total: len(items)})
}

func (a *API) handleEmployeeResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/employees/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/photo") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/photo"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "employee not found")
			return
		}
		a.getEmployeePhoto(w, r, id)
		return
	}
	if strings.HasSuffix(path, "/assets") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/assets"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "employee not found")
			return
		}
		a.getEmployeeAssets(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		emp, err := a.store.GetEmployee(r.Context(), path)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, emp)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) getEmployeeAssets(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := a.store.GetEmployee(r.Context(), id); err != nil {
		handleStoreError(w, r, err)
		return
	}
	items, err := a.store.ListAssets(r.Context(), inventory.AssetFilter{AssignedTo: id})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[inventory.Asset]{Items: items, Total: len(items)})
}

// getEmployeePhoto proxies the directory profile photo. Employees without a
// directory link, and directory users without a photo, both read as 404.
func (a *API) getEmployeePhoto(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	emp, err := a.store.GetEmployee(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if emp.ExternalID == "" || a.photos == nil {
		writeError(w, r, http.StatusNotFound, "no photo available")
		return
	}
	photo, err := a.photos.FetchUserPhoto(r.Context(), emp.ExternalID)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "photo fetch failed")
		return
	}
	if len(photo) == 0 {
		writeError(w, r, http.StatusNotFound, "no photo available")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(photo))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(photo)
}

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	filter := inventory.AssetFilter{
		Status:       inventory.AssetStatus(r.URL.Query().Get("status")),
		Type:         inventory.AssetType(r.URL.Query().Get("type")),
		AssignedTo:   r.URL.Query().Get("assigned_to"),
		ExternalOnly: r.URL.Query().Get("linked") == "true",
	}
	items, err := a.store.ListAssets(r.Context(), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[inventory.Asset]{Items: items, Total: len(items)})
}

func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/assets/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	asset, err := a.store.GetAsset(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (a *API) handleHandoversCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.store.ListHandovers(r.Context(), r.URL.Query().Get("employee_id"))
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[inventory.Handover]{Items: items, Total: len(items)})
	case http.MethodPost:
		a.createHandover(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createHandover(w http.ResponseWriter, r *http.Request) {
	var req createHandoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		writeError(w, r, http.StatusBadRequest, "employee_id is required")
		return
	}
	if len(req.AssetIDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "asset_ids are required")
		return
	}

	// Validate the referenced rows up front for readable errors.
	if _, err := a.store.GetEmployee(r.Context(), req.EmployeeID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	for _, assetID := range req.AssetIDs {
		asset, err := a.store.GetAsset(r.Context(), assetID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		if asset.Status != inventory.AssetAvailable {
			writeError(w, r, http.StatusConflict, "asset "+assetID+" is not available")
			return
		}
	}

	h, err := a.store.CreateHandover(r.Context(), inventory.Handover{
		EmployeeID: req.EmployeeID,
		AssetIDs:   req.AssetIDs,
		Notes:      req.Notes,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "handover.created", map[string]any{
		"reference":   h.Reference,
		"employee_id": h.EmployeeID,
		"assets":      len(h.AssetIDs),
	})

	w.Header().Set("Location", "/v1/handovers/"+h.ID)
	writeJSON(w, http.StatusCreated, h)
}

func (a *API) handleHandoverResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/handovers/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/complete") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/complete"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "handover not found")
			return
		}
		a.completeHandover(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	h, err := a.store.GetHandover(r.Context(), path)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (a *API) completeHandover(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	h, err := a.store.CompleteHandover(r.Context(), id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "handover.completed", map[string]any{
		"reference":   h.Reference,
		"employee_id": h.EmployeeID,
		"assets":      len(h.AssetIDs),
	})
	writeJSON(w, http.StatusOK, h)
}

func (a *API) handleWelcomePacks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.store.ListWelcomePacks(r.Context(), r.URL.Query().Get("employee_id"))
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[inventory.WelcomePack]{Items: items, Total: len(items)})
	case http.MethodPost:
		a.createWelcomePack(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createWelcomePack(w http.ResponseWriter, r *http.Request) {
	var req createWelcomePackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		writeError(w, r, http.StatusBadRequest, "employee_id is required")
		return
	}
	if _, err := a.store.GetEmployee(r.Context(), req.EmployeeID); err != nil {
		handleStoreError(w, r, err)
		return
	}

	p, err := a.store.CreateWelcomePack(r.Context(), inventory.WelcomePack{
		EmployeeID:     req.EmployeeID,
		ITContact:      req.ITContact,
		HelpdeskEmail:  req.HelpdeskEmail,
		OfficeLocation: req.OfficeLocation,
		Notes:          req.Notes,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "welcomepack.generated", map[string]any{
		"employee_id": p.EmployeeID,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx := r.Context()
	employees, err := a.store.CountEmployeesByStatus(ctx)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	assets, err := a.store.CountAssetsByStatus(ctx)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	linkedEmployees, err := a.store.ListEmployees(ctx, inventory.EmployeeFilter{ExternalOnly: true})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	linkedAssets, err := a.store.ListAssets(ctx, inventory.AssetFilter{ExternalOnly: true})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	attention := assets[string(inventory.AssetMaintenance)] + assets[string(inventory.AssetLost)]
	writeJSON(w, http.StatusOK, map[string]any{
		"employees":       employees,
		"assets":          assets,
		"needs_attention": attention,
		"sync_coverage": map[string]any{
			"employees_linked": len(linkedEmployees),
			"employees_total":  employees.Total(),
			"assets_linked":    len(linkedAssets),
			"assets_total":     assets.Total(),
		},
	})
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inventory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, inventory.ErrDuplicateEmail),
		errors.Is(err, inventory.ErrDuplicateSerial),
		errors.Is(err, inventory.ErrDuplicateExternalID):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
