package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"assettrack.org/internal/dirsync"
	"assettrack.org/internal/inventory"
	"assettrack.org/internal/obs"
)

// ReadyProbe reports readiness; with a database configured it pings it.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// SyncEngine is the reconciliation surface the API exposes. The concrete
// implementation is dirsync.Engine.
type SyncEngine interface {
	RunFullSync(ctx context.Context) (*dirsync.Summary, error)
	RunEmployeesOnly(ctx context.Context) (*dirsync.Summary, error)
	RunDevicesOnly(ctx context.Context) (*dirsync.Summary, error)
	RunAssignmentsOnly(ctx context.Context) (*dirsync.Summary, error)
	SyncStatus(ctx context.Context) (*dirsync.Snapshot, error)
}

// PhotoFetcher pulls a profile photo from the directory. Nil bytes with a
// nil error means the user has no photo.
type PhotoFetcher interface {
	FetchUserPhoto(ctx context.Context, userExternalID string) ([]byte, error)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	store      inventory.Store
	engine     SyncEngine
	photos     PhotoFetcher
	logger     *zap.Logger

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, store inventory.Store, engine SyncEngine, photos PhotoFetcher) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		store:      store,
		engine:     engine,
		photos:     photos,
		logger:     obs.Logger(),
		rateBurst:  40,
		ratePerSec: 20,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/sync", a.handleSync)
	a.mux.HandleFunc("/v1/sync/employees", a.handleSyncEmployees)
	a.mux.HandleFunc("/v1/sync/devices", a.handleSyncDevices)
	a.mux.HandleFunc("/v1/sync/assignments", a.handleSyncAssignments)
	a.mux.HandleFunc("/v1/sync/status", a.handleSyncStatus)

	a.mux.HandleFunc("/v1/employees", a.handleEmployeesCollection)
	a.mux.HandleFunc("/v1/employees/", a.handleEmployeeResource)
	a.mux.HandleFunc("/v1/assets", a.handleAssetsCollection)
	a.mux.HandleFunc("/v1/assets/", a.handleAssetResource)
	a.mux.HandleFunc("/v1/handovers", a.handleHandoversCollection)
	a.mux.HandleFunc("/v1/handovers/", a.handleHandoverResource)
	a.mux.HandleFunc("/v1/welcome-packs", a.handleWelcomePacks)
	a.mux.HandleFunc("/v1/dashboard", a.handleDashboard)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "assettrack-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "assettrack-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
