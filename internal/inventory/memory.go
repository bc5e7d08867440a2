package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory implements Store with in-process concurrency safety. It is the
// reference implementation used by tests and by the reconciler's own tests;
// production runs on the Postgres store.
type InMemory struct {
	mu sync.RWMutex

	employees  map[string]*Employee
	empByExt   map[string]string // external id -> employee id
	empByEmail map[string]string // lowercased email -> employee id

	assets      map[string]*Asset
	assetByExt  map[string]string
	assetBySer  map[string]string
	handovers   map[string]*Handover
	packs       map[string]*WelcomePack
	handoverSeq map[int]int // year -> last sequence

	now func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		employees:   make(map[string]*Employee),
		empByExt:    make(map[string]string),
		empByEmail:  make(map[string]string),
		assets:      make(map[string]*Asset),
		assetByExt:  make(map[string]string),
		assetBySer:  make(map[string]string),
		handovers:   make(map[string]*Handover),
		packs:       make(map[string]*WelcomePack),
		handoverSeq: make(map[int]int),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// --- Employees ---

func (s *InMemory) GetEmployee(ctx context.Context, id string) (Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return *e, nil
}

func (s *InMemory) GetEmployeeByExternalID(ctx context.Context, externalID string) (Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.empByExt[externalID]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return *s.employees[id], nil
}

func (s *InMemory) GetEmployeeByEmail(ctx context.Context, email string) (Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.empByEmail[normEmail(email)]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return *s.employees[id], nil
}

func (s *InMemory) ListEmployees(ctx context.Context, f EmployeeFilter) ([]Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Employee
	for _, e := range s.employees {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Department != "" && e.Department != f.Department {
			continue
		}
		if f.ExternalOnly && e.ExternalID == "" {
			continue
		}
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *InMemory) CreateEmployee(ctx context.Context, e Employee) (Employee, error) {
	if err := e.Validate(); err != nil {
		return Employee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normEmail(e.Email)
	if _, exists := s.empByEmail[key]; exists {
		return Employee{}, ErrDuplicateEmail
	}
	if e.ExternalID != "" {
		if _, exists := s.empByExt[e.ExternalID]; exists {
			return Employee{}, ErrDuplicateExternalID
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt = now
	e.UpdatedAt = now

	cp := e
	s.employees[e.ID] = &cp
	s.empByEmail[key] = e.ID
	if e.ExternalID != "" {
		s.empByExt[e.ExternalID] = e.ID
	}
	return e, nil
}

func (s *InMemory) UpdateEmployee(ctx context.Context, e Employee) (Employee, error) {
	if err := e.Validate(); err != nil {
		return Employee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.employees[e.ID]
	if !ok {
		return Employee{}, ErrNotFound
	}

	key := normEmail(e.Email)
	if other, exists := s.empByEmail[key]; exists && other != e.ID {
		return Employee{}, ErrDuplicateEmail
	}
	if e.ExternalID != "" {
		if other, exists := s.empByExt[e.ExternalID]; exists && other != e.ID {
			return Employee{}, ErrDuplicateExternalID
		}
	}

	delete(s.empByEmail, normEmail(prev.Email))
	if prev.ExternalID != "" {
		delete(s.empByExt, prev.ExternalID)
	}

	e.CreatedAt = prev.CreatedAt
	e.UpdatedAt = s.now()
	cp := e
	s.employees[e.ID] = &cp
	s.empByEmail[key] = e.ID
	if e.ExternalID != "" {
		s.empByExt[e.ExternalID] = e.ID
	}
	return e, nil
}

func (s *InMemory) CountEmployeesByStatus(ctx context.Context) (StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := StatusCounts{}
	for _, e := range s.employees {
		counts[string(e.Status)]++
	}
	return counts, nil
}

// --- Assets ---

func (s *InMemory) GetAsset(ctx context.Context, id string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return *a, nil
}

func (s *InMemory) GetAssetByExternalID(ctx context.Context, externalID string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.assetByExt[externalID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return *s.assets[id], nil
}

func (s *InMemory) GetAssetBySerial(ctx context.Context, serial string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.assetBySer[serial]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return *s.assets[id], nil
}

func (s *InMemory) ListAssets(ctx context.Context, f AssetFilter) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Asset
	for _, a := range s.assets {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.AssignedTo != "" && a.AssignedTo != f.AssignedTo {
			continue
		}
		if f.ExternalOnly && a.ExternalID == "" {
			continue
		}
		res = append(res, *a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *InMemory) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assetBySer[a.SerialNumber]; exists {
		return Asset{}, ErrDuplicateSerial
	}
	if a.ExternalID != "" {
		if _, exists := s.assetByExt[a.ExternalID]; exists {
			return Asset{}, ErrDuplicateExternalID
		}
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	cp := a
	s.assets[a.ID] = &cp
	s.assetBySer[a.SerialNumber] = a.ID
	if a.ExternalID != "" {
		s.assetByExt[a.ExternalID] = a.ID
	}
	return a, nil
}

func (s *InMemory) UpdateAsset(ctx context.Context, a Asset) (Asset, error) {
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.assets[a.ID]
	if !ok {
		return Asset{}, ErrNotFound
	}

	if other, exists := s.assetBySer[a.SerialNumber]; exists && other != a.ID {
		return Asset{}, ErrDuplicateSerial
	}
	if a.ExternalID != "" {
		if other, exists := s.assetByExt[a.ExternalID]; exists && other != a.ID {
			return Asset{}, ErrDuplicateExternalID
		}
	}

	delete(s.assetBySer, prev.SerialNumber)
	if prev.ExternalID != "" {
		delete(s.assetByExt, prev.ExternalID)
	}

	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = s.now()
	cp := a
	s.assets[a.ID] = &cp
	s.assetBySer[a.SerialNumber] = a.ID
	if a.ExternalID != "" {
		s.assetByExt[a.ExternalID] = a.ID
	}
	return a, nil
}

func (s *InMemory) CountAssetsByStatus(ctx context.Context) (StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := StatusCounts{}
	for _, a := range s.assets {
		counts[string(a.Status)]++
	}
	return counts, nil
}

func (s *InMemory) UnassignByOwner(ctx context.Context, employeeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.assets {
		if a.AssignedTo != employeeID {
			continue
		}
		a.AssignedTo = ""
		a.Status = AssetAvailable
		a.UpdatedAt = s.now()
		n++
	}
	return n, nil
}

// --- Handovers ---

func (s *InMemory) CreateHandover(ctx context.Context, h Handover) (Handover, error) {
	if h.EmployeeID == "" || len(h.AssetIDs) == 0 {
		return Handover{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[h.EmployeeID]; !ok {
		return Handover{}, ErrNotFound
	}
	for _, id := range h.AssetIDs {
		if _, ok := s.assets[id]; !ok {
			return Handover{}, ErrNotFound
		}
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = s.now()
	if h.Status == "" {
		h.Status = HandoverPending
	}
	year := h.CreatedAt.Year()
	s.handoverSeq[year]++
	h.Reference = HandoverReference(year, s.handoverSeq[year])

	cp := h
	cp.AssetIDs = append([]string(nil), h.AssetIDs...)
	s.handovers[h.ID] = &cp
	return h, nil
}

func (s *InMemory) GetHandover(ctx context.Context, id string) (Handover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handovers[id]
	if !ok {
		return Handover{}, ErrNotFound
	}
	out := *h
	out.AssetIDs = append([]string(nil), h.AssetIDs...)
	return out, nil
}

func (s *InMemory) ListHandovers(ctx context.Context, employeeID string) ([]Handover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Handover
	for _, h := range s.handovers {
		if employeeID != "" && h.EmployeeID != employeeID {
			continue
		}
		out := *h
		out.AssetIDs = append([]string(nil), h.AssetIDs...)
		res = append(res, out)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (s *InMemory) CompleteHandover(ctx context.Context, id string) (Handover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handovers[id]
	if !ok {
		return Handover{}, ErrNotFound
	}
	if h.Status == HandoverCompleted {
		out := *h
		return out, nil
	}
	now := s.now()
	h.Status = HandoverCompleted
	h.CompletedAt = &now
	for _, assetID := range h.AssetIDs {
		if a, ok := s.assets[assetID]; ok {
			a.AssignedTo = h.EmployeeID
			a.Status = AssetAssigned
			a.UpdatedAt = now
		}
	}
	out := *h
	out.AssetIDs = append([]string(nil), h.AssetIDs...)
	return out, nil
}

// --- Welcome packs ---

func (s *InMemory) CreateWelcomePack(ctx context.Context, p WelcomePack) (WelcomePack, error) {
	if p.EmployeeID == "" {
		return WelcomePack{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[p.EmployeeID]; !ok {
		return WelcomePack{}, ErrNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.GeneratedAt = s.now()
	cp := p
	s.packs[p.ID] = &cp
	return p, nil
}

func (s *InMemory) ListWelcomePacks(ctx context.Context, employeeID string) ([]WelcomePack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []WelcomePack
	for _, p := range s.packs {
		if employeeID != "" && p.EmployeeID != employeeID {
			continue
		}
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].GeneratedAt.After(res[j].GeneratedAt) })
	return res, nil
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
