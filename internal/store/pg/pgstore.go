package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"assettrack.org/internal/inventory"
)

// Store implements inventory.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ inventory.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const employeeColumns = `id, name, email, department, job_title, phone, avatar_url, start_date,
	status, external_id, external_upn, employee_no, last_synced_at, created_at, updated_at`

const assetColumns = `id, name, asset_type, serial_number, manufacturer, model, os, os_version,
	status, assigned_to, external_id, purchase_date, warranty_expiry, notes, last_synced_at, created_at, updated_at`

// --- Employees ---

func (s *Store) GetEmployee(ctx context.Context, id string) (inventory.Employee, error) {
	row := s.db.QueryRowContext(ctx, `select `+employeeColumns+` from employees where id=$1`, id)
	return scanEmployee(row)
}

func (s *Store) GetEmployeeByExternalID(ctx context.Context, externalID string) (inventory.Employee, error) {
	row := s.db.QueryRowContext(ctx, `select `+employeeColumns+` from employees where external_id=$1`, externalID)
	return scanEmployee(row)
}

func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (inventory.Employee, error) {
	row := s.db.QueryRowContext(ctx, `select `+employeeColumns+` from employees where lower(email)=lower($1)`, email)
	return scanEmployee(row)
}

func (s *Store) ListEmployees(ctx context.Context, f inventory.EmployeeFilter) ([]inventory.Employee, error) {
	q := `select ` + employeeColumns + ` from employees where 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(` and status=$%d`, len(args))
	}
	if f.Department != "" {
		args = append(args, f.Department)
		q += fmt.Sprintf(` and department=$%d`, len(args))
	}
	if f.ExternalOnly {
		q += ` and external_id is not null`
	}
	q += ` order by name asc`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []inventory.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, e inventory.Employee) (inventory.Employee, error) {
	if err := e.Validate(); err != nil {
		return inventory.Employee{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into employees(id, name, email, department, job_title, phone, avatar_url, start_date,
			status, external_id, external_upn, employee_no, last_synced_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,nullif($10,''),$11,$12,$13,$14,$15)
	`, e.ID, e.Name, e.Email, e.Department, e.JobTitle, e.Phone, e.AvatarURL, e.StartDate,
		string(e.Status), e.ExternalID, e.ExternalUPN, e.EmployeeNo, e.LastSyncedAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return inventory.Employee{}, mapConstraint(err)
	}
	return e, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, e inventory.Employee) (inventory.Employee, error) {
	if err := e.Validate(); err != nil {
		return inventory.Employee{}, err
	}
	e.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		update employees
		set name=$2, email=$3, department=$4, job_title=$5, phone=$6, avatar_url=$7, start_date=$8,
			status=$9, external_id=nullif($10,''), external_upn=$11, employee_no=$12,
			last_synced_at=$13, updated_at=$14
		where id=$1
	`, e.ID, e.Name, e.Email, e.Department, e.JobTitle, e.Phone, e.AvatarURL, e.StartDate,
		string(e.Status), e.ExternalID, e.ExternalUPN, e.EmployeeNo, e.LastSyncedAt, e.UpdatedAt)
	if err != nil {
		return inventory.Employee{}, mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Employee{}, err
	}
	if n == 0 {
		return inventory.Employee{}, inventory.ErrNotFound
	}
	return e, nil
}

func (s *Store) CountEmployeesByStatus(ctx context.Context) (inventory.StatusCounts, error) {
	return s.countByStatus(ctx, `select status, count(*) from employees group by status`)
}

// --- Assets ---

func (s *Store) GetAsset(ctx context.Context, id string) (inventory.Asset, error) {
	row := s.db.QueryRowContext(ctx, `select `+assetColumns+` from assets where id=$1`, id)
	return scanAsset(row)
}

func (s *Store) GetAssetByExternalID(ctx context.Context, externalID string) (inventory.Asset, error) {
	row := s.db.QueryRowContext(ctx, `select `+assetColumns+` from assets where external_id=$1`, externalID)
	return scanAsset(row)
}

func (s *Store) GetAssetBySerial(ctx context.Context, serial string) (inventory.Asset, error) {
	row := s.db.QueryRowContext(ctx, `select `+assetColumns+` from assets where serial_number=$1`, serial)
	return scanAsset(row)
}

func (s *Store) ListAssets(ctx context.Context, f inventory.AssetFilter) ([]inventory.Asset, error) {
	q := `select ` + assetColumns + ` from assets where 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(` and status=$%d`, len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		q += fmt.Sprintf(` and asset_type=$%d`, len(args))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		q += fmt.Sprintf(` and assigned_to=$%d`, len(args))
	}
	if f.ExternalOnly {
		q += ` and external_id is not null`
	}
	q += ` order by name asc`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []inventory.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) CreateAsset(ctx context.Context, a inventory.Asset) (inventory.Asset, error) {
	if err := a.Validate(); err != nil {
		return inventory.Asset{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		insert into assets(id, name, asset_type, serial_number, manufacturer, model, os, os_version,
			status, assigned_to, external_id, purchase_date, warranty_expiry, notes, last_synced_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,nullif($10,''),nullif($11,''),$12,$13,$14,$15,$16,$17)
	`, a.ID, a.Name, string(a.Type), a.SerialNumber, a.Manufacturer, a.Model, a.OS, a.OSVersion,
		string(a.Status), a.AssignedTo, a.ExternalID, a.PurchaseDate, a.WarrantyExpiry, a.Notes,
		a.LastSyncedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return inventory.Asset{}, mapConstraint(err)
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a inventory.Asset) (inventory.Asset, error) {
	if err := a.Validate(); err != nil {
		return inventory.Asset{}, err
	}
	a.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		update assets
		set name=$2, asset_type=$3, serial_number=$4, manufacturer=$5, model=$6, os=$7, os_version=$8,
			status=$9, assigned_to=nullif($10,''), external_id=nullif($11,''), purchase_date=$12,
			warranty_expiry=$13, notes=$14, last_synced_at=$15, updated_at=$16
		where id=$1
	`, a.ID, a.Name, string(a.Type), a.SerialNumber, a.Manufacturer, a.Model, a.OS, a.OSVersion,
		string(a.Status), a.AssignedTo, a.ExternalID, a.PurchaseDate, a.WarrantyExpiry, a.Notes,
		a.LastSyncedAt, a.UpdatedAt)
	if err != nil {
		return inventory.Asset{}, mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Asset{}, err
	}
	if n == 0 {
		return inventory.Asset{}, inventory.ErrNotFound
	}
	return a, nil
}

func (s *Store) CountAssetsByStatus(ctx context.Context) (inventory.StatusCounts, error) {
	return s.countByStatus(ctx, `select status, count(*) from assets group by status`)
}

func (s *Store) UnassignByOwner(ctx context.Context, employeeID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update assets
		set assigned_to=null, status=$2, updated_at=now()
		where assigned_to=$1
	`, employeeID, string(inventory.AssetAvailable))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Handovers ---

func (s *Store) CreateHandover(ctx context.Context, h inventory.Handover) (inventory.Handover, error) {
	if h.EmployeeID == "" || len(h.AssetIDs) == 0 {
		return inventory.Handover{}, inventory.ErrInvalidInput
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Status == "" {
		h.Status = inventory.HandoverPending
	}
	h.CreatedAt = time.Now().UTC()
	year := h.CreatedAt.Year()

	// Serializable keeps the per-year reference sequence gapless under
	// concurrent creates.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return inventory.Handover{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	err = tx.QueryRowContext(ctx, `
		select coalesce(max(split_part(reference, '-', 3)::int), 0) + 1
		from handovers where reference like $1
	`, fmt.Sprintf("HOV-%d-%%", year)).Scan(&seq)
	if err != nil {
		return inventory.Handover{}, err
	}
	h.Reference = inventory.HandoverReference(year, seq)

	if _, err := tx.ExecContext(ctx, `
		insert into handovers(id, reference, employee_id, status, notes, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, h.ID, h.Reference, h.EmployeeID, string(h.Status), h.Notes, h.CreatedAt); err != nil {
		return inventory.Handover{}, mapConstraint(err)
	}
	for _, assetID := range h.AssetIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into handover_assets(handover_id, asset_id) values ($1,$2)
		`, h.ID, assetID); err != nil {
			return inventory.Handover{}, mapConstraint(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return inventory.Handover{}, err
	}
	return h, nil
}

func (s *Store) GetHandover(ctx context.Context, id string) (inventory.Handover, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, reference, employee_id, status, notes, created_at, completed_at
		from handovers where id=$1
	`, id)
	h, err := scanHandover(row)
	if err != nil {
		return inventory.Handover{}, err
	}
	h.AssetIDs, err = s.handoverAssetIDs(ctx, h.ID)
	return h, err
}

func (s *Store) ListHandovers(ctx context.Context, employeeID string) ([]inventory.Handover, error) {
	q := `select id, reference, employee_id, status, notes, created_at, completed_at from handovers`
	var args []any
	if employeeID != "" {
		q += ` where employee_id=$1`
		args = append(args, employeeID)
	}
	q += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []inventory.Handover
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AssetIDs, err = s.handoverAssetIDs(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Store) CompleteHandover(ctx context.Context, id string) (inventory.Handover, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Handover{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		select id, reference, employee_id, status, notes, created_at, completed_at
		from handovers where id=$1 for update
	`, id)
	h, err := scanHandover(row)
	if err != nil {
		return inventory.Handover{}, err
	}
	if h.Status == inventory.HandoverCompleted {
		// Completion is idempotent.
		if err := tx.Commit(); err != nil {
			return inventory.Handover{}, err
		}
		h.AssetIDs, err = s.handoverAssetIDs(ctx, h.ID)
		return h, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		update handovers set status=$2, completed_at=$3 where id=$1
	`, id, string(inventory.HandoverCompleted), now); err != nil {
		return inventory.Handover{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update assets set assigned_to=$2, status=$3, updated_at=now()
		where id in (select asset_id from handover_assets where handover_id=$1)
	`, id, h.EmployeeID, string(inventory.AssetAssigned)); err != nil {
		return inventory.Handover{}, err
	}
	if err := tx.Commit(); err != nil {
		return inventory.Handover{}, err
	}

	h.Status = inventory.HandoverCompleted
	h.CompletedAt = &now
	h.AssetIDs, err = s.handoverAssetIDs(ctx, h.ID)
	return h, err
}

func (s *Store) handoverAssetIDs(ctx context.Context, handoverID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select asset_id from handover_assets where handover_id=$1`, handoverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Welcome packs ---

func (s *Store) CreateWelcomePack(ctx context.Context, p inventory.WelcomePack) (inventory.WelcomePack, error) {
	if p.EmployeeID == "" {
		return inventory.WelcomePack{}, inventory.ErrInvalidInput
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.GeneratedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		insert into welcome_packs(id, employee_id, it_contact, helpdesk_email, office_location, notes, generated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.EmployeeID, p.ITContact, p.HelpdeskEmail, p.OfficeLocation, p.Notes, p.GeneratedAt)
	if err != nil {
		return inventory.WelcomePack{}, mapConstraint(err)
	}
	return p, nil
}

func (s *Store) ListWelcomePacks(ctx context.Context, employeeID string) ([]inventory.WelcomePack, error) {
	q := `select id, employee_id, it_contact, helpdesk_email, office_location, notes, generated_at from welcome_packs`
	var args []any
	if employeeID != "" {
		q += ` where employee_id=$1`
		args = append(args, employeeID)
	}
	q += ` order by generated_at desc`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []inventory.WelcomePack
	for rows.Next() {
		var p inventory.WelcomePack
		if err := rows.Scan(&p.ID, &p.EmployeeID, &p.ITContact, &p.HelpdeskEmail, &p.OfficeLocation, &p.Notes, &p.GeneratedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (inventory.Employee, error) {
	var (
		e          inventory.Employee
		status     string
		externalID sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.JobTitle, &e.Phone, &e.AvatarURL,
		&e.StartDate, &status, &externalID, &e.ExternalUPN, &e.EmployeeNo, &e.LastSyncedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Employee{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Employee{}, err
	}
	e.Status = inventory.EmployeeStatus(status)
	e.ExternalID = externalID.String
	return e, nil
}

func scanAsset(row rowScanner) (inventory.Asset, error) {
	var (
		a          inventory.Asset
		typ        string
		status     string
		assignedTo sql.NullString
		externalID sql.NullString
	)
	err := row.Scan(&a.ID, &a.Name, &typ, &a.SerialNumber, &a.Manufacturer, &a.Model, &a.OS,
		&a.OSVersion, &status, &assignedTo, &externalID, &a.PurchaseDate, &a.WarrantyExpiry,
		&a.Notes, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Asset{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Asset{}, err
	}
	a.Type = inventory.AssetType(typ)
	a.Status = inventory.AssetStatus(status)
	a.AssignedTo = assignedTo.String
	a.ExternalID = externalID.String
	return a, nil
}

func scanHandover(row rowScanner) (inventory.Handover, error) {
	var (
		h      inventory.Handover
		status string
	)
	err := row.Scan(&h.ID, &h.Reference, &h.EmployeeID, &status, &h.Notes, &h.CreatedAt, &h.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Handover{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Handover{}, err
	}
	h.Status = inventory.HandoverStatus(status)
	return h, nil
}

func (s *Store) countByStatus(ctx context.Context, query string) (inventory.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := inventory.StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// mapConstraint translates unique violations into inventory sentinels
// by constraint name.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return inventory.ErrDuplicateEmail
	case strings.Contains(pgErr.ConstraintName, "serial"):
		return inventory.ErrDuplicateSerial
	case strings.Contains(pgErr.ConstraintName, "external"):
		return inventory.ErrDuplicateExternalID
	default:
		return err
	}
}
