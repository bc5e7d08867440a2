package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"assettrack.org/internal/inventory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func employeeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "email", "department", "job_title", "phone", "avatar_url", "start_date",
		"status", "external_id", "external_upn", "employee_no", "last_synced_at", "created_at", "updated_at",
	})
}

func TestGetEmployeeNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`from employees where id=`).
		WithArgs("missing").
		WillReturnRows(employeeRows())

	_, err := s.GetEmployee(context.Background(), "missing")
	if !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetEmployeeByExternalID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`from employees where external_id=`).
		WithArgs("ext-1").
		WillReturnRows(employeeRows().AddRow(
			"e1", "Nina Moss", "nina@corp.test", "Engineering", "SRE", "", "", nil,
			"active", "ext-1", "nina@corp.test", "1007", nil, now, now,
		))

	e, err := s.GetEmployeeByExternalID(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.ExternalID != "ext-1" || e.Status != inventory.EmployeeActive {
		t.Fatalf("unexpected row: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateEmployeeDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`insert into employees`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "employees_email_key"})

	_, err := s.CreateEmployee(context.Background(), inventory.Employee{
		Name: "Nina Moss", Email: "nina@corp.test", Status: inventory.EmployeeActive,
	})
	if !errors.Is(err, inventory.ErrDuplicateEmail) {
		t.Fatalf("want ErrDuplicateEmail, got %v", err)
	}
}

func TestCreateAssetDuplicateSerial(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`insert into assets`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "assets_serial_number_key"})

	_, err := s.CreateAsset(context.Background(), inventory.Asset{
		Name: "bench-laptop", SerialNumber: "SN-1",
		Type: inventory.TypeLaptop, Status: inventory.AssetAvailable,
	})
	if !errors.Is(err, inventory.ErrDuplicateSerial) {
		t.Fatalf("want ErrDuplicateSerial, got %v", err)
	}
}

func TestUpdateEmployeeMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`update employees`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdateEmployee(context.Background(), inventory.Employee{
		ID: "gone", Name: "Nina Moss", Email: "nina@corp.test", Status: inventory.EmployeeActive,
	})
	if !errors.Is(err, inventory.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUnassignByOwner(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`update assets`).
		WithArgs("e1", "available").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.UnassignByOwner(context.Background(), "e1")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 cleaned, got %d", n)
	}
}

func TestCountAssetsByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`select status, count`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("available", 4).
			AddRow("assigned", 7))

	counts, err := s.CountAssetsByStatus(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["available"] != 4 || counts["assigned"] != 7 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestCreateHandoverAssignsReference(t *testing.T) {
	s, mock := newMockStore(t)
	year := time.Now().UTC().Year()

	mock.ExpectBegin()
	mock.ExpectQuery(`from handovers where reference like`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(3))
	mock.ExpectExec(`insert into handovers`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into handover_assets`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h, err := s.CreateHandover(context.Background(), inventory.Handover{
		EmployeeID: "e1",
		AssetIDs:   []string{"a1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := inventory.HandoverReference(year, 3)
	if h.Reference != want {
		t.Fatalf("reference = %q, want %q", h.Reference, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCompleteHandoverAssignsAssets(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Now().UTC().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`from handovers where id=`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "reference", "employee_id", "status", "notes", "created_at", "completed_at",
		}).AddRow("h1", "HOV-2026-0001", "e1", "pending", "", created, nil))
	mock.ExpectExec(`update handovers set status=`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update assets set assigned_to=`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectQuery(`select asset_id from handover_assets`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"asset_id"}).AddRow("a1").AddRow("a2"))

	h, err := s.CompleteHandover(context.Background(), "h1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if h.Status != inventory.HandoverCompleted || h.CompletedAt == nil {
		t.Fatalf("not completed: %+v", h)
	}
	if len(h.AssetIDs) != 2 {
		t.Fatalf("want 2 asset ids, got %v", h.AssetIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
