package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bazarly/auth-service/internal/domain"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(pgdriver.New(pgdriver.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return gdb, mock
}

func identityColumns() []string {
	return []string{
		"identity_id", "phone_number", "display_name", "profile",
		"deactivated", "deactivated_at", "reactivated_at", "created_at", "updated_at",
	}
}

func TestGetByPhoneNumber(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)
	repo := &identityRepository{db: gdb}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "identities" WHERE phone_number = `).
		WillReturnRows(sqlmock.NewRows(identityColumns()).
			AddRow("idr_01HZX000000000000000000001", "+14155550177", "Dana", `{"lang":"en"}`,
				false, nil, nil, now, now))

	identity, err := repo.GetByPhoneNumber(context.Background(), "+14155550177")
	if err != nil {
		t.Fatalf("get by phone failed: %v", err)
	}
	if identity.IdentityID != "idr_01HZX000000000000000000001" {
		t.Fatalf("unexpected identity id %q", identity.IdentityID)
	}
	if identity.Profile["lang"] != "en" {
		t.Fatalf("profile not decoded: %+v", identity.Profile)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByPhoneNumberNotFound(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)
	repo := &identityRepository{db: gdb}

	mock.ExpectQuery(`SELECT \* FROM "identities" WHERE phone_number = `).
		WillReturnRows(sqlmock.NewRows(identityColumns()))

	_, err := repo.GetByPhoneNumber(context.Background(), "+14155550199")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)
	repo := &identityRepository{db: gdb}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "identities" WHERE identity_id = `).
		WillReturnRows(sqlmock.NewRows(identityColumns()).
			AddRow("idr_01HZX000000000000000000002", "+14155550178", "Sam", "{}",
				true, &now, nil, now, now))

	identity, err := repo.GetByID(context.Background(), "idr_01HZX000000000000000000002")
	if err != nil {
		t.Fatalf("get by id failed: %v", err)
	}
	if !identity.Deactivated || identity.DeactivatedAt == nil {
		t.Fatalf("deactivation state lost: %+v", identity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateIdentityNotFound(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)
	repo := &identityRepository{db: gdb}

	mock.ExpectExec(`UPDATE "identities" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateIdentity(context.Background(), "idr_missing", "Name", nil, time.Now().UTC())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not-found on zero rows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetDeactivated(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)
	repo := &identityRepository{db: gdb}

	mock.ExpectExec(`UPDATE "identities" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetDeactivated(context.Background(), "idr_x", true, time.Now().UTC()); err != nil {
		t.Fatalf("set deactivated failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunMigrationsAppliesPendingVersions(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "version" FROM "schema_migrations"`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS identities`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := RunMigrations(context.Background(), gdb); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunMigrationsSkipsAppliedVersions(t *testing.T) {
	t.Parallel()

	gdb, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "version" FROM "schema_migrations"`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_init.sql"))

	if err := RunMigrations(context.Background(), gdb); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("schema DDL must not run twice: %v", err)
	}
}

func TestClaimUnpublishedGuards(t *testing.T) {
	t.Parallel()

	gdb, _ := newMockDB(t)
	repo := &outboxRepository{db: gdb}

	rows, err := repo.ClaimUnpublished(context.Background(), 0, "worker-1", time.Now().UTC())
	if err != nil || rows != nil {
		t.Fatalf("zero limit should claim nothing, got %v rows, err %v", rows, err)
	}
	if _, err := repo.ClaimUnpublished(context.Background(), 10, "", time.Now().UTC()); err == nil {
		t.Fatal("expected error for missing claim token")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicated key not detected")
	}
	if isUniqueViolation(gorm.ErrRecordNotFound) {
		t.Fatalf("record-not-found misdetected as unique violation")
	}
}

func TestEncodeProfile(t *testing.T) {
	t.Parallel()

	if got, err := encodeProfile(nil); err != nil || got != "{}" {
		t.Fatalf("nil profile: got %q, %v", got, err)
	}
	got, err := encodeProfile(map[string]string{"lang": "en"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got != `{"lang":"en"}` {
		t.Fatalf("unexpected encoding %q", got)
	}
}
