package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed).withCause(err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed).withCause(err)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to migrate schema", ErrMigrationFailed).withCause(err)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePlan(ctx context.Context, plan *domain.Plan) error {
	return savePlan(ctx, s.db, plan)
}

func (s *SQLiteStore) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return getPlan(ctx, s.db, id)
}

func (s *SQLiteStore) UpdatePlan(ctx context.Context, plan *domain.Plan) error {
	return updatePlan(ctx, s.db, plan)
}

func (s *SQLiteStore) DeletePlan(ctx context.Context, id string) error {
	return deletePlan(ctx, s.db, id)
}

func (s *SQLiteStore) ListPlans(ctx context.Context, service string, opts ListOptions) ([]domain.Plan, error) {
	return listPlans(ctx, s.db, service, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed).withCause(err)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed).withCause(rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed).withCause(err)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) SavePlan(ctx context.Context, plan *domain.Plan) error {
	return savePlan(ctx, s.tx, plan)
}

func (s *txSQLiteStore) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return getPlan(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdatePlan(ctx context.Context, plan *domain.Plan) error {
	return updatePlan(ctx, s.tx, plan)
}

func (s *txSQLiteStore) DeletePlan(ctx context.Context, id string) error {
	return deletePlan(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListPlans(ctx context.Context, service string, opts ListOptions) ([]domain.Plan, error) {
	return listPlans(ctx, s.tx, service, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Plan Operations
// =============================================================================

// planRow represents a plan row in the database.
type planRow struct {
	ID           string `db:"id"`
	Service      string `db:"service"`
	ClusterKind  string `db:"cluster_kind"`
	ClusterName  string `db:"cluster_name"`
	Replicas     int    `db:"replicas"`
	Status       string `db:"status"`
	Resources    string `db:"resources"`
	Endpoints    string `db:"endpoints"`
	ErrorMessage string `db:"error_message"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func planToRow(op string, plan *domain.Plan) (map[string]any, error) {
	resourcesJSON, err := json.Marshal(plan.Resources)
	if err != nil {
		return nil, NewStoreError(op, "plan", plan.ID, "failed to serialize resources", ErrInvalidData).withCause(err)
	}
	endpointsJSON, err := json.Marshal(plan.Endpoints)
	if err != nil {
		return nil, NewStoreError(op, "plan", plan.ID, "failed to serialize endpoints", ErrInvalidData).withCause(err)
	}

	return map[string]any{
		"id":            plan.ID,
		"service":       plan.Service,
		"cluster_kind":  string(plan.ClusterKind),
		"cluster_name":  plan.ClusterName,
		"replicas":      plan.Replicas,
		"status":        string(plan.Status),
		"resources":     string(resourcesJSON),
		"endpoints":     string(endpointsJSON),
		"error_message": plan.ErrorMessage,
		"created_at":    plan.CreatedAt.UTC().Format(timeLayout),
		"updated_at":    plan.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func savePlan(ctx context.Context, exec executor, plan *domain.Plan) error {
	row, err := planToRow("SavePlan", plan)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO plans (
			id, service, cluster_kind, cluster_name, replicas, status,
			resources, endpoints, error_message, created_at, updated_at
		) VALUES (
			:id, :service, :cluster_kind, :cluster_name, :replicas, :status,
			:resources, :endpoints, :error_message, :created_at, :updated_at
		)`

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: plans.id") {
			return NewStoreError("SavePlan", "plan", plan.ID, "plan with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("SavePlan", "plan", plan.ID, err.Error(), err)
	}

	return nil
}

func getPlan(ctx context.Context, exec executor, id string) (*domain.Plan, error) {
	query := `SELECT * FROM plans WHERE id = ?`

	var row planRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetPlan", "plan", id, "plan not found", ErrNotFound)
		}
		return nil, NewStoreError("GetPlan", "plan", id, err.Error(), err)
	}

	return rowToPlan(&row)
}

func updatePlan(ctx context.Context, exec executor, plan *domain.Plan) error {
	row, err := planToRow("UpdatePlan", plan)
	if err != nil {
		return err
	}

	query := `
		UPDATE plans SET
			status = :status,
			replicas = :replicas,
			resources = :resources,
			endpoints = :endpoints,
			error_message = :error_message,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdatePlan", "plan", plan.ID, err.Error(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdatePlan", "plan", plan.ID, err.Error(), err)
	}
	if rowsAffected == 0 {
		return NewStoreError("UpdatePlan", "plan", plan.ID, "plan not found", ErrNotFound)
	}

	return nil
}

func deletePlan(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeletePlan", "plan", id, err.Error(), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeletePlan", "plan", id, err.Error(), err)
	}
	if rowsAffected == 0 {
		return NewStoreError("DeletePlan", "plan", id, "plan not found", ErrNotFound)
	}

	return nil
}

// listPlans returns plans newest first. An empty service lists every plan.
func listPlans(ctx context.Context, exec executor, service string, opts ListOptions) ([]domain.Plan, error) {
	opts = opts.Normalize()

	var (
		rows []planRow
		err  error
	)
	if service == "" {
		query := `SELECT * FROM plans ORDER BY created_at DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	} else {
		query := `SELECT * FROM plans WHERE service = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
		err = exec.SelectContext(ctx, &rows, query, service, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListPlans", "plan", "", err.Error(), err)
	}

	plans := make([]domain.Plan, 0, len(rows))
	for _, row := range rows {
		plan, err := rowToPlan(&row)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}

	return plans, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowToPlan(row *planRow) (*domain.Plan, error) {
	var resources []domain.PlanResource
	if err := json.Unmarshal([]byte(row.Resources), &resources); err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to deserialize resources", ErrInvalidData).withCause(err)
	}
	var endpoints []domain.PlanEndpoint
	if err := json.Unmarshal([]byte(row.Endpoints), &endpoints); err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to deserialize endpoints", ErrInvalidData).withCause(err)
	}

	createdAt, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse created_at", ErrInvalidData).withCause(err)
	}
	updatedAt, err := time.Parse(timeLayout, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToPlan", "plan", row.ID, "failed to parse updated_at", ErrInvalidData).withCause(err)
	}

	return &domain.Plan{
		ID:           row.ID,
		Service:      row.Service,
		ClusterKind:  cluster.Kind(row.ClusterKind),
		ClusterName:  row.ClusterName,
		Replicas:     row.Replicas,
		Status:       domain.PlanStatus(row.Status),
		Resources:    resources,
		Endpoints:    endpoints,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
