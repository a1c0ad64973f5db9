// Package sqlstore is a database/sql implementation of store.WorkItemStore
// for PostgreSQL, MySQL, SQLite and SQL Server.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/store"
)

// TableConfig configures the table names used by the store.
// Names may be schema qualified.
type TableConfig struct {
	// WorkItemsTable is the scheduler table holding provisioning requests.
	WorkItemsTable string

	// ProjectsTable is the table holding project records.
	ProjectsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		WorkItemsTable: "work_items",
		ProjectsTable:  "projects",
	}
}

// Store persists work items through database/sql.
// Status writes share one transaction that is opened by the first write and
// committed by SaveChanges.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  TableConfig
	now     func() time.Time

	mu sync.Mutex
	tx *sql.Tx
}

// New creates a store with default table names.
func New(db *sql.DB, dialect Dialect) *Store {
	return NewWithConfig(db, dialect, DefaultTableConfig())
}

// NewWithConfig creates a store with custom table names.
func NewWithConfig(db *sql.DB, dialect Dialect, tables TableConfig) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		tables:  tables,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListWorkItems returns the items matching filter ordered by ID.
func (s *Store) ListWorkItems(ctx context.Context, filter provisioner.WorkItemFilter) ([]provisioner.WorkItem, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "active = ?")
		args = append(args, true)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, int(*filter.Status))
	}

	query := fmt.Sprintf(`SELECT id, project_id, project_name, database_name, username, password, template, status, error_message, active, updated_at FROM %s`, s.tables.WorkItemsTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := make([]provisioner.WorkItem, 0)
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work items: %w", err)
	}

	return items, nil
}

func scanWorkItem(rows *sql.Rows) (provisioner.WorkItem, error) {
	var (
		item         provisioner.WorkItem
		projectID    sql.NullInt64
		databaseName sql.NullString
		username     sql.NullString
		password     sql.NullString
		template     sql.NullString
		status       int
		errorMessage sql.NullString
		updatedAt    sql.NullTime
	)

	err := rows.Scan(
		&item.ID,
		&projectID,
		&item.ProjectName,
		&databaseName,
		&username,
		&password,
		&template,
		&status,
		&errorMessage,
		&item.Active,
		&updatedAt,
	)
	if err != nil {
		return provisioner.WorkItem{}, fmt.Errorf("failed to scan work item: %w", err)
	}

	if projectID.Valid {
		id := projectID.Int64
		item.ProjectID = &id
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		item.ErrorMessage = &msg
	}
	item.DatabaseName = databaseName.String
	item.Username = username.String
	item.Password = password.String
	item.Template = provisioner.TemplateKind(template.String)
	item.Status = provisioner.Status(status)
	item.UpdatedAt = updatedAt.Time

	return item, nil
}

// UpdateWorkItem stages the status, error message and timestamp of item.
// Returns store.ErrWorkItemNotFound if the item does not exist.
func (s *Store) UpdateWorkItem(ctx context.Context, item provisioner.WorkItem) error {
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	query := fmt.Sprintf(`UPDATE %s SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`, s.tables.WorkItemsTable)

	affected, err := s.exec(ctx, query, int(item.Status), nullString(item.ErrorMessage), updatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update work item: %w", err)
	}
	if affected == 0 {
		return store.ErrWorkItemNotFound
	}
	return nil
}

// UpdateProjectStatus stages a project status write inside a savepoint. A
// failed write is rolled back to the savepoint and leaves the other staged
// writes committable.
// Returns store.ErrProjectNotFound if the project does not exist.
func (s *Store) UpdateProjectStatus(ctx context.Context, projectID int64, status provisioner.Status, errorMessage *string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = ?, error_message = ?, modified_at = ? WHERE id = ?`, s.tables.ProjectsTable)

	affected, err := s.execSavepoint(ctx, projectSavepoint, query, int(status), nullString(errorMessage), s.now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	if affected == 0 {
		return store.ErrProjectNotFound
	}
	return nil
}

// SaveChanges commits the open transaction, if any.
func (s *Store) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	return nil
}

// DiscardChanges rolls back the open transaction, if any.
func (s *Store) DiscardChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to discard changes: %w", err)
	}
	return nil
}

const projectSavepoint = "project_status"

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	return s.execTx(ctx, query, args...)
}

// execSavepoint runs query between a savepoint and its release. On failure
// the transaction is rolled back to the savepoint.
func (s *Store) execSavepoint(ctx context.Context, name, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(ctx); err != nil {
		return 0, err
	}

	set, rollback, release := s.dialect.savepointStatements(name)
	if _, err := s.tx.ExecContext(ctx, set); err != nil {
		return 0, fmt.Errorf("failed to set savepoint: %w", err)
	}

	affected, err := s.execTx(ctx, query, args...)
	if err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, rollback); rbErr != nil {
			return 0, errors.Join(err, fmt.Errorf("failed to roll back to savepoint: %w", rbErr))
		}
		return 0, err
	}

	if release != "" {
		if _, err := s.tx.ExecContext(ctx, release); err != nil {
			return 0, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	return affected, nil
}

// begin opens the unit-of-work transaction. Callers hold s.mu.
func (s *Store) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Store) execTx(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.tx.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ store.WorkItemStore = (*Store)(nil)
