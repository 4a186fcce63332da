package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/scenark/scenark/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Ping probes whether the execution schema is present. Used once per process
// to decide whether writes must degrade to no-ops.
func (s *LibSQLStore) Ping(ctx context.Context) error {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'executions'`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return schema.NewError(schema.ErrCodeStore, "executions table not provisioned")
	}
	return err
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.Status == "" {
		exec.Status = schema.ExecutionRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, tenant_id, scenario_name, execution_hash, status, resource_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.TenantID, exec.ScenarioName, exec.ExecutionHash,
		string(exec.Status), exec.ResourceCount, timeOrNow(exec.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	e := &Execution{}
	var status string
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, scenario_name, execution_hash, status, resource_count, created_at, completed_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.TenantID, &e.ScenarioName, &e.ExecutionHash, &status, &e.ResourceCount, &e.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	e.Status = schema.ExecutionStatus(status)
	if completed.Valid {
		e.CompletedAt = &completed.Time
	}
	return e, nil
}

func (s *LibSQLStore) FinalizeExecution(ctx context.Context, id string, status schema.ExecutionStatus, resourceCount int, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, resource_count = ?, completed_at = ? WHERE id = ?`,
		string(status), resourceCount, completedAt, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) MarkExecutionCleaned(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ? WHERE id = ?`,
		string(schema.ExecutionCleaned), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, tenantID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, scenario_name, execution_hash, status, resource_count, created_at, completed_at
		 FROM executions WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// FindExecutionByHash returns the most recent execution matching the
// idempotency fingerprint. Only running and completed executions count as
// duplicates — a failed run must be re-triable.
func (s *LibSQLStore) FindExecutionByHash(ctx context.Context, tenantID, hash string) (*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, scenario_name, execution_hash, status, resource_count, created_at, completed_at
		 FROM executions
		 WHERE tenant_id = ? AND execution_hash = ? AND status IN ('running', 'completed')
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, hash,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	execs, err := scanExecutions(rows)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, nil
	}
	return execs[0], nil
}

func (s *LibSQLStore) CountExecutionsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, since,
	).Scan(&count)
	return count, err
}

func scanExecutions(rows *sql.Rows) ([]*Execution, error) {
	var execs []*Execution
	for rows.Next() {
		e := &Execution{}
		var status string
		var completed sql.NullTime
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ScenarioName, &e.ExecutionHash, &status, &e.ResourceCount, &e.CreatedAt, &completed); err != nil {
			return nil, err
		}
		e.Status = schema.ExecutionStatus(status)
		if completed.Valid {
			e.CompletedAt = &completed.Time
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// --- Execution log ---

func (s *LibSQLStore) AppendLogEntry(ctx context.Context, entry *LogEntry) error {
	if entry.CleanupState == "" {
		entry.CleanupState = CleanupPending
	}
	data, err := nullableJSON(entry.Data)
	if err != nil {
		return fmt.Errorf("marshal log entry data: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_log
		 (execution_id, step_id, integration, action_name, provider_action, status,
		  external_resource_id, external_resource_type, data, error, duration_ms, cleanup_state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExecutionID, entry.StepID, entry.Integration, nullStr(entry.ActionName),
		entry.ProviderAction, string(entry.Status), nullStr(entry.ExternalResourceID),
		nullStr(entry.ExternalResourceType), data, nullStr(entry.Error),
		entry.DurationMs, entry.CleanupState, timeOrNow(entry.CreatedAt),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListLogEntries(ctx context.Context, executionID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, integration, action_name, provider_action, status,
		        external_resource_id, external_resource_type, data, error, duration_ms, cleanup_state, created_at
		 FROM execution_log WHERE execution_id = ? ORDER BY id ASC`,
		executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// ListCleanable returns success entries carrying an external resource id that
// have not been cleaned yet, most recent first (undo order).
func (s *LibSQLStore) ListCleanable(ctx context.Context, executionID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, integration, action_name, provider_action, status,
		        external_resource_id, external_resource_type, data, error, duration_ms, cleanup_state, created_at
		 FROM execution_log
		 WHERE execution_id = ? AND status = 'success'
		   AND external_resource_id IS NOT NULL AND cleanup_state = 'pending'
		 ORDER BY id DESC`,
		executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *LibSQLStore) MarkEntryCleaned(ctx context.Context, entryID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_log SET cleanup_state = ? WHERE id = ?`,
		CleanupCleaned, entryID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "log entry", fmt.Sprintf("%d", entryID))
}

func scanLogEntries(rows *sql.Rows) ([]*LogEntry, error) {
	var entries []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		var status string
		var actionName, resourceID, resourceType, data, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.StepID, &e.Integration, &actionName,
			&e.ProviderAction, &status, &resourceID, &resourceType, &data, &errMsg,
			&e.DurationMs, &e.CleanupState, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = schema.StepStatus(status)
		e.ActionName = actionName.String
		e.ExternalResourceID = resourceID.String
		e.ExternalResourceType = resourceType.String
		e.Data = rawOrNil(data)
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Sandbox tenants ---

func (s *LibSQLStore) IsSandboxTenant(ctx context.Context, tenantID string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM sandbox_tenants WHERE tenant_id = ?`, tenantID,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return enabled != 0, nil
}

func (s *LibSQLStore) UpsertSandboxTenant(ctx context.Context, tenantID string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_tenants (tenant_id, enabled) VALUES (?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET enabled = excluded.enabled`,
		tenantID, v,
	)
	return err
}

// --- Scheduled runs ---

func (s *LibSQLStore) CreateScheduledRun(ctx context.Context, run *ScheduledRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_runs (id, tenant_id, scenario_name, cron_expression, enabled, next_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, run.ScenarioName, run.CronExpression,
		boolToInt(run.Enabled), nullTime(run.NextRunAt), timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledRun(ctx context.Context, id string) (*ScheduledRun, error) {
	rows, err := s.db.QueryContext(ctx,
		scheduledRunSelect+` WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs, err := scanScheduledRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storeNotFound("scheduled run", id)
	}
	return runs[0], nil
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, update ScheduledRunUpdate) error {
	sets := []string{}
	args := []any{}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_runs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, filter ScheduledRunFilter) ([]*ScheduledRun, error) {
	query := scheduledRunSelect
	conds := []string{}
	args := []any{}
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Enabled != nil {
		conds = append(conds, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledRuns(rows)
}

func (s *LibSQLStore) DeleteScheduledRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

const scheduledRunSelect = `SELECT id, tenant_id, scenario_name, cron_expression, enabled,
	last_run_at, next_run_at, last_run_status, created_at FROM scheduled_runs`

func scanScheduledRuns(rows *sql.Rows) ([]*ScheduledRun, error) {
	var runs []*ScheduledRun
	for rows.Next() {
		r := &ScheduledRun{}
		var enabled int
		var lastRun, nextRun sql.NullTime
		var lastStatus sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ScenarioName, &r.CronExpression,
			&enabled, &lastRun, &nextRun, &lastStatus, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Enabled = enabled != 0
		if lastRun.Valid {
			r.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			r.NextRunAt = &nextRun.Time
		}
		r.LastRunStatus = lastStatus.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- helpers ---

func storeNotFound(resource, id string) *schema.ScenarkError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawOrNil(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

func nullableJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
