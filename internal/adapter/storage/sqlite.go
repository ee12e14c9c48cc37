// Package storage persists the backend's groups, commands and schedules in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ordito/internal/domain"
)

// SQLiteStore stores groups, commands and schedules.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration. ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate storage db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS groups (
			id       TEXT PRIMARY KEY,
			title    TEXT NOT NULL,
			position INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS commands (
			group_id    TEXT NOT NULL,
			id          TEXT NOT NULL,
			label       TEXT NOT NULL,
			cmd         TEXT NOT NULL,
			is_detached INTEGER NOT NULL DEFAULT 0,
			position    INTEGER NOT NULL,
			PRIMARY KEY (group_id, id)
		);
		CREATE TABLE IF NOT EXISTS schedules (
			id              TEXT PRIMARY KEY,
			group_id        TEXT NOT NULL,
			command_id      TEXT,
			cron_expression TEXT NOT NULL,
			is_active       INTEGER NOT NULL,
			created_at      TEXT NOT NULL,
			last_execution  TEXT,
			next_execution  TEXT NOT NULL,
			execution_count INTEGER NOT NULL DEFAULT 0,
			max_executions  INTEGER
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListGroups returns every group with its commands, in creation order.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]domain.CommandGroup, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title FROM groups ORDER BY position")
	if err != nil {
		return nil, err
	}
	var groups []domain.CommandGroup
	index := make(map[string]int)
	for rows.Next() {
		g := domain.CommandGroup{Commands: []domain.Command{}}
		if err := rows.Scan(&g.ID, &g.Title); err != nil {
			rows.Close()
			return nil, err
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.db.QueryContext(ctx, "SELECT group_id, id, label, cmd, is_detached FROM commands ORDER BY group_id, position")
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var groupID string
		var c domain.Command
		if err := crows.Scan(&groupID, &c.ID, &c.Label, &c.Cmd, &c.Detached); err != nil {
			return nil, err
		}
		if i, ok := index[groupID]; ok {
			groups[i].Commands = append(groups[i].Commands, c)
		}
	}
	return groups, crows.Err()
}

// SaveGroup inserts or replaces a group and its commands. A new group goes last.
func (s *SQLiteStore) SaveGroup(ctx context.Context, g domain.CommandGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, title, position)
		VALUES (?, ?, COALESCE((SELECT MAX(position) FROM groups), 0) + 1)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title`,
		g.ID, g.Title,
	); err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM commands WHERE group_id = ?", g.ID); err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	for i, c := range g.Commands {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO commands (group_id, id, label, cmd, is_detached, position) VALUES (?, ?, ?, ?, ?, ?)",
			g.ID, c.ID, c.Label, c.Cmd, c.Detached, i,
		); err != nil {
			return fmt.Errorf("save command: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteGroup removes a group and its commands.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("group", "SQLiteStore.DeleteGroup", domain.ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM commands WHERE group_id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListSchedules returns every schedule in creation order.
func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, command_id, cron_expression, is_active, created_at,
		       last_execution, next_execution, execution_count, max_executions
		FROM schedules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

// SaveSchedule inserts or replaces a schedule.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, sch domain.Schedule) error {
	if sch.Target == nil {
		return fmt.Errorf("save schedule %s: missing target", sch.ID)
	}
	cron, ok := sch.Pattern.(domain.CronPattern)
	if !ok {
		return fmt.Errorf("save schedule %s: %w", sch.ID, domain.ErrUnsupportedPattern)
	}

	var commandID, lastExec sql.NullString
	if id := domain.TargetCommandID(sch.Target); id != "" {
		commandID = sql.NullString{String: id, Valid: true}
	}
	if sch.LastExecution != nil {
		lastExec = sql.NullString{String: formatTime(*sch.LastExecution), Valid: true}
	}
	var maxExec sql.NullInt64
	if sch.MaxExecutions != nil {
		maxExec = sql.NullInt64{Int64: int64(*sch.MaxExecutions), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, group_id, command_id, cron_expression, is_active, created_at,
		                       last_execution, next_execution, execution_count, max_executions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			command_id = excluded.command_id,
			cron_expression = excluded.cron_expression,
			is_active = excluded.is_active,
			last_execution = excluded.last_execution,
			next_execution = excluded.next_execution,
			execution_count = excluded.execution_count,
			max_executions = excluded.max_executions`,
		sch.ID, sch.Target.TargetGroupID(), commandID, cron.Expression, sch.IsActive,
		formatTime(sch.CreatedAt), lastExec, formatTime(sch.NextExecution),
		int64(sch.ExecutionCount), maxExec,
	)
	return err
}

// DeleteSchedule removes a schedule.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubSystemError("schedule", "SQLiteStore.DeleteSchedule", domain.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (domain.Schedule, error) {
	var (
		sch                 domain.Schedule
		groupID, expr       string
		commandID, lastExec sql.NullString
		createdStr, nextStr string
		count               int64
		maxExec             sql.NullInt64
	)
	if err := row.Scan(&sch.ID, &groupID, &commandID, &expr, &sch.IsActive, &createdStr,
		&lastExec, &nextStr, &count, &maxExec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sch, domain.ErrNotFound
		}
		return sch, err
	}

	sch.Target = domain.TargetFromIDs(groupID, commandID.String)
	sch.Pattern = domain.CronPattern{Expression: expr}
	sch.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	sch.NextExecution, _ = time.Parse(time.RFC3339Nano, nextStr)
	sch.ExecutionCount = uint(count)
	if lastExec.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastExec.String); err == nil {
			sch.LastExecution = &t
		}
	}
	if maxExec.Valid {
		m := uint(maxExec.Int64)
		sch.MaxExecutions = &m
	}
	return sch, nil
}

// timeLayout is RFC 3339 with a fixed fraction so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
