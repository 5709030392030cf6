/*
Package sqlite provides a SQLite-backed implementation of meal.Store.

PURPOSE:
  Implements the persistence interface using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  users:        Diner identity, monetary balance, running meal count
  meal_records: One row per (user, day), uniquely indexed

ATOMICITY:
  ApplyChange runs the record write and the counter delta in one SQL
  transaction. Either both land or neither does, so the denormalized
  running count never diverges from the records mid-operation.

LOST-UPDATE PREVENTION:
  meal_records carries a version column. Updates are conditional
  (WHERE id = ? AND version = ?); zero rows affected means a concurrent
  writer got there first and the caller sees ErrConcurrentModification.
  Creates rely on the unique (user_id, day) index; a violation maps to
  ErrDuplicateRecord.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/meals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := meal.NewEngine(store)

SEE ALSO:
  - meal/store.go: Interface definition and conflict contract
  - meal/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dinehall/meal-engine/meal"
)

// Store implements meal.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cohort TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		total_meal_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meal_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		day TEXT NOT NULL,
		meal TEXT NOT NULL,
		items_json TEXT,
		daily_count INTEGER NOT NULL,
		lunch_served BOOLEAN NOT NULL DEFAULT FALSE,
		dinner_served BOOLEAN NOT NULL DEFAULT FALSE,
		is_extra BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: exactly one record per (user, day)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_user_day
		ON meal_records(user_id, day);

	-- Rollover's most-recent-before lookup (hot path once per day)
	CREATE INDEX IF NOT EXISTS idx_records_user_day_desc
		ON meal_records(user_id, day DESC);

	-- Staff day views and range reports
	CREATE INDEX IF NOT EXISTS idx_records_day
		ON meal_records(day);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u meal.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, name, cohort, category, balance, total_meal_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			cohort = excluded.cohort, category = excluded.category
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Cohort, u.Category,
		u.Balance.String(), u.TotalMealCount,
		u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*meal.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cohort, category, balance, total_meal_count, created_at
		FROM users WHERE id = ?`, userID)

	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]meal.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cohort, category, balance, total_meal_count, created_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []meal.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal) error {
	// Balance is stored as a decimal string, so read-modify-write inside
	// a transaction rather than arithmetic in SQL.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return meal.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET balance = ? WHERE id = ?`,
		balance.Add(delta).String(), userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SetTotalMealCount(ctx context.Context, userID string, total int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET total_meal_count = ? WHERE id = ?`, total, userID)
	if err != nil {
		return fmt.Errorf("failed to set total meal count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return meal.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// RECORDS
// =============================================================================

const recordColumns = `id, user_id, day, meal, items_json, daily_count,
	lunch_served, dinner_served, is_extra, version, created_at, updated_at`

func (s *Store) GetRecord(ctx context.Context, userID string, day meal.Day) (*meal.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM meal_records WHERE user_id = ? AND day = ?`,
		userID, day.String())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *Store) LatestRecordBefore(ctx context.Context, userID string, day meal.Day) (*meal.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM meal_records
		 WHERE user_id = ? AND day < ? ORDER BY day DESC LIMIT 1`,
		userID, day.String())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRecordsByDay(ctx context.Context, day meal.Day) ([]meal.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM meal_records WHERE day = ? ORDER BY user_id`,
		day.String())
}

func (s *Store) ListRecordsByUser(ctx context.Context, userID string) ([]meal.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM meal_records WHERE user_id = ? ORDER BY day`,
		userID)
}

func (s *Store) ListRecordsInRange(ctx context.Context, from, to meal.Day) ([]meal.Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM meal_records
		 WHERE day >= ? AND day <= ? ORDER BY day, user_id`,
		from.String(), to.String())
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]meal.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []meal.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// =============================================================================
// ATOMIC MUTATION
// =============================================================================

// ApplyChange applies the record write and the counter delta in one
// SQL transaction.
func (s *Store) ApplyChange(ctx context.Context, ch meal.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.applyChangeTx(ctx, tx, ch); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyChangeBatch applies all changes in one transaction.
func (s *Store) ApplyChangeBatch(ctx context.Context, chs []meal.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range chs {
		if err := s.applyChangeTx(ctx, tx, ch); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) applyChangeTx(ctx context.Context, tx *sql.Tx, ch meal.Change) error {
	rec := ch.Record
	itemsJSON, _ := json.Marshal(rec.AdditionalItems)

	if rec.Version == 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO meal_records
			(id, user_id, day, meal, items_json, daily_count,
			 lunch_served, dinner_served, is_extra, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			rec.ID, rec.UserID, rec.Day.String(), string(rec.Meal), string(itemsJSON),
			rec.DailyCount, rec.LunchServed, rec.DinnerServed, rec.IsExtra,
			rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return meal.ErrDuplicateRecord
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE meal_records
			SET meal = ?, items_json = ?, daily_count = ?,
			    lunch_served = ?, dinner_served = ?, is_extra = ?,
			    version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(rec.Meal), string(itemsJSON), rec.DailyCount,
			rec.LunchServed, rec.DinnerServed, rec.IsExtra,
			rec.UpdatedAt.Format(time.RFC3339),
			rec.ID, rec.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return meal.ErrConcurrentModification
		}
	}

	if ch.Delta != 0 {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET total_meal_count = total_meal_count + ? WHERE id = ?`,
			ch.Delta, rec.UserID)
		if err != nil {
			return fmt.Errorf("failed to apply counter delta: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return meal.ErrUserNotFound
		}
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*meal.User, error) {
	var u meal.User
	var balance, createdAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Cohort, &u.Category,
		&balance, &u.TotalMealCount, &createdAt); err != nil {
		return nil, err
	}
	u.Balance, _ = decimal.NewFromString(balance)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func scanRecord(row rowScanner) (*meal.Record, error) {
	var rec meal.Record
	var day, mealState, createdAt, updatedAt string
	var itemsJSON sql.NullString
	if err := row.Scan(&rec.ID, &rec.UserID, &day, &mealState, &itemsJSON,
		&rec.DailyCount, &rec.LunchServed, &rec.DinnerServed, &rec.IsExtra,
		&rec.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d, err := meal.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("corrupt day %q: %w", day, err)
	}
	rec.Day = d
	rec.Meal = meal.State(mealState)
	if itemsJSON.Valid && itemsJSON.String != "" && itemsJSON.String != "null" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &rec.AdditionalItems); err != nil {
			return nil, fmt.Errorf("corrupt items for record %s: %w", rec.ID, err)
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
