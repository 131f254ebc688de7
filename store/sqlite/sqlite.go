/*
Package sqlite provides the SQLite-backed implementation of the leave
store contracts.

PURPOSE:
  Implements leave.TxStore using database/sql + mattn/go-sqlite3. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  users             employee records (authoritative when no directory)
  vacation_types    leave kinds with country/role applicability
  pools             ledger buckets (acquis/restant cycles)
  user_pools        running balances
  pool_entries      append-only audit of every balance increment
  requests          leave requests with their balance snapshot
  request_history   append-only transition audit trail
  reminders         dedup records for the reminder workers

APPEND-ONLY ENFORCEMENT:
  pool_entries and request_history have INSERT and SELECT paths only.

CLAIMING:
  ClaimNotification relies on the conditional UPDATE's affected-row
  count, which SQLite evaluates atomically, so two concurrent workers
  cannot both win a claim.

WAL MODE:
  The database is opened with WAL so readers never block on the single
  writer.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  // Use ":memory:" for tests.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	// txMu serializes write transactions; single reads and writes go
	// straight to the handle, which database/sql already synchronizes.
	txMu sync.Mutex
	queries
}

var _ leave.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, queries: queries{db: db}}
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		login TEXT NOT NULL UNIQUE,
		firstname TEXT NOT NULL,
		lastname TEXT NOT NULL,
		email TEXT NOT NULL,
		country TEXT NOT NULL,
		role TEXT NOT NULL,
		manager_id TEXT,
		arrival_date TEXT
	);

	CREATE TABLE IF NOT EXISTS vacation_types (
		name TEXT PRIMARY KEY,
		countries TEXT NOT NULL,  -- comma-separated
		visibility TEXT           -- comma-separated roles, empty = all
	);

	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		alias TEXT,
		date_start TEXT NOT NULL,
		date_end TEXT NOT NULL,
		status TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		country TEXT NOT NULL,
		pool_group TEXT,
		date_last_increment TEXT,
		CHECK (date_start < date_end)
	);
	CREATE INDEX IF NOT EXISTS idx_pools_status ON pools(status);
	CREATE INDEX IF NOT EXISTS idx_pools_group ON pools(pool_group);
	CREATE INDEX IF NOT EXISTS idx_pools_type_country ON pools(vacation_type, country, status);

	CREATE TABLE IF NOT EXISTS user_pools (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		pool_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		UNIQUE (user_id, pool_id)
	);
	CREATE INDEX IF NOT EXISTS idx_user_pools_pool ON user_pools(pool_id);
	CREATE INDEX IF NOT EXISTS idx_user_pools_user ON user_pools(user_id);

	-- Append-only audit of balance increments
	CREATE TABLE IF NOT EXISTS pool_entries (
		id TEXT PRIMARY KEY,
		user_pool_id TEXT NOT NULL,
		delta TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pool_entries_user_pool ON pool_entries(user_pool_id);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date_from TEXT NOT NULL,
		date_to TEXT NOT NULL,
		days TEXT NOT NULL,
		label TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		reason TEXT,
		notified INTEGER NOT NULL DEFAULT 0,
		last_action_user_id TEXT,
		pool_status TEXT,
		ics_url TEXT,
		notify_error TEXT,
		calendar_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_user ON requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status, notified);
	CREATE INDEX IF NOT EXISTS idx_requests_dates ON requests(user_id, date_from, date_to);

	-- Append-only transition audit trail
	CREATE TABLE IF NOT EXISTS request_history (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		prev_status TEXT,
		new_status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL,
		pool_status TEXT,
		message TEXT,
		reason TEXT,
		automatic INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_history_request ON request_history(request_id, at);

	CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		request_id TEXT,
		milestone TEXT,
		sent_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_request ON reminders(kind, request_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_reminders_milestone ON reminders(user_id, milestone);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - shared between the root connection and transactions
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

var _ leave.Store = (*queries)(nil)

// ---------------------------------------------------------------------------
// Users

func (q *queries) SaveUser(ctx context.Context, u leave.User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, login, firstname, lastname, email, country, role, manager_id, arrival_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login=excluded.login, firstname=excluded.firstname, lastname=excluded.lastname,
			email=excluded.email, country=excluded.country, role=excluded.role,
			manager_id=excluded.manager_id, arrival_date=excluded.arrival_date`,
		u.ID, u.Login, u.Firstname, u.Lastname, u.Email, u.Country, u.Role,
		nullString(u.ManagerID), formatTime(u.ArrivalDate),
	)
	return err
}

func (q *queries) GetUser(ctx context.Context, id string) (*leave.User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, login, firstname, lastname, email, country, role, manager_id, arrival_date
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (q *queries) ListUsers(ctx context.Context) ([]leave.User, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, login, firstname, lastname, email, country, role, manager_id, arrival_date
		FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []leave.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*leave.User, error) {
	var (
		u         leave.User
		managerID sql.NullString
		arrival   sql.NullString
	)
	err := row.Scan(&u.ID, &u.Login, &u.Firstname, &u.Lastname, &u.Email, &u.Country, &u.Role, &managerID, &arrival)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.ManagerID = managerID.String
	u.ArrivalDate = parseTime(arrival.String)
	return &u, nil
}

// ---------------------------------------------------------------------------
// Vacation types

func (q *queries) SaveVacationType(ctx context.Context, vt leave.VacationType) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO vacation_types (name, countries, visibility)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET countries=excluded.countries, visibility=excluded.visibility`,
		vt.Name, joinCountries(vt.Countries), joinRoles(vt.Visibility),
	)
	return err
}

func (q *queries) GetVacationType(ctx context.Context, name string) (*leave.VacationType, error) {
	var (
		vt         leave.VacationType
		countries  string
		visibility sql.NullString
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT name, countries, visibility FROM vacation_types WHERE name = ?`, name,
	).Scan(&vt.Name, &countries, &visibility)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	vt.Countries = splitCountries(countries)
	vt.Visibility = splitRoles(visibility.String)
	return &vt, nil
}

func (q *queries) ListVacationTypes(ctx context.Context) ([]leave.VacationType, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT name FROM vacation_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var types []leave.VacationType
	for _, name := range names {
		vt, err := q.GetVacationType(ctx, name)
		if err != nil {
			return nil, err
		}
		types = append(types, *vt)
	}
	return types, nil
}

// ---------------------------------------------------------------------------
// Pools

func (q *queries) SavePool(ctx context.Context, p leave.Pool) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pools (id, name, alias, date_start, date_end, status, vacation_type, country, pool_group, date_last_increment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, alias=excluded.alias, date_start=excluded.date_start,
			date_end=excluded.date_end, status=excluded.status, vacation_type=excluded.vacation_type,
			country=excluded.country, pool_group=excluded.pool_group,
			date_last_increment=excluded.date_last_increment`,
		p.ID, p.Name, nullString(p.Alias), formatTime(p.DateStart), formatTime(p.DateEnd),
		p.Status, p.VacationType, p.Country, nullString(p.PoolGroup), formatTime(p.DateLastIncrement),
	)
	return err
}

const poolColumns = `id, name, alias, date_start, date_end, status, vacation_type, country, pool_group, date_last_increment`

func (q *queries) GetPool(ctx context.Context, id string) (*leave.Pool, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = ?`, id)
	return scanPool(row)
}

func (q *queries) PoolsByStatus(ctx context.Context, status leave.PoolStatus) ([]leave.Pool, error) {
	return q.queryPools(ctx, `SELECT `+poolColumns+` FROM pools WHERE status = ? ORDER BY id`, status)
}

func (q *queries) PoolsByGroup(ctx context.Context, group string) ([]leave.Pool, error) {
	return q.queryPools(ctx, `SELECT `+poolColumns+` FROM pools WHERE pool_group = ? ORDER BY id`, group)
}

func (q *queries) ActivePools(ctx context.Context, vacationType string, country leave.Country) ([]leave.Pool, error) {
	return q.queryPools(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE status = ? AND vacation_type = ? AND country = ?
		ORDER BY name`,
		leave.PoolActive, vacationType, country)
}

func (q *queries) queryPools(ctx context.Context, query string, args ...any) ([]leave.Pool, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []leave.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func scanPool(row rowScanner) (*leave.Pool, error) {
	var (
		p                            leave.Pool
		alias, group                 sql.NullString
		dateStart, dateEnd, lastIncr sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &alias, &dateStart, &dateEnd, &p.Status, &p.VacationType, &p.Country, &group, &lastIncr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pool: %w", err)
	}
	p.Alias = alias.String
	p.PoolGroup = group.String
	p.DateStart = parseTime(dateStart.String)
	p.DateEnd = parseTime(dateEnd.String)
	p.DateLastIncrement = parseTime(lastIncr.String)
	return &p, nil
}

// ---------------------------------------------------------------------------
// User pools

func (q *queries) SaveUserPool(ctx context.Context, up leave.UserPool) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO user_pools (id, user_id, pool_id, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET amount=excluded.amount`,
		up.ID, up.UserID, up.PoolID, up.Amount.String(),
	)
	return err
}

func (q *queries) GetUserPool(ctx context.Context, userID, poolID string) (*leave.UserPool, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, pool_id, amount FROM user_pools WHERE user_id = ? AND pool_id = ?`,
		userID, poolID)
	return scanUserPool(row)
}

func (q *queries) UserPoolsByPool(ctx context.Context, poolID string) ([]leave.UserPool, error) {
	return q.queryUserPools(ctx,
		`SELECT id, user_id, pool_id, amount FROM user_pools WHERE pool_id = ? ORDER BY id`, poolID)
}

func (q *queries) UserPoolsByUser(ctx context.Context, userID string) ([]leave.UserPool, error) {
	return q.queryUserPools(ctx,
		`SELECT id, user_id, pool_id, amount FROM user_pools WHERE user_id = ? ORDER BY id`, userID)
}

func (q *queries) queryUserPools(ctx context.Context, query string, args ...any) ([]leave.UserPool, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user pools: %w", err)
	}
	defer rows.Close()

	var ups []leave.UserPool
	for rows.Next() {
		up, err := scanUserPool(rows)
		if err != nil {
			return nil, err
		}
		ups = append(ups, *up)
	}
	return ups, rows.Err()
}

func scanUserPool(row rowScanner) (*leave.UserPool, error) {
	var (
		up     leave.UserPool
		amount string
	)
	err := row.Scan(&up.ID, &up.UserID, &up.PoolID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user pool: %w", err)
	}
	up.Amount = parseDecimal(amount)
	return &up, nil
}

// IncrementUserPool adjusts the balance and writes the audit entry in
// one statement scope. The balance column is never assigned directly.
func (q *queries) IncrementUserPool(ctx context.Context, entry leave.PoolEntry) error {
	up, err := q.userPoolByID(ctx, entry.UserPoolID)
	if err != nil {
		return err
	}
	next := up.Amount.Add(entry.Delta)

	if _, err := q.db.ExecContext(ctx,
		`UPDATE user_pools SET amount = ? WHERE id = ?`, next.String(), entry.UserPoolID); err != nil {
		return fmt.Errorf("failed to increment user pool: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO pool_entries (id, user_pool_id, delta, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserPoolID, entry.Delta.String(), entry.Source, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record pool entry: %w", err)
	}
	return nil
}

func (q *queries) userPoolByID(ctx context.Context, id string) (*leave.UserPool, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, pool_id, amount FROM user_pools WHERE id = ?`, id)
	return scanUserPool(row)
}

func (q *queries) PoolEntries(ctx context.Context, userPoolID string) ([]leave.PoolEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_pool_id, delta, source, created_at
		FROM pool_entries WHERE user_pool_id = ? ORDER BY created_at`, userPoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []leave.PoolEntry
	for rows.Next() {
		var (
			e         leave.PoolEntry
			delta     string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserPoolID, &delta, &e.Source, &createdAt); err != nil {
			return nil, err
		}
		e.Delta = parseDecimal(delta)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---------------------------------------------------------------------------
// Requests

const requestColumns = `id, user_id, date_from, date_to, days, label, type, status, message, reason,
	notified, last_action_user_id, pool_status, ics_url, notify_error, calendar_error, created_at, updated_at`

func (q *queries) SaveRequest(ctx context.Context, r leave.Request) error {
	snapshot, err := leave.MarshalSnapshot(r.PoolStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date_from=excluded.date_from, date_to=excluded.date_to, days=excluded.days,
			label=excluded.label, type=excluded.type, status=excluded.status,
			message=excluded.message, reason=excluded.reason, notified=excluded.notified,
			last_action_user_id=excluded.last_action_user_id,
			ics_url=excluded.ics_url, notify_error=excluded.notify_error,
			calendar_error=excluded.calendar_error, updated_at=excluded.updated_at`,
		r.ID, r.UserID, formatTime(r.DateFrom), formatTime(r.DateTo), r.Days.String(),
		string(r.Label), r.Type, r.Status, nullString(r.Message), nullString(r.Reason),
		boolToInt(r.Notified), nullString(r.LastActionUserID), snapshot,
		nullString(r.ICSURL), nullString(r.NotifyError), nullString(r.CalendarError),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

func (q *queries) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (q *queries) RequestsByUser(ctx context.Context, userID string) ([]leave.Request, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE user_id = ? ORDER BY date_from, id`, userID)
}

func (q *queries) RequestsByManager(ctx context.Context, managerID string) ([]leave.Request, error) {
	return q.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id IN (SELECT id FROM users WHERE manager_id = ?)
		ORDER BY date_from, id`, managerID)
}

func (q *queries) RequestsByStatus(ctx context.Context, status leave.RequestStatus) ([]leave.Request, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE status = ? ORDER BY date_from, id`, status)
}

func (q *queries) RequestsInRange(ctx context.Context, userID string, from, to time.Time) ([]leave.Request, error) {
	return q.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id = ? AND date_from <= ? AND date_to >= ?
		ORDER BY date_from, id`,
		userID, formatTime(to), formatTime(from))
}

func (q *queries) RequestsApprovedInMonth(ctx context.Context, year int, month time.Month) ([]leave.Request, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return q.queryRequests(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status = ? AND date_from >= ? AND date_from < ?
		ORDER BY date_from, id`,
		leave.StatusApprovedAdmin, formatTime(start), formatTime(end))
}

func (q *queries) ClaimNotification(ctx context.Context, requestID string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE requests SET notified = 1, notify_error = NULL WHERE id = ? AND notified = 0`, requestID)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (q *queries) ReleaseNotification(ctx context.Context, requestID, notifyError string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE requests SET notified = 0, notify_error = ? WHERE id = ?`, notifyError, requestID)
	return err
}

func (q *queries) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func scanRequest(row rowScanner) (*leave.Request, error) {
	var (
		r                          leave.Request
		dateFrom, dateTo, days     string
		label                      sql.NullString
		message, reason, lastActor sql.NullString
		snapshot, icsURL           sql.NullString
		notifyError, calendarError sql.NullString
		notified                   int
		createdAt, updatedAt       string
	)
	err := row.Scan(&r.ID, &r.UserID, &dateFrom, &dateTo, &days, &label, &r.Type, &r.Status,
		&message, &reason, &notified, &lastActor, &snapshot, &icsURL,
		&notifyError, &calendarError, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	r.DateFrom = parseTime(dateFrom)
	r.DateTo = parseTime(dateTo)
	r.Days = parseDecimal(days)
	r.Label = leave.HalfDay(label.String)
	r.Message = message.String
	r.Reason = reason.String
	r.Notified = notified == 1
	r.LastActionUserID = lastActor.String
	r.ICSURL = icsURL.String
	r.NotifyError = notifyError.String
	r.CalendarError = calendarError.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	snap, err := leave.UnmarshalSnapshot(snapshot.String)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	r.PoolStatus = snap
	return &r, nil
}

// ---------------------------------------------------------------------------
// Request history

func (q *queries) AppendHistory(ctx context.Context, h leave.RequestHistory) error {
	snapshot, err := leave.MarshalSnapshot(h.PoolStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO request_history (id, request_id, prev_status, new_status, actor_id, at, pool_status, message, reason, automatic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.RequestID, string(h.PrevStatus), h.NewStatus, h.ActorID,
		formatTime(h.At), snapshot, nullString(h.Message), nullString(h.Reason), boolToInt(h.Automatic))
	return err
}

func (q *queries) HistoryByRequest(ctx context.Context, requestID string) ([]leave.RequestHistory, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, request_id, prev_status, new_status, actor_id, at, pool_status, message, reason, automatic
		FROM request_history WHERE request_id = ? ORDER BY at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []leave.RequestHistory
	for rows.Next() {
		var (
			h               leave.RequestHistory
			prev            sql.NullString
			at              string
			snapshot        sql.NullString
			message, reason sql.NullString
			automatic       int
		)
		if err := rows.Scan(&h.ID, &h.RequestID, &prev, &h.NewStatus, &h.ActorID, &at, &snapshot, &message, &reason, &automatic); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.PrevStatus = leave.RequestStatus(prev.String)
		h.At = parseTime(at)
		h.Message = message.String
		h.Reason = reason.String
		h.Automatic = automatic == 1
		snap, err := leave.UnmarshalSnapshot(snapshot.String)
		if err != nil {
			return nil, err
		}
		h.PoolStatus = snap
		history = append(history, h)
	}
	return history, rows.Err()
}

// ---------------------------------------------------------------------------
// Reminders

func (q *queries) SaveReminder(ctx context.Context, r leave.Reminder) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reminders (id, kind, user_id, request_id, milestone, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.UserID, nullString(r.RequestID), nullString(r.Milestone), formatTime(r.SentAt))
	return err
}

func (q *queries) LastReminder(ctx context.Context, kind leave.ReminderKind, requestID string) (*leave.Reminder, error) {
	var (
		r         leave.Reminder
		reqID     sql.NullString
		milestone sql.NullString
		sentAt    string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, kind, user_id, request_id, milestone, sent_at
		FROM reminders WHERE kind = ? AND request_id = ?
		ORDER BY sent_at DESC LIMIT 1`, kind, requestID,
	).Scan(&r.ID, &r.Kind, &r.UserID, &reqID, &milestone, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.RequestID = reqID.String
	r.Milestone = milestone.String
	r.SentAt = parseTime(sentAt)
	return &r, nil
}

func (q *queries) HasMilestoneReminder(ctx context.Context, userID, milestone string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE kind = ? AND user_id = ? AND milestone = ?`,
		leave.ReminderTrialPeriod, userID, milestone,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// HELPERS
// =============================================================================

func joinCountries(cs []leave.Country) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCountries(s string) []leave.Country {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	cs := make([]leave.Country, len(parts))
	for i, p := range parts {
		cs[i] = leave.Country(p)
	}
	return cs
}

func joinRoles(rs []leave.Role) string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitRoles(s string) []leave.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	rs := make([]leave.Role, len(parts))
	for i, p := range parts {
		rs[i] = leave.Role(p)
	}
	return rs
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
