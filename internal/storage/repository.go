package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billscan/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// NewBill is a bill extracted from one mail message, ready to be stored.
type NewBill struct {
	UserID    int64
	MessageID string
	Bill      core.Bill
	Paid      bool
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite away from SQLITE_BUSY under the sync fan-out
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// UpsertUser creates the user or updates name and refresh token of an
// existing one. An empty refresh token keeps the stored one, since Google
// only returns it on the first consent.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, email, name, refreshToken string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, name, google_refresh_token, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			google_refresh_token = CASE WHEN excluded.google_refresh_token != ''
				THEN excluded.google_refresh_token ELSE users.google_refresh_token END
		RETURNING id, email, name, google_refresh_token, created_at`,
		email, name, refreshToken, time.Now().UnixMilli())

	u, err := scanUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user %s: %w", email, err)
	}

	slog.InfoContext(ctx, "User upserted", "user_id", u.ID, "email", u.Email)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, google_refresh_token, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (core.User, error) {
	var (
		u         core.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.GoogleRefreshToken, &createdAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return u, nil
}

// ListBills returns every bill of the user in insertion order.
func (r *SQLiteRepository) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vendor, date, due_date, amount, currency, category, status
		FROM bills WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bills for user %d: %w", userID, err)
	}
	defer rows.Close()

	bills := make([]core.Bill, 0)
	for rows.Next() {
		var (
			b                                                       core.Bill
			vendor, date, dueDate, amount, currency, category, stat sql.NullString
		)
		if err := rows.Scan(&b.ID, &vendor, &date, &dueDate, &amount, &currency, &category, &stat); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.Vendor = fromNull(vendor)
		b.Date = fromNull(date)
		b.DueDate = fromNull(dueDate)
		b.Currency = fromNull(currency)
		b.Category = fromNull(category)
		b.Status = fromNull(stat)
		if amount.Valid {
			if d, err := decimal.NewFromString(amount.String); err == nil {
				b.Amount = &d
			}
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return bills, nil
}

// HasMessage reports whether a bill was already extracted from messageID.
func (r *SQLiteRepository) HasMessage(ctx context.Context, userID int64, messageID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bills WHERE user_id = ? AND message_id = ?`, userID, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check message %s: %w", messageID, err)
	}
	return n > 0, nil
}

// InsertBill stores nb unless a bill from the same message exists.
// It reports whether a row was written.
func (r *SQLiteRepository) InsertBill(ctx context.Context, nb NewBill) (int64, bool, error) {
	var amount sql.NullString
	if nb.Bill.Amount != nil {
		amount = sql.NullString{String: nb.Bill.Amount.String(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bills
			(user_id, message_id, vendor, date, due_date, amount, currency, category, status, paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nb.UserID, nb.MessageID,
		toNull(nb.Bill.Vendor), toNull(nb.Bill.Date), toNull(nb.Bill.DueDate), amount,
		toNull(nb.Bill.Currency), toNull(nb.Bill.Category), toNull(nb.Bill.Status),
		nb.Paid, time.Now().UnixMilli())
	if err != nil {
		return 0, false, fmt.Errorf("insert bill for message %s: %w", nb.MessageID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

// CreateSyncJob records a queued sync for the user.
func (r *SQLiteRepository) CreateSyncJob(ctx context.Context, userID int64) (core.SyncJob, error) {
	now := time.Now()
	job := core.SyncJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    core.JobQueued,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
		UpdatedAt: now.UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.UserID, string(job.Status), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return core.SyncJob{}, fmt.Errorf("create sync job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, user_id, status, scanned, created_bills, error, created_at, updated_at, finished_at`

func scanJob(scan func(...any) error) (core.SyncJob, error) {
	var (
		job                  core.SyncJob
		status               string
		createdAt, updatedAt int64
		finishedAt           sql.NullInt64
	)
	if err := scan(&job.ID, &job.UserID, &status, &job.Scanned, &job.CreatedBills, &job.Error,
		&createdAt, &updatedAt, &finishedAt); err != nil {
		return core.SyncJob{}, err
	}
	job.Status = core.JobStatus(status)
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		job.FinishedAt = &t
	}
	return job, nil
}

// GetSyncJob loads a job owned by userID.
func (r *SQLiteRepository) GetSyncJob(ctx context.Context, userID int64, id string) (core.SyncJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE id = ? AND user_id = ?`, id, userID)
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SyncJob{}, ErrNotFound
	}
	if err != nil {
		return core.SyncJob{}, fmt.Errorf("get sync job %s: %w", id, err)
	}
	return job, nil
}

// GetSyncJobByID loads a job regardless of owner. Used by the worker.
func (r *SQLiteRepository) GetSyncJobByID(ctx context.Context, id string) (core.SyncJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SyncJob{}, ErrNotFound
	}
	if err != nil {
		return core.SyncJob{}, fmt.Errorf("get sync job %s: %w", id, err)
	}
	return job, nil
}

// ActiveSyncJob returns the newest queued or running job of the user.
func (r *SQLiteRepository) ActiveSyncJob(ctx context.Context, userID int64) (core.SyncJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE user_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		userID, string(core.JobQueued), string(core.JobRunning))
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SyncJob{}, ErrNotFound
	}
	if err != nil {
		return core.SyncJob{}, fmt.Errorf("active sync job for user %d: %w", userID, err)
	}
	return job, nil
}

// MarkSyncRunning moves a queued job to running. It returns ErrNotFound
// when the job is missing or no longer queued.
func (r *SQLiteRepository) MarkSyncRunning(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(core.JobRunning), time.Now().UnixMilli(), id, string(core.JobQueued))
	if err != nil {
		return fmt.Errorf("mark sync job %s running: %w", id, err)
	}
	return expectOne(res)
}

// UpdateSyncProgress records counters of a running job.
func (r *SQLiteRepository) UpdateSyncProgress(ctx context.Context, id string, scanned, created int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs SET scanned = ?, created_bills = ?, updated_at = ? WHERE id = ? AND status = ?`,
		scanned, created, time.Now().UnixMilli(), id, string(core.JobRunning))
	if err != nil {
		return fmt.Errorf("update sync job %s: %w", id, err)
	}
	return nil
}

// FinishSyncJob marks a running job completed with its final counters.
// A job that is no longer running, for example one the reaper failed,
// is left alone and ErrNotFound is returned.
func (r *SQLiteRepository) FinishSyncJob(ctx context.Context, id string, scanned, created int) error {
	now := time.Now().UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, scanned = ?, created_bills = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		string(core.JobCompleted), scanned, created, now, now, id, string(core.JobRunning))
	if err != nil {
		return fmt.Errorf("finish sync job %s: %w", id, err)
	}
	return expectOne(res)
}

// FailSyncJob marks a queued or running job failed with a reason. A job
// that already finished keeps its status and ErrNotFound is returned.
func (r *SQLiteRepository) FailSyncJob(ctx context.Context, id, reason string) error {
	now := time.Now().UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(core.JobFailed), reason, now, now, id, string(core.JobQueued), string(core.JobRunning))
	if err != nil {
		return fmt.Errorf("fail sync job %s: %w", id, err)
	}
	return expectOne(res)
}

// FailStaleSyncJobs fails queued or running jobs not updated within olderThan.
func (r *SQLiteRepository) FailStaleSyncJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-olderThan).UnixMilli()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE status IN (?, ?) AND updated_at < ?`,
		string(core.JobFailed), "sync timed out", now.UnixMilli(), now.UnixMilli(),
		string(core.JobQueued), string(core.JobRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale sync jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.WarnContext(ctx, "Failed stale sync jobs", "count", n, "older_than", olderThan)
	}
	return n, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
