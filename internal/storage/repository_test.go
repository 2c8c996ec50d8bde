package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"billscan/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	repo.Close()
}

func TestUpsertUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.UpsertUser(ctx, "ada@example.com", "Ada", "refresh-1")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u.ID == 0 || u.GoogleRefreshToken != "refresh-1" {
		t.Fatalf("unexpected user: %+v", u)
	}

	// Google omits the refresh token on later logins
	again, err := repo.UpsertUser(ctx, "ada@example.com", "Ada L.", "")
	if err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("id changed: %d -> %d", u.ID, again.ID)
	}
	if again.Name != "Ada L." || again.GoogleRefreshToken != "refresh-1" {
		t.Errorf("unexpected update: %+v", again)
	}

	got, err := repo.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("email = %s", got.Email)
	}

	if _, err := repo.GetUser(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsertAndListBills(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.UpsertUser(ctx, "ada@example.com", "Ada", "")

	first := NewBill{
		UserID:    u.ID,
		MessageID: "m1",
		Bill: core.Bill{
			Vendor: core.Str("Acme"), Date: core.Str("2025-03-02"), Amount: core.Dec("10.50"),
			Currency: core.Str("ILS"), Category: core.Str("Utility"), Status: core.Str("unpaid"),
		},
	}
	id, inserted, err := repo.InsertBill(ctx, first)
	if err != nil || !inserted || id == 0 {
		t.Fatalf("InsertBill = %d, %v, %v", id, inserted, err)
	}

	// Same message again is ignored
	if _, inserted, err := repo.InsertBill(ctx, first); err != nil || inserted {
		t.Fatalf("duplicate InsertBill inserted=%v err=%v", inserted, err)
	}

	second := NewBill{UserID: u.ID, MessageID: "m2", Bill: core.Bill{Vendor: core.Str("Beta")}}
	if _, _, err := repo.InsertBill(ctx, second); err != nil {
		t.Fatalf("InsertBill second: %v", err)
	}

	bills, err := repo.ListBills(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListBills: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("got %d bills, want 2", len(bills))
	}
	if bills[0].Amount == nil || bills[0].Amount.String() != "10.5" {
		t.Errorf("amount = %v, want 10.5", bills[0].Amount)
	}
	if bills[1].Amount != nil || bills[1].Date != nil || bills[1].Category != nil {
		t.Errorf("missing fields should stay nil: %+v", bills[1])
	}

	has, err := repo.HasMessage(ctx, u.ID, "m1")
	if err != nil || !has {
		t.Errorf("HasMessage(m1) = %v, %v", has, err)
	}
	has, _ = repo.HasMessage(ctx, u.ID, "m3")
	if has {
		t.Error("HasMessage(m3) = true")
	}

	other, _ := repo.UpsertUser(ctx, "bob@example.com", "Bob", "")
	bills, _ = repo.ListBills(ctx, other.ID)
	if bills == nil || len(bills) != 0 {
		t.Errorf("other user bills = %v, want empty", bills)
	}
}

func TestSyncJobLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.UpsertUser(ctx, "ada@example.com", "Ada", "")

	job, err := repo.CreateSyncJob(ctx, u.ID)
	if err != nil {
		t.Fatalf("CreateSyncJob: %v", err)
	}
	if job.Status != core.JobQueued || job.ID == "" {
		t.Fatalf("unexpected job: %+v", job)
	}

	active, err := repo.ActiveSyncJob(ctx, u.ID)
	if err != nil || active.ID != job.ID {
		t.Fatalf("ActiveSyncJob = %+v, %v", active, err)
	}

	if err := repo.MarkSyncRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkSyncRunning: %v", err)
	}
	if err := repo.MarkSyncRunning(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second MarkSyncRunning error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateSyncProgress(ctx, job.ID, 3, 1); err != nil {
		t.Fatalf("UpdateSyncProgress: %v", err)
	}
	if err := repo.FinishSyncJob(ctx, job.ID, 5, 2); err != nil {
		t.Fatalf("FinishSyncJob: %v", err)
	}

	got, err := repo.GetSyncJob(ctx, u.ID, job.ID)
	if err != nil {
		t.Fatalf("GetSyncJob: %v", err)
	}
	if got.Status != core.JobCompleted || got.Scanned != 5 || got.CreatedBills != 2 || got.FinishedAt == nil {
		t.Errorf("unexpected finished job: %+v", got)
	}

	if _, err := repo.ActiveSyncJob(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ActiveSyncJob after finish error = %v, want ErrNotFound", err)
	}

	other, _ := repo.UpsertUser(ctx, "bob@example.com", "Bob", "")
	if _, err := repo.GetSyncJob(ctx, other.ID, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSyncJob by other user error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetSyncJobByID(ctx, job.ID); err != nil {
		t.Errorf("GetSyncJobByID: %v", err)
	}
}

func TestFailSyncJob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.UpsertUser(ctx, "ada@example.com", "Ada", "")
	job, _ := repo.CreateSyncJob(ctx, u.ID)

	if err := repo.FailSyncJob(ctx, job.ID, "token revoked"); err != nil {
		t.Fatalf("FailSyncJob: %v", err)
	}
	got, _ := repo.GetSyncJob(ctx, u.ID, job.ID)
	if got.Status != core.JobFailed || got.Error != "token revoked" {
		t.Errorf("unexpected job: %+v", got)
	}
	if err := repo.FailSyncJob(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailSyncJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFinishedJobsKeepTheirStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.UpsertUser(ctx, "ada@example.com", "Ada", "")

	timedOut, _ := repo.CreateSyncJob(ctx, u.ID)
	if err := repo.MarkSyncRunning(ctx, timedOut.ID); err != nil {
		t.Fatalf("MarkSyncRunning: %v", err)
	}
	if err := repo.FailSyncJob(ctx, timedOut.ID, "sync timed out"); err != nil {
		t.Fatalf("FailSyncJob: %v", err)
	}
	if err := repo.FinishSyncJob(ctx, timedOut.ID, 9, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishSyncJob after fail error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateSyncProgress(ctx, timedOut.ID, 9, 3); err != nil {
		t.Errorf("UpdateSyncProgress: %v", err)
	}
	got, _ := repo.GetSyncJob(ctx, u.ID, timedOut.ID)
	if got.Status != core.JobFailed || got.Error != "sync timed out" || got.Scanned != 0 {
		t.Errorf("failed job changed: %+v", got)
	}

	done, _ := repo.CreateSyncJob(ctx, u.ID)
	if err := repo.FinishSyncJob(ctx, done.ID, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishSyncJob on queued job error = %v, want ErrNotFound", err)
	}
	_ = repo.MarkSyncRunning(ctx, done.ID)
	if err := repo.FinishSyncJob(ctx, done.ID, 1, 1); err != nil {
		t.Fatalf("FinishSyncJob: %v", err)
	}
	if err := repo.FailSyncJob(ctx, done.ID, "late"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailSyncJob after finish error = %v, want ErrNotFound", err)
	}
	got, _ = repo.GetSyncJob(ctx, u.ID, done.ID)
	if got.Status != core.JobCompleted || got.Error != "" {
		t.Errorf("completed job changed: %+v", got)
	}
}

func TestFailStaleSyncJobs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u, _ := repo.UpsertUser(ctx, "ada@example.com", "Ada", "")
	stale, _ := repo.CreateSyncJob(ctx, u.ID)

	time.Sleep(300 * time.Millisecond)
	fresh, _ := repo.CreateSyncJob(ctx, u.ID)

	n, err := repo.FailStaleSyncJobs(ctx, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("FailStaleSyncJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("failed %d jobs, want 1", n)
	}

	got, _ := repo.GetSyncJob(ctx, u.ID, stale.ID)
	if got.Status != core.JobFailed {
		t.Errorf("stale job status = %s, want failed", got.Status)
	}
	got, _ = repo.GetSyncJob(ctx, u.ID, fresh.ID)
	if got.Status != core.JobQueued {
		t.Errorf("fresh job status = %s, want queued", got.Status)
	}
}
