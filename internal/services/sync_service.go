package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	gm "google.golang.org/api/gmail/v1"

	"billscan/internal/amqp"
	"billscan/internal/core"
	"billscan/internal/extract"
	"billscan/internal/gmail"
	"billscan/internal/metrics"
	"billscan/internal/storage"
)

// ErrJobNotQueued is returned by Run when another runner already took the job.
var ErrJobNotQueued = errors.New("sync job is not queued")

// maxLinksPerMessage bounds how many linked documents are downloaded per mail.
const maxLinksPerMessage = 5

// JobStore is the persistence the sync pipeline needs.
type JobStore interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	HasMessage(ctx context.Context, userID int64, messageID string) (bool, error)
	InsertBill(ctx context.Context, nb storage.NewBill) (int64, bool, error)
	CreateSyncJob(ctx context.Context, userID int64) (core.SyncJob, error)
	GetSyncJob(ctx context.Context, userID int64, id string) (core.SyncJob, error)
	ActiveSyncJob(ctx context.Context, userID int64) (core.SyncJob, error)
	MarkSyncRunning(ctx context.Context, id string) error
	UpdateSyncProgress(ctx context.Context, id string, scanned, created int) error
	FinishSyncJob(ctx context.Context, id string, scanned, created int) error
	FailSyncJob(ctx context.Context, id, reason string) error
}

// Mailbox is a read-only view of one user's mail.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, query string, limit int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gm.Message, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// MailboxFactory opens the mailbox of a user.
type MailboxFactory func(ctx context.Context, user core.User) (Mailbox, error)

// TextReader turns a document into text.
type TextReader interface {
	Text(contentType string, data []byte) (string, error)
}

// LinkFetcher downloads a linked document and returns its text.
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Publisher hands sync requests to the worker.
type Publisher interface {
	PublishSyncRequest(ctx context.Context, msg *amqp.SyncRequest) error
}

// SyncConfig tunes a mailbox scan.
type SyncConfig struct {
	Query       string
	MaxMessages int64
	Concurrency int
}

// SyncService creates sync jobs and runs the mailbox to bills pipeline.
type SyncService struct {
	store     JobStore
	mailboxes MailboxFactory
	reader    TextReader
	fetcher   LinkFetcher
	extractor extract.FieldExtractor
	publisher Publisher
	bills     *BillService
	metrics   *metrics.Metrics
	config    SyncConfig

	wg sync.WaitGroup
}

// SyncDeps groups the collaborators of SyncService. Publisher, Bills and
// Metrics are optional. Without a publisher jobs run in-process.
type SyncDeps struct {
	Store     JobStore
	Mailboxes MailboxFactory
	Reader    TextReader
	Fetcher   LinkFetcher
	Extractor extract.FieldExtractor
	Publisher Publisher
	Bills     *BillService
	Metrics   *metrics.Metrics
}

func NewSyncService(deps SyncDeps, config SyncConfig) *SyncService {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.MaxMessages < 1 {
		config.MaxMessages = 50
	}
	return &SyncService{
		store:     deps.Store,
		mailboxes: deps.Mailboxes,
		reader:    deps.Reader,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		publisher: deps.Publisher,
		bills:     deps.Bills,
		metrics:   deps.Metrics,
		config:    config,
	}
}

// Request starts a sync for the user. When a job is already queued or
// running it is returned instead of creating a duplicate; created reports
// which case applied.
func (s *SyncService) Request(ctx context.Context, userID int64) (job core.SyncJob, created bool, err error) {
	active, err := s.store.ActiveSyncJob(ctx, userID)
	if err == nil {
		return active, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.SyncJob{}, false, fmt.Errorf("check active job: %w", err)
	}

	job, err = s.store.CreateSyncJob(ctx, userID)
	if err != nil {
		return core.SyncJob{}, false, err
	}

	if s.publisher == nil {
		slog.InfoContext(ctx, "No message broker configured, running sync in-process", "job_id", job.ID)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.Run(context.WithoutCancel(ctx), job)
		}()
		return job, true, nil
	}

	if err := s.publisher.PublishSyncRequest(ctx, amqp.NewSyncRequest(job.ID, userID)); err != nil {
		if ferr := s.store.FailSyncJob(ctx, job.ID, "could not enqueue sync"); ferr != nil {
			slog.ErrorContext(ctx, "Failed to mark unpublished job as failed", "job_id", job.ID, "error", ferr)
		}
		return core.SyncJob{}, false, fmt.Errorf("publish sync request: %w", err)
	}
	return job, true, nil
}

// Status returns a job of the user. A finished job also drops the user's
// bill snapshot so the next read sees what the sync stored.
func (s *SyncService) Status(ctx context.Context, userID int64, jobID string) (core.SyncJob, error) {
	job, err := s.store.GetSyncJob(ctx, userID, jobID)
	if err != nil {
		return core.SyncJob{}, err
	}
	if job.Status.Done() && s.bills != nil {
		s.bills.Invalidate(userID)
	}
	return job, nil
}

// Wait blocks until in-process runs started by Request have returned.
func (s *SyncService) Wait() {
	s.wg.Wait()
}

// Run executes a queued job: scan the mailbox, extract bills from new
// messages and store them. Per-message failures are logged and skipped;
// only failures that stop the whole scan fail the job.
func (s *SyncService) Run(ctx context.Context, job core.SyncJob) error {
	if err := s.store.MarkSyncRunning(ctx, job.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrJobNotQueued
		}
		return fmt.Errorf("mark job running: %w", err)
	}

	slog.InfoContext(ctx, "Sync started", "job_id", job.ID, "user_id", job.UserID)

	scanned, created, err := s.scan(ctx, job)
	if err != nil {
		slog.ErrorContext(ctx, "Sync failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
		if ferr := s.store.FailSyncJob(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "Failed to record sync failure", "job_id", job.ID, "error", ferr)
		}
		s.metrics.SyncFinished(string(core.JobFailed), created)
		return err
	}

	// Bills are stored even when the job was failed meanwhile.
	if s.bills != nil {
		s.bills.Invalidate(job.UserID)
	}
	if err := s.store.FinishSyncJob(ctx, job.ID, scanned, created); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Sync finished after the job was closed", "job_id", job.ID, "created", created)
		}
		return fmt.Errorf("finish job: %w", err)
	}
	s.metrics.SyncFinished(string(core.JobCompleted), created)

	slog.InfoContext(ctx, "Sync completed",
		"job_id", job.ID,
		"user_id", job.UserID,
		"scanned", scanned,
		"created", created)
	return nil
}

func (s *SyncService) scan(ctx context.Context, job core.SyncJob) (scanned, created int, err error) {
	user, err := s.store.GetUser(ctx, job.UserID)
	if err != nil {
		return 0, 0, fmt.Errorf("load user: %w", err)
	}

	mb, err := s.mailboxes(ctx, user)
	if err != nil {
		return 0, 0, fmt.Errorf("open mailbox: %w", err)
	}

	ids, err := mb.ListMessageIDs(ctx, s.config.Query, s.config.MaxMessages)
	if err != nil {
		return 0, 0, fmt.Errorf("list messages: %w", err)
	}

	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		known, err := s.store.HasMessage(ctx, user.ID, id)
		if err != nil {
			return 0, 0, fmt.Errorf("check message %s: %w", id, err)
		}
		if !known {
			fresh = append(fresh, id)
		}
	}

	slog.InfoContext(ctx, "Scanning messages",
		"job_id", job.ID,
		"listed", len(ids),
		"new", len(fresh))

	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, id := range fresh {
		g.Go(func() error {
			inserted, err := s.processMessage(gctx, mb, user.ID, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.WarnContext(gctx, "Skipping message", "message_id", id, "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if inserted {
				created++
			}
			if err := s.store.UpdateSyncProgress(gctx, job.ID, done, created); err != nil {
				slog.WarnContext(gctx, "Failed to update sync progress", "job_id", job.ID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return done, created, err
	}
	return len(fresh), created, nil
}

// processMessage extracts and stores the bill in one message. It reports
// whether a new bill was stored.
func (s *SyncService) processMessage(ctx context.Context, mb Mailbox, userID int64, messageID string) (bool, error) {
	msg, err := mb.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}

	text := s.messageText(ctx, mb, msg)
	if text == "" {
		slog.DebugContext(ctx, "No readable content", "message_id", messageID)
		return false, nil
	}

	fields, err := s.extractor.Extract(ctx, text)
	if err != nil {
		return false, fmt.Errorf("extract fields: %w", err)
	}
	if fields.Empty() {
		return false, nil
	}

	bill := fields.Bill()
	paid := extract.DetectPaid(text)
	if paid && bill.Status == nil {
		bill.Status = core.Str("paid")
	}

	_, inserted, err := s.store.InsertBill(ctx, storage.NewBill{
		UserID:    userID,
		MessageID: messageID,
		Bill:      bill,
		Paid:      paid,
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// messageText gathers the text of the bodies, readable attachments and
// linked documents of msg.
func (s *SyncService) messageText(ctx context.Context, mb Mailbox, msg *gm.Message) string {
	var segments []string
	var links []string

	plain, htmlBodies := gmail.Bodies(msg.Payload)
	for _, body := range plain {
		segments = append(segments, body)
		links = append(links, gmail.ExtractURLs(body)...)
	}
	for _, body := range htmlBodies {
		text, err := extract.HTMLString(body)
		if err != nil {
			slog.DebugContext(ctx, "Failed to read html body", "message_id", msg.Id, "error", err)
			continue
		}
		segments = append(segments, text)
		links = append(links, gmail.ExtractURLs(body)...)
	}

	for _, att := range gmail.Attachments(msg.Payload) {
		if !att.IsPDF() && !att.IsImage() {
			continue
		}
		data := att.Data
		if data == nil {
			var err error
			data, err = mb.Attachment(ctx, msg.Id, att.ID)
			if err != nil {
				slog.WarnContext(ctx, "Attachment download failed", "message_id", msg.Id, "filename", att.Filename, "error", err)
				continue
			}
		}
		contentType := att.MimeType
		if att.IsPDF() {
			contentType = "application/pdf"
		}
		text, err := s.reader.Text(contentType, data)
		if err != nil {
			slog.WarnContext(ctx, "Attachment unreadable", "message_id", msg.Id, "filename", att.Filename, "error", err)
			continue
		}
		segments = append(segments, text)
	}

	if s.fetcher != nil {
		seen := make(map[string]bool)
		fetched := 0
		for _, link := range links {
			if seen[link] || fetched >= maxLinksPerMessage {
				continue
			}
			seen[link] = true
			fetched++
			text, err := s.fetcher.Fetch(ctx, link)
			if err != nil {
				if !errors.Is(err, extract.ErrUnsupported) {
					slog.DebugContext(ctx, "Failed to fetch link", "url", link, "error", err)
				}
				continue
			}
			segments = append(segments, text)
		}
	}

	nonEmpty := segments[:0]
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg != "" {
			nonEmpty = append(nonEmpty, seg)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
