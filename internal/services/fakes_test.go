package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gm "google.golang.org/api/gmail/v1"

	"billscan/internal/amqp"
	"billscan/internal/core"
	"billscan/internal/extract"
	"billscan/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	users     map[int64]core.User
	bills     map[int64][]core.Bill
	paid      map[string]bool
	messages  map[string]bool
	jobs      map[string]core.SyncJob
	listCalls int
	nextJob   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]core.User{1: {ID: 1, Email: "a@example.com", GoogleRefreshToken: "rt"}},
		bills:    map[int64][]core.Bill{},
		paid:     map[string]bool{},
		messages: map[string]bool{},
		jobs:     map[string]core.SyncJob{},
	}
}

func msgKey(userID int64, id string) string { return fmt.Sprintf("%d/%s", userID, id) }

func (f *fakeStore) ListBills(_ context.Context, userID int64) ([]core.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]core.Bill, len(f.bills[userID]))
	copy(out, f.bills[userID])
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) HasMessage(_ context.Context, userID int64, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[msgKey(userID, messageID)], nil
}

func (f *fakeStore) InsertBill(_ context.Context, nb storage.NewBill) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := msgKey(nb.UserID, nb.MessageID)
	if f.messages[key] {
		return 0, false, nil
	}
	f.messages[key] = true
	b := nb.Bill
	b.ID = int64(len(f.bills[nb.UserID]) + 1)
	f.bills[nb.UserID] = append(f.bills[nb.UserID], b)
	f.paid[nb.MessageID] = nb.Paid
	return b.ID, true, nil
}

func (f *fakeStore) CreateSyncJob(_ context.Context, userID int64) (core.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	job := core.SyncJob{
		ID:        fmt.Sprintf("job-%d", f.nextJob),
		UserID:    userID,
		Status:    core.JobQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) GetSyncJob(_ context.Context, userID int64, id string) (core.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.UserID != userID {
		return core.SyncJob{}, storage.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) ActiveSyncJob(_ context.Context, userID int64) (core.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.UserID == userID && !job.Status.Done() {
			return job, nil
		}
	}
	return core.SyncJob{}, storage.ErrNotFound
}

func (f *fakeStore) update(id string, fn func(*core.SyncJob) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if err := fn(&job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()
	f.jobs[id] = job
	return nil
}

func (f *fakeStore) MarkSyncRunning(_ context.Context, id string) error {
	return f.update(id, func(j *core.SyncJob) error {
		if j.Status != core.JobQueued {
			return storage.ErrNotFound
		}
		j.Status = core.JobRunning
		return nil
	})
}

func (f *fakeStore) UpdateSyncProgress(_ context.Context, id string, scanned, created int) error {
	return f.update(id, func(j *core.SyncJob) error {
		j.Scanned, j.CreatedBills = scanned, created
		return nil
	})
}

func (f *fakeStore) FinishSyncJob(_ context.Context, id string, scanned, created int) error {
	return f.update(id, func(j *core.SyncJob) error {
		if j.Status != core.JobRunning {
			return storage.ErrNotFound
		}
		now := time.Now()
		j.Status, j.Scanned, j.CreatedBills, j.FinishedAt = core.JobCompleted, scanned, created, &now
		return nil
	})
}

func (f *fakeStore) FailSyncJob(_ context.Context, id, reason string) error {
	return f.update(id, func(j *core.SyncJob) error {
		if j.Status.Done() {
			return storage.ErrNotFound
		}
		now := time.Now()
		j.Status, j.Error, j.FinishedAt = core.JobFailed, reason, &now
		return nil
	})
}

func (f *fakeStore) job(id string) core.SyncJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

type fakeMailbox struct {
	ids         []string
	messages    map[string]*gm.Message
	attachments map[string][]byte
	listErr     error
	onList      func()
}

func (m *fakeMailbox) ListMessageIDs(_ context.Context, _ string, limit int64) ([]string, error) {
	if m.onList != nil {
		m.onList()
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	if int64(len(m.ids)) > limit {
		return m.ids[:limit], nil
	}
	return m.ids, nil
}

func (m *fakeMailbox) GetMessage(_ context.Context, id string) (*gm.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("message gone")
	}
	return msg, nil
}

func (m *fakeMailbox) Attachment(_ context.Context, _ string, attachmentID string) ([]byte, error) {
	data, ok := m.attachments[attachmentID]
	if !ok {
		return nil, errors.New("no attachment")
	}
	return data, nil
}

func textMessage(id, body string) *gm.Message {
	return &gm.Message{
		Id: id,
		Payload: &gm.MessagePart{
			MimeType: "text/plain",
			Body:     &gm.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
}

func pdfMessage(id, attachmentID string) *gm.Message {
	return &gm.Message{
		Id: id,
		Payload: &gm.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gm.MessagePart{
				{MimeType: "application/pdf", Filename: "bill.pdf", Body: &gm.MessagePartBody{AttachmentId: attachmentID}},
			},
		},
	}
}

// fakeReader returns the document bytes as text.
type fakeReader struct{}

func (fakeReader) Text(_ string, data []byte) (string, error) {
	return string(data), nil
}

// lineExtractor reads "vendor=...;amount=...;date=..." style text.
type lineExtractor struct{}

func (lineExtractor) Extract(_ context.Context, text string) (extract.Fields, error) {
	var f extract.Fields
	for _, line := range strings.Split(text, "\n") {
		for _, kv := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
			if !ok {
				continue
			}
			switch k {
			case "vendor":
				f.Vendor = core.Str(v)
			case "amount":
				f.Amount = core.Dec(v)
			case "date":
				f.Date = core.Str(v)
			case "category":
				f.Category = core.Str(v)
			case "fail":
				return extract.Fields{}, errors.New("model unavailable")
			}
		}
	}
	return f, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []*amqp.SyncRequest
	err  error
}

func (p *fakePublisher) PublishSyncRequest(_ context.Context, msg *amqp.SyncRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}
