// Package snapshot uploads encrypted copies of the database, and with it the
// generation ledger, to S3-compatible storage on a schedule.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/rota/internal/model"
	"github.com/dukerupert/rota/internal/store"
)

// ErrDisabled is returned when object storage or the passphrase is not
// configured.
var ErrDisabled = errors.New("snapshots not configured")

// ErrNotReady is returned when verifying a snapshot that never completed.
var ErrNotReady = errors.New("snapshot not completed")

// ObjectStore is the subset of the S3 client the manager uses.
type ObjectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3            S3Config
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
	TempDir       string
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State        State      `json:"state"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// StatusCallback is called whenever the manager state changes.
type StatusCallback func(Status)

// Verification is the result of checking a stored snapshot.
type Verification struct {
	SnapshotID  int64  `json:"snapshot_id"`
	Integrity   string `json:"integrity"`
	Generations int64  `json:"generations"`
	Matches     bool   `json:"matches"`
}

// Manager takes, verifies and expires snapshots. Runs are serialized.
type Manager struct {
	mu       sync.RWMutex
	runMu    sync.Mutex
	cfg      Config
	status   Status
	callback StatusCallback

	db        *sql.DB
	snapshots *store.SnapshotStore
	client    ObjectStore
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager builds a manager. Without a complete S3 config and a
// passphrase it stays disabled. callback may be nil.
func NewManager(cfg Config, db *sql.DB, snapshots *store.SnapshotStore, callback StatusCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		db:        db,
		snapshots: snapshots,
		callback:  callback,
		logger:    logger,
		now:       time.Now,
		status:    Status{State: StateDisabled},
	}
	if m.cfg.Interval <= 0 {
		m.cfg.Interval = 24 * time.Hour
	}
	if m.cfg.RetentionDays <= 0 {
		m.cfg.RetentionDays = 30
	}
	if m.cfg.TempDir == "" {
		m.cfg.TempDir = os.TempDir()
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start takes a snapshot every interval and then expires old ones, until ctx
// is cancelled or Stop is called. It does nothing when disabled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled snapshot failed", "error", err)
				}
				if err := m.Cleanup(ctx); err != nil {
					m.logger.Error("snapshot cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduled loop.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastSnapshot == nil {
		s.LastSnapshot = m.status.LastSnapshot
	}
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) objectStore() (ObjectStore, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, "", ErrDisabled
	}
	return m.client, m.cfg.S3.Bucket, nil
}

// Run takes one snapshot: copy the database with VACUUM INTO, count its
// generation records, encrypt and upload.
func (m *Manager) Run(ctx context.Context) (*model.Snapshot, error) {
	client, bucket, err := m.objectStore()
	if err != nil {
		return nil, err
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()

	started := m.now().UTC()
	key := m.objectKey(started)
	snap, err := m.snapshots.Create(ctx, key, started)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create snapshot record: %w", err)
	}
	log := m.logger.With("snapshot_id", snap.ID, "object_key", key)
	m.setStatus(Status{State: StateRunning})

	fail := func(stage string, err error) (*model.Snapshot, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		if uerr := m.snapshots.UpdateStatus(ctx, snap.ID, model.SnapshotFailed, err.Error()); uerr != nil {
			log.Warn("record snapshot failure", "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	copyPath := filepath.Join(m.cfg.TempDir, fmt.Sprintf("rota-snapshot-%d.db", snap.ID))
	defer os.Remove(copyPath)

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO "+quote(copyPath)); err != nil {
		return fail("copy database", err)
	}
	_, generations, err := inspect(ctx, copyPath)
	if err != nil {
		return fail("inspect copy", err)
	}

	plain, err := os.ReadFile(copyPath)
	if err != nil {
		return fail("read copy", err)
	}
	sealed, err := Encrypt(plain, m.cfg.Passphrase)
	if err != nil {
		return fail("encrypt", err)
	}

	if err := m.snapshots.UpdateStatus(ctx, snap.ID, model.SnapshotUploading, ""); err != nil {
		return fail("mark uploading", err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail("upload", err)
	}

	done := m.now().UTC()
	if err := m.snapshots.MarkCompleted(ctx, snap.ID, int64(len(sealed)), generations, done); err != nil {
		return fail("mark completed", err)
	}
	m.setStatus(Status{State: StateIdle, LastSnapshot: &done})
	log.Info("snapshot uploaded", "size_bytes", len(sealed), "generations", generations)

	return m.snapshots.GetByID(ctx, snap.ID)
}

// Verify downloads a completed snapshot, decrypts it, runs an integrity
// check and compares its generation count with the recorded one.
func (m *Manager) Verify(ctx context.Context, id int64) (*Verification, error) {
	client, bucket, err := m.objectStore()
	if err != nil {
		return nil, err
	}

	snap, err := m.snapshots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, store.ErrNotFound)
	}
	if snap.Status != model.SnapshotCompleted {
		return nil, fmt.Errorf("snapshot %d is %s: %w", id, snap.Status, ErrNotReady)
	}

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(snap.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer obj.Body.Close()
	sealed, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	plain, err := Decrypt(sealed, m.cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(m.cfg.TempDir, fmt.Sprintf("rota-verify-%d-%s.db", id, uuid.NewString()[:8]))
	defer os.Remove(path)
	if err := os.WriteFile(path, plain, 0o600); err != nil {
		return nil, fmt.Errorf("write decrypted copy: %w", err)
	}

	integrity, generations, err := inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Verification{
		SnapshotID:  id,
		Integrity:   integrity,
		Generations: generations,
		Matches:     integrity == "ok" && generations == snap.Generations,
	}, nil
}

// Cleanup deletes snapshots older than the retention period. Object deletion
// failures are logged and do not stop the sweep.
func (m *Manager) Cleanup(ctx context.Context) error {
	client, bucket, err := m.objectStore()
	if err != nil {
		return nil
	}

	before := m.now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	keys, err := m.snapshots.DeleteOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old snapshots: %w", err)
	}
	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete snapshot object", "object_key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("expired snapshots removed", "count", len(keys))
	}
	return nil
}

// List returns the most recent snapshot records.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	return m.snapshots.List(ctx, limit)
}

func (m *Manager) objectKey(at time.Time) string {
	name := fmt.Sprintf("rota-%s-%s.db.enc", at.Format("20060102T150405Z"), uuid.NewString()[:8])
	if p := strings.Trim(m.cfg.S3.Prefix, "/"); p != "" {
		return p + "/" + name
	}
	return name
}

// inspect opens a database file and returns its integrity check
// result and generation record count.
func inspect(ctx context.Context, path string) (string, int64, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", 0, fmt.Errorf("open copy: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return "", 0, fmt.Errorf("integrity check: %w", err)
	}
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generation_records").Scan(&n); err != nil {
		return integrity, 0, fmt.Errorf("count generations: %w", err)
	}
	return integrity, n, nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
