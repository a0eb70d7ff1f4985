package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/attendix/attendix/internal/common/database"
)

// StoreConfig holds batching configuration for the audit store.
type StoreConfig struct {
	BatchSize     int           // records buffered before an auto-flush
	FlushInterval time.Duration // maximum time a record waits in the buffer
}

// DefaultStoreConfig returns the production batching defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// inserter is the persistence seam; production wraps a pgx pool, tests
// substitute a fake.
type inserter interface {
	insert(ctx context.Context, recs []Record) error
}

// Store buffers decision records and batch-inserts them into Postgres, with
// an optional best-effort dual-write to Elasticsearch for the review search
// surface. Implements Sink.
type Store struct {
	ins    inserter
	es     *database.ElasticsearchClient
	logger *zap.Logger

	mu         sync.Mutex
	buffer     []Record
	flushTimer *time.Timer
	closed     bool

	batchSize     int
	flushInterval time.Duration
}

// NewStore creates a batching audit store. es may be nil to disable the
// search index dual-write.
func NewStore(db *pgxpool.Pool, es *database.ElasticsearchClient, cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultStoreConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultStoreConfig().FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		ins:           pgInserter{db: db},
		es:            es,
		logger:        logger.With(zap.String("component", "audit_store")),
		buffer:        make([]Record, 0, cfg.BatchSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
	s.flushTimer = time.AfterFunc(cfg.FlushInterval, s.flushTick)
	return s
}

// Write buffers the record and flushes when the batch fills. Errors are
// logged, never returned: audit persistence must not fail the submission
// that produced the record.
func (s *Store) Write(ctx context.Context, rec Record) {
	s.mu.Lock()
	s.buffer = append(s.buffer, rec)
	full := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if s.es != nil {
		go s.indexRecord(rec)
	}

	if full {
		if err := s.Flush(ctx); err != nil {
			s.logger.Error("audit flush failed", zap.Error(err))
		}
	}
}

// Flush writes all buffered records to the database.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return nil
	}
	recs := make([]Record, len(s.buffer))
	copy(recs, s.buffer)
	s.buffer = s.buffer[:0]
	s.mu.Unlock()

	if err := s.ins.insert(ctx, recs); err != nil {
		s.logger.Error("failed to batch insert audit records",
			zap.Int("count", len(recs)),
			zap.Error(err))
		return err
	}

	s.logger.Debug("flushed audit records", zap.Int("count", len(recs)))
	return nil
}

// Close stops the background flusher and drains the buffer.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}
	return s.Flush(ctx)
}

// flushTick fires on the interval timer. The timer is one-shot, so it is
// re-armed here after every tick; an empty-buffer tick must still re-arm or
// the periodic flush dies after one idle interval.
func (s *Store) flushTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = s.Flush(ctx)

	s.mu.Lock()
	if !s.closed {
		s.flushTimer.Reset(s.flushInterval)
	}
	s.mu.Unlock()
}

func (s *Store) indexRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.es.Index(DecisionsIndex, rec.ID, data); err != nil {
		s.logger.Warn("failed to index audit record",
			zap.String("record_id", rec.ID),
			zap.Error(err))
	}
}

type pgInserter struct {
	db *pgxpool.Pool
}

func (p pgInserter) insert(ctx context.Context, recs []Record) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer tx.Rollback(ctx)

	const stmt = `
		INSERT INTO decision_audit (
			id, timestamp, action, user_id, site_id,
			outcome, reason, risk_score, warnings, ip, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, rec := range recs {
		var warnings []byte
		if len(rec.Warnings) > 0 {
			warnings, _ = json.Marshal(rec.Warnings)
		}
		if _, err := tx.Exec(ctx, stmt,
			rec.ID, rec.Timestamp, rec.Action, rec.UserID, rec.SiteID,
			string(rec.Outcome), rec.Reason, rec.RiskScore, warnings,
			rec.IP, rec.UserAgent,
		); err != nil {
			return fmt.Errorf("insert audit record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

// InitializeSchema creates the decision audit table.
func InitializeSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decision_audit (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			action VARCHAR(50) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			site_id VARCHAR(255),
			outcome VARCHAR(20) NOT NULL,
			reason VARCHAR(100),
			risk_score INT NOT NULL DEFAULT 0,
			warnings JSONB,
			ip VARCHAR(45),
			user_agent TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_decision_audit_user ON decision_audit(user_id);
		CREATE INDEX IF NOT EXISTS idx_decision_audit_timestamp ON decision_audit(timestamp);
		CREATE INDEX IF NOT EXISTS idx_decision_audit_outcome ON decision_audit(outcome);
	`)
	if err != nil {
		return fmt.Errorf("create decision_audit table: %w", err)
	}
	return nil
}
