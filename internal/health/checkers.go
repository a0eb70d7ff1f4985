package health

import (
	"context"
	"time"

	"github.com/attendix/attendix/internal/common/database"
)

// PostgresChecker probes the event store. Critical: the service cannot
// accept submissions without it.
type PostgresChecker struct {
	db *database.PostgresDB
}

// NewPostgresChecker creates the Postgres probe.
func NewPostgresChecker(db *database.PostgresDB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (p *PostgresChecker) Name() string { return "database" }

func (p *PostgresChecker) IsCritical() bool { return true }

// Check runs SELECT 1 and measures latency.
func (p *PostgresChecker) Check(ctx context.Context) ComponentStatus {
	start := time.Now()
	var one int
	err := p.db.Pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	return statusFrom(err, time.Since(start), 500*time.Millisecond)
}

// RedisChecker probes the device risk cache. Not critical: the scorer fails
// open without it, so readiness survives a Redis outage.
type RedisChecker struct {
	redis *database.RedisClient
}

// NewRedisChecker creates the Redis probe.
func NewRedisChecker(redis *database.RedisClient) *RedisChecker {
	return &RedisChecker{redis: redis}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) IsCritical() bool { return false }

func (r *RedisChecker) Check(ctx context.Context) ComponentStatus {
	start := time.Now()
	_, err := r.redis.Client.Ping(ctx).Result()
	return statusFrom(err, time.Since(start), 200*time.Millisecond)
}

// ElasticsearchChecker probes the audit search index. Not critical: the
// audit store degrades to Postgres-only when the index is away.
type ElasticsearchChecker struct {
	es *database.ElasticsearchClient
}

// NewElasticsearchChecker creates the Elasticsearch probe.
func NewElasticsearchChecker(es *database.ElasticsearchClient) *ElasticsearchChecker {
	return &ElasticsearchChecker{es: es}
}

func (e *ElasticsearchChecker) Name() string { return "elasticsearch" }

func (e *ElasticsearchChecker) IsCritical() bool { return false }

func (e *ElasticsearchChecker) Check(ctx context.Context) ComponentStatus {
	start := time.Now()
	err := e.es.Ping()
	return statusFrom(err, time.Since(start), 500*time.Millisecond)
}

// FuncChecker adapts a function into a Checker.
type FuncChecker struct {
	name     string
	check    func(context.Context) ComponentStatus
	critical bool
}

// NewFuncChecker creates a checker from a function.
func NewFuncChecker(name string, check func(context.Context) ComponentStatus, critical bool) *FuncChecker {
	return &FuncChecker{name: name, check: check, critical: critical}
}

func (f *FuncChecker) Name() string { return f.name }

func (f *FuncChecker) IsCritical() bool { return f.critical }

func (f *FuncChecker) Check(ctx context.Context) ComponentStatus { return f.check(ctx) }

// statusFrom maps a probe result onto a ComponentStatus, flagging slow
// dependencies as degraded.
func statusFrom(err error, latency, slow time.Duration) ComponentStatus {
	checkedAt := time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		return ComponentStatus{
			Status:    "down",
			LatencyMS: float64(latency.Milliseconds()),
			Details:   err.Error(),
			CheckedAt: checkedAt,
		}
	}
	status, details := "up", ""
	if latency > slow {
		status, details = "degraded", "high latency"
	}
	return ComponentStatus{
		Status:    status,
		LatencyMS: float64(latency.Milliseconds()),
		Details:   details,
		CheckedAt: checkedAt,
	}
}
