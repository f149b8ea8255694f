package domain

import (
	"context"
	"time"
)

// Classifier infers the review tier for a snapshot. Implementations are pure.
type Classifier interface {
	Classify(snapshot *AnswerSnapshot) *DeterminationResult
}

// ConsistencyChecker finds contradictions and gaps in a snapshot.
type ConsistencyChecker interface {
	Check(snapshot *AnswerSnapshot) []ConsistencyIssue
	CheckAt(snapshot *AnswerSnapshot, now time.Time) []ConsistencyIssue
}

// DeterminationRecorder persists the audit log of evaluated snapshots
type DeterminationRecorder interface {
	SaveDetermination(ctx context.Context, record *DeterminationRecord) error
	GetDetermination(ctx context.Context, id string) (*DeterminationRecord, error)
	ListBySnapshotHash(ctx context.Context, hash string, limit int) ([]*DeterminationRecord, error)
	CountByReviewType(ctx context.Context) (map[ReviewType]int64, error)
}

// ResultCache stores encoded assessments keyed by snapshot hash.
// A miss is reported with ok == false and a nil error.
type ResultCache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
