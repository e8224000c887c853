package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrConversationNotFound means the referenced conversation does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations and the append-only synthesis telemetry to
// PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the database at connStr and applies pending migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("telemetry open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a conversation owned by userID.
func (s *Store) CreateConversation(id, userID, title string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		id, userID, title, time.Now().UTC(),
	)
	return err
}

// ConversationOwner returns the owning user id for a conversation, or
// ErrConversationNotFound.
func (s *Store) ConversationOwner(id string) (string, error) {
	var userID string
	err := s.db.QueryRow(`SELECT user_id FROM conversations WHERE id = $1`, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConversationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("conversation lookup: %w", err)
	}
	return userID, nil
}

// SynthesisRecord is one appended telemetry row, one per synthesis attempt.
type SynthesisRecord struct {
	SessionID       string
	Sequence        int
	TextLen         int
	Language        string
	CacheHit        bool
	Compressed      bool
	LatencyMs       float64
	OriginalBytes   int
	CompressedBytes int
}

// InsertSynthesis appends one record.
func (s *Store) InsertSynthesis(rec SynthesisRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO synthesis_metrics
		 (id, session_id, sequence, text_len, language, cache_hit, compressed,
		  latency_ms, original_bytes, compressed_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.NewString(), rec.SessionID, rec.Sequence, rec.TextLen, rec.Language,
		rec.CacheHit, rec.Compressed, rec.LatencyMs, rec.OriginalBytes,
		rec.CompressedBytes, time.Now().UTC(),
	)
	return err
}

// Aggregates summarizes the synthesis telemetry for diagnostics.
type Aggregates struct {
	Calls           int64   `json:"calls"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	CompressedShare float64 `json:"compressed_share"`
	AvgCompression  float64 `json:"avg_compression_ratio"`
	TotalAudioBytes int64   `json:"total_audio_bytes"`
}

// SynthesisAggregates computes whole-table aggregates.
func (s *Store) SynthesisAggregates() (*Aggregates, error) {
	var a Aggregates
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(AVG(cache_hit::int), 0),
		       COALESCE(AVG(latency_ms), 0),
		       COALESCE(AVG(compressed::int), 0),
		       COALESCE(AVG(CASE WHEN compressed AND original_bytes > 0
		                    THEN compressed_bytes::float / original_bytes END), 0),
		       COALESCE(SUM(compressed_bytes), 0)
		FROM synthesis_metrics
	`).Scan(&a.Calls, &a.CacheHitRate, &a.AvgLatencyMs, &a.CompressedShare,
		&a.AvgCompression, &a.TotalAudioBytes)
	if err != nil {
		return nil, fmt.Errorf("synthesis aggregates: %w", err)
	}
	return &a, nil
}
