// Package history owns the bounded conversation transcript. The store holds
// the only in-memory copy of the transcript, guards it with a mutex, and
// persists it as a single JSON artifact replaced atomically on every write.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Turn roles. Roles are always assigned by the writer, never inferred.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Retention bounds.
const (
	DefaultMaxTurns     = 50
	DefaultRotationDays = 7
)

// Turn is one conversation message. The persisted sequence, replayed in
// order, reconstructs a transcript consumable by the chat gateway.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store owns the conversation history for the lifetime of the process.
// All methods are safe for concurrent use; the query worker and the
// maintenance scheduler share one Store.
type Store struct {
	mu       sync.Mutex
	path     string
	maxTurns int
	maxAge   time.Duration
	turns    []Turn
}

// Option configures the Store.
type Option func(*Store)

// WithMaxTurns overrides the maximum number of retained turns.
func WithMaxTurns(n int) Option {
	return func(s *Store) { s.maxTurns = n }
}

// WithMaxAge overrides the artifact age bound.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

// NewStore creates a history store persisting to path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		maxTurns: DefaultMaxTurns,
		maxAge:   DefaultRotationDays * 24 * time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the durable artifact into memory. Missing, corrupt, or
// unreadable state yields an empty history and a logged warning — it never
// fails the caller. Rotation runs immediately after a successful load so a
// stale artifact is cleared before the first query.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("history_load_failed")
		} else {
			log.Info().Str("path", s.path).Msg("history_artifact_missing")
		}
		s.turns = nil
		return
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("history_artifact_corrupt")
		s.turns = nil
		return
	}

	s.turns = turns
	log.Info().Int("turns", len(turns)).Msg("history_loaded")
	s.rotateLocked()
}

// Rotate enforces the retention bounds: the transcript is truncated to the
// most recent maxTurns entries, and cleared entirely when the durable
// artifact is older than the age bound. Checked at two independent triggers
// (before each query and on a daily tick) because a long-running process
// would otherwise accumulate unbounded history between restarts.
func (s *Store) Rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateLocked()
}

func (s *Store) rotateLocked() {
	if len(s.turns) > s.maxTurns {
		s.turns = append([]Turn(nil), s.turns[len(s.turns)-s.maxTurns:]...)
		log.Info().Int("max_turns", s.maxTurns).Msg("history_rotated_length")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > s.maxAge {
		s.turns = nil
		log.Info().Dur("max_age", s.maxAge).Msg("history_cleared_age")
	}
}

// Append adds a turn to the in-memory transcript.
func (s *Store) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content})
}

// Turns returns a copy of the current transcript.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of retained turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Persist writes the full transcript to the durable artifact, atomically:
// the JSON snapshot goes to a temp file in the same directory, then replaces
// the artifact via rename, so a crash mid-write cannot truncate history.
// Failure is returned for logging but the in-memory transcript stays
// authoritative for the rest of the session.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.turns)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "history-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating history temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing history temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing history temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing history artifact: %w", err)
	}
	return nil
}
