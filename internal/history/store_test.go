package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "history.json"), opts...)
}

func TestLoadMissingArtifactStartsEmpty(t *testing.T) {
	s := testStore(t)
	s.Load()
	assert.Equal(t, 0, s.Len())
}

func TestLoadCorruptArtifactStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all{"), 0o600))

	s := NewStore(path)
	s.Load()
	assert.Equal(t, 0, s.Len())
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := NewStore(path)
	s.Append(RoleSystem, "rules")
	s.Append(RoleUser, "turn on the fan")
	s.Append(RoleAssistant, "Turning on the fan.")
	require.NoError(t, s.Persist())

	reloaded := NewStore(path)
	reloaded.Load()
	turns := reloaded.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, Turn{Role: RoleUser, Content: "turn on the fan"}, turns[1])
}

func TestPersistIsValidJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := NewStore(path)
	s.Append(RoleUser, "hello")
	require.NoError(t, s.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var turns []Turn
	require.NoError(t, json.Unmarshal(data, &turns))
	require.Len(t, turns, 1)
}

func TestRotateTrimsToMaxTurns(t *testing.T) {
	s := testStore(t, WithMaxTurns(5))
	for i := 0; i < 12; i++ {
		s.Append(RoleUser, "msg")
	}
	s.Append(RoleAssistant, "last")

	s.Rotate()
	turns := s.Turns()
	require.Len(t, turns, 5)
	assert.Equal(t, "last", turns[4].Content)
}

func TestRotateKeepsShortTranscript(t *testing.T) {
	s := testStore(t, WithMaxTurns(50))
	s.Append(RoleUser, "one")
	s.Append(RoleAssistant, "two")

	s.Rotate()
	assert.Equal(t, 2, s.Len())
}

func TestRotateClearsStaleArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := NewStore(path, WithMaxAge(time.Hour))
	s.Append(RoleUser, "old message")
	require.NoError(t, s.Persist())

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	s.Rotate()
	assert.Equal(t, 0, s.Len())
}

func TestRotateKeepsFreshArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := NewStore(path, WithMaxAge(time.Hour))
	s.Append(RoleUser, "recent message")
	require.NoError(t, s.Persist())

	s.Rotate()
	assert.Equal(t, 1, s.Len())
}

func TestLoadRotatesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s := NewStore(path, WithMaxAge(time.Hour))
	for i := 0; i < 3; i++ {
		s.Append(RoleUser, "msg")
	}
	require.NoError(t, s.Persist())

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	reloaded := NewStore(path, WithMaxAge(time.Hour))
	reloaded.Load()
	assert.Equal(t, 0, reloaded.Len())
}
