package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foyer-io/foyer/internal/sanitize"
)

const testKey = "test-signing-key-1234567890123456"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"), testKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		CorrelationID: "conv-1",
		Model:         "qwen2.5:1.5b",
		PolicyVersion: "1.0.0@deadbeef",
		Action:        "turn_on_fan",
		Executed:      true,
		InputHash:     HashContent("turn on the fan"),
		OutputHash:    HashContent("Turning on the fan."),
		DurationMS:    120,
	}
	require.NoError(t, store.Append(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.Contains(t, rec.Signature, "hmac-sha256:")

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "conv-1", records[0].CorrelationID)
	assert.True(t, records[0].Executed)
}

func TestVerifySignature(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{CorrelationID: "conv-2", Model: "m", PolicyVersion: "v"}
	require.NoError(t, store.Append(ctx, rec))

	valid, err := store.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifyUnknownRecord(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Verify(context.Background(), "no-such-id")
	require.Error(t, err)
}

func TestPurgeOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{CorrelationID: "conv-3"}
	require.NoError(t, store.Append(ctx, rec))

	// Fresh record survives a 30-day retention pass.
	purged, err := store.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, purged)

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestHashContentDeterministic(t *testing.T) {
	assert.Equal(t, HashContent("abc"), HashContent("abc"))
	assert.NotEqual(t, HashContent("abc"), HashContent("abd"))
	assert.Len(t, HashContent(""), 64)
}

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	sig, err := signer.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, signer.Verify([]byte("payload"), sig))
	assert.False(t, signer.Verify([]byte("tampered"), sig))
}

func TestSignerRejectsShortKey(t *testing.T) {
	_, err := NewSigner("too-short")
	require.Error(t, err)
}

func TestLineLoggerWritesSanitizedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLineLogger(path, sanitize.MustNew())

	l.Write("user request: turn on the fan")
	l.Write("reply with javascript:alert payload")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "user request: turn on the fan")
	assert.Contains(t, lines[1], "reply with alert payload")
	assert.NotContains(t, lines[1], "javascript:")
}
