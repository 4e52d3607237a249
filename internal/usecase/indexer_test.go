package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fitcoach-agent/internal/domain"
)

type mockUpserter struct {
	err           error
	callCount     int
	lastNamespace string
	lastVectors   []domain.Vector
}

func (m *mockUpserter) Upsert(_ context.Context, namespace string, vectors []domain.Vector) error {
	m.callCount++
	m.lastNamespace = namespace
	m.lastVectors = vectors
	return m.err
}

func newTestIndexer(t *testing.T) (*Indexer, *mockEmbedder, *mockUpserter) {
	t.Helper()
	embedder := &mockEmbedder{vec: []float32{0.5, 0.6}}
	upserter := &mockUpserter{}
	ix, err := NewIndexer(testParams(), embedder, upserter, "/fitcoach", 0, nil)
	require.NoError(t, err)
	return ix, embedder, upserter
}

func TestNewIndexer_ValidatesDependencies(t *testing.T) {
	_, err := NewIndexer(nil, &mockEmbedder{}, &mockUpserter{}, "/fitcoach", 0, nil)
	require.Error(t, err)
	_, err = NewIndexer(testParams(), nil, &mockUpserter{}, "/fitcoach", 0, nil)
	require.Error(t, err)
	_, err = NewIndexer(testParams(), &mockEmbedder{}, nil, "/fitcoach", 0, nil)
	require.Error(t, err)
	_, err = NewIndexer(testParams(), &mockEmbedder{}, &mockUpserter{}, "", 0, nil)
	require.Error(t, err)
}

func TestIndexLog_NoNotes_SkipsWithoutCalls(t *testing.T) {
	for _, notes := range []string{"", "   "} {
		ix, embedder, upserter := newTestIndexer(t)

		err := ix.IndexLog(context.Background(), domain.LogEntry{
			UserID: "user-1",
			LogID:  "log-1",
			Type:   "Workout",
			Notes:  notes,
		})
		require.NoError(t, err)
		require.Zero(t, embedder.callCount)
		require.Zero(t, upserter.callCount)
	}
}

func TestIndexLog_EmbedsAndUpserts(t *testing.T) {
	ix, embedder, upserter := newTestIndexer(t)

	err := ix.IndexLog(context.Background(), domain.LogEntry{
		UserID:    "user-1",
		LogID:     "log-42",
		Type:      "Workout",
		Timestamp: "2026-08-30T07:15:00Z",
		Calories:  310,
		Notes:     "30 min run",
	})
	require.NoError(t, err)

	require.Equal(t, 1, embedder.callCount)
	require.Equal(t, "text-embedding-3-small", embedder.lastModel)
	require.Equal(t, "30 min run", embedder.lastInput)
	require.Equal(t, defaultEmbedDims, embedder.lastDims)

	require.Equal(t, 1, upserter.callCount)
	require.Equal(t, "user-1", upserter.lastNamespace)
	require.Len(t, upserter.lastVectors, 1)
	vec := upserter.lastVectors[0]
	require.Equal(t, "log-42", vec.ID)
	require.Equal(t, embedder.vec, vec.Values)
	require.Equal(t, map[string]any{
		"dataType":      "workout",
		"timestamp":     "2026-08-30T07:15:00Z",
		"calories":      310.0,
		"originalNotes": "30 min run",
	}, vec.Metadata)
}

func TestIndexLog_MissingIdentity(t *testing.T) {
	ix, _, _ := newTestIndexer(t)

	err := ix.IndexLog(context.Background(), domain.LogEntry{Notes: "30 min run"})
	require.Error(t, err)
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestIndexLog_DownstreamFailures(t *testing.T) {
	boom := errors.New("boom")
	entry := domain.LogEntry{UserID: "user-1", LogID: "log-1", Type: "Meal", Notes: "salad"}

	t.Run("embedding", func(t *testing.T) {
		ix, embedder, upserter := newTestIndexer(t)
		embedder.err = boom

		err := ix.IndexLog(context.Background(), entry)
		require.Error(t, err)
		require.ErrorIs(t, err, boom)
		require.Zero(t, upserter.callCount)
	})

	t.Run("upsert", func(t *testing.T) {
		ix, _, upserter := newTestIndexer(t)
		upserter.err = boom

		err := ix.IndexLog(context.Background(), entry)
		require.Error(t, err)
		require.ErrorIs(t, err, boom)
	})
}

func TestIndexLog_ConfigLoadedOncePerProcess(t *testing.T) {
	params := testParams()
	ix, err := NewIndexer(params, &mockEmbedder{vec: []float32{1}}, &mockUpserter{}, "/fitcoach", 0, nil)
	require.NoError(t, err)

	entry := domain.LogEntry{UserID: "user-1", LogID: "log-1", Type: "Meal", Notes: "pasta"}
	for i := 0; i < 3; i++ {
		require.NoError(t, ix.IndexLog(context.Background(), entry))
	}
	require.Equal(t, 1, params.calls)
}
