package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fitcoach-agent/internal/domain"
)

type VectorUpserter interface {
	Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error
}

// Indexer embeds newly written activity logs and upserts them into the
// user's vector namespace. It is driven by the table's change stream, one
// call per inserted log record.
type Indexer struct {
	params      ParamGetter
	embedder    Embedder
	vectors     VectorUpserter
	paramPrefix string
	embedDims   int
	logger      *slog.Logger

	cacheMu     sync.RWMutex
	cacheLoaded bool
	embedModel  string
}

func NewIndexer(p ParamGetter, e Embedder, v VectorUpserter, paramPrefix string, embedDims int, logger *slog.Logger) (*Indexer, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if e == nil {
		return nil, errors.New("usecase: embedder must not be nil")
	}
	if v == nil {
		return nil, errors.New("usecase: vector index must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if embedDims <= 0 {
		embedDims = defaultEmbedDims
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		params:      p,
		embedder:    e,
		vectors:     v,
		paramPrefix: paramPrefix,
		embedDims:   embedDims,
		logger:      logger,
	}, nil
}

// IndexLog embeds one log entry's notes and upserts the vector under the
// user's namespace. A log without notes is skipped with a warning, not an
// error: embedding everything would pay for text the user never wrote.
// Re-delivery of the same log is safe because the upsert is keyed by log id.
func (ix *Indexer) IndexLog(ctx context.Context, entry domain.LogEntry) error {
	if entry.UserID == "" || entry.LogID == "" {
		return newError(ErrorInvalidInput, "missing_log_identity", nil)
	}
	if strings.TrimSpace(entry.Notes) == "" {
		ix.logger.Warn("log has no notes, skipping embedding", "logId", entry.LogID, "userId", entry.UserID)
		return nil
	}

	if err := ix.ensureConfig(ctx); err != nil {
		return newError(ErrorInternal, "ssm_load_error", err)
	}

	vec, err := ix.embedder.Embed(ctx, ix.embedModel, entry.Notes, ix.embedDims)
	if err != nil {
		return newError(ErrorUpstream, "embedding_error", err)
	}

	err = ix.vectors.Upsert(ctx, entry.UserID, []domain.Vector{{
		ID:     entry.LogID,
		Values: vec,
		Metadata: map[string]any{
			"dataType":       strings.ToLower(entry.Type),
			"timestamp":      entry.Timestamp,
			"calories":       entry.Calories,
			metadataNotesKey: entry.Notes,
		},
	}})
	if err != nil {
		return newError(ErrorUpstream, "vector_upsert_error", err)
	}

	ix.logger.Info("log embedded and indexed", "logId", entry.LogID, "userId", entry.UserID)
	return nil
}

// ensureConfig lazily loads the embedding model name from SSM once per process.
func (ix *Indexer) ensureConfig(ctx context.Context) error {
	ix.cacheMu.RLock()
	if ix.cacheLoaded {
		ix.cacheMu.RUnlock()
		return nil
	}
	ix.cacheMu.RUnlock()

	ix.cacheMu.Lock()
	defer ix.cacheMu.Unlock()
	if ix.cacheLoaded {
		return nil
	}

	embedModel, err := ix.params.GetParameter(ctx, ix.paramPrefix+"/config/embedding_model")
	if err != nil {
		return fmt.Errorf("usecase: load embedding model: %w", err)
	}
	ix.embedModel = embedModel
	ix.cacheLoaded = true
	return nil
}
