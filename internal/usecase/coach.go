package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fitcoach-agent/internal/domain"
)

const (
	defaultTopK         = 5
	defaultHistoryLimit = 10
	defaultEmbedDims    = 512
)

// Fixed user-facing strings. These are answers, not errors: the UI renders
// them like any assistant turn.
const (
	msgPromptForInput = "Please type a question so I can help you."
	msgEmptyAnswer    = "I could not generate a response."
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, model, input string, dimensions int) ([]float32, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type VectorQuerier interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error)
}

type StateReadWriter interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetSessionHistory(ctx context.Context, userID, sessionID string, limit int) ([]domain.StoredMessage, error)
	CreateSession(ctx context.Context, sess domain.ChatSession) error
	SaveExchange(ctx context.Context, userID, sessionID, question, answer string) error
}

// Coach is the chat orchestration service: embed the question, retrieve the
// user's most similar activity logs, fold in profile and session history,
// generate an answer, and persist the exchange.
type Coach struct {
	params       ParamGetter
	embedder     Embedder
	vectors      VectorQuerier
	llm          LLMClient
	state        StateReadWriter
	paramPrefix  string
	topK         int
	historyLimit int
	embedDims    int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	chatModel   string
	embedModel  string
}

type AskInput struct {
	UserID   string
	Question string
	Session  domain.SessionRef
}

type AskOutput struct {
	Answer    string
	SessionID string
}

func NewCoach(p ParamGetter, e Embedder, v VectorQuerier, llm LLMClient, s StateReadWriter, paramPrefix string, topK, historyLimit, embedDims int) (*Coach, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if e == nil {
		return nil, errors.New("usecase: embedder must not be nil")
	}
	if v == nil {
		return nil, errors.New("usecase: vector index must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if embedDims <= 0 {
		embedDims = defaultEmbedDims
	}
	return &Coach{
		params:       p,
		embedder:     e,
		vectors:      v,
		llm:          llm,
		state:        s,
		paramPrefix:  paramPrefix,
		topK:         topK,
		historyLimit: historyLimit,
		embedDims:    embedDims,
	}, nil
}

// Ask runs one coaching turn. On success the question and answer are already
// persisted under the session before the answer is returned; for a new
// session the session record is created first.
func (c *Coach) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return AskOutput{}, newError(ErrorUnauthenticated, "missing_user", nil)
	}

	question := strings.TrimSpace(in.Question)
	if question == "" {
		// Short-circuit with a canned answer; no external call, no persistence.
		return AskOutput{Answer: msgPromptForInput, SessionID: in.Session.ID()}, nil
	}

	if err := c.ensureConfig(ctx); err != nil {
		return AskOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	questionVec, err := c.embedder.Embed(ctx, c.embedModel, question, c.embedDims)
	if err != nil {
		return AskOutput{}, newError(ErrorUpstream, "embedding_error", err)
	}

	matches, err := c.vectors.Query(ctx, userID, questionVec, c.topK)
	if err != nil {
		return AskOutput{}, newError(ErrorUpstream, "vector_query_error", err)
	}

	profile, err := c.state.GetProfile(ctx, userID)
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "profile_read_error", err)
	}

	var history []domain.StoredMessage
	if !in.Session.IsNew() {
		history, err = c.state.GetSessionHistory(ctx, userID, in.Session.ID(), c.historyLimit)
		if err != nil {
			return AskOutput{}, newError(ErrorInternal, "history_read_error", err)
		}
	}

	prompt := composePrompt(
		profileContext(profile),
		activityContext(matches),
		historyContext(history),
		question,
	)

	answer, err := c.llm.Chat(ctx, c.chatModel, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: prompt},
	})
	if err != nil {
		return AskOutput{}, newError(ErrorUpstream, "chat_completion_error", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = msgEmptyAnswer
	}

	if in.Session.IsNew() {
		sess := domain.ChatSession{
			UserID:    userID,
			SessionID: in.Session.ID(),
			Title:     sessionTitle(question),
		}
		if err := c.state.CreateSession(ctx, sess); err != nil {
			return AskOutput{}, newError(ErrorInternal, "session_create_error", err)
		}
	}

	if err := c.state.SaveExchange(ctx, userID, in.Session.ID(), question, answer); err != nil {
		return AskOutput{}, newError(ErrorInternal, "exchange_write_error", err)
	}

	return AskOutput{Answer: answer, SessionID: in.Session.ID()}, nil
}

// ensureConfig lazily loads the model names from SSM once per process.
func (c *Coach) ensureConfig(ctx context.Context) error {
	c.cacheMu.RLock()
	if c.cacheLoaded {
		c.cacheMu.RUnlock()
		return nil
	}
	c.cacheMu.RUnlock()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cacheLoaded {
		return nil
	}

	chatModel, err := c.params.GetParameter(ctx, c.paramPrefix+"/config/chat_model")
	if err != nil {
		return fmt.Errorf("usecase: load chat model: %w", err)
	}
	embedModel, err := c.params.GetParameter(ctx, c.paramPrefix+"/config/embedding_model")
	if err != nil {
		return fmt.Errorf("usecase: load embedding model: %w", err)
	}

	c.chatModel = chatModel
	c.embedModel = embedModel
	c.cacheLoaded = true
	return nil
}
