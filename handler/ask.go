package handler

import (
	"context"
	"errors"
	"log/slog"

	"fitcoach-agent/internal/domain"
	"fitcoach-agent/internal/usecase"
)

// User-facing failure strings returned through the GraphQL errors field.
const (
	msgUnauthenticated = "User is not authenticated."
	msgGenericFailure  = "Something went wrong while processing your question. Please try again."
)

// AskEvent is the AppSync resolver invocation payload for the coach function.
type AskEvent struct {
	Arguments AskArguments `json:"arguments"`
	Identity  *AskIdentity `json:"identity"`
}

type AskArguments struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"sessionId"`
}

// AskIdentity carries the authenticated-principal fields AppSync provides.
// Which fields are set depends on the authorization mode.
type AskIdentity struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Issuer   string `json:"issuer"`
}

// AskUseCase is the orchestration contract consumed by the handler.
type AskUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

// AskHandler decodes AppSync invocations, resolves the caller identity, and
// maps service errors to the strings the UI is allowed to see.
type AskHandler struct {
	coach  AskUseCase
	logger *slog.Logger
}

func NewAskHandler(coach AskUseCase, logger *slog.Logger) (*AskHandler, error) {
	if coach == nil {
		return nil, errors.New("handler: ask use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AskHandler{coach: coach, logger: logger}, nil
}

// Handle runs one chat turn and returns the assistant text. An
// unauthenticated caller is rejected before the service, and with it any
// external API, is invoked.
func (h *AskHandler) Handle(ctx context.Context, event AskEvent) (string, error) {
	userID := resolveUserID(event.Identity)
	if userID == "" {
		return "", errors.New(msgUnauthenticated)
	}

	out, err := h.coach.Ask(ctx, usecase.AskInput{
		UserID:   userID,
		Question: event.Arguments.Prompt,
		Session:  domain.ParseSessionRef(event.Arguments.SessionID),
	})
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorUnauthenticated {
			return "", errors.New(msgUnauthenticated)
		}
		// Detail stays server-side; the caller gets one generic failure.
		h.logger.Error("ask failed", "userId", userID, "err", err)
		return "", errors.New(msgGenericFailure)
	}
	return out.Answer, nil
}

// resolveUserID picks the caller id from the identity in preference order:
// subject id, then username, then issuer. Empty means unauthenticated.
func resolveUserID(id *AskIdentity) string {
	if id == nil {
		return ""
	}
	switch {
	case id.Sub != "":
		return id.Sub
	case id.Username != "":
		return id.Username
	default:
		return id.Issuer
	}
}
