package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"fitcoach-agent/internal/domain"
)

const (
	pkPrefixUser = "USER#"
	skPrefixLog  = "LOG#"
)

// LogIndexer is the ingestion contract consumed by the stream handler.
type LogIndexer interface {
	IndexLog(ctx context.Context, entry domain.LogEntry) error
}

// IngestHandler reacts to table change events and forwards new activity logs
// to the indexer.
type IngestHandler struct {
	indexer LogIndexer
	logger  *slog.Logger
}

func NewIngestHandler(indexer LogIndexer, logger *slog.Logger) (*IngestHandler, error) {
	if indexer == nil {
		return nil, errors.New("handler: indexer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{indexer: indexer, logger: logger}, nil
}

// Handle processes one stream batch. Only inserts of LOG# records are
// indexed; everything else is skipped. A failure on one record is logged
// and does not abort the rest of the batch, so the stream's at-least-once
// delivery can make progress past a poison record.
func (h *IngestHandler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	h.logger.Info("processing stream records", "count", len(event.Records))

	for _, record := range event.Records {
		if record.EventName != string(events.DynamoDBOperationTypeInsert) {
			continue
		}
		entry, ok := logEntryFromImage(record.Change.NewImage)
		if !ok {
			continue
		}
		if err := h.indexer.IndexLog(ctx, entry); err != nil {
			h.logger.Error("failed to index log", "logId", entry.LogID, "userId", entry.UserID, "err", err)
		}
	}
	return nil
}

// logEntryFromImage converts a stream image into a LogEntry. The second
// return value is false when the image is not a LOG# record for a user.
func logEntryFromImage(image map[string]events.DynamoDBAttributeValue) (domain.LogEntry, bool) {
	pk := stringAttr(image, "PK")
	sk := stringAttr(image, "SK")
	if !strings.HasPrefix(pk, pkPrefixUser) || !strings.HasPrefix(sk, skPrefixLog) {
		return domain.LogEntry{}, false
	}

	userID := stringAttr(image, "userId")
	if userID == "" {
		userID = strings.TrimPrefix(pk, pkPrefixUser)
	}

	return domain.LogEntry{
		UserID:    userID,
		LogID:     strings.TrimPrefix(sk, skPrefixLog),
		Type:      stringAttr(image, "type"),
		Timestamp: scalarAttr(image, "timestamp"),
		Calories:  numberAttr(image, "calories"),
		Notes:     stringAttr(image, "notes"),
	}, true
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	av, ok := image[key]
	if !ok || av.DataType() != events.DataTypeString {
		return ""
	}
	return av.String()
}

// scalarAttr reads an attribute that may be stored as a string or a number,
// returning its raw textual form either way.
func scalarAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	av, ok := image[key]
	if !ok {
		return ""
	}
	switch av.DataType() {
	case events.DataTypeString:
		return av.String()
	case events.DataTypeNumber:
		return av.Number()
	default:
		return ""
	}
}

func numberAttr(image map[string]events.DynamoDBAttributeValue, key string) float64 {
	av, ok := image[key]
	if !ok || av.DataType() != events.DataTypeNumber {
		return 0
	}
	f, err := av.Float()
	if err != nil {
		return 0
	}
	return f
}
