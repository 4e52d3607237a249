package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"fitcoach-agent/internal/domain"
)

const (
	skProfile         = "PROFILE"
	skPrefixLog     = "LOG#"
	skPrefixSession = "CHAT_SESSION#"
	skPrefixChatMsg = "CHAT_MESSAGE#"

	// Fixed-width timestamp so the sort key's byte order matches time order.
	// RFC3339Nano trims trailing zeros and would break that.
	messageTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps the single application table. All records for a user share
// the USER#<id> partition; the sort-key prefix discriminates record kind.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// userPK returns the partition key shared by all of a user's records.
func userPK(userID string) string {
	return "USER#" + userID
}

// sessionSK returns the sort key of a session record.
func sessionSK(sessionID string) string {
	return skPrefixSession + sessionID
}

// messageSK returns the sort key of one chat message. The timestamp comes
// before the role so messages sort chronologically within a session.
func messageSK(sessionID string, ts time.Time, role string) string {
	return skPrefixChatMsg + sessionID + "#" + ts.UTC().Format(messageTimeLayout) + "-" + role
}

// messagePrefix returns the sort-key prefix covering every message of a session.
func messagePrefix(sessionID string) string {
	return skPrefixChatMsg + sessionID + "#"
}

// GetProfile fetches the user's profile record. A missing profile is not an
// error; it returns (nil, nil) so the caller can substitute its fallback.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetProfile get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	p := profileFromItem(out.Item)
	p.UserID = userID
	return &p, nil
}

// PutProfile creates or replaces the user's profile record.
func (c *Client) PutProfile(ctx context.Context, p domain.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("repository: PutProfile: user id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      profileItem(p),
	})
	if err != nil {
		return fmt.Errorf("repository: PutProfile: %w", err)
	}
	return nil
}

// GetSessionHistory queries the most recent messages of one session and
// returns them oldest first, at most limit records.
func (c *Client) GetSessionHistory(ctx context.Context, userID, sessionID string, limit int) ([]domain.StoredMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: messagePrefix(sessionID)},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetSessionHistory query: %w", err)
	}

	msgs := make([]domain.StoredMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetSessionHistory unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CreateSession writes the session record for a new conversation. The
// condition surfaces a raced duplicate create instead of silently replacing.
func (c *Client) CreateSession(ctx context.Context, sess domain.ChatSession) error {
	if sess.UserID == "" || sess.SessionID == "" {
		return errors.New("repository: CreateSession: user id and session id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                sessionItem(sess),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateSession: %w", err)
	}
	return nil
}

// SaveExchange persists one completed turn, the user's question and the
// assistant's answer, in a single transaction. The assistant record's sort
// key is stamped strictly after the user's so the pair never reorders even
// on coarse clocks.
func (c *Client) SaveExchange(ctx context.Context, userID, sessionID, question, answer string) error {
	if userID == "" || sessionID == "" {
		return errors.New("repository: SaveExchange: user id and session id are required")
	}

	now := time.Now().UTC()
	userMsg := domain.StoredMessage{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   question,
		Timestamp: now,
	}
	assistantMsg := domain.StoredMessage{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		Timestamp: now.Add(time.Millisecond),
	}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      messageItem(userID, userMsg),
			}},
			{Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      messageItem(userID, assistantMsg),
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}

// DeleteItem removes one record by its exact composite key.
func (c *Client) DeleteItem(ctx context.Context, pk, sk string) error {
	if pk == "" || sk == "" {
		return errors.New("repository: DeleteItem: PK and SK are required")
	}
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteItem: %w", err)
	}
	return nil
}

// itemToMessage converts a DynamoDB attribute map to a StoredMessage.
func itemToMessage(item map[string]types.AttributeValue) (domain.StoredMessage, error) {
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	role, err := strAttr(item, "messageRole")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	content, err := strAttr(item, "messageContent")
	if err != nil {
		return domain.StoredMessage{}, err
	}

	msg := domain.StoredMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if raw, rawErr := strAttr(item, "timestamp"); rawErr == nil {
		if ts, parseErr := time.Parse(messageTimeLayout, raw); parseErr == nil {
			msg.Timestamp = ts
		}
	}
	return msg, nil
}

func messageItem(userID string, msg domain.StoredMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":             &types.AttributeValueMemberS{Value: messageSK(msg.SessionID, msg.Timestamp, msg.Role)},
		"sessionId":      &types.AttributeValueMemberS{Value: msg.SessionID},
		"messageRole":    &types.AttributeValueMemberS{Value: msg.Role},
		"messageContent": &types.AttributeValueMemberS{Value: msg.Content},
		"timestamp":      &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(messageTimeLayout)},
	}
}

func sessionItem(sess domain.ChatSession) map[string]types.AttributeValue {
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(sess.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: sessionSK(sess.SessionID)},
		"sessionId": &types.AttributeValueMemberS{Value: sess.SessionID},
		"title":     &types.AttributeValueMemberS{Value: sess.Title},
		"createdAt": &types.AttributeValueMemberS{Value: createdAt.UTC().Format(time.RFC3339)},
	}
}

func profileItem(p domain.Profile) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: userPK(p.UserID)},
		"SK":           &types.AttributeValueMemberS{Value: skProfile},
		"age":          &types.AttributeValueMemberN{Value: strconv.Itoa(p.Age)},
		"height":       &types.AttributeValueMemberN{Value: formatFloat(p.Height)},
		"weight":       &types.AttributeValueMemberN{Value: formatFloat(p.Weight)},
		"fitnessGoals": &types.AttributeValueMemberS{Value: p.FitnessGoals},
		"email":        &types.AttributeValueMemberS{Value: p.Email},
	}
	if p.Extra != "" {
		item["profileData"] = &types.AttributeValueMemberS{Value: p.Extra}
	}
	return item
}

// profileFromItem tolerates missing or malformed attributes; the profile is
// user-entered and older records may predate some fields.
func profileFromItem(item map[string]types.AttributeValue) domain.Profile {
	var p domain.Profile
	if v, err := strAttr(item, "fitnessGoals"); err == nil {
		p.FitnessGoals = v
	}
	if v, err := strAttr(item, "email"); err == nil {
		p.Email = v
	}
	if v, err := strAttr(item, "profileData"); err == nil {
		p.Extra = v
	}
	if v, err := intAttr(item, "age"); err == nil {
		p.Age = v
	}
	if v, err := floatAttr(item, "height"); err == nil {
		p.Height = v
	}
	if v, err := floatAttr(item, "weight"); err == nil {
		p.Weight = v
	}
	return p
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
