package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"fitcoach-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	deleteErr    error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastDelInput *dynamodb.DeleteItemInput
	lastQueryIn  *dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func strVal(item map[string]types.AttributeValue, key string) string {
	s, ok := item[key].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return s.Value
}

func makeMessageItem(sessionID, role, content, ts string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: "USER#user-1"},
		"SK":             &types.AttributeValueMemberS{Value: "CHAT_MESSAGE#" + sessionID + "#" + ts + "-" + role},
		"sessionId":      &types.AttributeValueMemberS{Value: sessionID},
		"messageRole":    &types.AttributeValueMemberS{Value: role},
		"messageContent": &types.AttributeValueMemberS{Value: content},
		"timestamp":      &types.AttributeValueMemberS{Value: ts},
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "table")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestGetProfile_Found(t *testing.T) {
	fake := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: "USER#user-1"},
		"SK":           &types.AttributeValueMemberS{Value: "PROFILE"},
		"age":          &types.AttributeValueMemberN{Value: "30"},
		"height":       &types.AttributeValueMemberN{Value: "178.5"},
		"weight":       &types.AttributeValueMemberN{Value: "80"},
		"fitnessGoals": &types.AttributeValueMemberS{Value: "Lose weight"},
		"email":        &types.AttributeValueMemberS{Value: "u@example.com"},
		"profileData":  &types.AttributeValueMemberS{Value: `{"gender":"f"}`},
	}}}
	c, err := New(fake, "table")
	require.NoError(t, err)

	p, err := c.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "user-1", p.UserID)
	require.Equal(t, 30, p.Age)
	require.Equal(t, 178.5, p.Height)
	require.Equal(t, 80.0, p.Weight)
	require.Equal(t, "Lose weight", p.FitnessGoals)
	require.Equal(t, "u@example.com", p.Email)
	require.Equal(t, `{"gender":"f"}`, p.Extra)

	require.Equal(t, "USER#user-1", strVal(fake.lastGetInput.Key, "PK"))
	require.Equal(t, "PROFILE", strVal(fake.lastGetInput.Key, "SK"))
}

func TestGetProfile_Missing(t *testing.T) {
	c, err := New(&fakeDynamo{getOut: &dynamodb.GetItemOutput{}}, "table")
	require.NoError(t, err)

	p, err := c.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestGetProfile_ToleratesPartialRecord(t *testing.T) {
	c, err := New(&fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: "USER#user-1"},
		"SK":           &types.AttributeValueMemberS{Value: "PROFILE"},
		"fitnessGoals": &types.AttributeValueMemberS{Value: "Gain muscle"},
	}}}, "table")
	require.NoError(t, err)

	p, err := c.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "Gain muscle", p.FitnessGoals)
	require.Zero(t, p.Age)
	require.Zero(t, p.Weight)
}

func TestPutProfile(t *testing.T) {
	fake := &fakeDynamo{}
	c, err := New(fake, "table")
	require.NoError(t, err)

	require.NoError(t, c.PutProfile(context.Background(), domain.Profile{
		UserID:       "user-1",
		Age:          30,
		Weight:       80,
		FitnessGoals: "Lose weight",
	}))
	require.Equal(t, "USER#user-1", strVal(fake.lastPutInput.Item, "PK"))
	require.Equal(t, "PROFILE", strVal(fake.lastPutInput.Item, "SK"))

	require.Error(t, c.PutProfile(context.Background(), domain.Profile{}))
}

func TestGetSessionHistory_QueryShape(t *testing.T) {
	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c, err := New(fake, "table")
	require.NoError(t, err)

	_, err = c.GetSessionHistory(context.Background(), "user-1", "sess-1", 10)
	require.NoError(t, err)

	in := fake.lastQueryIn
	require.Equal(t, "table", *in.TableName)
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *in.KeyConditionExpression)
	require.Equal(t, "USER#user-1", strVal(in.ExpressionAttributeValues, ":pk"))
	require.Equal(t, "CHAT_MESSAGE#sess-1#", strVal(in.ExpressionAttributeValues, ":prefix"))
	require.Equal(t, int32(10), *in.Limit)
	require.False(t, *in.ScanIndexForward)
}

func TestGetSessionHistory_ReturnsChronologicalOrder(t *testing.T) {
	// The query reads newest first; callers must get oldest first.
	fake := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		makeMessageItem("sess-1", "assistant", "hello!", "2026-08-30T10:00:01.000Z"),
		makeMessageItem("sess-1", "user", "hi", "2026-08-30T10:00:00.000Z"),
	}}}
	c, err := New(fake, "table")
	require.NoError(t, err)

	msgs, err := c.GetSessionHistory(context.Background(), "user-1", "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, "assistant", msgs[1].Role)
	require.True(t, msgs[1].Timestamp.After(msgs[0].Timestamp))
}

func TestGetSessionHistory_QueryError(t *testing.T) {
	c, err := New(&fakeDynamo{queryErr: errors.New("boom")}, "table")
	require.NoError(t, err)

	_, err = c.GetSessionHistory(context.Background(), "user-1", "sess-1", 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "GetSessionHistory")
}

func TestCreateSession(t *testing.T) {
	fake := &fakeDynamo{}
	c, err := New(fake, "table")
	require.NoError(t, err)

	require.NoError(t, c.CreateSession(context.Background(), domain.ChatSession{
		UserID:    "user-1",
		SessionID: "sess-1",
		Title:     "What should I eat post-workout?",
	}))

	in := fake.lastPutInput
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *in.ConditionExpression)
	require.Equal(t, "USER#user-1", strVal(in.Item, "PK"))
	require.Equal(t, "CHAT_SESSION#sess-1", strVal(in.Item, "SK"))
	require.Equal(t, "What should I eat post-workout?", strVal(in.Item, "title"))
	require.NotEmpty(t, strVal(in.Item, "createdAt"))
}

func TestCreateSession_RequiresIdentity(t *testing.T) {
	c, err := New(&fakeDynamo{}, "table")
	require.NoError(t, err)
	require.Error(t, c.CreateSession(context.Background(), domain.ChatSession{}))
}

func TestSaveExchange_WritesBothRolesInOneTransaction(t *testing.T) {
	fake := &fakeDynamo{}
	c, err := New(fake, "table")
	require.NoError(t, err)

	require.NoError(t, c.SaveExchange(context.Background(), "user-1", "sess-1", "what now?", "eat protein"))

	tx := fake.lastTxInput
	require.Len(t, tx.TransactItems, 2)

	userItem := tx.TransactItems[0].Put.Item
	assistantItem := tx.TransactItems[1].Put.Item
	require.Equal(t, "user", strVal(userItem, "messageRole"))
	require.Equal(t, "what now?", strVal(userItem, "messageContent"))
	require.Equal(t, "assistant", strVal(assistantItem, "messageRole"))
	require.Equal(t, "eat protein", strVal(assistantItem, "messageContent"))

	userSK := strVal(userItem, "SK")
	assistantSK := strVal(assistantItem, "SK")
	require.True(t, strings.HasPrefix(userSK, "CHAT_MESSAGE#sess-1#"))
	require.True(t, strings.HasPrefix(assistantSK, "CHAT_MESSAGE#sess-1#"))
	// The assistant record must sort after the user record.
	require.Less(t, userSK, assistantSK)
}

func TestSaveExchange_TransactionError(t *testing.T) {
	c, err := New(&fakeDynamo{txErr: errors.New("boom")}, "table")
	require.NoError(t, err)

	err = c.SaveExchange(context.Background(), "user-1", "sess-1", "q", "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveExchange")
}

func TestDeleteItem(t *testing.T) {
	fake := &fakeDynamo{}
	c, err := New(fake, "table")
	require.NoError(t, err)

	require.NoError(t, c.DeleteItem(context.Background(), "USER#user-1", "LOG#log-1"))
	require.Equal(t, "USER#user-1", strVal(fake.lastDelInput.Key, "PK"))
	require.Equal(t, "LOG#log-1", strVal(fake.lastDelInput.Key, "SK"))

	require.Error(t, c.DeleteItem(context.Background(), "", "LOG#log-1"))
}
