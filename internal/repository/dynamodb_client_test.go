package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"filmate/internal/domain"
)

type fakeDynamo struct {
	getOut          *dynamodb.GetItemOutput
	getErr          error
	putErr          error
	deleteErr       error
	lastGetInput    *dynamodb.GetItemInput
	lastPutInput    *dynamodb.PutItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
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
	f.lastDeleteInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "sessions")
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func makeSessionItem(id, prefs string, round int, ttl int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionId":   &types.AttributeValueMemberS{Value: id},
		"preferences": &types.AttributeValueMemberS{Value: prefs},
		"round":       numberAttr(int64(round)),
		"updatedAt":   numberAttr(fixedNow.Add(-time.Minute).Unix()),
		"ttl":         numberAttr(ttl),
	}
}

func nVal(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	n, ok := item[key].(*types.AttributeValueMemberN)
	require.True(t, ok, "attribute %q is not a number", key)
	return n.Value
}

func sVal(t *testing.T, item map[string]types.AttributeValue, key string) string {
	t.Helper()
	s, ok := item[key].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q is not a string", key)
	return s.Value
}

func TestGet_HappyPath(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeSessionItem("U1#C1", `["コメディ","90年代"]`, 2, fixedNow.Add(30*time.Minute).Unix()),
	}}
	c := mustNewClient(t, db)

	s, ok, err := c.Get(context.Background(), "U1#C1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "U1#C1", s.ID)
	require.Equal(t, 2, s.Round)
	require.Equal(t, []string{"コメディ", "90年代"}, s.Preferences)
	require.Equal(t, fixedNow.Add(30*time.Minute).Unix(), s.ExpiresAt.Unix())
	require.True(t, *db.lastGetInput.ConsistentRead)
	require.Equal(t, "U1#C1", sVal(t, db.lastGetInput.Key, "sessionId"))
}

func TestGet_Missing(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	_, ok, err := c.Get(context.Background(), "U1#C1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_ExpiredIsAbsent(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeSessionItem("U1#C1", `[]`, 1, fixedNow.Add(-time.Second).Unix()),
	}}
	c := mustNewClient(t, db)
	_, ok, err := c.Get(context.Background(), "U1#C1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_LegacyItemWithoutOptionalAttributes(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: "U1#C1"},
	}}}
	c := mustNewClient(t, db)
	s, ok, err := c.Get(context.Background(), "U1#C1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, s.Round)
	require.Empty(t, s.Preferences)
	require.True(t, s.ExpiresAt.IsZero())
}

func TestGet_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, _, err := c.Get(context.Background(), "U1#C1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Get")

	c = mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{
		Item: makeSessionItem("U1#C1", `not-json`, 0, fixedNow.Add(time.Hour).Unix()),
	}})
	_, _, err = c.Get(context.Background(), "U1#C1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "JSON array")

	c = mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: "U1#C1"},
		"round":     &types.AttributeValueMemberS{Value: "bad"},
	}}})
	_, _, err = c.Get(context.Background(), "U1#C1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a number")
}

func TestCreate_WritesConditionally(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	created, err := c.Create(context.Background(), domain.NewSession("U1#C1", fixedNow))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "attribute_not_exists(sessionId) OR #ttl < :now", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "[]", sVal(t, db.lastPutInput.Item, "preferences"))
	require.Equal(t, "0", nVal(t, db.lastPutInput.Item, "round"))
	require.Equal(t, "1792069200", nVal(t, db.lastPutInput.Item, "ttl"))
}

func TestCreate_LostRaceIsNotAnError(t *testing.T) {
	db := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{Message: strPtr("exists")}}
	c := mustNewClient(t, db)
	created, err := c.Create(context.Background(), domain.NewSession("U1#C1", fixedNow))
	require.NoError(t, err)
	require.False(t, created)
}

func TestCreate_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErr: errors.New("throttled")})
	_, err := c.Create(context.Background(), domain.NewSession("U1#C1", fixedNow))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Create")

	_, err = c.Create(context.Background(), domain.Session{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestPut_PreservesExpiry(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	created := fixedNow.Add(-40 * time.Minute)
	s := domain.NewSession("U1#C1", created)
	s.Round = 2
	s.Preferences = []string{"ホラー"}
	s.UpdatedAt = fixedNow

	require.NoError(t, c.Put(context.Background(), s))
	require.Nil(t, db.lastPutInput.ConditionExpression)
	require.Equal(t, `["ホラー"]`, sVal(t, db.lastPutInput.Item, "preferences"))
	require.Equal(t, "2", nVal(t, db.lastPutInput.Item, "round"))
	require.Equal(t, strconv.FormatInt(created.Add(time.Hour).Unix(), 10), nVal(t, db.lastPutInput.Item, "ttl"))
}

func TestPut_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErr: errors.New("internal server error")})
	err := c.Put(context.Background(), domain.NewSession("U1#C1", fixedNow))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Put")

	err = c.Put(context.Background(), domain.Session{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestDelete(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.Delete(context.Background(), "U1#C1"))
	require.Equal(t, "U1#C1", sVal(t, db.lastDeleteInput.Key, "sessionId"))

	c = mustNewClient(t, &fakeDynamo{deleteErr: errors.New("boom")})
	err := c.Delete(context.Background(), "U1#C1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Delete")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "sessions")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func strPtr(s string) *string { return &s }
