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
	json "github.com/goccy/go-json"

	"filmate/internal/domain"
)

const (
	attrSessionID   = "sessionId"
	attrPreferences = "preferences"
	attrRound       = "round"
	attrUpdatedAt   = "updatedAt"
	attrTTL         = "ttl"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a DynamoDB table holding one item per conversation session.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// Get loads a session. Items past their TTL are reported as absent because
// DynamoDB expiry is lazy.
func (c *Client) Get(ctx context.Context, id string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}

	s, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get decode: %w", err)
	}
	if s.Expired(c.now()) {
		return domain.Session{}, false, nil
	}
	return s, true, nil
}

// Create writes s only if no live session exists under its key. It reports
// false without error when another writer got there first.
func (c *Client) Create(ctx context.Context, s domain.Session) (bool, error) {
	if s.ID == "" {
		return false, errors.New("repository: Create: session id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                sessionItem(s, c.now()),
		ConditionExpression: aws.String("attribute_not_exists(sessionId) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": numberAttr(c.now().Unix()),
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("repository: Create: %w", err)
	}
	return true, nil
}

// Put upserts s, preserving its expiry.
func (c *Client) Put(ctx context.Context, s domain.Session) error {
	if s.ID == "" {
		return errors.New("repository: Put: session id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s, c.now()),
	})
	if err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Delete removes the session. Deleting an absent session is not an error.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       sessionKey(id),
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrSessionID: &types.AttributeValueMemberS{Value: id},
	}
}

func sessionItem(s domain.Session, now time.Time) map[string]types.AttributeValue {
	prefs := s.Preferences
	if prefs == nil {
		prefs = []string{}
	}
	// A []string always marshals.
	encoded, _ := json.Marshal(prefs)

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	expiresAt := s.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(domain.SessionTTL)
	}

	return map[string]types.AttributeValue{
		attrSessionID:   &types.AttributeValueMemberS{Value: s.ID},
		attrPreferences: &types.AttributeValueMemberS{Value: string(encoded)},
		attrRound:       numberAttr(int64(s.Round)),
		attrUpdatedAt:   numberAttr(updatedAt.Unix()),
		attrTTL:         numberAttr(expiresAt.Unix()),
	}
}

// itemToSession converts a DynamoDB attribute map to a Session. Missing
// optional attributes fall back to their zero-turn defaults.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	id, err := strAttr(item, attrSessionID)
	if err != nil {
		return domain.Session{}, err
	}

	prefs := []string{}
	if raw, err := strAttr(item, attrPreferences); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
			return domain.Session{}, fmt.Errorf("repository: attribute %q is not a JSON array: %w", attrPreferences, err)
		}
	}

	round, err := optionalInt(item, attrRound)
	if err != nil {
		return domain.Session{}, err
	}
	updatedAt, err := optionalInt(item, attrUpdatedAt)
	if err != nil {
		return domain.Session{}, err
	}
	ttl, err := optionalInt(item, attrTTL)
	if err != nil {
		return domain.Session{}, err
	}

	s := domain.Session{
		ID:          id,
		Round:       int(round),
		Preferences: prefs,
	}
	if updatedAt > 0 {
		s.UpdatedAt = time.Unix(updatedAt, 0)
	}
	if ttl > 0 {
		s.ExpiresAt = time.Unix(ttl, 0)
	}
	return s, nil
}

func numberAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
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

func optionalInt(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
