package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// sessionRecord is the DynamoDB item layout. expiresAt drives the table TTL.
type sessionRecord struct {
	SessionKey string  `dynamodbav:"sessionKey"`
	Session    Session `dynamodbav:"session"`
	UpdatedAt  string  `dynamodbav:"updatedAt"`
	ExpiresAt  int64   `dynamodbav:"expiresAt"`
}

// DynamoSessionStore persists chat sessions to a DynamoDB table keyed by sessionKey.
type DynamoSessionStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

// NewDynamoSessionStore builds a store backed by the provided DynamoDB client.
func NewDynamoSessionStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoSessionStore {
	if client == nil {
		panic("intake: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("intake: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultInactivityWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoSessionStore{client: client, tableName: tableName, ttl: ttl, now: time.Now, logger: logger}
}

func (s *DynamoSessionStore) Load(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, errors.New("intake: session key required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("intake: failed to fetch session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrSessionNotFound
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("intake: failed to decode session: %w", err)
	}
	// TTL deletion is lazy, so expired items can still be read.
	if rec.ExpiresAt > 0 && rec.ExpiresAt <= s.now().Unix() {
		return nil, ErrSessionNotFound
	}
	return &rec.Session, nil
}

func (s *DynamoSessionStore) Save(ctx context.Context, key string, sess *Session) error {
	if key == "" {
		return errors.New("intake: session key required")
	}
	if sess == nil {
		return errors.New("intake: session cannot be nil")
	}
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(sessionRecord{
		SessionKey: key,
		Session:    *sess,
		UpdatedAt:  now.Format(time.RFC3339Nano),
		ExpiresAt:  now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("intake: failed to marshal session: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("intake: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Clear(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("intake: session key required")
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(key),
	}); err != nil {
		return fmt.Errorf("intake: failed to delete session: %w", err)
	}
	s.logger.Debug("intake: session deleted", "table", s.tableName, "key", key)
	return nil
}

func (s *DynamoSessionStore) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionKey": &types.AttributeValueMemberS{Value: key},
	}
}
