package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	appconfig "github.com/smartclips-editor/internal/config"
	"github.com/smartclips-editor/internal/domain"
)

const sessionIndex = "session_id-index"

// Client stores edit history in a DynamoDB table keyed by edit id, with a
// session_id-index GSI sorted by created_at.
type Client struct {
	client    *dynamodb.Client
	tableName string
}

// NewClient creates a new DynamoDB client
func NewClient(ctx context.Context, cfg appconfig.AWSConfig) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.HistoryTable,
	}, nil
}

// Record stores one edit. Edit ids are never reused.
func (c *Client) Record(ctx context.Context, rec *domain.EditRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal edit: %w", err)
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to record edit: %v", domain.ErrDatabaseError, err)
	}
	return nil
}

// ListBySession returns a session's edits, oldest first
func (c *Client) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.EditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	keyExpr := expression.Key("session_id").Equal(expression.Value(sessionID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(c.tableName),
		IndexName:                 aws.String(sessionIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
		Limit:                     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query edits: %v", domain.ErrDatabaseError, err)
	}

	records := make([]*domain.EditRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var rec domain.EditRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal edit: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}
