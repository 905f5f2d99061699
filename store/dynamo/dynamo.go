// Package dynamo implements store.Adapter on Amazon DynamoDB.
//
// The table uses string attributes PK and SK as its primary key and a
// global secondary index (default "GSI1") keyed by GSI1PK and GSI1SK.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/arbor/store"
)

// Client is the subset of *dynamodb.Client the adapter calls.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// throttleCodes are the API error codes reported as store.ErrThrottled.
var throttleCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
}

// Adapter provides the store.Adapter operations on one DynamoDB table.
type Adapter struct {
	client Client
	table  string
	index  string
}

var _ store.Adapter = (*Adapter)(nil)

// New creates a new Adapter for cfg.TableName and cfg.IndexName.
func New(client Client, cfg store.Config) *Adapter {
	cfg = cfg.WithDefaults()
	return &Adapter{
		client: client,
		table:  cfg.TableName,
		index:  cfg.IndexName,
	}
}

// NewClient builds a DynamoDB client from cfg: region, optional endpoint
// override and optional static credentials. Everything else comes from the
// default AWS configuration chain.
func NewClient(ctx context.Context, cfg store.Config) (*dynamodb.Client, error) {
	cfg = cfg.WithDefaults()

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Get retrieves a row by key, returning store.ErrNotFound if missing.
func (a *Adapter) Get(ctx context.Context, key store.Key) (store.Row, error) {
	av, err := attributevalue.MarshalMap(key)
	if err != nil {
		return store.Row{}, fmt.Errorf("marshal key %s: %w", key, err)
	}

	result, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.table),
		Key:       av,
	})
	if err != nil {
		return store.Row{}, mapError(err)
	}
	if result.Item == nil {
		return store.Row{}, store.ErrNotFound
	}

	var row store.Row
	if err := attributevalue.UnmarshalMap(result.Item, &row); err != nil {
		return store.Row{}, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return row, nil
}

// QueryByPartitionPrefix queries the base table.
func (a *Adapter) QueryByPartitionPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	return a.query(ctx, "", store.AttrPK, store.AttrSK, pk, skPrefix, opts)
}

// QueryBySecondaryPrefix queries the secondary index.
func (a *Adapter) QueryBySecondaryPrefix(ctx context.Context, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	return a.query(ctx, a.index, store.AttrGSI1PK, store.AttrGSI1SK, pk, skPrefix, opts)
}

func (a *Adapter) query(ctx context.Context, index, pkAttr, skAttr, pk, skPrefix string, opts store.QueryOptions) ([]store.Row, error) {
	keyCond := expression.Key(pkAttr).Equal(expression.Value(pk))
	if skPrefix != "" {
		keyCond = keyCond.And(expression.Key(skAttr).BeginsWith(skPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(a.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!opts.Descending),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}

	var rows []store.Row
	paginator := dynamodb.NewQueryPaginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}

		var pageRows []store.Row
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageRows); err != nil {
			return nil, fmt.Errorf("unmarshal query page: %w", err)
		}
		rows = append(rows, pageRows...)

		if opts.Limit > 0 && len(rows) >= int(opts.Limit) {
			return rows[:opts.Limit], nil
		}
	}

	return rows, nil
}

// BatchPut writes up to store.MaxBatchSize rows with one BatchWriteItem call.
func (a *Adapter) BatchPut(ctx context.Context, rows []store.Row) ([]store.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > store.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d rows", store.ErrBatchTooLarge, len(rows))
	}

	requests := make([]types.WriteRequest, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, err
		}
		item, err := attributevalue.MarshalMap(row)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", row.Key(), err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	unprocessed, err := a.batchWrite(ctx, requests)
	if err != nil {
		return nil, err
	}

	var left []store.Row
	for _, req := range unprocessed {
		if req.PutRequest == nil {
			continue
		}
		var row store.Row
		if err := attributevalue.UnmarshalMap(req.PutRequest.Item, &row); err != nil {
			return nil, fmt.Errorf("unmarshal unprocessed item: %w", err)
		}
		left = append(left, row)
	}
	return left, nil
}

// BatchDelete removes up to store.MaxBatchSize rows with one BatchWriteItem
// call.
func (a *Adapter) BatchDelete(ctx context.Context, keys []store.Key) ([]store.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > store.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d keys", store.ErrBatchTooLarge, len(keys))
	}

	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		av, err := attributevalue.MarshalMap(key)
		if err != nil {
			return nil, fmt.Errorf("marshal key %s: %w", key, err)
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: av}})
	}

	unprocessed, err := a.batchWrite(ctx, requests)
	if err != nil {
		return nil, err
	}

	var left []store.Key
	for _, req := range unprocessed {
		if req.DeleteRequest == nil {
			continue
		}
		var key store.Key
		if err := attributevalue.UnmarshalMap(req.DeleteRequest.Key, &key); err != nil {
			return nil, fmt.Errorf("unmarshal unprocessed key: %w", err)
		}
		left = append(left, key)
	}
	return left, nil
}

func (a *Adapter) batchWrite(ctx context.Context, requests []types.WriteRequest) ([]types.WriteRequest, error) {
	result, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{a.table: requests},
	})
	if err != nil {
		return nil, mapError(err)
	}
	return result.UnprocessedItems[a.table], nil
}

// mapError converts DynamoDB throttling errors to store.ErrThrottled.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%w: %w", store.ErrThrottled, err)
	}
	return err
}
