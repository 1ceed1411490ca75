package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lostfound-sync/internal/domain"
)

// FoundItemRepo provides typed DynamoDB operations for the found_items table.
type FoundItemRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewFoundItemRepo(client *dynamodb.Client, tableName string) *FoundItemRepo {
	return &FoundItemRepo{client: client, tableName: tableName}
}

func (r *FoundItemRepo) Put(ctx context.Context, it *domain.FoundItem) error {
	return put(ctx, r.client, r.tableName, it)
}

func (r *FoundItemRepo) Update(ctx context.Context, itemID string, updates map[string]interface{}) error {
	return update(ctx, r.client, r.tableName, strKey(fieldItemID, itemID), updates)
}

// List returns up to limit found items, newest first.
func (r *FoundItemRepo) List(ctx context.Context, limit int) ([]domain.FoundItem, error) {
	items, err := scanAll(ctx, r.client, r.tableName)
	if err != nil {
		return nil, err
	}
	var out []domain.FoundItem
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("unmarshal found items: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

// LostRequestRepo provides typed DynamoDB operations for the lost_requests table.
type LostRequestRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewLostRequestRepo(client *dynamodb.Client, tableName string) *LostRequestRepo {
	return &LostRequestRepo{client: client, tableName: tableName}
}

func (r *LostRequestRepo) Put(ctx context.Context, req *domain.LostRequest) error {
	return put(ctx, r.client, r.tableName, req)
}

func (r *LostRequestRepo) Update(ctx context.Context, requestID string, updates map[string]interface{}) error {
	return update(ctx, r.client, r.tableName, strKey(fieldRequestID, requestID), updates)
}

// List returns up to limit lost requests, newest first.
func (r *LostRequestRepo) List(ctx context.Context, limit int) ([]domain.LostRequest, error) {
	items, err := scanAll(ctx, r.client, r.tableName)
	if err != nil {
		return nil, err
	}
	var out []domain.LostRequest
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("unmarshal lost requests: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func put(ctx context.Context, client *dynamodb.Client, table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal %s row: %w", table, err)
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}

func update(ctx context.Context, client *dynamodb.Client, table string, key map[string]types.AttributeValue, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// scanAll reads every page of a table. The item tables carry no user partition to query on, and
// the feed keeps the screen current after this one read.
func scanAll(ctx context.Context, client *dynamodb.Client, table string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	p := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{TableName: aws.String(table)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
