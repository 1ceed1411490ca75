package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/lostfound-sync/internal/config"
	"github.com/lostfound-sync/internal/domain"
)

// Store exposes the three repos as the fetch/mutate capability the screens need.
type Store struct {
	client        *dynamodb.Client
	Notifications *NotificationRepo
	Found         *FoundItemRepo
	Lost          *LostRequestRepo
}

func NewStore(client *dynamodb.Client, tables config.DynamoTables) *Store {
	return &Store{
		client:        client,
		Notifications: NewNotificationRepo(client, tables.Notifications),
		Found:         NewFoundItemRepo(client, tables.FoundItems),
		Lost:          NewLostRequestRepo(client, tables.LostRequests),
	}
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	return s.Notifications.ListByUser(ctx, userID, limit)
}

func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) error {
	return s.Notifications.MarkRead(ctx, userID, ids)
}

func (s *Store) ListFound(ctx context.Context, limit int) ([]domain.FoundItem, error) {
	return s.Found.List(ctx, limit)
}

func (s *Store) ListLost(ctx context.Context, limit int) ([]domain.LostRequest, error) {
	return s.Lost.List(ctx, limit)
}

// Check reports whether every synced table is reachable.
func (s *Store) Check(ctx context.Context) error {
	for _, table := range []string{s.Notifications.tableName, s.Found.tableName, s.Lost.tableName} {
		if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}); err != nil {
			return fmt.Errorf("describe %s: %w", table, err)
		}
	}
	return nil
}
