package subscription

import (
	"context"
	"errors"
	"strings"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("subscription repository: not found")

type Repository interface {
	Get(ctx context.Context, subscriptionID string) (model.SubscriptionItem, error)
	ListByTarget(ctx context.Context, tenantID string, kind model.SubscriptionKind, name string) ([]model.SubscriptionItem, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.SubscriptionItem, error)
	RecordDispatch(ctx context.Context, subscriptionID string, success bool) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) Get(ctx context.Context, subscriptionID string) (model.SubscriptionItem, error) {
	var sub model.SubscriptionItem
	err := r.db.Client.GetItem(
		ctx,
		model.SubscriptionsTable,
		map[string]types.AttributeValue{
			"subscriptionId": &types.AttributeValueMemberS{Value: subscriptionID},
		},
		&sub,
	)
	if err != nil {
		if isNotFound(err) {
			return model.SubscriptionItem{}, ErrNotFound
		}
		return model.SubscriptionItem{}, err
	}
	return sub, nil
}

func (r *DynamoRepository) ListByTarget(ctx context.Context, tenantID string, kind model.SubscriptionKind, name string) ([]model.SubscriptionItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.SubscriptionsTable,
		aws.String(model.SubscriptionsByTargetIndex),
		"tenantId = :tenantId AND targetKey = :targetKey",
		map[string]types.AttributeValue{
			":tenantId":  &types.AttributeValueMemberS{Value: tenantID},
			":targetKey": &types.AttributeValueMemberS{Value: model.SubscriptionTargetKey(kind, name)},
		},
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}
	return unmarshalSubscriptions(items)
}

func (r *DynamoRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.SubscriptionItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.SubscriptionsTable,
		aws.String(model.SubscriptionsByTargetIndex),
		"tenantId = :tenantId",
		map[string]types.AttributeValue{
			":tenantId": &types.AttributeValueMemberS{Value: tenantID},
		},
	)
	if err != nil {
		return nil, err
	}
	return unmarshalSubscriptions(items)
}

// RecordDispatch bumps the delivery counters with ADD expressions. The
// counters are monotonic; concurrent dispatches must never lose an
// increment, so this is never a read-modify-write.
func (r *DynamoRepository) RecordDispatch(ctx context.Context, subscriptionID string, success bool) error {
	updateExpr := "ADD totalCalls :one"
	if success {
		updateExpr = "ADD totalCalls :one, successCalls :one"
	}

	return r.db.Client.UpdateItem(
		ctx,
		model.SubscriptionsTable,
		map[string]types.AttributeValue{
			"subscriptionId": &types.AttributeValueMemberS{Value: subscriptionID},
		},
		updateExpr,
		map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		nil,
		nil,
	)
}

func unmarshalSubscriptions(items []map[string]types.AttributeValue) ([]model.SubscriptionItem, error) {
	subs := make([]model.SubscriptionItem, 0, len(items))
	for _, item := range items {
		var sub model.SubscriptionItem
		if err := attributevalue.UnmarshalMap(item, &sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
