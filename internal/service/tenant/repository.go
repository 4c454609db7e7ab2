package tenant

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

var ErrNotFound = errors.New("tenant repository: not found")

type Repository interface {
	GetTenant(ctx context.Context, tenantID string) (model.TenantItem, error)
	FindByChannelNumber(ctx context.Context, channelNumber string) (model.TenantItem, error)
	FindByBotID(ctx context.Context, botID string) (model.TenantItem, error)
	FindByAPIKey(ctx context.Context, apiKey string) (model.TenantItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetTenant(ctx context.Context, tenantID string) (model.TenantItem, error) {
	var tenant model.TenantItem
	err := r.db.Client.GetItem(
		ctx,
		model.TenantsTable,
		map[string]types.AttributeValue{
			"tenantId": &types.AttributeValueMemberS{Value: tenantID},
		},
		&tenant,
	)
	if err != nil {
		if isNotFound(err) {
			return model.TenantItem{}, ErrNotFound
		}
		return model.TenantItem{}, err
	}
	return tenant, nil
}

// FindByChannelNumber resolves a tenant through the byChannelNumber GSI.
// Resolution is always an index lookup, never a table scan; inbound events
// arrive for every tenant on the platform.
func (r *DynamoRepository) FindByChannelNumber(ctx context.Context, channelNumber string) (model.TenantItem, error) {
	return r.queryOne(ctx, model.TenantsByChannelNumberIndex, "channelNumber", channelNumber)
}

func (r *DynamoRepository) FindByBotID(ctx context.Context, botID string) (model.TenantItem, error) {
	return r.queryOne(ctx, model.TenantsByBotIDIndex, "botId", botID)
}

func (r *DynamoRepository) FindByAPIKey(ctx context.Context, apiKey string) (model.TenantItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.TenantAPIKeysTable,
		aws.String(model.TenantAPIKeysByKeyIndex),
		"apiKey = :apiKey",
		map[string]types.AttributeValue{
			":apiKey": &types.AttributeValueMemberS{Value: apiKey},
		},
		nil,
		nil,
	)
	if err != nil {
		return model.TenantItem{}, err
	}
	if len(items) == 0 {
		return model.TenantItem{}, ErrNotFound
	}

	var key model.TenantAPIKeyItem
	if err := attributevalue.UnmarshalMap(items[0], &key); err != nil {
		return model.TenantItem{}, err
	}
	return r.GetTenant(ctx, key.TenantID)
}

func (r *DynamoRepository) queryOne(ctx context.Context, indexName, field, value string) (model.TenantItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.TenantsTable,
		aws.String(indexName),
		field+" = :value",
		map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: value},
		},
		nil,
		nil,
	)
	if err != nil {
		return model.TenantItem{}, err
	}
	if len(items) == 0 {
		return model.TenantItem{}, ErrNotFound
	}

	var tenant model.TenantItem
	if err := attributevalue.UnmarshalMap(items[0], &tenant); err != nil {
		return model.TenantItem{}, err
	}
	return tenant, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
