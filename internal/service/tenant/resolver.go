package tenant

import (
	"context"
	"errors"
	"strings"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"
)

// IdentifierKind names the inbound identifiers a provider callback can
// carry. Each kind maps to its own index on the Tenants table.
type IdentifierKind string

const (
	KindChannelNumber IdentifierKind = "channel_number"
	KindBotID         IdentifierKind = "bot_id"
)

// Resolver maps provider-side identifiers to tenants. Lookups are
// read-only; tenant records are owned by provisioning.
type Resolver struct {
	repo Repository
}

func New(db *database.Database) *Resolver {
	return &Resolver{repo: NewDynamoRepository(db)}
}

func NewWithRepository(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the tenant owning the identifier. ErrNotFound is
// terminal for the triggering event: the identifier will not resolve on a
// retry either, so callers log and drop.
func (r *Resolver) Resolve(ctx context.Context, kind IdentifierKind, value string) (model.TenantItem, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.TenantItem{}, ErrNotFound
	}

	switch kind {
	case KindChannelNumber:
		return r.repo.FindByChannelNumber(ctx, value)
	case KindBotID:
		return r.repo.FindByBotID(ctx, value)
	default:
		return model.TenantItem{}, errors.New("tenant resolver: unknown identifier kind " + string(kind))
	}
}

// AuthenticateAPIKey resolves the tenant behind a widget API key.
func (r *Resolver) AuthenticateAPIKey(ctx context.Context, apiKey string) (model.TenantItem, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return model.TenantItem{}, ErrNotFound
	}
	return r.repo.FindByAPIKey(ctx, apiKey)
}
