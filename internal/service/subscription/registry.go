package subscription

import (
	"context"
	"errors"
	"sort"
	"strings"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"
)

// ErrNoRoute is returned when a function call has no configured route.
// Unlike event fan-out, where zero subscriptions is a no-op, the function
// caller is blocked waiting on a reply, so this is caller-visible.
var ErrNoRoute = errors.New("subscription registry: no function route configured")

// Registry is the read surface of the subscription store plus the
// delivery-statistics counters. Subscriptions themselves are created and
// edited by tenant configuration, outside this core.
type Registry struct {
	repo Repository
}

func New(db *database.Database) *Registry {
	return &Registry{repo: NewDynamoRepository(db)}
}

func NewWithRepository(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// ActiveEventSubscriptions returns every active subscription for the
// (tenant, eventType) pair. An empty result is not an error.
func (g *Registry) ActiveEventSubscriptions(ctx context.Context, tenantID, eventType string) ([]model.SubscriptionItem, error) {
	subs, err := g.repo.ListByTarget(ctx, tenantID, model.SubscriptionKindEvent, strings.TrimSpace(eventType))
	if err != nil {
		return nil, err
	}
	return filterActive(subs), nil
}

// FunctionRoute returns the single active route for (tenant, functionName).
func (g *Registry) FunctionRoute(ctx context.Context, tenantID, functionName string) (model.SubscriptionItem, error) {
	subs, err := g.repo.ListByTarget(ctx, tenantID, model.SubscriptionKindFunction, strings.TrimSpace(functionName))
	if err != nil {
		return model.SubscriptionItem{}, err
	}
	active := filterActive(subs)
	if len(active) == 0 {
		return model.SubscriptionItem{}, ErrNoRoute
	}
	return active[0], nil
}

func (g *Registry) RecordDispatch(ctx context.Context, subscriptionID string, success bool) error {
	return g.repo.RecordDispatch(ctx, subscriptionID, success)
}

// Stats lists delivery counters for every subscription of the tenant,
// ordered by target for stable dashboard output.
func (g *Registry) Stats(ctx context.Context, tenantID string) ([]model.SubscriptionItem, error) {
	subs, err := g.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].TargetKey < subs[j].TargetKey
	})
	return subs, nil
}

// OutboundAuth resolves the bearer secret for an outbound call. This is
// the store-backed default of the dispatch credential interface; callers
// never cache the value.
func (g *Registry) OutboundAuth(ctx context.Context, subscriptionID string) (string, error) {
	sub, err := g.repo.Get(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	return sub.AuthToken, nil
}

func filterActive(subs []model.SubscriptionItem) []model.SubscriptionItem {
	active := subs[:0]
	for _, sub := range subs {
		if sub.Active {
			active = append(active, sub)
		}
	}
	return active
}
