package subscription

import (
	"context"
	"errors"
	"sort"
	"testing"

	"chatdesk-backend/internal/model"
)

type memoryRepository struct {
	subs map[string]model.SubscriptionItem
}

func newMemoryRepository(subs ...model.SubscriptionItem) *memoryRepository {
	m := &memoryRepository{subs: make(map[string]model.SubscriptionItem)}
	for _, sub := range subs {
		sub.TargetKey = model.SubscriptionTargetKey(sub.Kind, sub.TargetName)
		m.subs[sub.SubscriptionID] = sub
	}
	return m
}

func (m *memoryRepository) Get(_ context.Context, subscriptionID string) (model.SubscriptionItem, error) {
	sub, ok := m.subs[subscriptionID]
	if !ok {
		return model.SubscriptionItem{}, errors.New("item not found in Subscriptions")
	}
	return sub, nil
}

func (m *memoryRepository) ListByTarget(_ context.Context, tenantID string, kind model.SubscriptionKind, name string) ([]model.SubscriptionItem, error) {
	key := model.SubscriptionTargetKey(kind, name)
	var out []model.SubscriptionItem
	for _, sub := range m.subs {
		if sub.TenantID == tenantID && sub.TargetKey == key {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out, nil
}

func (m *memoryRepository) ListByTenant(_ context.Context, tenantID string) ([]model.SubscriptionItem, error) {
	var out []model.SubscriptionItem
	for _, sub := range m.subs {
		if sub.TenantID == tenantID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (m *memoryRepository) RecordDispatch(_ context.Context, subscriptionID string, success bool) error {
	sub, ok := m.subs[subscriptionID]
	if !ok {
		return errors.New("item not found in Subscriptions")
	}
	sub.TotalCalls++
	if success {
		sub.SuccessCalls++
	}
	m.subs[subscriptionID] = sub
	return nil
}

func TestActiveEventSubscriptionsFiltersInactive(t *testing.T) {
	registry := NewWithRepository(newMemoryRepository(
		model.SubscriptionItem{SubscriptionID: "sub-1", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "message.created", Active: true},
		model.SubscriptionItem{SubscriptionID: "sub-2", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "message.created", Active: false},
		model.SubscriptionItem{SubscriptionID: "sub-3", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "handoff.requested", Active: true},
		model.SubscriptionItem{SubscriptionID: "sub-4", TenantID: "tenant-2", Kind: model.SubscriptionKindEvent, TargetName: "message.created", Active: true},
	))

	subs, err := registry.ActiveEventSubscriptions(context.Background(), "tenant-1", "message.created")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].SubscriptionID != "sub-1" {
		t.Fatalf("expected only sub-1, got %+v", subs)
	}

	subs, err = registry.ActiveEventSubscriptions(context.Background(), "tenant-1", "chat.closed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected empty result for unsubscribed event, got %+v", subs)
	}
}

func TestFunctionRoute(t *testing.T) {
	registry := NewWithRepository(newMemoryRepository(
		model.SubscriptionItem{SubscriptionID: "route-1", TenantID: "tenant-1", Kind: model.SubscriptionKindFunction, TargetName: "lookup_order", Active: true, EndpointURL: "https://crm.example/fn"},
		model.SubscriptionItem{SubscriptionID: "route-2", TenantID: "tenant-1", Kind: model.SubscriptionKindFunction, TargetName: "cancel_order", Active: false},
	))

	route, err := registry.FunctionRoute(context.Background(), "tenant-1", "lookup_order")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if route.EndpointURL != "https://crm.example/fn" {
		t.Fatalf("wrong route: %+v", route)
	}

	if _, err := registry.FunctionRoute(context.Background(), "tenant-1", "cancel_order"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("inactive route should be ErrNoRoute, got %v", err)
	}
	if _, err := registry.FunctionRoute(context.Background(), "tenant-1", "missing_fn"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("unknown function should be ErrNoRoute, got %v", err)
	}
}

func TestRecordDispatchAndStats(t *testing.T) {
	registry := NewWithRepository(newMemoryRepository(
		model.SubscriptionItem{SubscriptionID: "sub-b", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "message.created", Active: true},
		model.SubscriptionItem{SubscriptionID: "sub-a", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "handoff.requested", Active: true},
	))

	for i := 0; i < 3; i++ {
		if err := registry.RecordDispatch(context.Background(), "sub-b", i != 0); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	stats, err := registry.Stats(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	if stats[0].TargetName != "handoff.requested" || stats[1].TargetName != "message.created" {
		t.Fatalf("stats not ordered by target: %+v", stats)
	}
	if stats[1].TotalCalls != 3 || stats[1].SuccessCalls != 2 {
		t.Fatalf("counters wrong: total=%d success=%d", stats[1].TotalCalls, stats[1].SuccessCalls)
	}
}

func TestOutboundAuth(t *testing.T) {
	registry := NewWithRepository(newMemoryRepository(
		model.SubscriptionItem{SubscriptionID: "sub-1", TenantID: "tenant-1", Kind: model.SubscriptionKindEvent, TargetName: "message.created", Active: true, AuthToken: "secret-token"},
	))

	token, err := registry.OutboundAuth(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if token != "secret-token" {
		t.Fatalf("wrong token: %q", token)
	}

	if _, err := registry.OutboundAuth(context.Background(), "sub-missing"); err == nil {
		t.Fatal("expected error for unknown subscription")
	}
}
