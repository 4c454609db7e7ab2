package tenant

import (
	"context"
	"errors"
	"testing"

	"chatdesk-backend/internal/model"
	"chatdesk-backend/utils"
)

type memoryRepository struct {
	tenants map[string]model.TenantItem
	apiKeys map[string]string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		tenants: make(map[string]model.TenantItem),
		apiKeys: make(map[string]string),
	}
}

func (m *memoryRepository) GetTenant(_ context.Context, tenantID string) (model.TenantItem, error) {
	tenant, ok := m.tenants[tenantID]
	if !ok {
		return model.TenantItem{}, ErrNotFound
	}
	return tenant, nil
}

func (m *memoryRepository) FindByChannelNumber(_ context.Context, channelNumber string) (model.TenantItem, error) {
	for _, tenant := range m.tenants {
		if tenant.ChannelNumber == channelNumber {
			return tenant, nil
		}
	}
	return model.TenantItem{}, ErrNotFound
}

func (m *memoryRepository) FindByBotID(_ context.Context, botID string) (model.TenantItem, error) {
	for _, tenant := range m.tenants {
		if tenant.BotID == botID {
			return tenant, nil
		}
	}
	return model.TenantItem{}, ErrNotFound
}

func (m *memoryRepository) FindByAPIKey(_ context.Context, apiKey string) (model.TenantItem, error) {
	tenantID, ok := m.apiKeys[apiKey]
	if !ok {
		return model.TenantItem{}, ErrNotFound
	}
	return m.GetTenant(context.Background(), tenantID)
}

func TestResolveByChannelNumberAndBotID(t *testing.T) {
	repo := newMemoryRepository()
	repo.tenants["tenant-1"] = model.TenantItem{
		TenantID:      "tenant-1",
		ChannelNumber: "48100200300",
		BotID:         "bot-abc",
	}
	resolver := NewWithRepository(repo)

	tenant, err := resolver.Resolve(context.Background(), KindChannelNumber, "48100200300")
	if err != nil {
		t.Fatalf("resolve by channel: %v", err)
	}
	if tenant.TenantID != "tenant-1" {
		t.Fatalf("wrong tenant: %s", tenant.TenantID)
	}

	tenant, err = resolver.Resolve(context.Background(), KindBotID, "bot-abc")
	if err != nil {
		t.Fatalf("resolve by bot: %v", err)
	}
	if tenant.TenantID != "tenant-1" {
		t.Fatalf("wrong tenant: %s", tenant.TenantID)
	}
}

func TestResolveUnknownIdentifier(t *testing.T) {
	resolver := NewWithRepository(newMemoryRepository())

	_, err := resolver.Resolve(context.Background(), KindChannelNumber, "0000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = resolver.Resolve(context.Background(), KindBotID, "  ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank identifier should be ErrNotFound, got %v", err)
	}

	_, err = resolver.Resolve(context.Background(), IdentifierKind("mystery"), "x")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown kind should be a distinct error, got %v", err)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	apiKey := utils.GenerateAPIKey()

	repo := newMemoryRepository()
	repo.tenants["tenant-1"] = model.TenantItem{TenantID: "tenant-1"}
	repo.apiKeys[apiKey] = "tenant-1"
	resolver := NewWithRepository(repo)

	tenant, err := resolver.AuthenticateAPIKey(context.Background(), apiKey)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if tenant.TenantID != "tenant-1" {
		t.Fatalf("wrong tenant: %s", tenant.TenantID)
	}

	if _, err := resolver.AuthenticateAPIKey(context.Background(), "chdk_WRONG"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong key, got %v", err)
	}
	if _, err := resolver.AuthenticateAPIKey(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty key, got %v", err)
	}
}
