package model

const (
	TenantsTable          = "Tenants"
	TenantAPIKeysTable    = "TenantAPIKeys"
	SubscriptionsTable    = "Subscriptions"
	HandoffSessionsTable  = "HandoffSessions"
	HandoffChatLocksTable = "HandoffChatLocks"
	AgentsTable           = "Agents"
	HandoffMessagesTable  = "HandoffMessages"
)

// Secondary index names. Tenant resolution and subscription lookups must
// stay O(1) per event, so every inbound identifier has its own GSI.
// Anything a write path later re-reads keys the base table instead; GSI
// replication is eventually consistent.
const (
	TenantsByChannelNumberIndex = "byChannelNumber"
	TenantsByBotIDIndex         = "byBotId"
	TenantAPIKeysByKeyIndex     = "byApiKey"
	SubscriptionsByTargetIndex  = "byTenantTarget"
	HandoffsByTenantIndex       = "byTenant"
)

type TenantItem struct {
	TenantID      string                 `dynamodbav:"tenantId"`
	Name          string                 `dynamodbav:"name"`
	Plan          string                 `dynamodbav:"plan"`
	ChannelNumber string                 `dynamodbav:"channelNumber,omitempty"`
	BotID         string                 `dynamodbav:"botId,omitempty"`
	Settings      map[string]interface{} `dynamodbav:"settings,omitempty"`
	Created       string                 `dynamodbav:"createdAt"`
}

type TenantAPIKeyItem struct {
	TenantID   string `dynamodbav:"tenantId"`
	KeyID      string `dynamodbav:"keyId"`
	APIKey     string `dynamodbav:"apiKey"`
	CreatedAt  string `dynamodbav:"createdAt"`
	LastUsedAt string `dynamodbav:"lastUsedAt,omitempty"`
}

