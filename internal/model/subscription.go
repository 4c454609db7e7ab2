package model

import "fmt"

type SubscriptionKind string

const (
	SubscriptionKindEvent    SubscriptionKind = "event"
	SubscriptionKindFunction SubscriptionKind = "function"
)

// SubscriptionTargetKey builds the byTenantTarget sort key. Event
// subscriptions and function routes share one table, disambiguated by kind.
func SubscriptionTargetKey(kind SubscriptionKind, name string) string {
	return fmt.Sprintf("%s#%s", kind, name)
}

type SubscriptionItem struct {
	SubscriptionID string           `dynamodbav:"subscriptionId"`
	TenantID       string           `dynamodbav:"tenantId"`
	Kind           SubscriptionKind `dynamodbav:"kind"`
	TargetName     string           `dynamodbav:"targetName"`
	TargetKey      string           `dynamodbav:"targetKey"`
	EndpointURL    string           `dynamodbav:"endpointUrl"`
	AuthToken      string           `dynamodbav:"authToken,omitempty"`
	Active         bool             `dynamodbav:"active"`
	TimeoutMs      int              `dynamodbav:"timeoutMs,omitempty"`
	TotalCalls     int64            `dynamodbav:"totalCalls"`
	SuccessCalls   int64            `dynamodbav:"successCalls"`
	CreatedAt      string           `dynamodbav:"createdAt"`
	UpdatedAt      string           `dynamodbav:"updatedAt,omitempty"`
}
