package dto

type SubscriptionStats struct {
	SubscriptionID string `json:"subscriptionId"`
	Kind           string `json:"kind"`
	TargetName     string `json:"targetName"`
	EndpointURL    string `json:"endpointUrl"`
	Active         bool   `json:"active"`
	TotalCalls     int64  `json:"totalCalls"`
	SuccessCalls   int64  `json:"successCalls"`
}

type SubscriptionStatsResponse struct {
	Subscriptions []SubscriptionStats `json:"subscriptions"`
}
