package dto

import "encoding/json"

// ChannelEventRequest is the envelope posted by the messaging provider.
// The channel number identifies the tenant; the event type routes the
// fan-out and is required.
type ChannelEventRequest struct {
	ChannelNumber string          `json:"channelNumber"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
}

// BotEventRequest is the envelope posted by the automated-agent provider.
type BotEventRequest struct {
	BotID     string          `json:"botId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

type EventAcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	TenantID string `json:"tenantId"`
}

type FunctionCallRequest struct {
	BotID   string          `json:"botId"`
	Payload json.RawMessage `json:"payload"`
}
