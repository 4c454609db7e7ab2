package dto

type CreateHandoffRequest struct {
	ChatID          string `json:"chatId"`
	HistorySnapshot string `json:"historySnapshot,omitempty"`
}

type CreateHandoffResponse struct {
	Handoff      HandoffMetadata `json:"handoff"`
	HandoffToken string          `json:"handoffToken"`
}

type HandoffMetadata struct {
	HandoffID       string `json:"handoffId"`
	ChatID          string `json:"chatId"`
	Status          string `json:"status"`
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
	RequestedAt     string `json:"requestedAt"`
	PickedUpAt      string `json:"pickedUpAt,omitempty"`
	ResolvedAt      string `json:"resolvedAt,omitempty"`
}

type HandoffStatusResponse struct {
	Status          string `json:"status"`
	AssignedAgentID string `json:"assignedAgentId,omitempty"`
	PickedUpAt      string `json:"pickedUpAt,omitempty"`
	ResolvedAt      string `json:"resolvedAt,omitempty"`
}

type ClaimHandoffRequest struct {
	AgentID string `json:"agentId"`
}

type ClaimHandoffResponse struct {
	Handoff HandoffMetadata `json:"handoff"`
}

type ResolveHandoffRequest struct {
	ResolvedBy   string `json:"resolvedBy,omitempty"`
	HandoffToken string `json:"handoffToken,omitempty"`
}

type ResolveHandoffResponse struct {
	Handoff HandoffMetadata `json:"handoff"`
}

type ListHandoffsResponse struct {
	Handoffs []HandoffMetadata `json:"handoffs"`
}

type PostHandoffMessageRequest struct {
	Content      string `json:"content"`
	HandoffToken string `json:"handoffToken,omitempty"`
}

type HandoffMessageResponse struct {
	MessageID  string `json:"messageId"`
	HandoffID  string `json:"handoffId"`
	Seq        int64  `json:"seq"`
	SenderType string `json:"senderType"`
	SenderID   string `json:"senderId,omitempty"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
}

type ListHandoffMessagesResponse struct {
	Messages []HandoffMessageResponse `json:"messages"`
	Cursor   int64                    `json:"cursor"`
}

type AgentPingRequest struct {
	Status string `json:"status,omitempty"`
}

type AgentResponse struct {
	AgentID        string `json:"agentId"`
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
	MaxSessions    int    `json:"maxSessions"`
	LastSeenAt     string `json:"lastSeenAt,omitempty"`
}
