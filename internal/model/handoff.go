package model

import "fmt"

type HandoffStatus string

const (
	HandoffStatusPending  HandoffStatus = "pending"
	HandoffStatusActive   HandoffStatus = "active"
	HandoffStatusResolved HandoffStatus = "resolved"
)

type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
)

type SenderType string

const (
	SenderTypeUser   SenderType = "user"
	SenderTypeAgent  SenderType = "agent"
	SenderTypeSystem SenderType = "system"
)

func HandoffPK(tenantID, handoffID string) string {
	return fmt.Sprintf("%s#%s", tenantID, handoffID)
}

func AgentPK(tenantID, agentID string) string {
	return fmt.Sprintf("%s#%s", tenantID, agentID)
}

// ChatLockPK keys the open-session lock on the chat, so one chat can hold
// at most one lock however many sessions existed for it over time.
func ChatLockPK(tenantID, chatID string) string {
	return fmt.Sprintf("%s#%s", tenantID, chatID)
}

type HandoffSessionItem struct {
	PK              string        `dynamodbav:"pk"`
	HandoffID       string        `dynamodbav:"handoffId"`
	TenantID        string        `dynamodbav:"tenantId"`
	ChatID          string        `dynamodbav:"chatId"`
	Status          HandoffStatus `dynamodbav:"status"`
	AssignedAgentID string        `dynamodbav:"assignedAgentId,omitempty"`
	HistorySnapshot string        `dynamodbav:"historySnapshot,omitempty"`
	MessageSeq      int64         `dynamodbav:"messageSeq"`
	RequestedAt     string        `dynamodbav:"requestedAt"`
	PickedUpAt      string        `dynamodbav:"pickedUpAt,omitempty"`
	ResolvedAt      string        `dynamodbav:"resolvedAt,omitempty"`
	ResolvedBy      string        `dynamodbav:"resolvedBy,omitempty"`
}

type AgentItem struct {
	PK             string      `dynamodbav:"pk"`
	TenantID       string      `dynamodbav:"tenantId"`
	AgentID        string      `dynamodbav:"agentId"`
	Name           string      `dynamodbav:"name,omitempty"`
	Status         AgentStatus `dynamodbav:"status"`
	ActiveSessions int         `dynamodbav:"activeSessions"`
	MaxSessions    int         `dynamodbav:"maxSessions"`
	LastSeenAt     string      `dynamodbav:"lastSeenAt,omitempty"`
}

// ChatLockItem marks a chat as having an open session. It is created in
// the same transaction as the session and deleted when it resolves.
type ChatLockItem struct {
	PK        string `dynamodbav:"pk"`
	TenantID  string `dynamodbav:"tenantId"`
	ChatID    string `dynamodbav:"chatId"`
	HandoffID string `dynamodbav:"handoffId"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// HandoffMessageItem keys on handoffId with seq as the numeric sort key,
// so the base table serves cursor reads in append order.
type HandoffMessageItem struct {
	MessageID  string     `dynamodbav:"messageId"`
	HandoffID  string     `dynamodbav:"handoffId"`
	TenantID   string     `dynamodbav:"tenantId"`
	Seq        int64      `dynamodbav:"seq"`
	SenderType SenderType `dynamodbav:"senderType"`
	SenderID   string     `dynamodbav:"senderId,omitempty"`
	Content    string     `dynamodbav:"content"`
	CreatedAt  string     `dynamodbav:"createdAt"`
}
