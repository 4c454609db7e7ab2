package handoff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("handoff repository: not found")

	// ErrSessionNotPending means the claim lost: the session was taken or
	// resolved between the caller's read and the conditional write.
	ErrSessionNotPending = errors.New("handoff repository: session not pending")

	// ErrAgentUnavailable means the agent-side claim condition failed:
	// offline, missing, or already at maxSessions.
	ErrAgentUnavailable = errors.New("handoff repository: agent unavailable")

	// ErrSessionNotActive gates the message relay: appends are only valid
	// while an operator holds the session.
	ErrSessionNotActive = errors.New("handoff repository: session not active")

	// ErrSessionExists is returned by CreateSession when the primary key
	// is already taken.
	ErrSessionExists = errors.New("handoff repository: session exists")

	// ErrChatOpen means the chat already holds an open session; the
	// caller reads it back through the chat lock instead of creating.
	ErrChatOpen = errors.New("handoff repository: chat has an open session")
)

type Repository interface {
	// CreateSession writes the session and the chat's open-session lock
	// in one transaction, so concurrent creates for one chat have exactly
	// one winner. The loser gets ErrChatOpen.
	CreateSession(ctx context.Context, session model.HandoffSessionItem) error
	GetSession(ctx context.Context, tenantID, handoffID string) (model.HandoffSessionItem, error)

	// FindOpenSessionByChat reads the chat lock with a consistent read
	// and returns the open session it points at.
	FindOpenSessionByChat(ctx context.Context, tenantID, chatID string) (model.HandoffSessionItem, error)
	ListSessionsByTenant(ctx context.Context, tenantID string, status model.HandoffStatus) ([]model.HandoffSessionItem, error)

	// ClaimSession atomically transitions pending->active and reserves one
	// slot on the agent. Both conditions and both writes are one
	// transaction; exactly one concurrent claimer can succeed.
	ClaimSession(ctx context.Context, tenantID, handoffID, agentID, pickedUpAt string) error

	// ResolvePendingSession withdraws a never-claimed session and drops
	// the chat lock. No agent counter is touched.
	ResolvePendingSession(ctx context.Context, tenantID, handoffID, chatID, resolvedBy, resolvedAt string) error

	// ResolveActiveSession transitions active->resolved, releases the
	// assigned agent's slot and drops the chat lock in the same
	// transaction, so the release happens exactly once however many
	// resolvers race.
	ResolveActiveSession(ctx context.Context, tenantID, handoffID, chatID, agentID, resolvedBy, resolvedAt string) error

	// NextMessageSeq increments the session's relay sequence counter,
	// conditioned on the session being active, and returns the new value.
	NextMessageSeq(ctx context.Context, tenantID, handoffID string) (int64, error)
	PutMessage(ctx context.Context, message model.HandoffMessageItem) error
	ListMessagesSince(ctx context.Context, handoffID string, afterSeq int64) ([]model.HandoffMessageItem, error)

	GetAgent(ctx context.Context, tenantID, agentID string) (model.AgentItem, error)
	TouchAgent(ctx context.Context, tenantID, agentID string, status model.AgentStatus, lastSeenAt string) (model.AgentItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func sessionKey(tenantID, handoffID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: model.HandoffPK(tenantID, handoffID)},
	}
}

func agentKey(tenantID, agentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: model.AgentPK(tenantID, agentID)},
	}
}

func chatLockKey(tenantID, chatID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: model.ChatLockPK(tenantID, chatID)},
	}
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.HandoffSessionItem) error {
	lock := model.ChatLockItem{
		PK:        model.ChatLockPK(session.TenantID, session.ChatID),
		TenantID:  session.TenantID,
		ChatID:    session.ChatID,
		HandoffID: session.HandoffID,
		CreatedAt: session.RequestedAt,
	}
	err := r.db.Client.TransactWrite(ctx, []database.TransactItem{
		{Put: &database.TransactPut{
			TableName:     model.HandoffSessionsTable,
			Item:          session,
			ConditionExpr: "attribute_not_exists(pk)",
		}},
		{Put: &database.TransactPut{
			TableName:     model.HandoffChatLocksTable,
			Item:          lock,
			ConditionExpr: "attribute_not_exists(pk)",
		}},
	})
	if err == nil {
		return nil
	}

	var cancelled *database.TransactCancelled
	if errors.As(err, &cancelled) {
		if cancelled.ConditionFailedAt(1) {
			return ErrChatOpen
		}
		if cancelled.ConditionFailedAt(0) {
			return ErrSessionExists
		}
	}
	return fmt.Errorf("create session %s: %w", session.HandoffID, err)
}

func (r *DynamoRepository) GetSession(ctx context.Context, tenantID, handoffID string) (model.HandoffSessionItem, error) {
	var session model.HandoffSessionItem
	err := r.db.Client.GetItem(ctx, model.HandoffSessionsTable, sessionKey(tenantID, handoffID), &session)
	if err != nil {
		if isNotFound(err) {
			return model.HandoffSessionItem{}, ErrNotFound
		}
		return model.HandoffSessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) FindOpenSessionByChat(ctx context.Context, tenantID, chatID string) (model.HandoffSessionItem, error) {
	var lock model.ChatLockItem
	err := r.db.Client.GetItemConsistent(ctx, model.HandoffChatLocksTable, chatLockKey(tenantID, chatID), &lock)
	if err != nil {
		if isNotFound(err) {
			return model.HandoffSessionItem{}, ErrNotFound
		}
		return model.HandoffSessionItem{}, err
	}

	var session model.HandoffSessionItem
	err = r.db.Client.GetItemConsistent(ctx, model.HandoffSessionsTable, sessionKey(tenantID, lock.HandoffID), &session)
	if err != nil {
		if isNotFound(err) {
			return model.HandoffSessionItem{}, ErrNotFound
		}
		return model.HandoffSessionItem{}, err
	}
	if session.Status != model.HandoffStatusPending && session.Status != model.HandoffStatusActive {
		return model.HandoffSessionItem{}, ErrNotFound
	}
	return session, nil
}

func (r *DynamoRepository) ListSessionsByTenant(ctx context.Context, tenantID string, status model.HandoffStatus) ([]model.HandoffSessionItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.HandoffSessionsTable,
		aws.String(model.HandoffsByTenantIndex),
		"tenantId = :tenantId",
		map[string]types.AttributeValue{
			":tenantId": &types.AttributeValueMemberS{Value: tenantID},
		},
	)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.HandoffSessionItem, 0, len(items))
	for _, item := range items {
		var session model.HandoffSessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		if status != "" && session.Status != status {
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].RequestedAt < sessions[j].RequestedAt
	})
	return sessions, nil
}

func (r *DynamoRepository) ClaimSession(ctx context.Context, tenantID, handoffID, agentID, pickedUpAt string) error {
	err := r.db.Client.TransactWriteUpdates(ctx, []database.TransactUpdate{
		{
			TableName:     model.HandoffSessionsTable,
			Key:           sessionKey(tenantID, handoffID),
			UpdateExpr:    "SET #status = :active, assignedAgentId = :agentId, pickedUpAt = :pickedUpAt",
			ConditionExpr: "attribute_exists(pk) AND #status = :pending",
			ExprAttrValues: map[string]types.AttributeValue{
				":active":     &types.AttributeValueMemberS{Value: string(model.HandoffStatusActive)},
				":pending":    &types.AttributeValueMemberS{Value: string(model.HandoffStatusPending)},
				":agentId":    &types.AttributeValueMemberS{Value: agentID},
				":pickedUpAt": &types.AttributeValueMemberS{Value: pickedUpAt},
			},
			ExprAttrNames: map[string]string{"#status": "status"},
		},
		{
			TableName:     model.AgentsTable,
			Key:           agentKey(tenantID, agentID),
			UpdateExpr:    "ADD activeSessions :one",
			ConditionExpr: "attribute_exists(pk) AND activeSessions < maxSessions AND #status <> :offline",
			ExprAttrValues: map[string]types.AttributeValue{
				":one":     &types.AttributeValueMemberN{Value: "1"},
				":offline": &types.AttributeValueMemberS{Value: string(model.AgentStatusOffline)},
			},
			ExprAttrNames: map[string]string{"#status": "status"},
		},
	})
	if err == nil {
		return nil
	}

	var cancelled *database.TransactCancelled
	if errors.As(err, &cancelled) {
		if cancelled.ConditionFailedAt(0) {
			return ErrSessionNotPending
		}
		if cancelled.ConditionFailedAt(1) {
			return ErrAgentUnavailable
		}
	}
	return fmt.Errorf("claim session %s: %w", handoffID, err)
}

func (r *DynamoRepository) ResolvePendingSession(ctx context.Context, tenantID, handoffID, chatID, resolvedBy, resolvedAt string) error {
	err := r.db.Client.TransactWrite(ctx, []database.TransactItem{
		{Update: &database.TransactUpdate{
			TableName:     model.HandoffSessionsTable,
			Key:           sessionKey(tenantID, handoffID),
			UpdateExpr:    "SET #status = :resolved, resolvedAt = :resolvedAt, resolvedBy = :resolvedBy",
			ConditionExpr: "attribute_exists(pk) AND #status = :pending",
			ExprAttrValues: map[string]types.AttributeValue{
				":resolved":   &types.AttributeValueMemberS{Value: string(model.HandoffStatusResolved)},
				":pending":    &types.AttributeValueMemberS{Value: string(model.HandoffStatusPending)},
				":resolvedAt": &types.AttributeValueMemberS{Value: resolvedAt},
				":resolvedBy": &types.AttributeValueMemberS{Value: resolvedBy},
			},
			ExprAttrNames: map[string]string{"#status": "status"},
		}},
		{Delete: &database.TransactDelete{
			TableName: model.HandoffChatLocksTable,
			Key:       chatLockKey(tenantID, chatID),
		}},
	})
	if err == nil {
		return nil
	}

	var cancelled *database.TransactCancelled
	if errors.As(err, &cancelled) {
		return ErrSessionNotPending
	}
	return fmt.Errorf("withdraw session %s: %w", handoffID, err)
}

func (r *DynamoRepository) ResolveActiveSession(ctx context.Context, tenantID, handoffID, chatID, agentID, resolvedBy, resolvedAt string) error {
	err := r.db.Client.TransactWrite(ctx, []database.TransactItem{
		{Update: &database.TransactUpdate{
			TableName:     model.HandoffSessionsTable,
			Key:           sessionKey(tenantID, handoffID),
			UpdateExpr:    "SET #status = :resolved, resolvedAt = :resolvedAt, resolvedBy = :resolvedBy",
			ConditionExpr: "attribute_exists(pk) AND #status = :active AND assignedAgentId = :agentId",
			ExprAttrValues: map[string]types.AttributeValue{
				":resolved":   &types.AttributeValueMemberS{Value: string(model.HandoffStatusResolved)},
				":active":     &types.AttributeValueMemberS{Value: string(model.HandoffStatusActive)},
				":agentId":    &types.AttributeValueMemberS{Value: agentID},
				":resolvedAt": &types.AttributeValueMemberS{Value: resolvedAt},
				":resolvedBy": &types.AttributeValueMemberS{Value: resolvedBy},
			},
			ExprAttrNames: map[string]string{"#status": "status"},
		}},
		{Update: &database.TransactUpdate{
			TableName:     model.AgentsTable,
			Key:           agentKey(tenantID, agentID),
			UpdateExpr:    "ADD activeSessions :minusOne",
			ConditionExpr: "attribute_exists(pk) AND activeSessions > :zero",
			ExprAttrValues: map[string]types.AttributeValue{
				":minusOne": &types.AttributeValueMemberN{Value: "-1"},
				":zero":     &types.AttributeValueMemberN{Value: "0"},
			},
		}},
		{Delete: &database.TransactDelete{
			TableName: model.HandoffChatLocksTable,
			Key:       chatLockKey(tenantID, chatID),
		}},
	})
	if err == nil {
		return nil
	}

	var cancelled *database.TransactCancelled
	if errors.As(err, &cancelled) {
		// Either conditioned side failing means the session is no longer
		// active under this agent; the caller re-reads and treats the race
		// as resolved.
		return ErrSessionNotActive
	}
	return fmt.Errorf("resolve session %s: %w", handoffID, err)
}

func (r *DynamoRepository) NextMessageSeq(ctx context.Context, tenantID, handoffID string) (int64, error) {
	var updated model.HandoffSessionItem
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.HandoffSessionsTable,
		sessionKey(tenantID, handoffID),
		"ADD messageSeq :one",
		"attribute_exists(pk) AND #status = :active",
		map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":active": &types.AttributeValueMemberS{Value: string(model.HandoffStatusActive)},
		},
		map[string]string{"#status": "status"},
		&updated,
	)
	if err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return 0, ErrSessionNotActive
		}
		return 0, err
	}
	return updated.MessageSeq, nil
}

func (r *DynamoRepository) PutMessage(ctx context.Context, message model.HandoffMessageItem) error {
	return r.db.Client.PutItem(ctx, model.HandoffMessagesTable, message)
}

// ListMessagesSince reads the base table through its seq sort key with a
// consistent read, so a message stored before the poll began is never
// missing from the page.
func (r *DynamoRepository) ListMessagesSince(ctx context.Context, handoffID string, afterSeq int64) ([]model.HandoffMessageItem, error) {
	items, err := r.db.Client.QueryItemsConsistent(
		ctx,
		model.HandoffMessagesTable,
		"handoffId = :handoffId AND seq > :afterSeq",
		map[string]types.AttributeValue{
			":handoffId": &types.AttributeValueMemberS{Value: handoffID},
			":afterSeq":  &types.AttributeValueMemberN{Value: strconv.FormatInt(afterSeq, 10)},
		},
	)
	if err != nil {
		return nil, err
	}

	messages := make([]model.HandoffMessageItem, 0, len(items))
	for _, item := range items {
		var message model.HandoffMessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (r *DynamoRepository) GetAgent(ctx context.Context, tenantID, agentID string) (model.AgentItem, error) {
	var agent model.AgentItem
	err := r.db.Client.GetItem(ctx, model.AgentsTable, agentKey(tenantID, agentID), &agent)
	if err != nil {
		if isNotFound(err) {
			return model.AgentItem{}, ErrNotFound
		}
		return model.AgentItem{}, err
	}
	return agent, nil
}

func (r *DynamoRepository) TouchAgent(ctx context.Context, tenantID, agentID string, status model.AgentStatus, lastSeenAt string) (model.AgentItem, error) {
	var updated model.AgentItem
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.AgentsTable,
		agentKey(tenantID, agentID),
		"SET #status = :status, lastSeenAt = :lastSeenAt",
		"attribute_exists(pk)",
		map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(status)},
			":lastSeenAt": &types.AttributeValueMemberS{Value: lastSeenAt},
		},
		map[string]string{"#status": "status"},
		&updated,
	)
	if err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return model.AgentItem{}, ErrNotFound
		}
		return model.AgentItem{}, err
	}
	return updated, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
