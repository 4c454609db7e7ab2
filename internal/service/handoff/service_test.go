package handoff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
)

type memoryRepository struct {
	mu        sync.Mutex
	sessions  map[string]model.HandoffSessionItem
	chatLocks map[string]string
	agents    map[string]model.AgentItem
	messages  map[string]model.HandoffMessageItem
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		sessions:  make(map[string]model.HandoffSessionItem),
		chatLocks: make(map[string]string),
		agents:    make(map[string]model.AgentItem),
		messages:  make(map[string]model.HandoffMessageItem),
	}
}

func messageKey(handoffID string, seq int64) string {
	return fmt.Sprintf("%s#%d", handoffID, seq)
}

func (m *memoryRepository) CreateSession(_ context.Context, session model.HandoffSessionItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.PK]; ok {
		return ErrSessionExists
	}
	lockKey := model.ChatLockPK(session.TenantID, session.ChatID)
	if _, ok := m.chatLocks[lockKey]; ok {
		return ErrChatOpen
	}
	m.sessions[session.PK] = session
	m.chatLocks[lockKey] = session.HandoffID
	return nil
}

func (m *memoryRepository) GetSession(_ context.Context, tenantID, handoffID string) (model.HandoffSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok {
		return model.HandoffSessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *memoryRepository) FindOpenSessionByChat(_ context.Context, tenantID, chatID string) (model.HandoffSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handoffID, ok := m.chatLocks[model.ChatLockPK(tenantID, chatID)]
	if !ok {
		return model.HandoffSessionItem{}, ErrNotFound
	}
	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok {
		return model.HandoffSessionItem{}, ErrNotFound
	}
	return session, nil
}

func (m *memoryRepository) ListSessionsByTenant(_ context.Context, tenantID string, status model.HandoffStatus) ([]model.HandoffSessionItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HandoffSessionItem
	for _, session := range m.sessions {
		if session.TenantID != tenantID {
			continue
		}
		if status != "" && session.Status != status {
			continue
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt < out[j].RequestedAt })
	return out, nil
}

func (m *memoryRepository) ClaimSession(_ context.Context, tenantID, handoffID, agentID, pickedUpAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok || session.Status != model.HandoffStatusPending {
		return ErrSessionNotPending
	}
	agent, ok := m.agents[model.AgentPK(tenantID, agentID)]
	if !ok || agent.Status == model.AgentStatusOffline || agent.ActiveSessions >= agent.MaxSessions {
		return ErrAgentUnavailable
	}

	session.Status = model.HandoffStatusActive
	session.AssignedAgentID = agentID
	session.PickedUpAt = pickedUpAt
	m.sessions[session.PK] = session

	agent.ActiveSessions++
	m.agents[agent.PK] = agent
	return nil
}

func (m *memoryRepository) ResolvePendingSession(_ context.Context, tenantID, handoffID, chatID, resolvedBy, resolvedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok || session.Status != model.HandoffStatusPending {
		return ErrSessionNotPending
	}
	session.Status = model.HandoffStatusResolved
	session.ResolvedBy = resolvedBy
	session.ResolvedAt = resolvedAt
	m.sessions[session.PK] = session
	delete(m.chatLocks, model.ChatLockPK(tenantID, chatID))
	return nil
}

func (m *memoryRepository) ResolveActiveSession(_ context.Context, tenantID, handoffID, chatID, agentID, resolvedBy, resolvedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok || session.Status != model.HandoffStatusActive || session.AssignedAgentID != agentID {
		return ErrSessionNotActive
	}
	agent, ok := m.agents[model.AgentPK(tenantID, agentID)]
	if !ok || agent.ActiveSessions <= 0 {
		return ErrSessionNotActive
	}

	session.Status = model.HandoffStatusResolved
	session.ResolvedBy = resolvedBy
	session.ResolvedAt = resolvedAt
	m.sessions[session.PK] = session
	delete(m.chatLocks, model.ChatLockPK(tenantID, chatID))

	agent.ActiveSessions--
	m.agents[agent.PK] = agent
	return nil
}

func (m *memoryRepository) NextMessageSeq(_ context.Context, tenantID, handoffID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[model.HandoffPK(tenantID, handoffID)]
	if !ok || session.Status != model.HandoffStatusActive {
		return 0, ErrSessionNotActive
	}
	session.MessageSeq++
	m.sessions[session.PK] = session
	return session.MessageSeq, nil
}

func (m *memoryRepository) PutMessage(_ context.Context, message model.HandoffMessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[messageKey(message.HandoffID, message.Seq)] = message
	return nil
}

func (m *memoryRepository) ListMessagesSince(_ context.Context, handoffID string, afterSeq int64) ([]model.HandoffMessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HandoffMessageItem
	for _, message := range m.messages {
		if message.HandoffID == handoffID && message.Seq > afterSeq {
			out = append(out, message)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memoryRepository) GetAgent(_ context.Context, tenantID, agentID string) (model.AgentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[model.AgentPK(tenantID, agentID)]
	if !ok {
		return model.AgentItem{}, ErrNotFound
	}
	return agent, nil
}

func (m *memoryRepository) TouchAgent(_ context.Context, tenantID, agentID string, status model.AgentStatus, lastSeenAt string) (model.AgentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[model.AgentPK(tenantID, agentID)]
	if !ok {
		return model.AgentItem{}, ErrNotFound
	}
	agent.Status = status
	agent.LastSeenAt = lastSeenAt
	m.agents[agent.PK] = agent
	return agent, nil
}

func (m *memoryRepository) addAgent(tenantID, agentID string, maxSessions int, status model.AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := model.AgentPK(tenantID, agentID)
	m.agents[pk] = model.AgentItem{
		PK:          pk,
		TenantID:    tenantID,
		AgentID:     agentID,
		Status:      status,
		MaxSessions: maxSessions,
	}
}

func (m *memoryRepository) agentSnapshot(tenantID, agentID string) model.AgentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agents[model.AgentPK(tenantID, agentID)]
}

func newTestService(repo Repository) *Service {
	return NewWithConfig(Config{
		Repository:  repo,
		TokenSecret: "test-secret",
		Now:         func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func errorCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *handoff.Error, got %v", err)
	}
	return svcErr.Code
}

func TestCreateIsIdempotentPerChat(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.Handoff.HandoffID != second.Handoff.HandoffID {
		t.Fatalf("expected same session for open chat, got %s and %s", first.Handoff.HandoffID, second.Handoff.HandoffID)
	}

	// A different chat gets its own session.
	other, err := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-2"})
	if err != nil {
		t.Fatalf("create other chat: %v", err)
	}
	if other.Handoff.HandoffID == first.Handoff.HandoffID {
		t.Fatal("expected a new session for a different chat")
	}
}

func TestConcurrentCreatesShareOneSession(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	const creators = 16
	var wg sync.WaitGroup
	responses := make([]*dto.CreateHandoffResponse, creators)
	errs := make([]error, creators)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
		}(i)
	}
	wg.Wait()

	first := ""
	for i := 0; i < creators; i++ {
		if errs[i] != nil {
			t.Fatalf("creator %d: %v", i, errs[i])
		}
		if first == "" {
			first = responses[i].Handoff.HandoffID
		}
		if responses[i].Handoff.HandoffID != first {
			t.Fatalf("creator %d got session %s, want %s", i, responses[i].Handoff.HandoffID, first)
		}
	}

	all, err := svc.List(ctx, "tenant-1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Handoffs) != 1 {
		t.Fatalf("expected one open session for the chat, got %d", len(all.Handoffs))
	}

	// Once resolved, the chat can open a fresh session.
	if _, err := svc.Resolve(ctx, "tenant-1", first, "operator"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fresh, err := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("create after resolve: %v", err)
	}
	if fresh.Handoff.HandoffID == first {
		t.Fatal("expected a new session after the old one resolved")
	}
}

func TestCreateRequiresChatID(t *testing.T) {
	svc := newTestService(newMemoryRepository())
	_, err := svc.Create(context.Background(), "tenant-1", dto.CreateHandoffRequest{})
	if code := errorCode(t, err); code != ErrorCodeValidation {
		t.Fatalf("expected validation error, got %s", code)
	}
}

func TestClaimHasExactlyOneWinner(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	handoffID := created.Handoff.HandoffID

	const claimers = 16
	for i := 0; i < claimers; i++ {
		repo.addAgent("tenant-1", fmt.Sprintf("agent-%d", i), 5, model.AgentStatusAvailable)
	}

	var wg sync.WaitGroup
	results := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Claim(ctx, "tenant-1", handoffID, fmt.Sprintf("agent-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		if err == nil {
			winners++
			agent := repo.agentSnapshot("tenant-1", fmt.Sprintf("agent-%d", i))
			if agent.ActiveSessions != 1 {
				t.Fatalf("winner should hold exactly one session, has %d", agent.ActiveSessions)
			}
			continue
		}
		if code := errorCode(t, err); code != ErrorCodeAlreadyClaimed {
			t.Fatalf("loser %d: expected already_claimed, got %s", i, code)
		}
		if agent := repo.agentSnapshot("tenant-1", fmt.Sprintf("agent-%d", i)); agent.ActiveSessions != 0 {
			t.Fatalf("loser %d should hold no sessions, has %d", i, agent.ActiveSessions)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestClaimRejectsAgentAtCapacity(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 1, model.AgentStatusAvailable)

	first, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	second, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-2"})

	if _, err := svc.Claim(ctx, "tenant-1", first.Handoff.HandoffID, "agent-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.Claim(ctx, "tenant-1", second.Handoff.HandoffID, "agent-1")
	if code := errorCode(t, err); code != ErrorCodeAgentCapacity {
		t.Fatalf("expected capacity rejection, got %s", code)
	}
	if repo.agentSnapshot("tenant-1", "agent-1").ActiveSessions != 1 {
		t.Fatal("failed claim must not change the agent's session count")
	}

	// The rejected session stays pending and claimable by someone else.
	repo.addAgent("tenant-1", "agent-2", 1, model.AgentStatusAvailable)
	if _, err := svc.Claim(ctx, "tenant-1", second.Handoff.HandoffID, "agent-2"); err != nil {
		t.Fatalf("claim by second agent: %v", err)
	}
}

func TestClaimRejectsOfflineAgent(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 5, model.AgentStatusOffline)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})

	_, err := svc.Claim(ctx, "tenant-1", created.Handoff.HandoffID, "agent-1")
	if code := errorCode(t, err); code != ErrorCodeAgentCapacity {
		t.Fatalf("expected capacity rejection for offline agent, got %s", code)
	}
}

func TestClaimUnknownAgentAndSession(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})

	_, err := svc.Claim(ctx, "tenant-1", created.Handoff.HandoffID, "ghost")
	if code := errorCode(t, err); code != ErrorCodeAgentNotFound {
		t.Fatalf("expected agent_not_found, got %s", code)
	}

	repo.addAgent("tenant-1", "agent-1", 5, model.AgentStatusAvailable)
	_, err = svc.Claim(ctx, "tenant-1", "missing-handoff", "agent-1")
	if code := errorCode(t, err); code != ErrorCodeNotFound {
		t.Fatalf("expected handoff_not_found, got %s", code)
	}
}

func TestResolveActiveReleasesSlotExactlyOnce(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	if _, err := svc.Claim(ctx, "tenant-1", created.Handoff.HandoffID, "agent-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	const resolvers = 8
	var wg sync.WaitGroup
	results := make([]error, resolvers)
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Resolve(ctx, "tenant-1", created.Handoff.HandoffID, "operator")
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("resolver %d: %v", i, err)
		}
	}
	if got := repo.agentSnapshot("tenant-1", "agent-1").ActiveSessions; got != 0 {
		t.Fatalf("slot must be released exactly once, activeSessions = %d", got)
	}
}

func TestResolvePendingWithdrawsWithoutCounter(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})

	resolved, err := svc.Resolve(ctx, "tenant-1", created.Handoff.HandoffID, "user")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if resolved.Handoff.Status != string(model.HandoffStatusResolved) {
		t.Fatalf("expected resolved, got %s", resolved.Handoff.Status)
	}
	if got := repo.agentSnapshot("tenant-1", "agent-1").ActiveSessions; got != 0 {
		t.Fatalf("withdrawal must not touch agent counters, activeSessions = %d", got)
	}

	// The withdrawn session can no longer be claimed.
	_, err = svc.Claim(ctx, "tenant-1", created.Handoff.HandoffID, "agent-1")
	if code := errorCode(t, err); code != ErrorCodeClosed {
		t.Fatalf("expected handoff_closed, got %s", code)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	svc.Claim(ctx, "tenant-1", created.Handoff.HandoffID, "agent-1")

	first, err := svc.Resolve(ctx, "tenant-1", created.Handoff.HandoffID, "agent-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := svc.Resolve(ctx, "tenant-1", created.Handoff.HandoffID, "someone-else")
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if second.Handoff.ResolvedAt != first.Handoff.ResolvedAt {
		t.Fatal("repeat resolve must return the stored outcome unchanged")
	}
}

func TestPostMessageRequiresActiveSession(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	handoffID := created.Handoff.HandoffID

	_, err := svc.PostMessage(ctx, "tenant-1", handoffID, model.SenderTypeUser, "", "anyone there?")
	if code := errorCode(t, err); code != ErrorCodeNotActive {
		t.Fatalf("pending session: expected handoff_not_active, got %s", code)
	}

	svc.Claim(ctx, "tenant-1", handoffID, "agent-1")
	if _, err := svc.PostMessage(ctx, "tenant-1", handoffID, model.SenderTypeAgent, "agent-1", "hello"); err != nil {
		t.Fatalf("active session: %v", err)
	}

	svc.Resolve(ctx, "tenant-1", handoffID, "agent-1")
	_, err = svc.PostMessage(ctx, "tenant-1", handoffID, model.SenderTypeUser, "", "still there?")
	if code := errorCode(t, err); code != ErrorCodeClosed {
		t.Fatalf("resolved session: expected handoff_closed, got %s", code)
	}
}

func TestRelayCursorSeesEachMessageOnce(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	handoffID := created.Handoff.HandoffID
	svc.Claim(ctx, "tenant-1", handoffID, "agent-1")

	const writers = 4
	const perWriter = 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := svc.PostMessage(ctx, "tenant-1", handoffID, model.SenderTypeAgent, "agent-1", fmt.Sprintf("w%d-%d", w, i)); err != nil {
					t.Errorf("post: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	cursor := int64(0)
	for {
		page, err := svc.ListMessagesSince(ctx, "tenant-1", handoffID, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(page.Messages) == 0 {
			break
		}
		last := cursor
		for _, m := range page.Messages {
			if seen[m.Seq] {
				t.Fatalf("seq %d delivered twice", m.Seq)
			}
			if m.Seq <= last {
				t.Fatalf("seq %d out of order after %d", m.Seq, last)
			}
			seen[m.Seq] = true
			last = m.Seq
		}
		cursor = page.Cursor
	}

	if len(seen) != writers*perWriter {
		t.Fatalf("expected %d messages, saw %d", writers*perWriter, len(seen))
	}
	for seq := int64(1); seq <= int64(writers*perWriter); seq++ {
		if !seen[seq] {
			t.Fatalf("seq %d missing from relay", seq)
		}
	}
}

func TestListMessagesOrdersBySeqRegardlessOfStoreOrder(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	handoffID := created.Handoff.HandoffID
	svc.Claim(ctx, "tenant-1", handoffID, "agent-1")

	// Store later seqs first; the poll must still return seq order with
	// nothing skipped.
	for _, seq := range []int64{3, 1, 2} {
		repo.PutMessage(ctx, model.HandoffMessageItem{
			MessageID:  fmt.Sprintf("m-%d", seq),
			HandoffID:  handoffID,
			TenantID:   "tenant-1",
			Seq:        seq,
			SenderType: model.SenderTypeAgent,
			Content:    fmt.Sprintf("msg %d", seq),
		})
	}

	page, err := svc.ListMessagesSince(ctx, "tenant-1", handoffID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(page.Messages))
	}
	for i, m := range page.Messages {
		if m.Seq != int64(i+1) {
			t.Fatalf("position %d has seq %d", i, m.Seq)
		}
	}
	if page.Cursor != 3 {
		t.Fatalf("cursor = %d, want 3", page.Cursor)
	}

	// A retried store of an existing seq replaces its message instead of
	// growing the relay.
	repo.PutMessage(ctx, model.HandoffMessageItem{
		MessageID:  "m-2-retry",
		HandoffID:  handoffID,
		TenantID:   "tenant-1",
		Seq:        2,
		SenderType: model.SenderTypeAgent,
		Content:    "msg 2",
	})
	page, err = svc.ListMessagesSince(ctx, "tenant-1", handoffID, 0)
	if err != nil {
		t.Fatalf("list after retry: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Fatalf("retried seq must not duplicate, got %d messages", len(page.Messages))
	}
}

func TestWidgetTokenFlow(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	created, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	handoffID := created.Handoff.HandoffID
	token := created.HandoffToken

	status, err := svc.Status(ctx, "tenant-1", handoffID, token)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != string(model.HandoffStatusPending) {
		t.Fatalf("expected pending, got %s", status.Status)
	}

	// Token for one handoff must not open another.
	other, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-2"})
	_, err = svc.Status(ctx, "tenant-1", other.Handoff.HandoffID, token)
	if code := errorCode(t, err); code != ErrorCodeInvalidToken {
		t.Fatalf("expected invalid_handoff_token, got %s", code)
	}

	svc.Claim(ctx, "tenant-1", handoffID, "agent-1")
	if _, err := svc.PostMessageByToken(ctx, "tenant-1", handoffID, token, "hi"); err != nil {
		t.Fatalf("post by token: %v", err)
	}
	page, err := svc.ListMessagesByToken(ctx, "tenant-1", handoffID, token, 0)
	if err != nil {
		t.Fatalf("list by token: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(page.Messages))
	}

	if _, err := svc.ResolveByToken(ctx, "tenant-1", handoffID, token); err != nil {
		t.Fatalf("resolve by token: %v", err)
	}
	if got := repo.agentSnapshot("tenant-1", "agent-1").ActiveSessions; got != 0 {
		t.Fatalf("widget resolve must release the agent slot, activeSessions = %d", got)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusAvailable)
	a, _ := svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-1"})
	svc.Create(ctx, "tenant-1", dto.CreateHandoffRequest{ChatID: "chat-2"})
	svc.Claim(ctx, "tenant-1", a.Handoff.HandoffID, "agent-1")

	pending, err := svc.List(ctx, "tenant-1", "pending")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending.Handoffs) != 1 {
		t.Fatalf("expected one pending, got %d", len(pending.Handoffs))
	}

	all, err := svc.List(ctx, "tenant-1", "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Handoffs) != 2 {
		t.Fatalf("expected two sessions, got %d", len(all.Handoffs))
	}

	if _, err := svc.List(ctx, "tenant-1", "bogus"); err == nil {
		t.Fatal("expected validation error for unknown status")
	}
}

func TestAgentPing(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	repo.addAgent("tenant-1", "agent-1", 3, model.AgentStatusOffline)

	agent, err := svc.Ping(ctx, "tenant-1", "agent-1", "")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if agent.Status != string(model.AgentStatusAvailable) {
		t.Fatalf("ping without status should mark available, got %s", agent.Status)
	}

	agent, err = svc.Ping(ctx, "tenant-1", "agent-1", "busy")
	if err != nil {
		t.Fatalf("ping busy: %v", err)
	}
	if agent.Status != string(model.AgentStatusBusy) {
		t.Fatalf("expected busy, got %s", agent.Status)
	}

	_, err = svc.Ping(ctx, "tenant-1", "ghost", "")
	if code := errorCode(t, err); code != ErrorCodeAgentNotFound {
		t.Fatalf("expected agent_not_found, got %s", code)
	}
}
