package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/model"
	"chatdesk-backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ErrorCode string

const (
	ErrorCodeNotFound       ErrorCode = "handoff_not_found"
	ErrorCodeAgentNotFound  ErrorCode = "agent_not_found"
	ErrorCodeAlreadyClaimed ErrorCode = "handoff_already_claimed"
	ErrorCodeAgentCapacity  ErrorCode = "agent_at_capacity"
	ErrorCodeNotActive      ErrorCode = "handoff_not_active"
	ErrorCodeClosed         ErrorCode = "handoff_closed"
	ErrorCodeInvalidToken   ErrorCode = "invalid_handoff_token"
	ErrorCodeValidation     ErrorCode = "invalid_request"
	ErrorCodeInternal       ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Notifier pushes lifecycle events to connected operator consoles and
// widgets. A nil notifier disables pushes; callers then rely on polling.
type Notifier interface {
	PublishTenant(tenantID, event string, payload interface{}) error
}

type Config struct {
	Repository  Repository
	TokenSecret string
	Notifier    Notifier
	Logger      *logger.Logger
	Now         func() time.Time
	NewID       func() string
}

type Service struct {
	repo     Repository
	tokens   *TokenSigner
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

func New(db *database.Database, cfg Config) *Service {
	if cfg.Repository == nil {
		cfg.Repository = NewDynamoRepository(db)
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) *Service {
	s := &Service{
		repo:     cfg.Repository,
		tokens:   NewTokenSigner(cfg.TokenSecret),
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if s.log == nil {
		s.log = logger.Global()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// DecodeToken verifies a widget token and returns the tenant and
// handoff it belongs to.
func (s *Service) DecodeToken(token string) (tenantID, handoffID string, err error) {
	tenantID, handoffID, _, err = s.tokens.Decode(token)
	if err != nil {
		return "", "", &Error{Code: ErrorCodeInvalidToken, Message: "handoff token rejected"}
	}
	return tenantID, handoffID, nil
}

// Create opens a handoff session for a chat. Creation is idempotent per
// chat: an open (pending or active) session for the same chatId is
// returned instead of creating a duplicate queue entry.
func (s *Service) Create(ctx context.Context, tenantID string, req dto.CreateHandoffRequest) (*dto.CreateHandoffResponse, error) {
	if req.ChatID == "" {
		return nil, &Error{Code: ErrorCodeValidation, Message: "chatId is required"}
	}

	// Two passes cover the create-vs-create race: a lost chat lock means
	// another request opened the session first, and the re-read through
	// the lock returns it.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.FindOpenSessionByChat(ctx, tenantID, req.ChatID)
		if err == nil {
			return &dto.CreateHandoffResponse{
				Handoff:      sessionMetadata(existing),
				HandoffToken: s.tokens.Sign(tenantID, existing.HandoffID, existing.ChatID),
			}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, &Error{Code: ErrorCodeInternal, Message: "lookup open handoff", Err: err}
		}

		handoffID := s.newID()
		session := model.HandoffSessionItem{
			PK:              model.HandoffPK(tenantID, handoffID),
			HandoffID:       handoffID,
			TenantID:        tenantID,
			ChatID:          req.ChatID,
			Status:          model.HandoffStatusPending,
			HistorySnapshot: req.HistorySnapshot,
			RequestedAt:     s.timestamp(),
		}
		err = s.repo.CreateSession(ctx, session)
		if errors.Is(err, ErrChatOpen) {
			continue
		}
		if err != nil {
			return nil, &Error{Code: ErrorCodeInternal, Message: "create handoff session", Err: err}
		}

		observeLifecycle("requested")
		s.publish(tenantID, "handoff.requested", sessionMetadata(session))
		s.log.Info("handoff requested",
			zap.String("tenant_id", tenantID),
			zap.String("handoff_id", handoffID),
			zap.String("chat_id", req.ChatID),
		)

		return &dto.CreateHandoffResponse{
			Handoff:      sessionMetadata(session),
			HandoffToken: s.tokens.Sign(tenantID, handoffID, req.ChatID),
		}, nil
	}

	return nil, &Error{Code: ErrorCodeInternal, Message: "create handoff: creates kept racing"}
}

// Status serves the widget's poll. The handoff token is the only
// credential on this path.
func (s *Service) Status(ctx context.Context, tenantID, handoffID, token string) (*dto.HandoffStatusResponse, error) {
	if err := s.tokens.Verify(token, tenantID, handoffID); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidToken, Message: "handoff token rejected"}
	}

	session, err := s.getSession(ctx, tenantID, handoffID)
	if err != nil {
		return nil, err
	}
	return &dto.HandoffStatusResponse{
		Status:          string(session.Status),
		AssignedAgentID: session.AssignedAgentID,
		PickedUpAt:      session.PickedUpAt,
		ResolvedAt:      session.ResolvedAt,
	}, nil
}

// Claim assigns a pending session to an agent. The transition and the
// agent's slot reservation commit together or not at all, so concurrent
// claims on one session produce exactly one winner.
func (s *Service) Claim(ctx context.Context, tenantID, handoffID, agentID string) (*dto.ClaimHandoffResponse, error) {
	if agentID == "" {
		return nil, &Error{Code: ErrorCodeValidation, Message: "agentId is required"}
	}

	session, err := s.getSession(ctx, tenantID, handoffID)
	if err != nil {
		return nil, err
	}
	if conflictErr := claimConflict(session); conflictErr != nil {
		return nil, conflictErr
	}

	if _, err := s.repo.GetAgent(ctx, tenantID, agentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Code: ErrorCodeAgentNotFound, Message: fmt.Sprintf("agent %s not registered", agentID)}
		}
		return nil, &Error{Code: ErrorCodeInternal, Message: "load agent", Err: err}
	}

	pickedUpAt := s.timestamp()
	err = s.repo.ClaimSession(ctx, tenantID, handoffID, agentID, pickedUpAt)
	switch {
	case err == nil:
	case errors.Is(err, ErrSessionNotPending):
		// Lost the race; re-read to report what actually happened.
		current, readErr := s.getSession(ctx, tenantID, handoffID)
		if readErr != nil {
			return nil, readErr
		}
		return nil, claimConflict(current)
	case errors.Is(err, ErrAgentUnavailable):
		observeClaimRejected("capacity")
		return nil, &Error{Code: ErrorCodeAgentCapacity, Message: fmt.Sprintf("agent %s is offline or at capacity", agentID)}
	default:
		return nil, &Error{Code: ErrorCodeInternal, Message: "claim handoff", Err: err}
	}

	session.Status = model.HandoffStatusActive
	session.AssignedAgentID = agentID
	session.PickedUpAt = pickedUpAt

	observeLifecycle("claimed")
	s.publish(tenantID, "handoff.claimed", sessionMetadata(session))
	s.log.Info("handoff claimed",
		zap.String("tenant_id", tenantID),
		zap.String("handoff_id", handoffID),
		zap.String("agent_id", agentID),
	)

	return &dto.ClaimHandoffResponse{Handoff: sessionMetadata(session)}, nil
}

// Resolve closes a session. A pending session is withdrawn without
// touching any agent counter; an active session releases its agent's
// slot in the same transaction as the status change. Resolving an
// already resolved session is a no-op that returns the stored state.
func (s *Service) Resolve(ctx context.Context, tenantID, handoffID, resolvedBy string) (*dto.ResolveHandoffResponse, error) {
	if resolvedBy == "" {
		resolvedBy = "operator"
	}

	// Two passes cover the claim-vs-resolve and resolve-vs-resolve races:
	// a lost conditional write means another transition landed first, and
	// the re-read settles what to do with it.
	for attempt := 0; attempt < 2; attempt++ {
		session, err := s.getSession(ctx, tenantID, handoffID)
		if err != nil {
			return nil, err
		}

		switch session.Status {
		case model.HandoffStatusResolved:
			return &dto.ResolveHandoffResponse{Handoff: sessionMetadata(session)}, nil

		case model.HandoffStatusPending:
			resolvedAt := s.timestamp()
			err = s.repo.ResolvePendingSession(ctx, tenantID, handoffID, session.ChatID, resolvedBy, resolvedAt)
			if errors.Is(err, ErrSessionNotPending) {
				continue
			}
			if err != nil {
				return nil, &Error{Code: ErrorCodeInternal, Message: "withdraw handoff", Err: err}
			}
			session.Status = model.HandoffStatusResolved
			session.ResolvedAt = resolvedAt
			session.ResolvedBy = resolvedBy
			s.finishResolve(tenantID, session)
			return &dto.ResolveHandoffResponse{Handoff: sessionMetadata(session)}, nil

		case model.HandoffStatusActive:
			resolvedAt := s.timestamp()
			err = s.repo.ResolveActiveSession(ctx, tenantID, handoffID, session.ChatID, session.AssignedAgentID, resolvedBy, resolvedAt)
			if errors.Is(err, ErrSessionNotActive) {
				continue
			}
			if err != nil {
				return nil, &Error{Code: ErrorCodeInternal, Message: "resolve handoff", Err: err}
			}
			session.Status = model.HandoffStatusResolved
			session.ResolvedAt = resolvedAt
			session.ResolvedBy = resolvedBy
			s.finishResolve(tenantID, session)
			return &dto.ResolveHandoffResponse{Handoff: sessionMetadata(session)}, nil
		}
	}

	return nil, &Error{Code: ErrorCodeInternal, Message: "resolve handoff: transitions kept racing"}
}

// ResolveByToken lets the widget end its own session.
func (s *Service) ResolveByToken(ctx context.Context, tenantID, handoffID, token string) (*dto.ResolveHandoffResponse, error) {
	if err := s.tokens.Verify(token, tenantID, handoffID); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidToken, Message: "handoff token rejected"}
	}
	return s.Resolve(ctx, tenantID, handoffID, "user")
}

// PostMessage appends a message to an active session's relay. The
// sequence number comes from the session's atomic counter, so every
// stored message carries a strictly increasing seq.
func (s *Service) PostMessage(ctx context.Context, tenantID, handoffID string, sender model.SenderType, senderID, content string) (*dto.HandoffMessageResponse, error) {
	if content == "" {
		return nil, &Error{Code: ErrorCodeValidation, Message: "content is required"}
	}

	seq, err := s.repo.NextMessageSeq(ctx, tenantID, handoffID)
	if err != nil {
		if errors.Is(err, ErrSessionNotActive) {
			return nil, s.relayRejection(ctx, tenantID, handoffID)
		}
		return nil, &Error{Code: ErrorCodeInternal, Message: "allocate message seq", Err: err}
	}

	message := model.HandoffMessageItem{
		MessageID:  s.newID(),
		HandoffID:  handoffID,
		TenantID:   tenantID,
		Seq:        seq,
		SenderType: sender,
		SenderID:   senderID,
		Content:    content,
		CreatedAt:  s.timestamp(),
	}
	if err := s.repo.PutMessage(ctx, message); err != nil {
		// The allocated seq is burned; readers tolerate gaps.
		return nil, &Error{Code: ErrorCodeInternal, Message: "store message", Err: err}
	}

	resp := messageResponse(message)
	observeMessage(string(sender))
	s.publish(tenantID, "handoff.message", resp)
	return &resp, nil
}

// PostMessageByToken is the widget-side append; the token stands in for
// operator auth.
func (s *Service) PostMessageByToken(ctx context.Context, tenantID, handoffID, token, content string) (*dto.HandoffMessageResponse, error) {
	if err := s.tokens.Verify(token, tenantID, handoffID); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidToken, Message: "handoff token rejected"}
	}
	return s.PostMessage(ctx, tenantID, handoffID, model.SenderTypeUser, "", content)
}

// ListMessagesSince returns every stored message with seq greater than
// the cursor, in seq order, plus the cursor for the next poll. Repeated
// polls with the returned cursor see each message exactly once.
func (s *Service) ListMessagesSince(ctx context.Context, tenantID, handoffID string, afterSeq int64) (*dto.ListHandoffMessagesResponse, error) {
	if _, err := s.getSession(ctx, tenantID, handoffID); err != nil {
		return nil, err
	}

	messages, err := s.repo.ListMessagesSince(ctx, handoffID, afterSeq)
	if err != nil {
		return nil, &Error{Code: ErrorCodeInternal, Message: "list messages", Err: err}
	}

	resp := &dto.ListHandoffMessagesResponse{
		Messages: make([]dto.HandoffMessageResponse, 0, len(messages)),
		Cursor:   afterSeq,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, messageResponse(m))
		if m.Seq > resp.Cursor {
			resp.Cursor = m.Seq
		}
	}
	return resp, nil
}

// ListMessagesByToken is the widget-side poll of the relay.
func (s *Service) ListMessagesByToken(ctx context.Context, tenantID, handoffID, token string, afterSeq int64) (*dto.ListHandoffMessagesResponse, error) {
	if err := s.tokens.Verify(token, tenantID, handoffID); err != nil {
		return nil, &Error{Code: ErrorCodeInvalidToken, Message: "handoff token rejected"}
	}
	return s.ListMessagesSince(ctx, tenantID, handoffID, afterSeq)
}

// List returns the tenant's sessions, oldest first, optionally filtered
// by status. An empty status returns everything.
func (s *Service) List(ctx context.Context, tenantID string, status string) (*dto.ListHandoffsResponse, error) {
	filter := model.HandoffStatus(status)
	switch filter {
	case "", model.HandoffStatusPending, model.HandoffStatusActive, model.HandoffStatusResolved:
	default:
		return nil, &Error{Code: ErrorCodeValidation, Message: fmt.Sprintf("unknown status %q", status)}
	}

	sessions, err := s.repo.ListSessionsByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, &Error{Code: ErrorCodeInternal, Message: "list handoffs", Err: err}
	}

	resp := &dto.ListHandoffsResponse{Handoffs: make([]dto.HandoffMetadata, 0, len(sessions))}
	for _, session := range sessions {
		resp.Handoffs = append(resp.Handoffs, sessionMetadata(session))
	}
	return resp, nil
}

// Ping records an agent heartbeat and optional status change, and
// returns the agent's current capacity picture.
func (s *Service) Ping(ctx context.Context, tenantID, agentID string, status string) (*dto.AgentResponse, error) {
	agentStatus := model.AgentStatusAvailable
	if status != "" {
		agentStatus = model.AgentStatus(status)
		switch agentStatus {
		case model.AgentStatusAvailable, model.AgentStatusBusy, model.AgentStatusOffline:
		default:
			return nil, &Error{Code: ErrorCodeValidation, Message: fmt.Sprintf("unknown agent status %q", status)}
		}
	}

	agent, err := s.repo.TouchAgent(ctx, tenantID, agentID, agentStatus, s.timestamp())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{Code: ErrorCodeAgentNotFound, Message: fmt.Sprintf("agent %s not registered", agentID)}
		}
		return nil, &Error{Code: ErrorCodeInternal, Message: "update agent", Err: err}
	}

	resp := agentResponse(agent)
	return &resp, nil
}

func (s *Service) getSession(ctx context.Context, tenantID, handoffID string) (model.HandoffSessionItem, error) {
	session, err := s.repo.GetSession(ctx, tenantID, handoffID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.HandoffSessionItem{}, &Error{Code: ErrorCodeNotFound, Message: fmt.Sprintf("handoff %s not found", handoffID)}
		}
		return model.HandoffSessionItem{}, &Error{Code: ErrorCodeInternal, Message: "load handoff", Err: err}
	}
	return session, nil
}

// relayRejection turns a failed seq allocation into the right caller
// error. A closed session is terminal; a pending one just has no
// operator yet.
func (s *Service) relayRejection(ctx context.Context, tenantID, handoffID string) error {
	session, err := s.getSession(ctx, tenantID, handoffID)
	if err != nil {
		return err
	}
	switch session.Status {
	case model.HandoffStatusResolved:
		return &Error{Code: ErrorCodeClosed, Message: "handoff has been resolved"}
	case model.HandoffStatusPending:
		return &Error{Code: ErrorCodeNotActive, Message: "no operator has picked up this handoff yet"}
	default:
		return &Error{Code: ErrorCodeInternal, Message: "message rejected on active session"}
	}
}

func (s *Service) finishResolve(tenantID string, session model.HandoffSessionItem) {
	observeLifecycle("resolved")
	s.publish(tenantID, "handoff.resolved", sessionMetadata(session))
	s.log.Info("handoff resolved",
		zap.String("tenant_id", tenantID),
		zap.String("handoff_id", session.HandoffID),
		zap.String("resolved_by", session.ResolvedBy),
	)
}

func (s *Service) publish(tenantID, event string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishTenant(tenantID, event, payload); err != nil {
		s.log.Warn("notify failed",
			zap.String("tenant_id", tenantID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func claimConflict(session model.HandoffSessionItem) error {
	switch session.Status {
	case model.HandoffStatusActive:
		observeClaimRejected("claimed")
		return &Error{Code: ErrorCodeAlreadyClaimed, Message: fmt.Sprintf("handoff already claimed by %s", session.AssignedAgentID)}
	case model.HandoffStatusResolved:
		return &Error{Code: ErrorCodeClosed, Message: "handoff has been resolved"}
	default:
		return nil
	}
}

func sessionMetadata(session model.HandoffSessionItem) dto.HandoffMetadata {
	return dto.HandoffMetadata{
		HandoffID:       session.HandoffID,
		ChatID:          session.ChatID,
		Status:          string(session.Status),
		AssignedAgentID: session.AssignedAgentID,
		RequestedAt:     session.RequestedAt,
		PickedUpAt:      session.PickedUpAt,
		ResolvedAt:      session.ResolvedAt,
	}
}

func messageResponse(message model.HandoffMessageItem) dto.HandoffMessageResponse {
	return dto.HandoffMessageResponse{
		MessageID:  message.MessageID,
		HandoffID:  message.HandoffID,
		Seq:        message.Seq,
		SenderType: string(message.SenderType),
		SenderID:   message.SenderID,
		Content:    message.Content,
		CreatedAt:  message.CreatedAt,
	}
}

func agentResponse(agent model.AgentItem) dto.AgentResponse {
	return dto.AgentResponse{
		AgentID:        agent.AgentID,
		Status:         string(agent.Status),
		ActiveSessions: agent.ActiveSessions,
		MaxSessions:    agent.MaxSessions,
		LastSeenAt:     agent.LastSeenAt,
	}
}
