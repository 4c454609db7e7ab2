package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/dto"
	internal_jwt "chatdesk-backend/internal/jwt"
	"chatdesk-backend/internal/model"
	handoffservice "chatdesk-backend/internal/service/handoff"
	tenantservice "chatdesk-backend/internal/service/tenant"
)

type HandoffEndpoints interface {
	Handoffs(http.ResponseWriter, *http.Request) error
	HandoffActions(http.ResponseWriter, *http.Request) error
	AgentPing(http.ResponseWriter, *http.Request) error
	PublicHandoffs(http.ResponseWriter, *http.Request) error
	PublicHandoffActions(http.ResponseWriter, *http.Request) error
}

type HandoffPaths struct {
	HandoffsPath        string
	HandoffPrefix       string
	PublicHandoffsPath  string
	PublicHandoffPrefix string
}

type handoffEndpoints struct {
	service  *handoffservice.Service
	resolver *tenantservice.Resolver
	paths    HandoffPaths
}

func NewHandoffEndpoints(service *handoffservice.Service, resolver *tenantservice.Resolver, prefix string) HandoffEndpoints {
	base := strings.TrimRight(prefix, "/")
	return NewHandoffEndpointsWithPaths(service, resolver, HandoffPaths{
		HandoffsPath:        base + "/handoffs",
		HandoffPrefix:       base + "/handoffs/",
		PublicHandoffsPath:  base + "/public/handoffs",
		PublicHandoffPrefix: base + "/public/handoffs/",
	})
}

func NewHandoffEndpointsWithPaths(service *handoffservice.Service, resolver *tenantservice.Resolver, paths HandoffPaths) HandoffEndpoints {
	return &handoffEndpoints{
		service:  service,
		resolver: resolver,
		paths:    paths,
	}
}

// Handoffs serves the operator console's queue view.
func (h *handoffEndpoints) Handoffs(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListHandoffs,
	})
}

// HandoffActions routes /handoffs/{id}/claim, /resolve and /messages.
func (h *handoffEndpoints) HandoffActions(w http.ResponseWriter, r *http.Request) error {
	handoffID, action, err := splitHandoffPath(r.URL.Path, h.paths.HandoffPrefix)
	if err != nil {
		return err
	}

	switch action {
	case "claim":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.claimHandler(handoffID),
		})
	case "resolve":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.resolveHandler(handoffID),
		})
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  h.listMessagesHandler(handoffID),
			http.MethodPost: h.postMessageHandler(handoffID),
		})
	}
	return &HTTPError{
		StatusCode: http.StatusNotFound,
		Message:    "Not found",
		ErrorLog:   fmt.Errorf("unknown handoff action %q", action),
	}
}

func (h *handoffEndpoints) AgentPing(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleAgentPing,
	})
}

func (h *handoffEndpoints) handleListHandoffs(w http.ResponseWriter, r *http.Request) error {
	operator, err := operatorFrom(r)
	if err != nil {
		return err
	}

	resp, err := h.service.List(r.Context(), operator.TenantId, r.URL.Query().Get("status"))
	if err != nil {
		return handoffError(err)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *handoffEndpoints) claimHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		operator, err := operatorFrom(r)
		if err != nil {
			return err
		}

		var req dto.ClaimHandoffRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
		}
		agentID := req.AgentID
		if agentID == "" {
			agentID = operator.Id
		}

		resp, err := h.service.Claim(r.Context(), operator.TenantId, handoffID, agentID)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *handoffEndpoints) resolveHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		operator, err := operatorFrom(r)
		if err != nil {
			return err
		}

		var req dto.ResolveHandoffRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
			}
		}
		resolvedBy := req.ResolvedBy
		if resolvedBy == "" {
			resolvedBy = operator.Id
		}

		resp, err := h.service.Resolve(r.Context(), operator.TenantId, handoffID, resolvedBy)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *handoffEndpoints) listMessagesHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		operator, err := operatorFrom(r)
		if err != nil {
			return err
		}

		after, err := parseAfter(r)
		if err != nil {
			return err
		}

		resp, err := h.service.ListMessagesSince(r.Context(), operator.TenantId, handoffID, after)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *handoffEndpoints) postMessageHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		operator, err := operatorFrom(r)
		if err != nil {
			return err
		}

		var req dto.PostHandoffMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
		}

		resp, err := h.service.PostMessage(r.Context(), operator.TenantId, handoffID, model.SenderTypeAgent, operator.Id, req.Content)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusCreated, resp)
	}
}

func (h *handoffEndpoints) handleAgentPing(w http.ResponseWriter, r *http.Request) error {
	operator, err := operatorFrom(r)
	if err != nil {
		return err
	}

	var req dto.AgentPingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
		}
	}

	resp, err := h.service.Ping(r.Context(), operator.TenantId, operator.Id, req.Status)
	if err != nil {
		return handoffError(err)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

// PublicHandoffs lets a widget open a handoff. The tenant API key is the
// only credential the widget holds at this point.
func (h *handoffEndpoints) PublicHandoffs(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreateHandoff,
	})
}

// PublicHandoffActions routes widget calls carrying a handoff token:
// status poll, the message relay, and self-service resolve.
func (h *handoffEndpoints) PublicHandoffActions(w http.ResponseWriter, r *http.Request) error {
	handoffID, action, err := splitHandoffPath(r.URL.Path, h.paths.PublicHandoffPrefix)
	if err != nil {
		return err
	}

	switch action {
	case "":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: h.publicStatusHandler(handoffID),
		})
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  h.publicListMessagesHandler(handoffID),
			http.MethodPost: h.publicPostMessageHandler(handoffID),
		})
	case "resolve":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: h.publicResolveHandler(handoffID),
		})
	}
	return &HTTPError{
		StatusCode: http.StatusNotFound,
		Message:    "Not found",
		ErrorLog:   fmt.Errorf("unknown public handoff action %q", action),
	}
}

func (h *handoffEndpoints) handleCreateHandoff(w http.ResponseWriter, r *http.Request) error {
	apiKey := r.Header.Get("X-Api-Key")
	if apiKey == "" {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Missing API key",
			ErrorLog:   fmt.Errorf("public handoff create without api key"),
		}
	}

	tenant, err := h.resolver.AuthenticateAPIKey(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, tenantservice.ErrNotFound) {
			return &HTTPError{
				StatusCode: http.StatusUnauthorized,
				Message:    "Invalid API key",
				ErrorLog:   fmt.Errorf("public handoff create with unknown api key"),
			}
		}
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Tenant resolution failed", ErrorLog: err}
	}

	var req dto.CreateHandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
	}

	resp, err := h.service.Create(r.Context(), tenant.TenantID, req)
	if err != nil {
		return handoffError(err)
	}
	return WriteJSON(w, http.StatusCreated, resp)
}

func (h *handoffEndpoints) publicStatusHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, tenantID, err := h.widgetToken(r, handoffID)
		if err != nil {
			return err
		}

		resp, err := h.service.Status(r.Context(), tenantID, handoffID, token)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *handoffEndpoints) publicListMessagesHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, tenantID, err := h.widgetToken(r, handoffID)
		if err != nil {
			return err
		}

		after, err := parseAfter(r)
		if err != nil {
			return err
		}

		resp, err := h.service.ListMessagesByToken(r.Context(), tenantID, handoffID, token, after)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *handoffEndpoints) publicPostMessageHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, tenantID, err := h.widgetToken(r, handoffID)
		if err != nil {
			return err
		}

		var req dto.PostHandoffMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
		}
		if req.HandoffToken != "" {
			token = req.HandoffToken
		}

		resp, err := h.service.PostMessageByToken(r.Context(), tenantID, handoffID, token, req.Content)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusCreated, resp)
	}
}

func (h *handoffEndpoints) publicResolveHandler(handoffID string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		token, tenantID, err := h.widgetToken(r, handoffID)
		if err != nil {
			return err
		}

		resp, err := h.service.ResolveByToken(r.Context(), tenantID, handoffID, token)
		if err != nil {
			return handoffError(err)
		}
		return WriteJSON(w, http.StatusOK, resp)
	}
}

// widgetToken pulls the handoff token from header or query and decodes
// the tenant it was issued for.
func (h *handoffEndpoints) widgetToken(r *http.Request, handoffID string) (token, tenantID string, err error) {
	token = r.Header.Get("X-Handoff-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return "", "", &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Missing handoff token",
			ErrorLog:   fmt.Errorf("public handoff call without token"),
		}
	}

	tenantID, tokenHandoffID, err := h.service.DecodeToken(token)
	if err != nil {
		return "", "", handoffError(err)
	}
	if tokenHandoffID != handoffID {
		return "", "", &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Handoff token rejected",
			ErrorLog:   fmt.Errorf("token issued for %s used on %s", tokenHandoffID, handoffID),
		}
	}
	return token, tenantID, nil
}

func operatorFrom(r *http.Request) (internal_jwt.Operator, error) {
	operator, ok := middleware.OperatorFromContext(r.Context())
	if !ok || operator.TenantId == "" {
		return internal_jwt.Operator{}, &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("operator claims missing from context"),
		}
	}
	return operator, nil
}

func splitHandoffPath(path, prefix string) (handoffID, action string, err error) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Handoff not found",
			ErrorLog:   fmt.Errorf("handoff id missing from path %s", path),
		}
	}

	parts := strings.SplitN(rest, "/", 2)
	handoffID = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return handoffID, action, nil
}

func parseAfter(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid after cursor",
			ErrorLog:   fmt.Errorf("bad after cursor %q", raw),
		}
	}
	return after, nil
}

func handoffError(err error) error {
	var svcErr *handoffservice.Error
	if !errors.As(err, &svcErr) {
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: err}
	}

	status := http.StatusInternalServerError
	switch svcErr.Code {
	case handoffservice.ErrorCodeNotFound, handoffservice.ErrorCodeAgentNotFound:
		status = http.StatusNotFound
	case handoffservice.ErrorCodeAlreadyClaimed, handoffservice.ErrorCodeAgentCapacity, handoffservice.ErrorCodeNotActive:
		status = http.StatusConflict
	case handoffservice.ErrorCodeClosed:
		status = http.StatusGone
	case handoffservice.ErrorCodeInvalidToken:
		status = http.StatusUnauthorized
	case handoffservice.ErrorCodeValidation:
		status = http.StatusBadRequest
	}

	return &HTTPError{
		StatusCode: status,
		Message:    svcErr.Message,
		ErrorLog:   err,
	}
}
