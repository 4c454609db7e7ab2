package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chatdesk-backend/internal/dto"
	"chatdesk-backend/internal/queue"
	dispatchservice "chatdesk-backend/internal/service/dispatch"
	tenantservice "chatdesk-backend/internal/service/tenant"
	"chatdesk-backend/pkg/logger"

	"go.uber.org/zap"
)

type EventEndpoints interface {
	ChannelEvent(http.ResponseWriter, *http.Request) error
	BotEvent(http.ResponseWriter, *http.Request) error
	FunctionCall(http.ResponseWriter, *http.Request) error
}

type eventEndpoints struct {
	resolver      *tenantservice.Resolver
	dispatcher    *dispatchservice.Dispatcher
	queueManager  *queue.DispatchQueueManager
	functionsPath string
}

func NewEventEndpoints(
	resolver *tenantservice.Resolver,
	dispatcher *dispatchservice.Dispatcher,
	queueManager *queue.DispatchQueueManager,
	prefix string,
) EventEndpoints {
	return &eventEndpoints{
		resolver:      resolver,
		dispatcher:    dispatcher,
		queueManager:  queueManager,
		functionsPath: strings.TrimRight(prefix, "/") + "/functions/",
	}
}

func (h *eventEndpoints) ChannelEvent(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleChannelEvent,
	})
}

func (h *eventEndpoints) BotEvent(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleBotEvent,
	})
}

func (h *eventEndpoints) FunctionCall(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleFunctionCall,
	})
}

func (h *eventEndpoints) handleChannelEvent(w http.ResponseWriter, r *http.Request) error {
	var req dto.ChannelEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
	}
	if req.ChannelNumber == "" || req.EventType == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "channelNumber and eventType are required",
			ErrorLog:   fmt.Errorf("channel event missing identifiers"),
		}
	}
	return h.acceptEvent(w, r, tenantservice.KindChannelNumber, req.ChannelNumber, req.EventType, req.Payload)
}

func (h *eventEndpoints) handleBotEvent(w http.ResponseWriter, r *http.Request) error {
	var req dto.BotEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
	}
	if req.BotID == "" || req.EventType == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "botId and eventType are required",
			ErrorLog:   fmt.Errorf("bot event missing identifiers"),
		}
	}
	return h.acceptEvent(w, r, tenantservice.KindBotID, req.BotID, req.EventType, req.Payload)
}

// acceptEvent resolves the tenant, acknowledges the provider, and hands
// fan-out to the dispatch queue. The provider's connection is never held
// open across webhook deliveries; an unknown identifier is logged and
// dropped rather than bounced, since providers retry hard on errors.
func (h *eventEndpoints) acceptEvent(
	w http.ResponseWriter,
	r *http.Request,
	kind tenantservice.IdentifierKind,
	identifier, eventType string,
	payload json.RawMessage,
) error {
	tenant, err := h.resolver.Resolve(r.Context(), kind, identifier)
	if err != nil {
		if errors.Is(err, tenantservice.ErrNotFound) {
			logger.Global().Warn("event dropped: unknown tenant identifier",
				zap.String("kind", string(kind)),
				zap.String("identifier", identifier),
				zap.String("event_type", eventType),
			)
			return WriteJSON(w, http.StatusAccepted, dto.EventAcceptedResponse{Accepted: false})
		}
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Tenant resolution failed", ErrorLog: err}
	}

	tenantID := tenant.TenantID
	h.queueManager.EnqueueJob(queue.Job{
		Fn: func() error {
			_, err := h.dispatcher.Dispatch(context.Background(), tenantID, eventType, payload)
			return err
		},
	})

	return WriteJSON(w, http.StatusAccepted, dto.EventAcceptedResponse{
		Accepted: true,
		TenantID: tenantID,
	})
}

func (h *eventEndpoints) handleFunctionCall(w http.ResponseWriter, r *http.Request) error {
	functionName := strings.Trim(strings.TrimPrefix(r.URL.Path, h.functionsPath), "/")
	if functionName == "" {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Function not found",
			ErrorLog:   fmt.Errorf("function name missing from path %s", r.URL.Path),
		}
	}

	var req dto.FunctionCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid request body", ErrorLog: err}
	}
	if req.BotID == "" {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "botId is required",
			ErrorLog:   fmt.Errorf("function call missing botId"),
		}
	}

	tenant, err := h.resolver.Resolve(r.Context(), tenantservice.KindBotID, req.BotID)
	if err != nil {
		if errors.Is(err, tenantservice.ErrNotFound) {
			return &HTTPError{
				StatusCode: http.StatusNotFound,
				Message:    "Unknown bot",
				ErrorLog:   fmt.Errorf("function call from unknown bot %s", req.BotID),
			}
		}
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Tenant resolution failed", ErrorLog: err}
	}

	reply, err := h.dispatcher.CallFunction(r.Context(), tenant.TenantID, functionName, req.Payload)
	if err != nil {
		return functionCallError(err)
	}

	// The downstream reply passes through verbatim, status code included.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.StatusCode)
	_, writeErr := w.Write(reply.Body)
	return writeErr
}

func functionCallError(err error) error {
	var dispatchErr *dispatchservice.Error
	if errors.As(err, &dispatchErr) {
		switch dispatchErr.Code {
		case dispatchservice.ErrorCodeNoRoute:
			return &HTTPError{StatusCode: http.StatusNotFound, Message: "No function route configured", ErrorLog: err}
		case dispatchservice.ErrorCodeTimeout:
			return &HTTPError{StatusCode: http.StatusGatewayTimeout, Message: "Function endpoint timed out", ErrorLog: err}
		case dispatchservice.ErrorCodeUnreachable:
			return &HTTPError{StatusCode: http.StatusBadGateway, Message: "Function endpoint unreachable", ErrorLog: err}
		}
	}
	return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Function call failed", ErrorLog: err}
}
