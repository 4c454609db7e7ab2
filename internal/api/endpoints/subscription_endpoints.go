package endpoints

import (
	"net/http"

	"chatdesk-backend/internal/dto"
	subscriptionservice "chatdesk-backend/internal/service/subscription"
)

type SubscriptionEndpoints interface {
	SubscriptionStats(http.ResponseWriter, *http.Request) error
}

type subscriptionEndpoints struct {
	registry *subscriptionservice.Registry
}

func NewSubscriptionEndpoints(registry *subscriptionservice.Registry) SubscriptionEndpoints {
	return &subscriptionEndpoints{registry: registry}
}

func (h *subscriptionEndpoints) SubscriptionStats(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleStats,
	})
}

func (h *subscriptionEndpoints) handleStats(w http.ResponseWriter, r *http.Request) error {
	operator, err := operatorFrom(r)
	if err != nil {
		return err
	}

	subs, err := h.registry.Stats(r.Context(), operator.TenantId)
	if err != nil {
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Failed to load subscription stats", ErrorLog: err}
	}

	stats := make([]dto.SubscriptionStats, 0, len(subs))
	for _, sub := range subs {
		stats = append(stats, dto.SubscriptionStats{
			SubscriptionID: sub.SubscriptionID,
			Kind:           string(sub.Kind),
			TargetName:     sub.TargetName,
			EndpointURL:    sub.EndpointURL,
			Active:         sub.Active,
			TotalCalls:     sub.TotalCalls,
			SuccessCalls:   sub.SuccessCalls,
		})
	}
	return WriteJSON(w, http.StatusOK, dto.SubscriptionStatsResponse{Subscriptions: stats})
}
