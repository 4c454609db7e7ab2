package router

import (
	"net/http"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/env"
	handoffservice "chatdesk-backend/internal/service/handoff"
	subscriptionservice "chatdesk-backend/internal/service/subscription"
	tenantservice "chatdesk-backend/internal/service/tenant"
)

// HandoffOperatorRoutes wires the operator console surface: queue view,
// claim, resolve, the message relay, agent heartbeats, and subscription
// stats. Everything here requires an operator JWT.
func HandoffOperatorRoutes(prefix string, notifier handoffservice.Notifier) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := handoffservice.New(s.Database(), handoffservice.Config{
			TokenSecret: env.Get(env.HandoffSecret),
			Notifier:    notifier,
		})
		resolver := tenantservice.New(s.Database())
		registry := subscriptionservice.New(s.Database())

		handoffEndpoints := endpoints.NewHandoffEndpoints(service, resolver, prefix)
		subscriptionEndpoints := endpoints.NewSubscriptionEndpoints(registry)
		tokenEndpoints := endpoints.NewTokenEndpoints()

		// Refresh runs without the JWT middleware: the access token being
		// replaced is usually expired already.
		mux.HandleFunc(prefix+"/auth/refresh", s.MakeHTTPHandleFunc(tokenEndpoints.RefreshToken))

		mux.HandleFunc(prefix+"/handoffs", s.MakeHTTPHandleFunc(handoffEndpoints.Handoffs, middleware.ValidateOperatorJWT))
		mux.HandleFunc(prefix+"/handoffs/", s.MakeHTTPHandleFunc(handoffEndpoints.HandoffActions, middleware.ValidateOperatorJWT))
		mux.HandleFunc(prefix+"/agents/ping", s.MakeHTTPHandleFunc(handoffEndpoints.AgentPing, middleware.ValidateOperatorJWT))
		mux.HandleFunc(prefix+"/subscriptions/stats", s.MakeHTTPHandleFunc(subscriptionEndpoints.SubscriptionStats, middleware.ValidateOperatorJWT))
	}
}

// HandoffPublicRoutes wires the widget surface. Creation authenticates
// with the tenant API key; every other call carries a handoff token.
func HandoffPublicRoutes(prefix string, notifier handoffservice.Notifier) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		service := handoffservice.New(s.Database(), handoffservice.Config{
			TokenSecret: env.Get(env.HandoffSecret),
			Notifier:    notifier,
		})
		resolver := tenantservice.New(s.Database())

		handoffEndpoints := endpoints.NewHandoffEndpoints(service, resolver, prefix)

		mux.HandleFunc(prefix+"/public/handoffs", s.MakeHTTPHandleFunc(handoffEndpoints.PublicHandoffs))
		mux.HandleFunc(prefix+"/public/handoffs/", s.MakeHTTPHandleFunc(handoffEndpoints.PublicHandoffActions))
	}
}
