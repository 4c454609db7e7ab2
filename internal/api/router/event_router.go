package router

import (
	"net/http"
	"strconv"
	"time"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
	"chatdesk-backend/internal/env"
	dispatchservice "chatdesk-backend/internal/service/dispatch"
	subscriptionservice "chatdesk-backend/internal/service/subscription"
	tenantservice "chatdesk-backend/internal/service/tenant"
)

// EventRoutes wires the provider-facing intake surface: asynchronous
// channel and bot events plus synchronous function calls.
func EventRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		resolver := tenantservice.New(s.Database())
		registry := subscriptionservice.New(s.Database())
		dispatcher := dispatchservice.New(dispatchservice.Config{
			Registry:       registry,
			Credentials:    registry,
			DefaultTimeout: dispatchTimeout(),
		})

		eventEndpoints := endpoints.NewEventEndpoints(resolver, dispatcher, s.QueueManager(), prefix)

		mux.HandleFunc(prefix+"/channel", s.MakeHTTPHandleFunc(eventEndpoints.ChannelEvent))
		mux.HandleFunc(prefix+"/bot", s.MakeHTTPHandleFunc(eventEndpoints.BotEvent))
		mux.HandleFunc(prefix+"/functions/", s.MakeHTTPHandleFunc(eventEndpoints.FunctionCall))
	}
}

func dispatchTimeout() time.Duration {
	raw := env.GetOrDefault(env.DispatchTimeoutMs, "")
	if raw == "" {
		return 0
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
