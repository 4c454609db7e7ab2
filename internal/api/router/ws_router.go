package router

import (
	"net/http"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/endpoints"
)

// WebsocketRoutes exposes the operator notification stream.
func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		wsEndpoints := endpoints.NewWebsocketEndpoints(s.Handler())
		mux.HandleFunc(prefix+"/notifications", s.MakeHTTPHandleFunc(wsEndpoints.NotificationsWebsocket))
	}
}
