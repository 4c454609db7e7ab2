package endpoints

import (
	"fmt"
	"net/http"

	internal_jwt "chatdesk-backend/internal/jwt"
	"chatdesk-backend/internal/websocket"
)

type WebsocketEndpoints interface {
	NotificationsWebsocket(http.ResponseWriter, *http.Request) error
}

type websocketEndpoints struct {
	handler *websocket.Handler
}

func NewWebsocketEndpoints(handler *websocket.Handler) WebsocketEndpoints {
	return &websocketEndpoints{handler: handler}
}

// NotificationsWebsocket upgrades an operator console connection and
// joins it to its tenant's room. Browsers cannot set headers on
// websocket upgrades, so the JWT arrives as a query parameter.
func (h *websocketEndpoints) NotificationsWebsocket(w http.ResponseWriter, r *http.Request) error {
	token := r.URL.Query().Get("token")
	if token == "" {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Missing token",
			ErrorLog:   fmt.Errorf("notifications websocket without token"),
		}
	}

	claims, err := internal_jwt.ParseToken(token, internal_jwt.RoleOperator)
	if err != nil {
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized", ErrorLog: err}
	}

	tenantID, _ := claims["tenantId"].(string)
	operatorID, _ := claims["id"].(string)
	if tenantID == "" {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("notifications websocket token without tenant"),
		}
	}

	h.handler.CreateRoom(tenantID)
	h.handler.JoinRoom(w, r, tenantID, operatorID)
	return nil
}
