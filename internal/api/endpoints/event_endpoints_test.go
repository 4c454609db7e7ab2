package endpoints

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChannelEventRequiresEventType(t *testing.T) {
	h := NewEventEndpoints(nil, nil, nil, "/api/events/v1")

	body := `{"channelNumber":"15550001111","payload":{"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/events/v1/channel", strings.NewReader(body))
	rec := httptest.NewRecorder()

	err := h.ChannelEvent(rec, req)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", httpErr.StatusCode)
	}
}

func TestBotEventRequiresIdentifiers(t *testing.T) {
	h := NewEventEndpoints(nil, nil, nil, "/api/events/v1")

	for name, body := range map[string]string{
		"missing botId":     `{"eventType":"message.created","payload":{}}`,
		"missing eventType": `{"botId":"bot-1","payload":{}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/events/v1/bot", strings.NewReader(body))
		rec := httptest.NewRecorder()

		err := h.BotEvent(rec, req)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("%s: expected *HTTPError, got %v", name, err)
		}
		if httpErr.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, httpErr.StatusCode)
		}
	}
}
