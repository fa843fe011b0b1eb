package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func postPublish(t *testing.T, ts *httptest.Server, secret string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/internal/publish", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

const validPublishBody = `{"channel":"posts.42","payload":{"type":"presence","user_id":3,"status":"online"}}`

func TestPublishMissingToken(t *testing.T) {
	_, _, ts := newTestGateway(t)
	resp := postPublish(t, ts, "", validPublishBody)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPublishWrongSecretBeforeValidation(t *testing.T) {
	_, fb, ts := newTestGateway(t)
	// Auth must be answered first even when channel and payload are junk.
	resp := postPublish(t, ts, "wrong-secret", `{"channel":"??","payload":{"type":"nope"}}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp = postPublish(t, ts, "wrong-secret", validPublishBody)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(fb.records()) != 0 {
		t.Fatal("rejected publish reached the bus")
	}
}

func TestPublishInvalidChannel(t *testing.T) {
	_, _, ts := newTestGateway(t)
	for _, channel := range []string{"payments.1", "posts", "posts.abc", "users.", ""} {
		body, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"payload": map[string]interface{}{"type": "presence", "user_id": 3, "status": "online"},
		})
		resp := postPublish(t, ts, testInternalSecret, string(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("channel %q: expected 400, got %d", channel, resp.StatusCode)
		}
	}
}

func TestPublishUnknownEventType(t *testing.T) {
	_, fb, ts := newTestGateway(t)
	resp := postPublish(t, ts, testInternalSecret,
		`{"channel":"posts.42","payload":{"type":"webhook","x":1}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(fb.records()) != 0 {
		t.Fatal("invalid event reached the bus")
	}
}

func TestPublishDeliversToConnectedSockets(t *testing.T) {
	_, fb, ts := newTestGateway(t)
	wsA := dialUser(t, ts, 1)
	wsB := dialUser(t, ts, 2)

	resp := postPublish(t, ts, testInternalSecret, validPublishBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	for name, ws := range map[string]*websocket.Conn{"A": wsA, "B": wsB} {
		got := readFrame(t, ws)
		if got["type"] != "presence" || got["status"] != "online" || got["user_id"] != float64(3) {
			t.Fatalf("socket %s: unexpected delivery %v", name, got)
		}
	}

	recs := fb.records()
	if len(recs) != 1 || recs[0].channel != "posts.42" {
		t.Fatalf("expected one bus publish on posts.42, got %v", recs)
	}
}

func TestPublishUserChannelIsPersonal(t *testing.T) {
	_, _, ts := newTestGateway(t)
	wsA := dialUser(t, ts, 1)
	wsB := dialUser(t, ts, 2)

	body := `{"channel":"users.1","payload":{"type":"ack","message":"for-you"}}`
	resp := postPublish(t, ts, testInternalSecret, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	got := readFrame(t, wsA)
	if got["message"] != "for-you" {
		t.Fatalf("target user missed personal delivery: %v", got)
	}
	expectNoFrame(t, wsB, 300*time.Millisecond)
}

func TestHealthEndpoint(t *testing.T) {
	_, _, ts := newTestGateway(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
