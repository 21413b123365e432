package protocal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"wps-bot-bridge/configs"
	_ "wps-bot-bridge/docs"
	"wps-bot-bridge/pkg/signature"
)

const (
	testAppID  = "test_app_id"
	testSecret = "test_secret"
)

const messageEvent = `{
	"event": "kso.app_chat.message.create",
	"chat": {"id": "chat_1", "type": "p2p"},
	"message": {"id": "msg_1", "type": "text", "content": {"text": {"content": "hello bot"}}},
	"sender": {"id": "user_1", "name": "Alice"},
	"send_time": 1700000000
}`

// fakeBackends serves the LLM gateway and the platform API
type fakeBackends struct {
	llm      *httptest.Server
	platform *httptest.Server

	mu    sync.Mutex
	sends []map[string]interface{}
}

func newFakeBackends(t *testing.T) *fakeBackends {
	t.Helper()
	f := &fakeBackends{}
	f.llm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi Alice"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	f.platform = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sends = append(f.sends, body)
		f.mu.Unlock()
		w.Write([]byte(`{"code":0,"data":{"message_id":"reply_1"}}`))
	}))
	t.Cleanup(func() {
		f.llm.Close()
		f.platform.Close()
	})
	return f
}

func (f *fakeBackends) sent() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.sends...)
}

func newTestServer(t *testing.T, f *fakeBackends, async bool) *Server {
	t.Helper()
	t.Setenv("WPS_APP_ID", testAppID)
	t.Setenv("WPS_APP_SECRET", testSecret)
	t.Setenv("WPS_BASE_URL", f.platform.URL)
	t.Setenv("LLM_API_BASE", f.llm.URL+"/v1")
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("APP_ASYNC_PROCESSING", strconv.FormatBool(async))
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "1")

	cfg, err := configs.Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.WPS.TokenURL = ""

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, server *Server, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := server.App.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("expected JSON, got %q", raw)
	}
	return resp.StatusCode, body
}

func signedRequest(path, body string) *http.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderAppID, testAppID)
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderNonce, "nonce-1")
	req.Header.Set(signature.HeaderSignature, signature.ComputeWPS3(testSecret, ts, "nonce-1", []byte(body)))
	return req
}

// TestServerSystemRoutes tests the index and health routes of a wired server
func TestServerSystemRoutes(t *testing.T) {
	server := newTestServer(t, newFakeBackends(t), false)

	status, body := do(t, server, httptest.NewRequest("GET", "/", nil))
	if status != http.StatusOK || body["service"] != "WPS Bot" || body["version"] != Version {
		t.Errorf("unexpected index %d %v", status, body)
	}

	status, body = do(t, server, httptest.NewRequest("GET", "/health", nil))
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("unexpected health %d %v", status, body)
	}

	status, _ = do(t, server, httptest.NewRequest("GET", "/v1/api/conversations/chat_1/messages", nil))
	if status != http.StatusNotFound {
		t.Errorf("expected message log to be disabled without postgres, got %d", status)
	}

	status, body = do(t, server, httptest.NewRequest("GET", "/swagger/doc.json", nil))
	if status != http.StatusOK || body["swagger"] != "2.0" {
		t.Errorf("unexpected swagger doc %d %v", status, body)
	}
}

// TestServerHandshake tests the unsigned challenge on both callback routes
func TestServerHandshake(t *testing.T) {
	server := newTestServer(t, newFakeBackends(t), false)

	for _, path := range []string{"/event/callback", "/webhook"} {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{"challenge":"abc123"}`))
		req.Header.Set("Content-Type", "application/json")
		status, body := do(t, server, req)
		if status != http.StatusOK || body["challenge"] != "abc123" {
			t.Errorf("%s: unexpected handshake answer %d %v", path, status, body)
		}
	}
}

// TestServerRejectsUnsignedMessage tests the 401 on an unsigned message event
func TestServerRejectsUnsignedMessage(t *testing.T) {
	f := newFakeBackends(t)
	server := newTestServer(t, f, false)

	req := httptest.NewRequest("POST", "/event/callback", strings.NewReader(messageEvent))
	status, body := do(t, server, req)
	if status != http.StatusUnauthorized || body["msg"] != "Unauthorized" {
		t.Errorf("expected 401, got %d %v", status, body)
	}
	if len(f.sent()) != 0 {
		t.Error("expected no reply for an unsigned message")
	}
}

// TestServerMessageRoundTrip tests a signed message flowing to the LLM and back to the platform
func TestServerMessageRoundTrip(t *testing.T) {
	f := newFakeBackends(t)
	server := newTestServer(t, f, true)

	status, body := do(t, server, signedRequest("/event/callback", messageEvent))
	if status != http.StatusOK || body["code"] != float64(0) {
		t.Fatalf("expected success ack, got %d %v", status, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Events.Wait(ctx); err != nil {
		t.Fatalf("processing did not finish: %v", err)
	}

	sends := f.sent()
	if len(sends) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sends))
	}
	receiver := sends[0]["receiver"].(map[string]interface{})
	if receiver["receiver_id"] != "user_1" || receiver["type"] != "user" {
		t.Errorf("expected reply to user_1, got %v", receiver)
	}
	content := sends[0]["content"].(map[string]interface{})
	if content["text"] != "hi Alice" {
		t.Errorf("expected LLM answer to be delivered, got %v", content)
	}

	// a redelivery of the same message id is not answered twice
	do(t, server, signedRequest("/event/callback", messageEvent))
	server.Events.Wait(ctx)
	if len(f.sent()) != 1 {
		t.Errorf("expected duplicate delivery to be dropped, got %d replies", len(f.sent()))
	}
}

// TestServerShutdownDrains tests that Shutdown waits for in-flight work and closes resources
func TestServerShutdownDrains(t *testing.T) {
	server := newTestServer(t, newFakeBackends(t), true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
