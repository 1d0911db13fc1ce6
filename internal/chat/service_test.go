package chat

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/text/language"

	"webui/internal/i18n"
)

type completionServer struct {
	mu       sync.Mutex
	status   int
	reply    string
	calls    int
	lastBody map[string]any
	lastAuth string
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	s.calls++
	s.lastAuth = r.Header.Get("Authorization")
	s.lastBody = map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&s.lastBody)

	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 && s.status != http.StatusOK {
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
		return
	}
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "m",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": s.reply},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestService(t *testing.T, srv *completionServer, available bool) *Service {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewService(Options{BaseURL: ts.URL + "/v1", HTTPClient: ts.Client(), Available: available})
}

func chatRequest(msg string, history []Message) Request {
	return Request{
		Message:      msg,
		History:      history,
		Token:        "tok",
		Model:        "Qwen/Qwen3-Coder-480B-A35B-Instruct",
		SystemPrompt: "You are a helpful assistant.",
		MaxTokens:    2000,
		Temperature:  0.7,
	}
}

func TestChatAppendsTurn(t *testing.T) {
	srv := &completionServer{reply: "hello there"}
	svc := newTestService(t, srv, true)

	history := []Message{
		{Role: RoleUser, Content: "earlier"},
		{Role: RoleAssistant, Content: "系统提示: token saved"},
		{Role: "tool", Content: "ignored"},
		{Role: RoleAssistant, Content: "earlier reply"},
	}
	got := svc.Chat(context.Background(), chatRequest("hi", history))
	if len(got) != len(history)+2 {
		t.Fatalf("history len = %d, want %d", len(got), len(history)+2)
	}
	if got[len(got)-2] != (Message{Role: RoleUser, Content: "hi"}) || got[len(got)-1] != (Message{Role: RoleAssistant, Content: "hello there"}) {
		t.Fatalf("tail = %+v", got[len(got)-2:])
	}
	if srv.lastAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", srv.lastAuth)
	}
	msgs, _ := srv.lastBody["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want system + 2 history + user: %v", len(msgs), msgs)
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("first message role = %v", first["role"])
	}
	if srv.lastBody["max_tokens"] != float64(2000) {
		t.Fatalf("max_tokens = %v", srv.lastBody["max_tokens"])
	}
}

func TestChatGuards(t *testing.T) {
	srv := &completionServer{reply: "x"}
	ctx := i18n.WithLocale(context.Background(), language.Chinese)
	history := []Message{{Role: RoleUser, Content: "a"}}

	unavailable := newTestService(t, srv, false).Chat(ctx, chatRequest("hi", history))
	if len(unavailable) != 2 || unavailable[1].Role != RoleAssistant {
		t.Fatalf("unavailable history = %+v", unavailable)
	}

	svc := newTestService(t, srv, true)
	req := chatRequest("hi", history)
	req.Token = " "
	noToken := svc.Chat(ctx, req)
	if len(noToken) != 2 || noToken[1].Content != "请提供有效的API Token" {
		t.Fatalf("missing token history = %+v", noToken)
	}

	blank := svc.Chat(ctx, chatRequest("   ", history))
	if len(blank) != 1 {
		t.Fatalf("blank message changed history: %+v", blank)
	}
	if srv.calls != 0 {
		t.Fatalf("calls = %d, want 0", srv.calls)
	}
}

func TestChatErrorAppendsFailure(t *testing.T) {
	srv := &completionServer{status: http.StatusBadRequest}
	svc := newTestService(t, srv, true)

	got := svc.Chat(i18n.WithLocale(context.Background(), language.Chinese), chatRequest("hi", nil))
	if len(got) != 2 || got[0].Content != "hi" {
		t.Fatalf("history = %+v", got)
	}
	if !strings.HasPrefix(got[1].Content, "对话失败: ") {
		t.Fatalf("failure content = %q", got[1].Content)
	}
}

func TestClear(t *testing.T) {
	svc := NewService(Options{})
	if got := svc.Clear(); got == nil || len(got) != 0 {
		t.Fatalf("Clear() = %#v, want empty non-nil slice", got)
	}
}

func TestDescribe(t *testing.T) {
	srv := &completionServer{reply: "a red square"}
	svc := newTestService(t, srv, true)

	got := svc.Describe(context.Background(), VisionRequest{
		Image:       image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Prompt:      "describe",
		Token:       "tok",
		Model:       "stepfun-ai/step3",
		MaxTokens:   1000,
		Temperature: 0.7,
	})
	if got != "a red square" {
		t.Fatalf("Describe = %q", got)
	}
	msgs, _ := srv.lastBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	user, _ := msgs[0].(map[string]any)
	parts, _ := user["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %v", user["content"])
	}
	imagePart, _ := parts[1].(map[string]any)
	imageURL, _ := imagePart["image_url"].(map[string]any)
	if url, _ := imageURL["url"].(string); !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %v", imageURL["url"])
	}
}

func TestDescribeEmptyAndErrors(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.Chinese)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))

	empty := newTestService(t, &completionServer{reply: "  "}, true)
	if got := empty.Describe(ctx, VisionRequest{Image: img, Token: "tok"}); got != "API返回了空的响应，请检查模型是否支持图像分析功能" {
		t.Fatalf("empty reply = %q", got)
	}

	failing := newTestService(t, &completionServer{status: http.StatusBadRequest}, true)
	if got := failing.Describe(ctx, VisionRequest{Image: img, Token: "tok"}); !strings.HasPrefix(got, "图像分析失败: ") {
		t.Fatalf("error reply = %q", got)
	}

	if got := failing.Describe(ctx, VisionRequest{Token: "tok"}); got != "请先上传图像" {
		t.Fatalf("missing image = %q", got)
	}
	if got := failing.Describe(ctx, VisionRequest{Image: img}); got != "请提供有效的API Token" {
		t.Fatalf("missing token = %q", got)
	}
}
