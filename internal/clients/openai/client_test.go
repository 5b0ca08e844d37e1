package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

func newTestClient(t *testing.T, url string, retries int) *client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: url, Model: "test-model", MaxRetries: retries})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cl := c.(*client)
	cl.backoff = time.Millisecond
	return cl
}

func outputText(text string) string {
	b, _ := json.Marshal(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
	})
	return string(b)
}

func TestGenerateJSON(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization header: %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(outputText(`{"subject":"Hello","body":"Hi there","tone":"friendly"}`)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	obj, err := c.GenerateJSON(context.Background(), "sys", "user", "email", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["subject"] != "Hello" || obj["tone"] != "friendly" {
		t.Fatalf("obj: %v", obj)
	}
	if got.Model != "test-model" || len(got.Input) != 2 || got.Input[0].Role != "system" {
		t.Fatalf("request: %+v", got)
	}
	if got.Text.Format["type"] != "json_schema" || got.Text.Format["name"] != "email" || got.Text.Format["strict"] != true {
		t.Fatalf("format: %v", got.Text.Format)
	}
	if c.Model() != "test-model" {
		t.Fatalf("Model: %s", c.Model())
	}
}

func TestGenerateJSONRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("overloaded"))
			return
		}
		_, _ = w.Write([]byte(outputText(`{"ok":true}`)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	obj, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["ok"] != true || calls.Load() != 2 {
		t.Fatalf("want success on second attempt, calls=%d obj=%v", calls.Load(), obj)
	}
}

func TestGenerateJSONErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
		calls   int32
	}{
		{name: "bad request not retried", status: http.StatusBadRequest, body: "nope", wantErr: "upstream status 400", calls: 1},
		{name: "server error exhausts retries", status: http.StatusInternalServerError, body: "boom", wantErr: "upstream status 500", calls: 2},
		{name: "empty output", status: http.StatusOK, body: `{"output":[]}`, wantErr: "no output_text", calls: 1},
		{name: "non json output", status: http.StatusOK, body: outputText("not json"), wantErr: "failed to parse model JSON", calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, 1)
			_, err := c.GenerateJSON(context.Background(), "s", "u", "x", map[string]any{})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err: want contains %q got=%v", tc.wantErr, err)
			}
			if calls.Load() != tc.calls {
				t.Fatalf("calls: want=%d got=%d", tc.calls, calls.Load())
			}
		})
	}
}

func TestGenerateJSONHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := c.GenerateJSON(ctx, "s", "u", "x", map[string]any{}); err == nil {
		t.Fatalf("want deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("deadline not honored: took %v", time.Since(start))
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("want missing key error")
	}
	if _, err := NewClient(nil, Config{APIKey: "k"}); err == nil {
		t.Fatalf("want logger required error")
	}
}
