package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newServer(t *testing.T, status int, reply any, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			json.NewDecoder(r.Body).Decode(seen)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(reply)
	}))
}

func TestSimpleQuery_StringContent(t *testing.T) {
	var seen ChatCompletionRequest
	srv := newServer(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"detections": []}`}},
		},
	}, &seen)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := c.SimpleQuery(context.Background(), "qwen2-vl", "detect", "QUJD")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if reply != `{"detections": []}` {
		t.Errorf("reply = %q", reply)
	}

	if seen.Model != "qwen2-vl" || len(seen.Messages) != 1 {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.ResponseFormat == nil || seen.ResponseFormat.Type != "json_object" {
		t.Errorf("JSON replies not requested: %+v", seen.ResponseFormat)
	}
	parts, ok := seen.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %#v", seen.Messages[0].Content)
	}
	img, _ := parts[1].(map[string]interface{})
	url, _ := img["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,QUJD") {
		t.Errorf("image data URL = %q", url)
	}
}

func TestSimpleQuery_ArrayContent(t *testing.T) {
	srv := newServer(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": []map[string]string{{"type": "text", "text": "hello"}}}},
		},
	}, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	reply, err := c.SimpleQuery(context.Background(), "m", "p", "")
	if err != nil || reply != "hello" {
		t.Errorf("reply=%q err=%v", reply, err)
	}
}

func TestSimpleQuery_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  any
	}{
		{"server error", http.StatusInternalServerError, map[string]string{"error": "boom"}},
		{"no choices", http.StatusOK, map[string]any{"choices": []any{}}},
		{"empty content", http.StatusOK, map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": ""}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.reply, nil)
			defer srv.Close()

			c, _ := NewClient(srv.URL)
			if _, err := c.SimpleQuery(context.Background(), "m", "p", "QUJD"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	if err != nil || c.baseURL != "http://localhost:8080" {
		t.Errorf("default URL: c=%+v err=%v", c, err)
	}
	c, err = NewClient("http://gpu:8080/v1/chat/completions")
	if err != nil || c.baseURL != "http://gpu:8080" {
		t.Errorf("full endpoint URL: c=%+v err=%v", c, err)
	}
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("expected error for URL without scheme")
	}
}
