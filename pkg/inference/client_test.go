package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetect(t *testing.T) {
	payload := []byte("fake-jpeg-bytes")
	var gotConf, gotName string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotConf = r.FormValue("conf")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotName = hdr.Filename
		gotBody, _ = io.ReadAll(f)

		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"x1": 10, "y1": 20, "x2": 110, "y2": 220, "confidence": 0.91, "class_id": 3, "class": "stamp"},
				{"x1": 5, "y1": 5, "x2": 15, "y2": 15, "confidence": 0.2, "class_id": 1},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/predict", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	path := writeFile(t, "page.jpg", payload)
	dets, err := c.Detect(context.Background(), path, 0.5)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if gotConf != "0.5" || gotName != "page.jpg" || string(gotBody) != string(payload) {
		t.Errorf("unexpected upload: conf=%q name=%q body=%q", gotConf, gotName, gotBody)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection above floor, got %d", len(dets))
	}
	d := dets[0]
	if d.Box.X1 != 10 || d.Box.Y2 != 220 || d.Confidence != 0.91 || d.ClassID != 3 || d.Label != "stamp" {
		t.Errorf("unexpected detection: %+v", d)
	}
}

func TestDetect_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{"))
		}},
		{"inverted box", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"detections": [{"x1": 50, "y1": 0, "x2": 10, "y2": 10, "confidence": 0.9}]}`))
		}},
		{"confidence above one", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"detections": [{"x1": 0, "y1": 0, "x2": 10, "y2": 10, "confidence": 1.3}]}`))
		}},
		{"negative confidence", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"detections": [{"x1": 0, "y1": 0, "x2": 10, "y2": 10, "confidence": -0.2}]}`))
		}},
	}

	path := writeFile(t, "a.jpg", []byte("x"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, _ := NewClient(srv.URL, time.Second)
			if _, err := c.Detect(context.Background(), path, 0); err == nil {
				t.Error("expected error")
			}
		})
	}

	c, _ := NewClient("http://127.0.0.1:1/predict", time.Second)
	if _, err := c.Detect(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), 0); err == nil {
		t.Error("expected error for missing image")
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL+"/predict", time.Second)
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Errorf("expected healthy service: %v", err)
	}
	healthy = false
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Error("expected unhealthy service error")
	}
}

func TestHealthURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:5000/predict":  "http://localhost:5000/health",
		"http://localhost:5000/predict/": "http://localhost:5000/health",
		"http://localhost:5000":          "http://localhost:5000/health",
		"https://ml.local/v1/detect":     "https://ml.local/v1/health",
	}
	for in, want := range tests {
		if got := healthURL(in); got != want {
			t.Errorf("healthURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient("localhost:5000/predict", 0); err == nil {
		t.Error("expected error for URL without scheme")
	}
}
