package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/bodydetect/internal/event"
	"github.com/ayusman/bodydetect/internal/metrics"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{Events: event.NewMultiplexer(nil)})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["subscribed"] != false {
			t.Errorf("expected subscribed false, got %v", response["subscribed"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/commands", "/api/events", "/metrics", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameReceived()

	s := New(Config{Gatherer: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bodydetect_frames_received_total 1") {
		t.Errorf("expected frames counter in output, got:\n%s", rec.Body.String())
	}
}

func TestServer_RecoversFromPanics(t *testing.T) {
	s := New(Config{})
	s.mux.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestServer_ShutdownReleasesAccessLog(t *testing.T) {
	s := New(Config{})

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := s.accessLog.Write([]byte("GET /\n")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected closed access log, got %v", err)
	}

	// Shutting down twice is harmless.
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}

func dialEvents(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEvents_StreamsToSubscriber(t *testing.T) {
	mux := event.NewMultiplexer(nil)
	ts := httptest.NewServer(New(Config{Events: mux}))
	defer ts.Close()

	conn := dialEvents(t, ts, "")
	waitFor(t, mux.HasSink)

	mux.Publish(event.Error{Code: event.CodeCameraFrame, Message: "bad frame"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Errorf("expected text message, got %d", msgType)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if got["type"] != "error" || got["message"] != "bad frame" {
		t.Errorf("unexpected event %v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return !mux.HasSink() })
}

func TestEvents_NewSubscriberSupersedesOld(t *testing.T) {
	mux := event.NewMultiplexer(nil)
	ts := httptest.NewServer(New(Config{Events: mux}))
	defer ts.Close()

	first := dialEvents(t, ts, "")
	waitFor(t, mux.HasSink)
	second := dialEvents(t, ts, "?codec=cbor")

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Text != CloseSuperseded {
		t.Errorf("expected close reason %q, got %q", CloseSuperseded, closeErr.Text)
	}

	mux.Publish(event.Image{Bytes: []byte{0xff, 0xd8}, Width: 2, Height: 1})

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := second.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("expected binary message, got %d", msgType)
	}
	got, err := event.CBORCodec{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got["type"] != "image" {
		t.Errorf("expected image event, got %v", got["type"])
	}

	// The superseded connection going away must not cancel the new one.
	if !mux.HasSink() {
		t.Error("expected second subscriber to remain registered")
	}
}

func TestEvents_UnknownCodec(t *testing.T) {
	ts := httptest.NewServer(New(Config{Events: event.NewMultiplexer(nil)}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?codec=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status %d, got %v", http.StatusBadRequest, resp)
	}
}
