package control

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServerCommandDispatch(t *testing.T) {
	s, err := NewServer(ModeApp, false, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	called := false
	s.RegisterCommand("ping", func(ctx context.Context, r *http.Request) (interface{}, error) {
		called = true
		return map[string]string{"pong": "ok"}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/command/ping", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !called {
		t.Fatalf("command handler was not invoked")
	}
}

func TestServerCommandUnknown(t *testing.T) {
	s, err := NewServer(ModeApp, false, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/command/missing", nil)
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

type fakeSink struct {
	session string
	data    []byte
}

func (f *fakeSink) WriteLog(session string, data []byte) error {
	f.session = session
	f.data = append([]byte(nil), data...)
	return nil
}

func TestServerHandleLogs(t *testing.T) {
	sink := &fakeSink{}
	s, err := NewServer(ModeApp, false, sink, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("log", "session.log")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("hello from the log stream")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("mw.Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/logs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(logSessionHeader, "session-123")
	req.ContentLength = int64(body.Len())
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", w.Code, w.Body.String())
	}
	if sink.session != "session-123" {
		t.Fatalf("sink.session = %q, want session-123", sink.session)
	}
	if string(sink.data) != "hello from the log stream" {
		t.Fatalf("sink.data = %q", sink.data)
	}
}

func TestServerHandleLogsRejectsMissingSessionHeader(t *testing.T) {
	s, err := NewServer(ModeApp, false, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader([]byte("x")))
	req.ContentLength = 1
	w := httptest.NewRecorder()
	s.router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestServerTokenRequiredWhenConfigured(t *testing.T) {
	s, err := NewServer(ModeApp, true, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.Token() == "" {
		t.Fatalf("expected a generated token when requireToken=true")
	}

	s.RegisterCommand("ping", func(ctx context.Context, r *http.Request) (interface{}, error) {
		return nil, nil
	})

	guarded := s.router()
	guarded.Use(s.authMiddleware)

	req := httptest.NewRequest(http.MethodPost, "/command/ping", nil)
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status without token = %d, want 403", w.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/command/ping", nil)
	req2.Header.Set(tokenHeader, s.Token())
	w2 := httptest.NewRecorder()
	guarded.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("status with correct token = %d, want 200", w2.Code)
	}
}
