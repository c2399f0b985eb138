package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clicklone/clicklone/internal/logging"
)

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("hello world"), 5)
	if err != nil {
		t.Fatalf("ReadAllWithLimit error: %v", err)
	}
	if !truncated || string(data) != "hello" {
		t.Fatalf("got %q truncated=%v", data, truncated)
	}

	data, truncated, err = ReadAllWithLimit(strings.NewReader("hi"), 5)
	if err != nil || truncated || string(data) != "hi" {
		t.Fatalf("got %q truncated=%v err=%v", data, truncated, err)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("123456"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	data, err := ReadAllStrict(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("got %q err=%v", data, err)
	}
}

func TestWriteErrorResponseIncludesTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(context.Background(), "trace-1"))
	rec := httptest.NewRecorder()

	WriteErrorResponse(rec, req, http.StatusNotFound, "not_found", "pending result not found", map[string]any{"id": "r1"})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "not_found" || body.Error.TraceID != "trace-1" || body.Error.Details["id"] != "r1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
