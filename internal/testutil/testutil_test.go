package testutil

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

// The failure branches of these helpers call t.Errorf/t.Fatalf and are
// exercised indirectly by every package that uses them; only the passing
// branches are verified here.
func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertInDelta(t *testing.T) {
	t.Parallel()

	AssertInDelta(t, 0.3001, 0.3, 0.001)
	AssertInDelta(t, -1, -1, 0)
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest("GET", "/test")
	if req.Method != "GET" {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.URL.Path != "/test" {
		t.Errorf("path = %s, want /test", req.URL.Path)
	}
}

func TestNewJSONRequest(t *testing.T) {
	t.Parallel()

	req := NewJSONRequest("POST", "/test", `{"mode":"demo"}`)
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %s, want application/json", got)
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	var decoded struct {
		Mode string `json:"mode"`
	}
	DecodeJSONBody(t, strings.NewReader(`{"mode":"demo"}`), &decoded)
	if decoded.Mode != "demo" {
		t.Errorf("mode = %s, want demo", decoded.Mode)
	}
}

func TestNewTestRecorder(t *testing.T) {
	t.Parallel()

	rec := NewTestRecorder()
	if rec == nil {
		t.Fatal("recorder is nil")
	}
}
