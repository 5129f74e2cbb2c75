package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
}

func TestStandardClient_NilDefaults(t *testing.T) {
	client := NewStandardClient(nil)
	if client.Client != http.DefaultClient {
		t.Error("nil argument should wrap http.DefaultClient")
	}
}

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"result": "success"}`)
	mock.AddResponse(http.StatusBadGateway, "upstream down")

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/api", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"result": "success"}` {
		t.Errorf("got body %q", string(body))
	}

	resp2, err := mock.Do(req)
	if err != nil {
		t.Fatalf("second Do failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadGateway {
		t.Errorf("got status %d, want %d", resp2.StatusCode, http.StatusBadGateway)
	}

	if mock.RequestCount() != 2 {
		t.Errorf("got %d requests, want 2", mock.RequestCount())
	}
}

func TestMockHTTPClient_ExhaustedQueueDefaultsOK(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestMockHTTPClient_RecordsBody(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodPost, "http://example.com/api", strings.NewReader(`{"name": "test"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if got := mock.GetBody(0); got != `{"name": "test"}` {
		t.Errorf("recorded body = %q", got)
	}
	recorded := mock.GetRequest(0)
	if recorded == nil {
		t.Fatal("expected request to be recorded")
	}
	if recorded.Header.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", recorded.Header.Get("Content-Type"))
	}
}

func TestMockHTTPClient_ErrorResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	wantErr := errors.New("connection refused")
	mock.AddErrorResponse(wantErr)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	_, err := mock.Do(req)
	if !errors.Is(err, wantErr) {
		t.Errorf("got err %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("custom")),
			Header:     make(http.Header),
		}, nil
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusTeapot)
	}
}

func TestMockHTTPClient_HonorsCancelledContext(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "never seen")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)

	_, err := mock.Do(req)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got err %v, want context.Canceled", err)
	}
	if mock.RequestCount() != 0 {
		t.Error("cancelled request should not be recorded")
	}
}

func TestMockHTTPClient_Reset(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "x")
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, _ := mock.Do(req)
	resp.Body.Close()

	mock.Reset()
	if mock.RequestCount() != 0 || len(mock.Responses) != 0 {
		t.Error("Reset did not clear state")
	}
}
