package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/testutil"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
	"github.com/kestrel-sense/driverwatch/internal/units"
	"github.com/kestrel-sense/driverwatch/internal/version"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	opts := engine.DefaultOptions("driver-test")
	opts.Clock = timeutil.NewMockClock(testStart)
	eng := engine.New(opts)
	t.Cleanup(eng.Close)
	return NewServer(eng), eng
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/healthz"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestVersionEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/version"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got map[string]string
	testutil.DecodeJSONBody(t, rec.Body, &got)
	if got["version"] != version.String() {
		t.Errorf("version = %q, want %q", got["version"], version.String())
	}
}

func TestStateMatchesEngineSnapshot(t *testing.T) {
	s, eng := newTestServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/state"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got engine.Snapshot
	testutil.DecodeJSONBody(t, rec.Body, &got)
	if diff := cmp.Diff(eng.Snapshot(), got); diff != "" {
		t.Errorf("state response differs from engine snapshot (-want +got):\n%s", diff)
	}
	if got.DriverID != "driver-test" {
		t.Errorf("DriverID = %q, want driver-test", got.DriverID)
	}
}

func TestStateRejectsPost(t *testing.T) {
	s, _ := newTestServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/state"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestConfigReportsIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/config"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got map[string]interface{}
	testutil.DecodeJSONBody(t, rec.Body, &got)
	if got["driverId"] != "driver-test" {
		t.Errorf("driverId = %v, want driver-test", got["driverId"])
	}
	if got["mode"] != units.ModeNormal {
		t.Errorf("mode = %v, want %s", got["mode"], units.ModeNormal)
	}
}

func TestModeRoundTrip(t *testing.T) {
	s, eng := newTestServer(t)
	mux := s.ServeMux()

	t.Run("get default", func(t *testing.T) {
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/mode"))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		var got map[string]string
		testutil.DecodeJSONBody(t, rec.Body, &got)
		if got["mode"] != units.ModeNormal {
			t.Errorf("mode = %q, want %s", got["mode"], units.ModeNormal)
		}
	})

	t.Run("set via json", func(t *testing.T) {
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodPost, "/api/mode", `{"mode":"demo"}`))
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		if eng.Mode() != units.ModeDemo {
			t.Errorf("engine mode = %q, want demo", eng.Mode())
		}
	})

	t.Run("set via form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/mode", strings.NewReader("mode=normal"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, req)
		testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
		if eng.Mode() != units.ModeNormal {
			t.Errorf("engine mode = %q, want normal", eng.Mode())
		}
	})

	t.Run("reject unknown", func(t *testing.T) {
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodPost, "/api/mode", `{"mode":"turbo"}`))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	})

	t.Run("reject empty body", func(t *testing.T) {
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodPost, "/api/mode", `{}`))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	})
}

func TestCalibrationEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.ServeMux()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/calibration/start"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var snap engine.Snapshot
	testutil.DecodeJSONBody(t, rec.Body, &snap)
	if snap.CalibrationProgress != 0 {
		t.Errorf("progress after start = %v, want 0", snap.CalibrationProgress)
	}

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/calibration/stop"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	testutil.DecodeJSONBody(t, rec.Body, &snap)
	if snap.CalibrationProgress != 1 {
		t.Errorf("progress after stop = %v, want 1", snap.CalibrationProgress)
	}
}

func TestMicStartWithoutSourceConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.ServeMux()

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/mic/start"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusConflict)

	// Stop is a no-op without a source and still reports cleanly.
	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodPost, "/api/mic/stop"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestEventsStreamDeliversSnapshot(t *testing.T) {
	s, eng := newTestServer(t)
	srv := httptest.NewServer(s.ServeMux())
	defer srv.Close()

	// Publish a snapshot so the subscription is primed with current state.
	eng.StartCalibration()

	resp, err := http.Get(srv.URL + "/api/events")
	testutil.AssertNoError(t, err)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no data line received: %v", scanner.Err())
	}

	var ev engine.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("event is not valid JSON: %v", err)
	}
	if ev.Type != engine.EventSnapshot || ev.Snapshot == nil {
		t.Fatalf("first event = %+v, want snapshot", ev)
	}
	if ev.Snapshot.DriverID != "driver-test" {
		t.Errorf("snapshot DriverID = %q, want driver-test", ev.Snapshot.DriverID)
	}
}

func TestLoggingMiddlewarePreservesStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := testutil.NewTestRecorder()
	handler.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
}
