package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voicemode/audio-manager/internal/audio"
	"github.com/voicemode/audio-manager/internal/service"
)

// newTestRouter starts a service on a fast mock device and returns its
// route table.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := service.DefaultConfig()
	cfg.ReservationTimeout = 200 * time.Millisecond
	cfg.ChimeCooldown = 100 * time.Millisecond
	cfg.WaitTimeout = 2 * time.Second

	dev := audio.NewMockDevice(cfg.DeviceSampleRate, 500)
	svc := service.New(cfg, dev)
	svc.Start(context.Background())
	t.Cleanup(svc.Shutdown)

	return New(svc, "127.0.0.1:0", "test").Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, out
}

// speakBody builds a /speak payload carrying d of silence.
func speakBody(t *testing.T, project string, d time.Duration) string {
	t.Helper()
	pcm := make([]byte, int(d.Seconds()*24000*2))
	body, err := json.Marshal(map[string]interface{}{
		"audio_data": base64.StdEncoding.EncodeToString(pcm),
		"project":    project,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)
	rec, out := doJSON(t, h, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if out["status"] != "ok" {
		t.Errorf("status field = %v, want ok", out["status"])
	}
	if out["version"] != "test" {
		t.Errorf("version = %v, want test", out["version"])
	}
	if _, ok := out["uptime_seconds"]; !ok {
		t.Error("missing uptime_seconds")
	}
}

func TestStatusShape(t *testing.T) {
	h := newTestRouter(t)
	_, out := doJSON(t, h, http.MethodGet, "/status", "")

	for _, field := range []string{
		"playing", "paused", "current_project", "queue_length",
		"pending_reservations", "total_enqueued", "total_played",
		"estimated_wait_ms", "dictation_active", "hotkey", "hotkey_pressed",
	} {
		if _, ok := out[field]; !ok {
			t.Errorf("missing status field %q", field)
		}
	}
	if out["current_project"] != nil {
		t.Errorf("current_project = %v, want null while idle", out["current_project"])
	}
}

func TestSpeakThenWait(t *testing.T) {
	h := newTestRouter(t)

	_, out := doJSON(t, h, http.MethodPost, "/speak", speakBody(t, "alpha", time.Second))
	if out["queued"] != true {
		t.Fatalf("speak response = %v", out)
	}
	id, _ := out["item_id"].(string)
	if id == "" {
		t.Fatal("speak response missing item_id")
	}

	_, out = doJSON(t, h, http.MethodPost, "/wait/"+id, "")
	if out["completed"] != true {
		t.Errorf("wait response = %v, want completed", out)
	}
}

func TestSpeakValidation(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", "{not json", "Invalid JSON"},
		{"missing audio", `{"project":"alpha"}`, "Missing audio_data"},
		{"bad base64", `{"audio_data":"!!!"}`, "Invalid base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := doJSON(t, h, http.MethodPost, "/speak", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			msg, _ := out["error"].(string)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("error = %q, want to contain %q", msg, tt.want)
			}
		})
	}
}

func TestReserveFillWaitFlow(t *testing.T) {
	h := newTestRouter(t)

	_, out := doJSON(t, h, http.MethodPost, "/reserve", `{"project":"alpha"}`)
	if out["reserved"] != true {
		t.Fatalf("reserve response = %v", out)
	}
	if out["position"] != float64(1) {
		t.Errorf("position = %v, want 1", out["position"])
	}
	if out["should_announce"] != false {
		t.Errorf("should_announce = %v, want false on an idle service", out["should_announce"])
	}
	id, _ := out["item_id"].(string)

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 4800))
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]string{"audio_data": pcm}); err != nil {
		t.Fatal(err)
	}
	_, out = doJSON(t, h, http.MethodPost, "/fill/"+id, buf.String())
	if out["filled"] != true {
		t.Fatalf("fill response = %v", out)
	}

	_, out = doJSON(t, h, http.MethodPost, "/wait/"+id+"?timeout=2", "")
	if out["completed"] != true {
		t.Errorf("wait response = %v, want completed", out)
	}
}

func TestFillUnknownItem(t *testing.T) {
	h := newTestRouter(t)

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 16))
	rec, out := doJSON(t, h, http.MethodPost, "/fill/no-such-id", `{"audio_data":"`+pcm+`"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (missing slot is not an HTTP error)", rec.Code)
	}
	if out["filled"] != false {
		t.Errorf("filled = %v, want false", out["filled"])
	}
	if out["error"] != "Item not found or expired" {
		t.Errorf("error = %v", out["error"])
	}
}

func TestWaitUnknownItemCompletes(t *testing.T) {
	h := newTestRouter(t)
	_, out := doJSON(t, h, http.MethodPost, "/wait/ghost", "")
	if out["completed"] != true {
		t.Errorf("wait on unknown id = %v, want completed", out)
	}
}

func TestWaitTimeout(t *testing.T) {
	h := newTestRouter(t)

	// Reserved but never filled: the short wait times out first.
	_, out := doJSON(t, h, http.MethodPost, "/reserve", `{"project":"alpha"}`)
	id, _ := out["item_id"].(string)

	_, out = doJSON(t, h, http.MethodPost, "/wait/"+id+"?timeout=0.05", "")
	if out["completed"] != false {
		t.Fatalf("wait response = %v, want timeout", out)
	}
	if out["error"] != "timeout" {
		t.Errorf("error = %v, want timeout", out["error"])
	}
}

func TestPauseResume(t *testing.T) {
	h := newTestRouter(t)

	_, out := doJSON(t, h, http.MethodPost, "/pause", "")
	if out["paused"] != true {
		t.Errorf("pause response = %v", out)
	}
	_, st := doJSON(t, h, http.MethodGet, "/status", "")
	if st["paused"] != true {
		t.Error("status should report paused")
	}

	_, out = doJSON(t, h, http.MethodPost, "/resume", "")
	if out["paused"] != false {
		t.Errorf("resume response = %v", out)
	}
}

func TestClear(t *testing.T) {
	h := newTestRouter(t)

	doJSON(t, h, http.MethodPost, "/pause", "")
	doJSON(t, h, http.MethodPost, "/reserve", `{"project":"alpha"}`)
	doJSON(t, h, http.MethodPost, "/reserve", `{"project":"beta"}`)

	_, out := doJSON(t, h, http.MethodPost, "/clear", `{"project":"alpha"}`)
	if out["cleared"] != float64(1) {
		t.Errorf("cleared = %v, want 1", out["cleared"])
	}

	// Empty body clears everything left.
	_, out = doJSON(t, h, http.MethodPost, "/clear", "")
	if out["cleared"] != float64(1) {
		t.Errorf("cleared = %v, want 1", out["cleared"])
	}
}

func TestStopIdle(t *testing.T) {
	h := newTestRouter(t)
	_, out := doJSON(t, h, http.MethodPost, "/stop", "")
	if out["stopped"] != false {
		t.Errorf("stop on idle service = %v, want stopped false", out)
	}
}

func TestChimeAllowed(t *testing.T) {
	h := newTestRouter(t)

	_, out := doJSON(t, h, http.MethodPost, "/chime-allowed", "")
	if out["allowed"] != true {
		t.Fatalf("first chime = %v, want allowed", out)
	}
	_, out = doJSON(t, h, http.MethodPost, "/chime-allowed", "")
	if out["allowed"] != false {
		t.Fatalf("second chime = %v, want denied", out)
	}
	remaining, _ := out["seconds_remaining"].(float64)
	if remaining <= 0 {
		t.Errorf("seconds_remaining = %v, want > 0", remaining)
	}
}

func TestDefaultProject(t *testing.T) {
	h := newTestRouter(t)

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, out := doJSON(t, h, http.MethodPost, "/speak", `{"audio_data":"`+pcm+`"}`)
	if out["queued"] != true {
		t.Fatalf("speak response = %v", out)
	}
	// The item carries the fallback project; clearing it by name works.
	doJSON(t, h, http.MethodPost, "/pause", "")
	_, out = doJSON(t, h, http.MethodPost, "/reserve", `{}`)
	id, _ := out["item_id"].(string)
	if id == "" {
		t.Fatal("reserve response missing item_id")
	}
	_, out = doJSON(t, h, http.MethodPost, "/clear", `{"project":"unknown"}`)
	if cleared, _ := out["cleared"].(float64); cleared < 1 {
		t.Errorf("cleared = %v, want at least the defaulted reservation", out["cleared"])
	}
}
