package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/capture"
	"github.com/teslashibe/go-intake/pkg/intake"
)

type fakeSubmitter struct {
	ack *intake.Ack
	err error
	got *intake.Payload
}

func (f *fakeSubmitter) Submit(ctx context.Context, p *intake.Payload) (*intake.Ack, error) {
	f.got = p
	return f.ack, f.err
}

type testEnv struct {
	server *Server
	ctrl   *capture.Controller
	clock  *clock.Mock
	form   *intake.Form
	rating *capture.Rating
	sub    *fakeSubmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:  clock.NewMock(),
		form:   intake.NewForm(nil),
		rating: capture.NewRating(),
		sub:    &fakeSubmitter{ack: &intake.Ack{Message: "ok", TranslatedText: "hello"}},
	}
	ctrl, err := capture.NewController(capture.Config{
		Device:    camera.NewMockDevice(8, 6),
		Publisher: env.form,
		Rating:    env.rating,
		Clock:     env.clock,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctrl.Close() })
	env.ctrl = ctrl

	env.server = NewServer("127.0.0.1:0", Deps{
		Controller: ctrl,
		Rating:     env.rating,
		Form:       env.form,
		Submitter:  env.sub,
		Camera:     camera.NewManager(camera.DefaultConfig()),
	}, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.server.App().Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, method, path, strings.NewReader(body), "application/json")
}

// captureImage runs one session to completion through the API.
func (e *testEnv) captureImage(t *testing.T) {
	t.Helper()
	resp, _ := e.do(t, "POST", "/api/capture", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("capture status = %d, want 202", resp.StatusCode)
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.ctrl.State() != capture.StateSettling {
		if time.Now().After(deadline) {
			t.Fatal("session never reached settling")
		}
		time.Sleep(5 * time.Millisecond)
	}
	e.clock.Add(capture.DefaultSettleDelay)
	e.ctrl.Wait()
}

func makeWAV(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 8000),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func multipartAudio(t *testing.T, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, "GET", "/api/status", nil, "")
	if resp.StatusCode != 200 {
		t.Fatalf("Status = %d, want 200", resp.StatusCode)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Capture.State != capture.StateIdle || st.Model != "disabled" || st.Rating != 5 {
		t.Errorf("status = %+v", st)
	}
	if st.SettleDelayMS != 3000 {
		t.Errorf("SettleDelayMS = %d, want 3000", st.SettleDelayMS)
	}
}

func TestCaptureFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "GET", "/api/capture/image", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("image before capture = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/capture", nil, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("capture = %d, want 202", resp.StatusCode)
	}
	resp, _ = env.do(t, "POST", "/api/capture", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second capture = %d, want 409", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.ctrl.State() != capture.StateSettling {
		if time.Now().After(deadline) {
			t.Fatal("session never reached settling")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, _ = env.doJSON(t, "PUT", "/api/rating", `{"rating":8}`)
	if resp.StatusCode != 200 {
		t.Fatalf("set rating = %d", resp.StatusCode)
	}
	env.clock.Add(capture.DefaultSettleDelay)
	env.ctrl.Wait()

	resp, body := env.do(t, "GET", "/api/capture/image", nil, "")
	if resp.StatusCode != 200 {
		t.Fatalf("image = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Rating") != "8" {
		t.Errorf("X-Rating = %q, want 8", resp.Header.Get("X-Rating"))
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	// No model configured, so no overlay.
	resp, _ = env.do(t, "GET", "/api/capture/overlay", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("overlay = %d, want 404", resp.StatusCode)
	}
}

func TestCaptureAfterClose(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl.Close()
	resp, _ := env.do(t, "POST", "/api/capture", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("capture after close = %d, want 503", resp.StatusCode)
	}
}

func TestRating(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		body string
		want int
	}{
		{`{"rating":10}`, 200},
		{`{"rating":0}`, 400},
		{`{"rating":11}`, 400},
		{`not json`, 400},
	}
	for _, tt := range tests {
		resp, _ := env.doJSON(t, "PUT", "/api/rating", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("PUT %s = %d, want %d", tt.body, resp.StatusCode, tt.want)
		}
	}
	_, body := env.do(t, "GET", "/api/rating", nil, "")
	if !strings.Contains(string(body), `"rating":10`) {
		t.Errorf("rating body = %s", body)
	}
}

func TestOptionsAndQuestionnaire(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, "GET", "/api/options", nil, "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), "cultural-exercise-rest") {
		t.Errorf("options = %d %s", resp.StatusCode, body)
	}

	resp, _ = env.doJSON(t, "PUT", "/api/questionnaire", `{"id":"7","treatment":"surgery"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid questionnaire = %d, want 400", resp.StatusCode)
	}
	resp, body = env.doJSON(t, "PUT", "/api/questionnaire",
		`{"id":"7","treatment":"medication-prescribed","symptoms":["Cough"],"additionalInfo":"x"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("questionnaire = %d %s", resp.StatusCode, body)
	}
	if q := env.form.Questionnaire(); q.ID != "7" || len(q.Symptoms) != 1 {
		t.Errorf("stored questionnaire = %+v", q)
	}
}

func TestAudioUpload(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartAudio(t, makeWAV(t))
	resp, data := env.do(t, "POST", "/api/audio", body, ct)
	if resp.StatusCode != 200 {
		t.Fatalf("audio = %d %s", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), `"sample_rate":8000`) {
		t.Errorf("audio info = %s", data)
	}

	body, ct = multipartAudio(t, []byte("not a wav"))
	resp, _ = env.do(t, "POST", "/api/audio", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("garbage audio = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/audio", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing audio = %d, want 400", resp.StatusCode)
	}
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, "POST", "/api/submit", nil, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("incomplete submit = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"missing":["image","audio","id","treatment","symptoms"]`) {
		t.Errorf("body = %s", body)
	}

	env.captureImage(t)
	if _, err := env.form.SetAudio(makeWAV(t)); err != nil {
		t.Fatal(err)
	}
	err := env.form.SetQuestionnaire(intake.Questionnaire{
		ID: "9", Treatment: intake.TreatmentCulturalMedication, Symptoms: []string{"Fever"},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, body = env.do(t, "POST", "/api/submit", nil, "")
	if resp.StatusCode != 200 {
		t.Fatalf("submit = %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"translated_text":"hello"`) {
		t.Errorf("body = %s", body)
	}
	if env.sub.got == nil || env.sub.got.Rating != capture.DefaultRating {
		t.Errorf("submitted payload = %+v", env.sub.got)
	}

	env.sub.err = &intake.APIError{StatusCode: 500, Detail: "whisper down"}
	resp, body = env.do(t, "POST", "/api/submit", nil, "")
	if resp.StatusCode != http.StatusBadGateway || !strings.Contains(string(body), "whisper down") {
		t.Errorf("backend failure = %d %s", resp.StatusCode, body)
	}

	env.sub.err = errors.New("connection refused")
	resp, _ = env.do(t, "POST", "/api/submit", nil, "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("transport failure = %d, want 502", resp.StatusCode)
	}
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	env.captureImage(t)
	env.rating.Set(9)
	env.ctrl.Preview().Set(image.NewNRGBA(image.Rect(0, 0, 8, 6)))

	resp, _ := env.do(t, "POST", "/api/reset", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset = %d, want 204", resp.StatusCode)
	}
	if _, _, ok := env.form.Image(); ok {
		t.Error("image should be cleared")
	}
	if env.rating.Value() != capture.DefaultRating {
		t.Errorf("rating = %d, want default", env.rating.Value())
	}
	if !env.ctrl.Preview().Empty() {
		t.Error("overlay should be cleared")
	}
	if resp, _ := env.do(t, "GET", "/api/capture/overlay", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("overlay after reset = %d, want 404", resp.StatusCode)
	}
}

func TestCameraConfig(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, "GET", "/api/camera/config", nil, "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"width":640`) {
		t.Errorf("config = %d %s", resp.StatusCode, body)
	}

	resp, body = env.doJSON(t, "PUT", "/api/camera/config", `{"preset":"720p"}`)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"width":1280`) {
		t.Errorf("preset update = %d %s", resp.StatusCode, body)
	}

	resp, _ = env.doJSON(t, "PUT", "/api/camera/config", `{"bogus":1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown key = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.doJSON(t, "PUT", "/api/camera/config", `{"width":99999}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid width = %d, want 400", resp.StatusCode)
	}

	resp, body = env.do(t, "GET", "/api/camera/presets", nil, "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), "1080p") {
		t.Errorf("presets = %d %s", resp.StatusCode, body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, "GET", "/ws/status", nil, "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("plain GET /ws/status = %d, want 426", resp.StatusCode)
	}
}

func TestStatusWebSocket(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.server.StartHubs(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go env.server.App().Listener(ln)
	defer env.server.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first EventMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first.Type != "status" || first.Status == nil || first.Status.Capture.State != capture.StateIdle {
		t.Errorf("first message = %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.server.StatusHub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.server.PublishEvent(capture.Event{SessionID: "s1", State: capture.StateSettling, Previous: capture.StateAcquiringDevice})
	var ev EventMessage
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "state" || ev.Event == nil || ev.Event.State != capture.StateSettling || ev.Event.SessionID != "s1" {
		t.Errorf("event = %+v", ev)
	}
}
