package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"babygen/internal/domain"
	"babygen/internal/enhance"
	"babygen/internal/http/handlers"
	"babygen/internal/http/httpapi"
	"babygen/internal/infra"
	"babygen/internal/pipeline"
	"babygen/internal/session"
	"babygen/internal/stability"
	"babygen/internal/storage"
)

type stubGenerator struct {
	validateErr error
	generateErr error
	delay       time.Duration
}

func (s *stubGenerator) GenerateFromImage(context.Context, stability.ImageToImageRequest) (*stability.Result, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &stability.Result{Image: []byte("outline-bytes"), Seed: "42"}, nil
}

func (s *stubGenerator) GenerateWithStructure(context.Context, stability.StructureRequest) (*stability.Result, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &stability.Result{Image: []byte("structure-bytes")}, nil
}

func (s *stubGenerator) ValidateKey(context.Context) error { return s.validateErr }

func newTestServer(t *testing.T, gen pipeline.Generator) *httptest.Server {
	t.Helper()
	cfg := &infra.Config{
		DefaultContrast:   1.3,
		DefaultBrightness: 1.2,
		RateLimitPerMin:   1000,
	}
	files, err := storage.NewFileStore(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	enhancer := enhance.NewCache(enhance.NewFilter(enhance.DefaultSettings(), zerolog.Nop()))
	store := session.NewMemoryStore()
	controller := pipeline.NewController(gen, files, enhancer, store, "sk-test", pipeline.DefaultParams(), zerolog.Nop())
	app := handlers.NewApp(zerolog.Nop(), cfg, store, controller, enhancer, files)
	srv := httptest.NewServer(httpapi.NewRouter(app))
	t.Cleanup(srv.Close)
	return srv
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, image.NewGray(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.ID
}

func uploadImage(t *testing.T, srv *httptest.Server, id string) map[string]any {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("image", "scan.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(testPNG(t)); err != nil {
		t.Fatalf("write: %v", err)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/upload", mw.FormDataContentType(), buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return body
}

func postIntent(t *testing.T, srv *httptest.Server, id string, payload map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/intent", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode intent: %v", err)
	}
	return resp, body
}

func getSession(t *testing.T, srv *httptest.Server, id string) map[string]any {
	t.Helper()
	resp, err := http.Get(srv.URL + "/v1/sessions/" + id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return body
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	id := createSession(t, srv)

	uploaded := uploadImage(t, srv, id)
	variants, ok := uploaded["variants"].([]any)
	if !ok || len(variants) != 4 {
		t.Fatalf("variants = %v, want four", uploaded["variants"])
	}
	if uploaded["fingerprint"] == "" {
		t.Errorf("missing fingerprint")
	}

	resp, body := postIntent(t, srv, id, map[string]any{"intent": "generate"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate status = %d: %v", resp.StatusCode, body)
	}
	if body["stage_label"] != "outline" {
		t.Errorf("stage_label = %v", body["stage_label"])
	}
	artifact, _ := body["artifact"].(map[string]any)
	if artifact == nil || artifact["image_base64"] == "" {
		t.Errorf("artifact payload missing image: %v", body["artifact"])
	}

	resp, body = postIntent(t, srv, id, map[string]any{"intent": "continue"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("continue status = %d: %v", resp.StatusCode, body)
	}
	if body["stage_label"] != "final" {
		t.Errorf("stage_label = %v after continue", body["stage_label"])
	}

	state := getSession(t, srv, id)
	if state["flags_empty"] != true {
		t.Errorf("transient flags visible outside a cycle")
	}
	if state["history_length"].(float64) != 2 {
		t.Errorf("history_length = %v", state["history_length"])
	}
	committed, _ := state["committed"].(map[string]any)
	if _, ok := committed["outline"]; !ok {
		t.Errorf("outline artifact not committed: %v", committed)
	}
}

func TestConcurrentIntentsDoNotLoseHistory(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{delay: 100 * time.Millisecond})
	id := createSession(t, srv)
	uploadImage(t, srv, id)

	const cycles = 2
	var wg sync.WaitGroup
	statuses := make([]int, cycles)
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/intent", "application/json",
				strings.NewReader(`{"intent":"generate"}`))
			if err != nil {
				t.Errorf("intent %d: %v", i, err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()
	for i, status := range statuses {
		if status != http.StatusOK {
			t.Fatalf("intent %d: status = %d (all: %v)", i, status, statuses)
		}
	}

	state := getSession(t, srv, id)
	if got := state["history_length"].(float64); got != cycles {
		t.Errorf("history_length after %d successful generations = %v, want %d", cycles, got, cycles)
	}
	if state["flags_empty"] != true {
		t.Errorf("transient flags visible after concurrent cycles")
	}
}

func TestArtifactDownload(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	id := createSession(t, srv)
	uploadImage(t, srv, id)

	resp, err := http.Get(srv.URL + "/v1/sessions/" + id + "/artifact")
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("artifact before generation: status = %d, want 404", resp.StatusCode)
	}

	postIntent(t, srv, id, map[string]any{"intent": "generate"})

	resp, err = http.Get(srv.URL + "/v1/sessions/" + id + "/artifact")
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	data := &bytes.Buffer{}
	_, _ = data.ReadFrom(resp.Body)
	if data.String() != "outline-bytes" {
		t.Errorf("artifact body = %q", data.String())
	}
}

func TestSelectEndpointSubstitutesMissingVariant(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	id := createSession(t, srv)
	uploadImage(t, srv, id)

	raw := []byte(`{"variant":"original"}`)
	resp, err := http.Post(srv.URL+"/v1/sessions/"+id+"/select", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["selected_enhancement"] != "original" {
		t.Errorf("selection = %v", body["selected_enhancement"])
	}
	if _, warned := body["warning"]; warned {
		t.Errorf("valid selection produced a warning")
	}
}

func TestIntentErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		gen        *stubGenerator
		wantStatus int
		wantCode   string
		wantAction string
	}{
		{
			name:       "invalid credential",
			gen:        &stubGenerator{validateErr: domain.ErrInvalidCredential},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_credential",
			wantAction: "re-enter api key",
		},
		{
			name:       "quota",
			gen:        &stubGenerator{generateErr: &domain.RemoteError{Status: 403, Body: "no credits"}},
			wantStatus: http.StatusForbidden,
			wantCode:   "quota_exceeded",
			wantAction: "retry",
		},
		{
			name:       "remote failure",
			gen:        &stubGenerator{generateErr: &domain.RemoteError{Status: 500, Body: "boom"}},
			wantStatus: http.StatusBadGateway,
			wantCode:   "remote_failure",
			wantAction: "retry",
		},
		{
			name:       "timeout",
			gen:        &stubGenerator{generateErr: fmt.Errorf("%w: deadline", domain.ErrRemoteTimeout)},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "remote_timeout",
			wantAction: "retry",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.gen)
			id := createSession(t, srv)
			uploadImage(t, srv, id)

			resp, body := postIntent(t, srv, id, map[string]any{"intent": "generate"})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body["error"] != tt.wantCode {
				t.Errorf("error = %v, want %q", body["error"], tt.wantCode)
			}
			if body["action"] != tt.wantAction {
				t.Errorf("action = %v, want %q", body["action"], tt.wantAction)
			}

			// Flags are cleared and persisted even on failure.
			state := getSession(t, srv, id)
			if state["flags_empty"] != true {
				t.Errorf("flags survived a failed cycle")
			}
		})
	}
}

func TestIntentMissingSource(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	id := createSession(t, srv)

	resp, body := postIntent(t, srv, id, map[string]any{"intent": "generate"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "missing_input" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestIntentRejectsUnknownIntent(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	id := createSession(t, srv)
	resp, body := postIntent(t, srv, id, map[string]any{"intent": "advance"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(body["message"].(string), "unsupported intent") {
		t.Errorf("message = %v", body["message"])
	}
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	resp, err := http.Get(srv.URL + "/v1/sessions/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOutputsZip(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	resp, err := http.Get(srv.URL + "/v1/outputs/zip")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty outputs: status = %d, want 404", resp.StatusCode)
	}

	id := createSession(t, srv)
	uploadImage(t, srv, id)
	postIntent(t, srv, id, map[string]any{"intent": "generate"})

	resp, err = http.Get(srv.URL + "/v1/outputs/zip")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("zip status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "baby_portraits_") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})
	resp, err := http.Get(srv.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
