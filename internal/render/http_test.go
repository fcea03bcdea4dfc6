package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/byessilyurt/sahibinden-instagram-generator/internal/listing"
)

type stubGenerator struct {
	media   *Media
	err     error
	baseURL string
	got     listing.Listing
}

func (s *stubGenerator) RenderPost(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	s.baseURL, s.got = baseURL, l
	return s.media, s.err
}

func (s *stubGenerator) RenderStory(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	s.baseURL, s.got = baseURL, l
	return s.media, s.err
}

func (s *stubGenerator) RenderFlyer(ctx context.Context, baseURL string, l listing.Listing) (*Media, error) {
	s.baseURL, s.got = baseURL, l
	return s.media, s.err
}

func newRenderRouter(svc Generator, opts HandlerOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST(PathPost, PostHandler(svc, opts))
	router.POST(PathStory, StoryHandler(svc, opts))
	router.POST(PathFlyer, FlyerHandler(svc, opts))
	return router
}

func TestPostHandlerSuccess(t *testing.T) {
	svc := &stubGenerator{media: &Media{Data: []byte("jpeg"), ContentType: ContentTypeJPEG}}
	router := newRenderRouter(svc, HandlerOptions{})

	body := `{"baslik":"Daire","fiyat":"1 TL","konum":"Kadıköy","images":["data:image/png;base64,AAAA"]}`
	req := httptest.NewRequest(http.MethodPost, PathPost, strings.NewReader(body))
	req.Host = "renderer.local:3000"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != ContentTypeJPEG {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "instagram-post.jpg") {
		t.Fatalf("unexpected content disposition: %s", cd)
	}
	if rec.Body.String() != "jpeg" {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
	if svc.baseURL != "http://renderer.local:3000" {
		t.Fatalf("unexpected base url: %s", svc.baseURL)
	}
	if svc.got.Title != "Daire" || svc.got.Location != "Kadıköy" {
		t.Fatalf("unexpected listing: %+v", svc.got)
	}
}

func TestGenerateHandlerRejectsEmptyImages(t *testing.T) {
	svc := &stubGenerator{}
	router := newRenderRouter(svc, HandlerOptions{})

	req := httptest.NewRequest(http.MethodPost, PathStory, strings.NewReader(`{"baslik":"x","images":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["error"] != "At least one image is required" {
		t.Fatalf("unexpected error: %v", resp)
	}
}

func TestGenerateHandlerFailureBody(t *testing.T) {
	svc := &stubGenerator{err: newError("RENDER_FAILED", "remotion render failed: boom", errors.New("exit 1"))}
	router := newRenderRouter(svc, HandlerOptions{PublicBaseURL: "https://cdn.example/"})

	req := httptest.NewRequest(http.MethodPost, PathStory, strings.NewReader(`{"images":["x"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["error"] != "Video generation failed" || resp["details"] != "remotion render failed: boom" {
		t.Fatalf("unexpected error body: %v", resp)
	}
	if svc.baseURL != "https://cdn.example" {
		t.Fatalf("unexpected base url: %s", svc.baseURL)
	}
}

func TestGenerateHandlerBodyLimit(t *testing.T) {
	router := newRenderRouter(&stubGenerator{}, HandlerOptions{MaxBodyBytes: 64})

	body := `{"images":["` + strings.Repeat("A", 200) + `"]}`
	req := httptest.NewRequest(http.MethodPost, PathFlyer, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestTempImageHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publicDir := t.TempDir()
	wsDir := filepath.Join(publicDir, "remotion_temp_abc")
	if err := os.MkdirAll(wsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, "img-1.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	router := gin.New()
	router.GET(TempRoute+"/*path", TempImageHandler(publicDir))

	cases := []struct {
		path   string
		status int
		ctype  string
	}{
		{path: "/temp-image/remotion_temp_abc/img-1.png", status: http.StatusOK, ctype: "image/png"},
		{path: "/temp-image/remotion_temp_abc/missing.png", status: http.StatusNotFound},
		{path: "/temp-image/remotion_temp_abc", status: http.StatusNotFound},
		{path: "/temp-image/..%2F..%2Fetc%2Fpasswd", status: http.StatusForbidden},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, rec.Code)
		}
		if tc.ctype != "" && rec.Header().Get("Content-Type") != tc.ctype {
			t.Fatalf("%s: unexpected content type %s", tc.path, rec.Header().Get("Content-Type"))
		}
	}
}

func TestClientRenderImage(t *testing.T) {
	var got listing.Listing
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathPost {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", "secret", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	media, err := client.RenderImage(context.Background(), listing.TitleFields{Title: "T", Price: "P"}, "img-a")
	if err != nil {
		t.Fatalf("RenderImage: %v", err)
	}
	if media.ContentType != ContentTypeJPEG || !bytes.Equal(media.Data, []byte("jpeg")) {
		t.Fatalf("unexpected media: %+v", media)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if len(got.Images) != 1 || got.Images[0] != "img-a" || got.Title != "T" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestClientRenderVideoSendsBranding(t *testing.T) {
	var got listing.Listing
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathStory {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", ContentTypeMP4)
		_, _ = w.Write([]byte("mp4"))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "", nil)
	_, err := client.RenderVideo(context.Background(), listing.TitleFields{Title: "T"}, []string{"a", "b"}, listing.Branding{
		AgentName:  "Ali",
		AgentPhone: "555",
	})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if len(got.Images) != 2 || got.AgentName != "Ali" || got.AgentPhone != "555" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestClientRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Video generation failed","details":"No valid images could be processed"}`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "", nil)
	_, err := client.RenderFlyer(context.Background(), listing.TitleFields{}, []string{"a"}, listing.Branding{})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.StatusCode != http.StatusInternalServerError || remote.Message() != "Video generation failed" || remote.Details != "No valid images could be processed" {
		t.Fatalf("unexpected remote error: %+v", remote)
	}
}

func TestRemoteErrorMessagePrefersSummary(t *testing.T) {
	stderr := strings.Repeat("remotion: frame render failed\n", 60)
	tests := []struct {
		name string
		err  RemoteError
		want string
	}{
		{"summary over details", RemoteError{StatusCode: 500, Summary: "Flyer generation failed", Details: stderr}, "Flyer generation failed"},
		{"details only", RemoteError{StatusCode: 500, Details: "No valid images could be processed"}, "No valid images could be processed"},
		{"status text", RemoteError{StatusCode: 502}, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Message(); got != tt.want {
				t.Fatalf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient(server.URL, "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.RenderImage(ctx, listing.TitleFields{}, "a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
