package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"media-jobs/internal/config"
	"media-jobs/internal/models"
	"media-jobs/internal/store"
)

type capturedUpload struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

type fakeObjects struct {
	uploads []capturedUpload
	err     error
}

func (f *fakeObjects) Upload(_ context.Context, bucket, key string, body io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, capturedUpload{bucket: bucket, key: key, contentType: contentType, body: data})
	return nil
}

type fakeMediaStore struct {
	saved []store.SaveMediaFileParams
	err   error
}

func (f *fakeMediaStore) SaveMediaFile(_ context.Context, p store.SaveMediaFileParams) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, p)
	return int64(len(f.saved)), nil
}

func testDownloadConfig() config.Config {
	return config.Config{
		PrivateBucketName: "private",
		PublicBucketName:  "public",
		DownloadMaxBytes:  1 << 20,
		DownloadTimeout:   5 * time.Second,
		PreviewMaxDim:     100,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func downloadJob(sourceURL string) models.Job {
	return models.Job{
		ID:      1,
		Token:   "jdown_test",
		Type:    "media_download",
		Payload: map[string]any{"source_url": sourceURL},
	}
}

func TestDownloadHandlerStoresOriginalAndPreview(t *testing.T) {
	source := pngBytes(t, 400, 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(source)
	}))
	defer srv.Close()

	objects := &fakeObjects{}
	media := &fakeMediaStore{}
	h := NewDownloadHandler(testDownloadConfig(), objects, media, zap.NewNop())

	if err := h.Handle(context.Background(), downloadJob(srv.URL)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(objects.uploads) != 2 {
		t.Fatalf("expected original + preview uploads, got %d", len(objects.uploads))
	}
	original, preview := objects.uploads[0], objects.uploads[1]

	if original.bucket != "private" {
		t.Fatalf("original bucket = %q, want private", original.bucket)
	}
	if !strings.HasPrefix(original.key, "/media_uploads/") || !strings.HasSuffix(original.key, "/original_upload.bin") {
		t.Fatalf("unexpected original key %q", original.key)
	}
	if !bytes.Equal(original.body, source) {
		t.Fatalf("original body mangled: %d bytes vs %d", len(original.body), len(source))
	}
	if preview.bucket != "public" {
		t.Fatalf("preview bucket = %q, want public", preview.bucket)
	}
	if path.Dir(preview.key) != path.Dir(original.key) {
		t.Fatalf("preview %q not a sibling of original %q", preview.key, original.key)
	}
	if path.Base(preview.key) != "preview.jpg" {
		t.Fatalf("preview basename = %q", path.Base(preview.key))
	}
	if preview.contentType != "image/jpeg" {
		t.Fatalf("preview content type = %q", preview.contentType)
	}

	if len(media.saved) != 1 {
		t.Fatalf("expected one media_files row, got %d", len(media.saved))
	}
	saved := media.saved[0]
	if !strings.HasPrefix(saved.Token, "mu_") {
		t.Fatalf("token %q missing upload prefix", saved.Token)
	}
	if saved.MediaType != "image" || saved.MimeType != "image/png" {
		t.Fatalf("media/mime = %q/%q", saved.MediaType, saved.MimeType)
	}
	if saved.FileSizeBytes != int64(len(source)) {
		t.Fatalf("file size = %d, want %d", saved.FileSizeBytes, len(source))
	}
}

func TestDownloadHandlerNonImageSkipsPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	objects := &fakeObjects{}
	media := &fakeMediaStore{}
	h := NewDownloadHandler(testDownloadConfig(), objects, media, zap.NewNop())

	if err := h.Handle(context.Background(), downloadJob(srv.URL)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(objects.uploads) != 1 {
		t.Fatalf("expected only the original upload, got %d", len(objects.uploads))
	}
	if media.saved[0].MediaType != "audio" {
		t.Fatalf("media type = %q, want audio", media.saved[0].MediaType)
	}
}

func TestDownloadHandlerClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := NewDownloadHandler(testDownloadConfig(), &fakeObjects{}, &fakeMediaStore{}, zap.NewNop())
	err := h.Handle(context.Background(), downloadJob(srv.URL))
	if err == nil {
		t.Fatal("expected error for 404 source")
	}
	var jobErr *JobError
	if !errors.As(err, &jobErr) || !jobErr.Permanent {
		t.Fatalf("404 should be a permanent failure, got %v", err)
	}
}

func TestDownloadHandlerServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flaky", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewDownloadHandler(testDownloadConfig(), &fakeObjects{}, &fakeMediaStore{}, zap.NewNop())
	err := h.Handle(context.Background(), downloadJob(srv.URL))
	var jobErr *JobError
	if !errors.As(err, &jobErr) || jobErr.Permanent {
		t.Fatalf("502 should be a retryable failure, got %v", err)
	}
}

func TestDownloadHandlerEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	cfg := testDownloadConfig()
	cfg.DownloadMaxBytes = 1024
	h := NewDownloadHandler(cfg, &fakeObjects{}, &fakeMediaStore{}, zap.NewNop())

	err := h.Handle(context.Background(), downloadJob(srv.URL))
	var jobErr *JobError
	if !errors.As(err, &jobErr) || !jobErr.Permanent {
		t.Fatalf("oversized source should be a permanent failure, got %v", err)
	}
}

func TestDownloadHandlerRejectsMissingSourceURL(t *testing.T) {
	h := NewDownloadHandler(testDownloadConfig(), &fakeObjects{}, &fakeMediaStore{}, zap.NewNop())
	job := models.Job{ID: 2, Token: "jdown_bad", Type: "media_download", Payload: map[string]any{}}

	err := h.Handle(context.Background(), job)
	var jobErr *JobError
	if !errors.As(err, &jobErr) || !jobErr.Permanent {
		t.Fatalf("missing source_url should be a permanent failure, got %v", err)
	}
}

func TestDownloadHandlerBrokenPreviewStillSucceeds(t *testing.T) {
	// Claims to be an image but isn't decodable; the original must still be
	// stored and the job must succeed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("not actually a png"))
	}))
	defer srv.Close()

	objects := &fakeObjects{}
	media := &fakeMediaStore{}
	h := NewDownloadHandler(testDownloadConfig(), objects, media, zap.NewNop())

	if err := h.Handle(context.Background(), downloadJob(srv.URL)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(objects.uploads) != 1 {
		t.Fatalf("expected only the original upload, got %d", len(objects.uploads))
	}
	if len(media.saved) != 1 {
		t.Fatalf("expected media_files row despite broken preview")
	}
}
