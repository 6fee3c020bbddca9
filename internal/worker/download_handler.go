package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"media-jobs/internal/bucketpath"
	"media-jobs/internal/config"
	"media-jobs/internal/entropy"
	"media-jobs/internal/models"
	"media-jobs/internal/store"
	"media-jobs/internal/tokens"
)

const objectHashLength = 32

// previewBasename sits next to original_upload.bin in the hash directory.
const previewBasename = "preview.jpg"

type objectStore interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error
}

type mediaFileStore interface {
	SaveMediaFile(ctx context.Context, p store.SaveMediaFileParams) (int64, error)
}

// DownloadHandler fetches a remote media file, uploads the original to the
// private bucket at its derived path, renders a bounded preview for images,
// and records the result.
type DownloadHandler struct {
	cfg        config.Config
	httpClient *http.Client
	objects    objectStore
	store      mediaFileStore
	logger     *zap.Logger

	privateBucket string
	publicBucket  string
}

type downloadJobPayload struct {
	SourceURL string `json:"source_url"`
	MediaType string `json:"media_type"`
}

// NewDownloadHandler wires the handler. The public bucket is optional; when
// unset, previews land in the private bucket alongside the original.
func NewDownloadHandler(cfg config.Config, objects objectStore, st mediaFileStore, logger *zap.Logger) *DownloadHandler {
	public := cfg.PublicBucketName
	if public == "" {
		public = cfg.PrivateBucketName
	}
	return &DownloadHandler{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: cfg.DownloadTimeout},
		objects:       objects,
		store:         st,
		logger:        logger,
		privateBucket: cfg.PrivateBucketName,
		publicBucket:  public,
	}
}

// Handle processes one media_download job.
func (h *DownloadHandler) Handle(ctx context.Context, job models.Job) error {
	payload, err := decodeDownloadPayload(job)
	if err != nil {
		return Permanent("invalid payload", err)
	}

	data, contentType, err := h.fetch(ctx, payload.SourceURL)
	if err != nil {
		return err
	}

	// Object hashes are minted, not computed from content: two uploads of the
	// same bytes are distinct objects with distinct lifecycles.
	objectHash := entropy.Generate(objectHashLength)
	originalPath := bucketpath.MediaUploads.Path(objectHash)

	if err := h.objects.Upload(ctx, h.privateBucket, originalPath, bytes.NewReader(data), contentType); err != nil {
		return Retryable("upload original", err)
	}

	if isImage(contentType) {
		if err := h.uploadPreview(ctx, objectHash, data); err != nil {
			// The original is already durable; a broken preview should not
			// burn the job's attempt budget.
			h.logger.Warn("preview generation failed",
				zap.String("job_token", job.Token),
				zap.String("object_hash", objectHash),
				zap.Error(err))
		}
	}

	mediaType := payload.MediaType
	if mediaType == "" {
		mediaType = mediaTypeFor(contentType)
	}
	_, err = h.store.SaveMediaFile(ctx, store.SaveMediaFileParams{
		Token:         tokens.NewMediaUpload(),
		ObjectHash:    objectHash,
		MediaType:     mediaType,
		MimeType:      contentType,
		FileSizeBytes: int64(len(data)),
	})
	if err != nil {
		return Retryable("record media file", err)
	}

	h.logger.Info("media download stored",
		zap.String("job_token", job.Token),
		zap.String("object_hash", objectHash),
		zap.String("path", originalPath),
		zap.Int("bytes", len(data)))
	return nil
}

func (h *DownloadHandler) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", Permanent("build request", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", Retryable("fetch source", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, "", Retryable(fmt.Sprintf("fetch source: status %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusBadRequest:
		// 4xx means the source will never serve this URL; retrying wastes
		// the attempt budget.
		return nil, "", Permanent(fmt.Sprintf("fetch source: status %d", resp.StatusCode), nil)
	}

	limit := h.cfg.DownloadMaxBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", Retryable("read source", err)
	}
	if int64(len(body)) > limit {
		return nil, "", Permanent(fmt.Sprintf("source exceeds %d bytes", limit), nil)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (h *DownloadHandler) uploadPreview(ctx context.Context, objectHash string, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	maxDim := h.cfg.PreviewMaxDim
	preview := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, preview, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	key := bucketpath.MediaUploads.PathWithBasename(objectHash, previewBasename)
	if err := h.objects.Upload(ctx, h.publicBucket, key, buf, "image/jpeg"); err != nil {
		return fmt.Errorf("upload preview: %w", err)
	}
	return nil
}

func decodeDownloadPayload(job models.Job) (downloadJobPayload, error) {
	var payload downloadJobPayload
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return payload, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.SourceURL == "" {
		return payload, fmt.Errorf("source_url is required")
	}
	return payload, nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

func mediaTypeFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.HasPrefix(ct, "audio/"):
		return "audio"
	case strings.HasPrefix(ct, "video/"):
		return "video"
	default:
		return "binary"
	}
}
