package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"media-jobs/internal/config"
)

func testServer() *Server {
	return New(config.Config{MaxAttempts: 3}, nil, nil, nil, zap.NewNop())
}

func TestEnqueueValidation(t *testing.T) {
	router := testServer().Router()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing job_type", `{"payload":{}}`, http.StatusBadRequest},
		{"bad idempotency token", `{"job_type":"media_download","uuid_idempotency_token":"nope"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	router := testServer().Router()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestTokenForType(t *testing.T) {
	cases := map[string]string{
		"media_download": "jdown_",
		"inference_tts":  "jinf_",
		"email_welcome":  "email_job_",
		"something_else": "job_",
	}
	for jobType, prefix := range cases {
		token := tokenForType(jobType)
		if !strings.HasPrefix(token, prefix) {
			t.Fatalf("token for %q = %q, want prefix %q", jobType, token, prefix)
		}
	}
}
