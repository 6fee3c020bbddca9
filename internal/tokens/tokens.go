// Package tokens builds the typed identifiers handed to clients. Every entity
// gets a distinct prefix so tokens are unambiguous when eyeballed in logs or
// queried by hand, and the underscore suffix keeps the whole token selectable
// with a double click.
package tokens

import (
	"strings"

	"media-jobs/internal/entropy"
)

const entropyLength = 32

// Prefix identifies the entity type a token belongs to.
type Prefix string

const (
	PrefixJob          Prefix = "job_"
	PrefixMediaFile    Prefix = "m_"
	PrefixMediaUpload  Prefix = "mu_"
	PrefixModelWeight  Prefix = "weight_"
	PrefixDownloadJob  Prefix = "jdown_"
	PrefixInferenceJob Prefix = "jinf_"
	PrefixEmailJob     Prefix = "email_job_"
)

// New returns a fresh token for the given prefix.
func New(p Prefix) string {
	return string(p) + entropy.Generate(entropyLength)
}

func NewJob() string          { return New(PrefixJob) }
func NewMediaFile() string    { return New(PrefixMediaFile) }
func NewMediaUpload() string  { return New(PrefixMediaUpload) }
func NewModelWeight() string  { return New(PrefixModelWeight) }
func NewDownloadJob() string  { return New(PrefixDownloadJob) }
func NewInferenceJob() string { return New(PrefixInferenceJob) }
func NewEmailJob() string     { return New(PrefixEmailJob) }

// Matches reports whether token carries the given prefix.
func Matches(token string, p Prefix) bool {
	return strings.HasPrefix(token, string(p))
}
