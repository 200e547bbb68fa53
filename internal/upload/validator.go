// Package upload checks candidate images before anything is sent and
// derives a base64 preview for display. It never touches the network.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSize is the largest accepted upload.
const DefaultMaxSize int64 = 10 << 20

// Reason identifies why a file was rejected.
type Reason string

const (
	ReasonNotImage   Reason = "not_image"
	ReasonEmpty      Reason = "empty"
	ReasonTooLarge   Reason = "too_large"
	ReasonUnreadable Reason = "unreadable"
)

// Rejection is returned instead of a Candidate when a file fails a check.
type Rejection struct {
	Reason   Reason
	FileName string
	Message  string
	Err      error
}

func (r *Rejection) Error() string {
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// IsRejection reports whether err carries a Rejection with the given reason.
func IsRejection(err error, reason Reason) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Reason == reason
}

// Candidate is a file that passed every check, with its content and preview.
type Candidate struct {
	FileName string
	MimeType string
	Size     int64
	// Preview is a data URL holding a base64 image.
	Preview string
	data    []byte
}

// Data returns the file content.
func (c *Candidate) Data() []byte {
	return c.data
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxSize sets the maximum accepted size.
func WithMaxSize(n int64) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxSize = n
		}
	}
}

// WithPreviewSize sets the bounding square of generated thumbnails.
func WithPreviewSize(px int) Option {
	return func(v *Validator) {
		if px > 0 {
			v.previewSize = px
		}
	}
}

// Validator runs the pre-flight checks.
type Validator struct {
	maxSize     int64
	previewSize int
}

// NewValidator builds a validator with a 10 MiB limit and 256px previews.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{maxSize: DefaultMaxSize, previewSize: 256}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxSize returns the configured limit.
func (v *Validator) MaxSize() int64 {
	return v.maxSize
}

// Check runs the type and size checks on the declared metadata only.
func (v *Validator) Check(f File) error {
	name := f.Name()
	mime := strings.ToLower(strings.TrimSpace(f.MimeType()))
	switch {
	case !strings.HasPrefix(mime, "image/"):
		declared := mime
		if declared == "" {
			declared = "unknown type"
		}
		return &Rejection{Reason: ReasonNotImage, FileName: name,
			Message: fmt.Sprintf("%s is not an image (%s)", displayName(name), declared)}
	case f.Size() <= 0:
		return &Rejection{Reason: ReasonEmpty, FileName: name,
			Message: fmt.Sprintf("%s is empty", displayName(name))}
	case f.Size() > v.maxSize:
		return v.tooLarge(name, f.Size())
	}
	return nil
}

// Validate checks f and, when it passes, reads it and derives the preview.
// A failure to read is reported as ReasonUnreadable.
func (v *Validator) Validate(ctx context.Context, f File) (*Candidate, error) {
	if err := v.Check(f); err != nil {
		return nil, err
	}
	name := f.Name()

	data, err := v.read(ctx, f)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			return nil, err
		}
		return nil, &Rejection{Reason: ReasonUnreadable, FileName: name, Message: "could not read file", Err: err}
	}

	preview, err := buildPreview(ctx, data, f.MimeType(), v.previewSize)
	if err != nil {
		return nil, &Rejection{Reason: ReasonUnreadable, FileName: name, Message: "could not read file", Err: err}
	}

	return &Candidate{
		FileName: name,
		MimeType: f.MimeType(),
		Size:     int64(len(data)),
		Preview:  preview,
		data:     data,
	}, nil
}

func (v *Validator) read(ctx context.Context, f File) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// One byte over the limit is enough to catch a file that grew since Size.
	data, err := io.ReadAll(io.LimitReader(rc, v.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > v.maxSize {
		return nil, v.tooLarge(f.Name(), int64(len(data)))
	}
	if len(data) == 0 {
		return nil, errors.New("no data read")
	}
	return data, nil
}

func (v *Validator) tooLarge(name string, size int64) *Rejection {
	return &Rejection{Reason: ReasonTooLarge, FileName: name,
		Message: fmt.Sprintf("%s is %s; the limit is %s",
			displayName(name), humanize.IBytes(uint64(size)), humanize.IBytes(uint64(v.maxSize)))}
}

func displayName(name string) string {
	if name == "" {
		return "file"
	}
	return name
}
