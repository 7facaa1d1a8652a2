// Package preview renders image files as data URLs for display next to their
// admission status. Previewing never changes a record.
package preview

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/filedrop/backend/internal/admission"
)

var (
	// ErrNotImage is returned for files whose content type is not image/*.
	ErrNotImage = errors.New("not an image")
	// ErrTooLarge is returned when a file exceeds the preview limit.
	ErrTooLarge = errors.New("file too large to preview")
)

var imageType = regexp.MustCompile(`(?i)^image/`)

// IsImage reports whether contentType names an image.
func IsImage(contentType string) bool {
	return imageType.MatchString(contentType)
}

// DataURL reads the file behind h and encodes it as a base64 data URL. A
// limit of zero or less disables the size check.
func DataURL(ctx context.Context, h admission.Handle, limit int64) (string, error) {
	if !IsImage(h.ContentType()) {
		return "", ErrNotImage
	}
	if size, ok := h.Size(); ok && limit > 0 && size > limit {
		return "", ErrTooLarge
	}

	src, err := h.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", h.Name(), err)
	}
	defer src.Close()

	var r io.Reader = src
	if limit > 0 {
		r = io.LimitReader(src, limit+1)
	}
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", h.Name(), err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", ErrTooLarge
	}

	return "data:" + h.ContentType() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Result is delivered by Load.
type Result struct {
	Record  *admission.FileRecord
	DataURL string
	Err     error
}

// Load builds the preview of r in the background and passes the outcome to
// done. The returned channel is closed after done returns.
func Load(ctx context.Context, r *admission.FileRecord, limit int64, done func(Result)) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		url, err := DataURL(ctx, r.Handle(), limit)
		done(Result{Record: r, DataURL: url, Err: err})
	}()
	return finished
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
