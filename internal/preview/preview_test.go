package preview

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/filedrop/backend/internal/admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestIsImage(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"IMAGE/JPEG", true},
		{"image/svg+xml", true},
		{"text/plain", false},
		{"application/image", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, IsImage(tt.contentType))
		})
	}
}

func TestDataURL(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G'}
	h := admission.NewMemoryHandle("a.png", "image/png", data)

	url, err := DataURL(context.Background(), h, 0)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data), url)

	_, err = DataURL(context.Background(), h, 2)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = DataURL(context.Background(), admission.NewMemoryHandle("a.txt", "text/plain", data), 0)
	assert.ErrorIs(t, err, ErrNotImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DataURL(ctx, h, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := admission.NewFileRecord(admission.NewMemoryHandle("a.gif", "image/gif", []byte("GIF89a")))
	before := r.Status()

	var got Result
	<-Load(context.Background(), r, 0, func(res Result) { got = res })

	require.NoError(t, got.Err)
	assert.Same(t, r, got.Record)
	assert.Contains(t, got.DataURL, "data:image/gif;base64,")
	assert.Equal(t, before, r.Status())
}
