package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestLocalImageStoreRoundTrip(t *testing.T) {
	s, err := NewLocalImageStore(t.TempDir())
	gt.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Save(ctx, "profiles/abc.jpg", []byte("jpeg-bytes"), "image/jpeg")
	gt.NoError(t, err)
	gt.Equal(t, ref, "profiles/abc.jpg")

	data, err := s.Get(ctx, ref)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "jpeg-bytes")

	gt.NoError(t, s.Delete(ctx, ref))
	_, err = s.Get(ctx, ref)
	gt.True(t, errors.Is(err, ErrImageNotFound))

	// deleting twice is fine
	gt.NoError(t, s.Delete(ctx, ref))
}

func TestLocalImageStoreRejectsEscapingRefs(t *testing.T) {
	s, err := NewLocalImageStore(t.TempDir())
	gt.NoError(t, err)

	for _, ref := range []string{"../secret", "/etc/passwd", "a/../../b", ""} {
		_, err := s.Save(context.Background(), ref, []byte("x"), "image/jpeg")
		gt.Error(t, err)
	}
}

func TestLocalImageStorePing(t *testing.T) {
	s, err := NewLocalImageStore(t.TempDir())
	gt.NoError(t, err)
	gt.NoError(t, s.Ping(context.Background()))
}
