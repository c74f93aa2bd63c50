//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/faceid/internal/config"
)

func setupMinIO(t *testing.T) *MinIOStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "faceid",
			"MINIO_ROOT_PASSWORD": "faceid-secret",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	gt.NoError(t, err)

	s, err := NewMinIOStore(config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "faceid",
		SecretKey: "faceid-secret",
		Bucket:    "profiles",
	})
	gt.NoError(t, err)
	gt.NoError(t, s.EnsureBucket(ctx))
	// second call sees the existing bucket
	gt.NoError(t, s.EnsureBucket(ctx))
	return s
}

func TestMinIOStoreRoundTrip(t *testing.T) {
	s := setupMinIO(t)
	ctx := context.Background()

	ref, err := s.Save(ctx, "profiles/a.jpg", []byte("jpeg bytes"), "image/jpeg")
	gt.NoError(t, err)
	gt.Equal(t, ref, "profiles/a.jpg")

	data, err := s.Get(ctx, ref)
	gt.NoError(t, err)
	gt.Equal(t, string(data), "jpeg bytes")

	gt.NoError(t, s.Delete(ctx, ref))
	_, err = s.Get(ctx, ref)
	gt.True(t, errors.Is(err, ErrImageNotFound))

	gt.NoError(t, s.Ping(ctx))
}
