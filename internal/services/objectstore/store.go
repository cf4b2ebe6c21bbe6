package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"extracto/internal/config"
	"extracto/internal/services"
)

// Store reads document bytes from a storage location.
type Store interface {
	Read(ctx context.Context, loc Location) ([]byte, error)
	Stat(ctx context.Context, loc Location) (int64, error)
}

// Router dispatches reads by storage kind: file locations go to the local
// filesystem, s3 and blob locations go to the object store client.
type Router struct {
	fs     Store
	remote Store
}

// NewRouter builds the storage router from configuration. When no object
// store endpoint is configured, s3 and blob locations fail with a
// configuration error.
func NewRouter(cfg config.Storage) (*Router, error) {
	router := &Router{fs: &fsStore{}}
	if cfg.Endpoint != "" {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "object store",
				"create client", err)
		}
		router.remote = &minioStore{client: client}
	}
	return router, nil
}

// Read fetches the full contents at a location.
func (r *Router) Read(ctx context.Context, loc Location) ([]byte, error) {
	store, err := r.route(loc)
	if err != nil {
		return nil, err
	}
	return store.Read(ctx, loc)
}

// Stat reports the size of the object at a location.
func (r *Router) Stat(ctx context.Context, loc Location) (int64, error) {
	store, err := r.route(loc)
	if err != nil {
		return 0, err
	}
	return store.Stat(ctx, loc)
}

func (r *Router) route(loc Location) (Store, error) {
	switch loc.Kind {
	case KindFile:
		return r.fs, nil
	case KindS3, KindBlob:
		if r.remote == nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "object store",
				fmt.Sprintf("no endpoint configured for %s storage", loc.Kind), nil)
		}
		return r.remote, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "object store",
			fmt.Sprintf("unknown storage type %q", loc.Kind), nil)
	}
}

type fsStore struct{}

func (fsStore) Read(_ context.Context, loc Location) ([]byte, error) {
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "", "read file",
				loc.Path, err)
		}
		return nil, fmt.Errorf("read file %s: %w", loc.Path, err)
	}
	return data, nil
}

func (fsStore) Stat(_ context.Context, loc Location) (int64, error) {
	info, err := os.Stat(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, services.Wrap(services.ErrNotFound, "", "stat file",
				loc.Path, err)
		}
		return 0, fmt.Errorf("stat file %s: %w", loc.Path, err)
	}
	return info.Size(), nil
}

type minioStore struct {
	client *minio.Client
}

func (s *minioStore) Read(ctx context.Context, loc Location) ([]byte, error) {
	object, err := s.client.GetObject(ctx, loc.Bucket, objectKey(loc), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", loc.Bucket, loc.Path, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if isMissingObject(err) {
			return nil, services.Wrap(services.ErrNotFound, "", "read object",
				loc.Bucket+"/"+loc.Path, err)
		}
		return nil, fmt.Errorf("read object %s/%s: %w", loc.Bucket, loc.Path, err)
	}
	return data, nil
}

func (s *minioStore) Stat(ctx context.Context, loc Location) (int64, error) {
	info, err := s.client.StatObject(ctx, loc.Bucket, objectKey(loc), minio.StatObjectOptions{})
	if err != nil {
		if isMissingObject(err) {
			return 0, services.Wrap(services.ErrNotFound, "", "stat object",
				loc.Bucket+"/"+loc.Path, err)
		}
		return 0, fmt.Errorf("stat object %s/%s: %w", loc.Bucket, loc.Path, err)
	}
	return info.Size, nil
}

func objectKey(loc Location) string {
	return strings.TrimPrefix(loc.Path, "/")
}

func isMissingObject(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
