// Package gcs reads source documents addressed as gs://bucket/key.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

var ErrObjectTooLarge = errors.New("gcs object exceeds size limit")

type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error)
	Close() error
}

// ParseURL splits gs://bucket/path/to/key. ok is false for any other scheme.
func ParseURL(raw string) (bucket, key string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "gs" {
		return "", "", false
	}
	bucket = strings.TrimSpace(u.Host)
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func ClientOptionsFromEnv() []option.ClientOption {
	if strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")) != "" {
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

type objectReader struct {
	log  *logger.Logger
	opts []option.ClientOption

	once   sync.Once
	client *storage.Client
	err    error
}

// NewObjectReader defers client creation to the first read so deployments
// without gs:// sources never need GCP credentials.
func NewObjectReader(log *logger.Logger, opts ...option.ClientOption) ObjectReader {
	if len(opts) == 0 {
		opts = ClientOptionsFromEnv()
	}
	return &objectReader{log: log.With("service", "GCSObjectReader"), opts: opts}
}

func (r *objectReader) storage(ctx context.Context) (*storage.Client, error) {
	r.once.Do(func() {
		opts := append([]option.ClientOption{option.WithScopes(storage.ScopeReadOnly)}, r.opts...)
		r.client, r.err = storage.NewClient(context.WithoutCancel(ctx), opts...)
		if r.err != nil {
			r.log.Error("gcs client init failed", "error", r.err)
		}
	})
	return r.client, r.err
}

func (r *objectReader) ReadObject(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, error) {
	client, err := r.storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	rc, err := client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	var src io.Reader = rc
	if maxBytes > 0 {
		src = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}

func (r *objectReader) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
