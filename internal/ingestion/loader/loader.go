// Package loader downloads source documents and turns them into text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
	"github.com/yungbote/studykit-backend/internal/platform/gcs"
	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const (
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2
	DefaultMaxBytes   = 64 << 20

	serviceName = "document-host"
)

var ErrUnsupportedScheme = errors.New("unsupported url scheme")

type Config struct {
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
}

type Loader struct {
	log     *logger.Logger
	http    *http.Client
	objects gcs.ObjectReader
	cfg     Config
}

// New builds a loader. objects may be nil, in which case gs:// URLs fail.
func New(log *logger.Logger, objects gcs.ObjectReader, cfg Config) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Loader{
		log:     log.With("service", "DocumentLoader"),
		http:    &http.Client{Timeout: cfg.Timeout},
		objects: objects,
		cfg:     cfg,
	}
}

// Download fetches the document bytes. http(s) URLs follow redirects and
// retry transient failures; gs:// URLs go through the object reader.
// Transport failures come back as *generr.UpstreamTransportError.
func (l *Loader) Download(ctx context.Context, fileURL string) ([]byte, error) {
	fileURL = strings.TrimSpace(fileURL)
	if bucket, key, ok := gcs.ParseURL(fileURL); ok {
		if l.objects == nil {
			return nil, &generr.UpstreamTransportError{Service: "gcs", Err: errors.New("gcs reader not configured")}
		}
		data, err := l.objects.ReadObject(ctx, bucket, key, l.cfg.MaxBytes)
		if err != nil {
			return nil, &generr.UpstreamTransportError{Service: "gcs", Err: err}
		}
		return data, nil
	}

	u, err := url.Parse(fileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, fileURL)
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		data, resp, err := l.get(ctx, fileURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !httpx.IsRetryableError(err) || attempt == l.cfg.MaxRetries {
			break
		}
		backoff := httpx.RetryAfterDuration(resp, httpx.JitterSleep(time.Duration(attempt+1)*time.Second), 10*time.Second)
		l.log.Warn("document download failed, retrying",
			append(ctxutil.LogFields(ctx), "url", fileURL, "attempt", attempt+1, "backoff", backoff.String(), "error", err)...)
		if err := httpx.Sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	status := 0
	var sc httpx.HTTPStatusCoder
	if errors.As(lastErr, &sc) {
		status = sc.HTTPStatusCode()
	}
	return nil, &generr.UpstreamTransportError{Service: serviceName, StatusCode: status, Err: lastErr}
}

func (l *Loader) get(ctx context.Context, fileURL string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp, &httpx.StatusError{Service: serviceName, StatusCode: resp.StatusCode, Body: httpx.TruncateBody(body, 256)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, resp, err
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, resp, fmt.Errorf("document exceeds %d bytes", l.cfg.MaxBytes)
	}
	return data, resp, nil
}

// ExtractText dispatches on the URL's path extension.
func (l *Loader) ExtractText(fileURL string, data []byte) (string, string, error) {
	return ExtractText(fileURL, data)
}
