package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/studykit-backend/internal/platform/envutil"
)

const (
	DefaultCollection = "study_resources"
	// DefaultVectorDim matches text-embedding-3-small.
	DefaultVectorDim = 1536
	DefaultDistance  = "Cosine"
	DefaultTimeout   = 10 * time.Second
)

var distances = map[string]string{"cosine": "Cosine", "dot": "Dot", "euclid": "Euclid", "manhattan": "Manhattan"}

type Config struct {
	URL string
	// APIKey is sent as the api-key header when set (Qdrant Cloud).
	APIKey string
	// Collection is used when a call passes an empty collection name.
	Collection string
	VectorDim  int
	Distance   string
	Timeout    time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidDistance  ConfigErrorCode = "invalid_distance"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidDistance:
		return fmt.Sprintf("invalid QDRANT_DISTANCE=%q; expected Cosine, Dot, Euclid or Manhattan", e.Value)
	}
	return "invalid qdrant config"
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads the QDRANT_* variables. Only QDRANT_URL is
// required.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:        envutil.String("QDRANT_URL", ""),
		APIKey:     envutil.String("QDRANT_API_KEY", ""),
		Collection: envutil.String("QDRANT_COLLECTION", DefaultCollection),
		VectorDim:  DefaultVectorDim,
		Distance:   envutil.String("QDRANT_DISTANCE", DefaultDistance),
		Timeout:    envutil.Seconds("QDRANT_TIMEOUT_SECONDS", DefaultTimeout),
	}
	if raw := envutil.String("QDRANT_VECTOR_DIM", ""); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: raw, Cause: err}
		}
		cfg.VectorDim = dim
	}
	if canonical, ok := distances[strings.ToLower(cfg.Distance)]; ok {
		cfg.Distance = canonical
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	if cfg.Distance != "" {
		if _, ok := distances[strings.ToLower(cfg.Distance)]; !ok {
			return &ConfigError{Code: ConfigErrorInvalidDistance, Value: cfg.Distance}
		}
	}
	return nil
}
