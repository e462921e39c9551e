// Package llm gives the generation pipeline one calling convention across
// providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type Request struct {
	System      string
	User        string
	Temperature float64
}

// Client is what the pipeline calls. Implementations return the raw model text.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() Provider
	Model() string
}

// TextGenerator is implemented by the provider adapters under internal/platform.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string, temperature *float64) (string, error)
	Model() string
}

type adapter struct {
	provider Provider
	gen      TextGenerator
}

// Wrap adapts a provider SDK client to Client. Provider failures come back
// as *generr.UpstreamTransportError.
func Wrap(provider Provider, gen TextGenerator) Client {
	return &adapter{provider: provider, gen: gen}
}

func (a *adapter) Provider() Provider { return a.provider }
func (a *adapter) Model() string      { return a.gen.Model() }

func (a *adapter) Generate(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	raw, err := a.gen.GenerateText(ctx, req.System, req.User, &temp)
	if err != nil {
		return "", asUpstream(string(a.provider), err)
	}
	return raw, nil
}

func asUpstream(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var already *generr.UpstreamTransportError
	if errors.As(err, &already) {
		return err
	}
	status := 0
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatusCode()
	}
	return &generr.UpstreamTransportError{Service: service, StatusCode: status, Err: err}
}

// Registry holds one Client per configured provider. It is built once at
// startup and read concurrently afterwards.
type Registry struct {
	log     *logger.Logger
	clients map[Provider]Client
}

func NewRegistry(log *logger.Logger, clients ...Client) *Registry {
	r := &Registry{log: log.With("service", "LLMRegistry"), clients: map[Provider]Client{}}
	for _, c := range clients {
		if c == nil {
			continue
		}
		r.clients[c.Provider()] = c
	}
	return r
}

// Get returns the client for p, or a ConfigurationError when p has no
// credentials configured.
func (r *Registry) Get(p Provider) (Client, error) {
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, &generr.ConfigurationError{
		Setting: p.credentialEnv(),
		Reason:  fmt.Sprintf("provider %s is not configured (missing credential)", p),
	}
}

// Resolve parses name and returns its client.
func (r *Registry) Resolve(name string) (Client, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return nil, err
	}
	return r.Get(p)
}

func (r *Registry) Configured() []Provider {
	out := make([]Provider, 0, len(r.clients))
	for _, p := range Providers {
		if _, ok := r.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) String() string {
	names := make([]string, 0, len(r.clients))
	for _, p := range r.Configured() {
		names = append(names, string(p))
	}
	return "llm.Registry[" + strings.Join(names, ",") + "]"
}
