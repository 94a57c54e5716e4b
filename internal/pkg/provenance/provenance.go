package provenance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Plot is what the upstream logistics service knows about an origin plot.
// Batches store only the ref; display names come from here on demand.
type Plot struct {
	Ref           string `json:"ref"`
	Name          string `json:"name"`
	Establishment string `json:"establishment"`
}

// Resolver looks up plot details by reference.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*Plot, error)
}

// HTTPResolver resolves plots against the logistics service REST API.
type HTTPResolver struct {
	client *resty.Client
}

func NewHTTPResolver(baseURL, apiKey string) *HTTPResolver {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2)
	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}
	return &HTTPResolver{client: client}
}

func (r *HTTPResolver) Resolve(ctx context.Context, ref string) (*Plot, error) {
	var plot Plot
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&plot).
		Get("/api/v1/plots/" + ref)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("provenance lookup for %q: %s", ref, resp.Status())
	}
	return &plot, nil
}

// StaticResolver serves a fixed map; used in tests and local development
// when no logistics service is reachable.
type StaticResolver map[string]Plot

func (s StaticResolver) Resolve(ctx context.Context, ref string) (*Plot, error) {
	p, ok := s[ref]
	if !ok {
		return nil, fmt.Errorf("unknown plot ref %q", ref)
	}
	return &p, nil
}
