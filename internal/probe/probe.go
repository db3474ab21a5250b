// Package probe checks that provider credentials work by calling a cheap,
// read-only endpoint of each provider.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"agencyops/internal/config"
	"agencyops/internal/credentials"
	"agencyops/pkg/logx"
)

// Status values.
const (
	StatusOK            = "ok"
	StatusNotConfigured = "not_configured"
	StatusError         = "error"
)

// Result is the outcome of probing one provider.
type Result struct {
	Integration string `json:"integration"`
	Status      string `json:"status"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	Detail      string `json:"detail,omitempty"`
	LatencyMS   int64  `json:"latency_ms,omitempty"`
}

// Config tunes a Prober.
type Config struct {
	Timeout     time.Duration
	Concurrency int
	RatePerSec  int
	// BaseURLs overrides the provider endpoint roots (integration id -> URL).
	BaseURLs map[string]string
}

// ConfigFrom converts the app config section.
func ConfigFrom(c config.ProbeConfig) (Config, error) {
	timeout, err := config.ParseDurationOrDefault("probe.timeout", c.Timeout, 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	return Config{Timeout: timeout, Concurrency: c.Concurrency, RatePerSec: c.RatePerSec, BaseURLs: c.BaseURLs}, nil
}

// Observer receives every probe result.
type Observer func(Result)

type Prober struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	observe Observer
}

func New(cfg Config, client *http.Client, log logx.Logger) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	if client == nil {
		client = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Prober{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// OnResult registers an observer (metrics).
func (p *Prober) OnResult(fn Observer) { p.observe = fn }

// Providers lists the probed integrations in report order.
func Providers() []string { return []string{"shopify", "klaviyo", "openai", "apify"} }

// Run probes ids (all providers when empty) concurrently and returns the
// results in the order requested.
func (p *Prober) Run(ctx context.Context, res *credentials.Resolver, ids ...string) []Result {
	if len(ids) == 0 {
		ids = Providers()
	}
	out := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = p.probe(gctx, res, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range out {
		if p.observe != nil {
			p.observe(r)
		}
		p.log.Debug("probe", logx.String("integration", r.Integration), logx.String("status", r.Status), logx.Int("http_status", r.HTTPStatus))
	}
	return out
}

func (p *Prober) probe(ctx context.Context, res *credentials.Resolver, id string) Result {
	r := Result{Integration: id}
	build, ok := builders[id]
	if !ok {
		r.Status = StatusError
		r.Detail = "no probe for integration"
		return r
	}
	req, missing, err := build(ctx, p.base(id), res)
	if missing != "" {
		r.Status = StatusNotConfigured
		r.Detail = "missing " + missing
		return r
	}
	if err != nil {
		r.Status = StatusError
		r.Detail = err.Error()
		return r
	}

	if err := p.limiter.Wait(ctx); err != nil {
		r.Status = StatusError
		r.Detail = err.Error()
		return r
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	start := time.Now()
	resp, err := p.client.Do(req.WithContext(cctx))
	r.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		r.Status = StatusError
		r.Detail = redact(err.Error(), res, id)
		return r
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	r.HTTPStatus = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.Status = StatusError
		r.Detail = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return r
	}
	r.Status = StatusOK
	return r
}

func (p *Prober) base(id string) string {
	if u := strings.TrimRight(strings.TrimSpace(p.cfg.BaseURLs[id]), "/"); u != "" {
		return u
	}
	return defaultBase[id]
}

var defaultBase = map[string]string{
	"klaviyo": "https://a.klaviyo.com",
	"openai":  "https://api.openai.com",
	"apify":   "https://api.apify.com",
}

// builder returns the request for a provider, or the name of the first
// missing credential.
type builder func(ctx context.Context, base string, res *credentials.Resolver) (req *http.Request, missing string, err error)

var builders = map[string]builder{
	"shopify": func(ctx context.Context, base string, res *credentials.Resolver) (*http.Request, string, error) {
		store := res.Value("shopify", "store")
		if store == "" {
			return nil, "SHOPIFY_STORE", nil
		}
		token := res.Value("shopify", "access_token")
		if token == "" {
			return nil, "SHOPIFY_ACCESS_TOKEN", nil
		}
		if base == "" {
			base = "https://" + strings.TrimPrefix(strings.TrimPrefix(store, "https://"), "http://")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/admin/api/2024-01/shop.json", nil)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("X-Shopify-Access-Token", token)
		return req, "", nil
	},
	"klaviyo": func(ctx context.Context, base string, res *credentials.Resolver) (*http.Request, string, error) {
		key := res.Value("klaviyo", "api_key")
		if key == "" {
			return nil, "KLAVIYO_API_KEY", nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/accounts/", nil)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("Authorization", "Klaviyo-API-Key "+key)
		req.Header.Set("revision", "2024-02-15")
		req.Header.Set("Accept", "application/json")
		return req, "", nil
	},
	"openai": func(ctx context.Context, base string, res *credentials.Resolver) (*http.Request, string, error) {
		key := res.Value("openai", "api_key")
		if key == "" {
			return nil, "OPENAI_API_KEY", nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("Authorization", "Bearer "+key)
		return req, "", nil
	},
	"apify": func(ctx context.Context, base string, res *credentials.Resolver) (*http.Request, string, error) {
		token := res.Value("apify", "token")
		if token == "" {
			return nil, "APIFY_TOKEN", nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v2/users/me?token="+url.QueryEscape(token), nil)
		if err != nil {
			return nil, "", err
		}
		return req, "", nil
	},
}

// redact removes query-string tokens from transport errors.
func redact(msg string, res *credentials.Resolver, id string) string {
	if id == "apify" {
		if tok := res.Value("apify", "token"); tok != "" {
			msg = strings.ReplaceAll(msg, url.QueryEscape(tok), "****")
		}
	}
	return msg
}
