// Package artwork finds and downloads cover art for a track. Every failure
// degrades to "no artwork"; nothing here returns an error to the caller.
package artwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const (
	lowResToken  = "30x30"
	highResToken = "500x500"
)

var (
	errTooLarge    = errors.New("artwork exceeds size limit")
	errEmpty       = errors.New("artwork body is empty")
	errUndecodable = errors.New("artwork is not a known image format")
)

var tracer = otel.Tracer("github.com/zachfi/radioplayer/pkg/artwork")

// Request describes the track whose artwork is wanted.
type Request struct {
	Artist       string
	Title        string
	ArtworkURL   string // announced with the track; preferred over a lookup
	LookupOnline bool
}

// Result carries the URL the artwork came from and the downloaded bytes.
// Both are empty when nothing could be resolved; URL may be set without Data
// when the download failed.
type Result struct {
	URL  string
	Data []byte
}

type Resolver struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	lookups *cache.Cache
	group   singleflight.Group
}

// New returns a Resolver using http.DefaultClient.
func New(cfg Config, logger *slog.Logger) *Resolver {
	return NewWithClient(cfg, http.DefaultClient, logger)
}

func NewWithClient(cfg Config, client *http.Client, logger *slog.Logger) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		cfg:     cfg,
		client:  client,
		logger:  logger.With("component", "artwork"),
		lookups: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Resolve picks the artwork source (announced URL, then online lookup when
// enabled) and downloads it. It is bounded by the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "artwork.Resolve", trace.WithAttributes(
		attribute.String("artist", req.Artist),
		attribute.String("title", req.Title),
	))
	defer span.End()

	source := "explicit"
	u := strings.TrimSpace(req.ArtworkURL)
	if u == "" && req.LookupOnline {
		source = "lookup"
		u = r.Lookup(ctx, req.Artist, req.Title)
	}
	if u == "" {
		metricResolutions.WithLabelValues("none", "miss").Inc()
		return Result{}
	}

	data, err := r.Download(ctx, u)
	if err != nil {
		r.logger.Debug("artwork download failed", "url", u, "err", err)
		metricResolutions.WithLabelValues(source, "error").Inc()
		return Result{URL: u}
	}

	metricResolutions.WithLabelValues(source, "ok").Inc()
	return Result{URL: u, Data: data}
}

// Lookup asks the track search API for a cover and returns its high
// resolution URL, or "" when there is no match or the lookup failed.
// Answers, including "no match", are cached; concurrent identical lookups
// share one request.
func (r *Resolver) Lookup(ctx context.Context, artist, title string) string {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if artist == "" && title == "" {
		return ""
	}

	term := searchTerm(artist, title)
	key := strings.ToLower(term)
	if v, ok := r.lookups.Get(key); ok {
		metricLookups.WithLabelValues("cached").Inc()
		return v.(string)
	}

	// The shared search outlives any single caller; each caller stops
	// waiting when its own ctx ends.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
		defer cancel()

		found, err := r.search(sctx, term)
		if err != nil {
			return "", err
		}
		r.lookups.SetDefault(key, found)
		return found, nil
	})

	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		r.logger.Debug("artwork lookup failed", "term", term, "err", err)
		metricLookups.WithLabelValues("error").Inc()
		return ""
	}

	found := v.(string)
	if found == "" {
		metricLookups.WithLabelValues("no_match").Inc()
	} else {
		metricLookups.WithLabelValues("ok").Inc()
	}
	return found
}

// searchTerm joins artist and title with the announcement separator. A
// missing half is left out along with the separator.
func searchTerm(artist, title string) string {
	switch {
	case artist == "":
		return title
	case title == "":
		return artist
	}
	return artist + " - " + title
}

type searchResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		ArtworkURL30 string `json:"artworkUrl30"`
	} `json:"results"`
}

func (r *Resolver) search(ctx context.Context, term string) (u string, err error) {
	ctx, span := tracer.Start(ctx, "artwork.search")
	defer func() { _ = tracing.ErrHandler(span, err, "artwork search", nil) }()

	q := url.Values{}
	q.Set("term", term)
	q.Set("media", "music")
	q.Set("entity", "song")
	q.Set("limit", "1")

	endpoint := r.cfg.LookupURL + "?" + q.Encode()
	body, err := r.get(ctx, endpoint, 64*1024)
	if err != nil {
		return "", err
	}

	var resp searchResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}

	if resp.ResultCount <= 0 || len(resp.Results) == 0 {
		return "", nil
	}

	return strings.ReplaceAll(resp.Results[0].ArtworkURL30, lowResToken, highResToken), nil
}

// Download fetches an image and checks that it decodes.
func (r *Resolver) Download(ctx context.Context, u string) (data []byte, err error) {
	ctx, span := tracer.Start(ctx, "artwork.Download")
	span.SetAttributes(attribute.String("url", u))
	defer func() { _ = tracing.ErrHandler(span, err, "artwork download", nil) }()

	data, err = r.get(ctx, u, r.cfg.MaxBytes)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errEmpty
	}

	if _, _, err = image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodable, err)
	}

	return data, nil
}

func (r *Resolver) get(ctx context.Context, u string, limit int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > limit {
		return nil, errTooLarge
	}

	return body, nil
}
