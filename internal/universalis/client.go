package universalis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/duisenbekovayan/xivprofit/internal/models"
)

const DefaultBaseURL = "https://universalis.app/api/v2"

var ErrStatus = errors.New("universalis: unexpected status")

type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("universalis: %s answered %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

type Config struct {
	BaseURL string
	RPS     float64 // 0 => unlimited
	Timeout time.Duration
}

// Client fetches current marketboard listings. It performs no retries.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: lim,
	}
}

// response of {base}/{location}/{item_id}
type currentData struct {
	ItemID   int              `json:"itemID"`
	WorldID  *int             `json:"worldID"`
	Listings []currentListing `json:"listings"`
}

type currentListing struct {
	WorldID      *int    `json:"worldID"`
	PricePerUnit float64 `json:"pricePerUnit"`
	Quantity     int     `json:"quantity"`
	HQ           bool    `json:"hq"`
	RetainerName string  `json:"retainerName"`
	Total        int     `json:"total"`
}

// listings converts the response, dropping entries the search cannot price.
func (d currentData) listings() []models.Listing {
	out := make([]models.Listing, 0, len(d.Listings))
	for _, l := range d.Listings {
		// single-world queries carry the world at the top level,
		// data center and region queries carry it per listing
		world := 0
		switch {
		case d.WorldID != nil:
			world = *d.WorldID
		case l.WorldID != nil:
			world = *l.WorldID
		}
		ls := models.Listing{
			ItemID:       d.ItemID,
			WorldID:      world,
			PricePerUnit: l.PricePerUnit,
			Quantity:     l.Quantity,
			TotalPrice:   l.Total,
			HQ:           l.HQ,
			RetainerName: l.RetainerName,
		}
		if ls.Check() != nil {
			continue
		}
		out = append(out, ls)
	}
	return out
}

func (c *Client) FetchListings(ctx context.Context, itemID int, location string) ([]models.Listing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.base + "/" + url.PathEscape(location) + "/" + strconv.Itoa(itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("universalis get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var data currentData
	if err := json.NewDecoder(body).Decode(&data); err != nil {
		return nil, fmt.Errorf("universalis decode: %w", err)
	}
	return data.listings(), nil
}

// decodeBody wraps the response body in its decompressor. Closing the result
// does not close resp.Body.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("universalis gzip: %w", err)
		}
		return zr, nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
