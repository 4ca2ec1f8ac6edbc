package cowin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m3rciful/cowinbot/core/logger"

	"log/slog"
)

// DefaultBaseURL is the public CoWIN API v2 root.
const DefaultBaseURL = "https://cdn-api.co-vin.in/api/v2"

const defaultTimeoutSeconds = 15

// Config holds CoWIN client settings.
type Config struct {
	BaseURL string `yaml:"base_url" envconfig:"COWIN_BASE_URL"`
	// UserAgent is mandatory: the public API rejects requests without one.
	UserAgent      string `yaml:"user_agent" envconfig:"COWIN_USER_AGENT"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"COWIN_TIMEOUT_SECONDS"`
}

// Client calls the public CoWIN API. Calls are bounded by the configured
// timeout and are never retried; failed searches are terminal for the
// dialog that issued them.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient builds a Client from config, applying defaults for
// missing base URL and timeout.
func NewClient(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("cowin: user agent is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	return &Client{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

// States lists all states from the location directory.
func (c *Client) States(ctx context.Context) ([]State, error) {
	var out statesResponse
	if err := c.get(ctx, "states", "/admin/location/states", nil, &out); err != nil {
		return nil, err
	}
	return out.States, nil
}

// Districts lists districts of the given state.
func (c *Client) Districts(ctx context.Context, stateID int) ([]District, error) {
	var out districtsResponse
	path := "/admin/location/districts/" + strconv.Itoa(stateID)
	if err := c.get(ctx, "districts", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Districts, nil
}

// CentersByDistrict fetches the 7-day session calendar for a district
// starting from the given date.
func (c *Client) CentersByDistrict(ctx context.Context, districtID int, date string) ([]Center, error) {
	q := url.Values{}
	q.Set("district_id", strconv.Itoa(districtID))
	q.Set("date", date)
	var out calendarResponse
	if err := c.get(ctx, "calendar_by_district", "/appointment/sessions/public/calendarByDistrict", q, &out); err != nil {
		return nil, err
	}
	return out.Centers, nil
}

// CentersByPincode fetches the 7-day session calendar for a pincode
// starting from the given date.
func (c *Client) CentersByPincode(ctx context.Context, pincode, date string) ([]Center, error) {
	q := url.Values{}
	q.Set("pincode", pincode)
	q.Set("date", date)
	var out calendarResponse
	if err := c.get(ctx, "calendar_by_pin", "/appointment/sessions/public/calendarByPin", q, &out); err != nil {
		return nil, err
	}
	return out.Centers, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "provider", "request.failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Warn(ctx, "provider", "request.status",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
		)
		return &ProviderError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "provider", "request.ok",
			slog.String("op", op),
			slog.Duration("duration", logger.Took(start)),
		)
	}
	return nil
}
