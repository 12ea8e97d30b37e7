package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitebeacon/stats-service/internal/domain"
)

const defaultTimeout = 3 * time.Second

// Client queries an ipapi.co-style JSON endpoint
// (GET <base>/<ip>/json/). The provider is untrusted and unreliable;
// callers treat every error the same and fall back to Unknown.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Lookup(ctx context.Context, ip string) (domain.GeoInfo, error) {
	u := fmt.Sprintf("%s/%s/json/", c.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.GeoInfo{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GeoInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoInfo{}, fmt.Errorf("geo provider status %d", resp.StatusCode)
	}

	var body struct {
		CountryName string `json:"country_name"`
		Country     string `json:"country"`
		City        string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.GeoInfo{}, err
	}

	country := body.CountryName
	if country == "" {
		country = body.Country
	}
	if country == "" && body.City == "" {
		return domain.GeoInfo{}, fmt.Errorf("geo provider returned empty result")
	}

	return domain.GeoInfo{Country: country, City: body.City}, nil
}
