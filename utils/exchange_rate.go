package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const exchangeRateKey = "winsome:exchange:btc"

// RateSource yields the wincoin to bitcoin exchange rate.
type RateSource interface {
	Rate(ctx context.Context) (float64, error)
}

// RandomOrgRate reads a random decimal fraction from random.org as the exchange rate,
// caching it in Redis when a KV is configured.
type RandomOrgRate struct {
	URL    string
	Client *http.Client
	Cache  KV
	TTL    time.Duration
}

// NewRandomOrgRate builds a rate source with its own HTTP client timeout.
func NewRandomOrgRate(url string, timeout time.Duration, cache KV, ttl time.Duration) *RandomOrgRate {
	return &RandomOrgRate{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
		Cache:  cache,
		TTL:    ttl,
	}
}

func (r *RandomOrgRate) Rate(ctx context.Context) (float64, error) {
	if b, ok := CacheGetBytes(ctx, r.Cache, exchangeRateKey); ok {
		if v, err := parseRate(string(b)); err == nil {
			return v, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "Winsome/1.0 (exchange-rate)")
	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exchange rate api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return 0, err
	}
	v, err := parseRate(string(body))
	if err != nil {
		return 0, err
	}
	CacheSetBytes(ctx, r.Cache, exchangeRateKey, []byte(strconv.FormatFloat(v, 'f', -1, 64)), r.TTL)
	return v, nil
}

func parseRate(raw string) (float64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, errors.New("empty exchange rate")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse exchange rate: %w", err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("exchange rate %v not positive", v)
	}
	return v, nil
}
