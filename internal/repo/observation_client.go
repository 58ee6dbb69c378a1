package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

// ObservationClient fetches observations from an upstream data service.
type ObservationClient struct {
	baseURL          string
	observationsPath string
	dataset          string
	httpClient       *http.Client
	cache            cache.Provider
	cacheTTL         time.Duration
	logger           *slog.Logger
}

// NewObservationClient constructs a client targeting the configured store.
// Responses are memoised in provider for ttl; a nil provider disables caching.
func NewObservationClient(baseURL, observationsPath, dataset string, timeout time.Duration, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *ObservationClient {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservationClient{
		baseURL:          strings.TrimRight(baseURL, "/"),
		observationsPath: observationsPath,
		dataset:          dataset,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    provider,
		cacheTTL: ttl,
		logger:   logger,
	}
}

type observationRecord struct {
	SKU   string  `json:"sku"`
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// GetObservations implements ObservationStore. Records with an unparseable
// date or a negative or non-finite value are dropped.
func (c *ObservationClient) GetObservations(ctx context.Context) ([]models.Observation, error) {
	if c == nil {
		return nil, fmt.Errorf("observation client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("observation store base URL not configured")
	}

	key := c.cacheKey()
	var cached []models.Observation
	switch err := cache.GetJSON(ctx, c.cache, key, &cached); {
	case err == nil:
		return cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("observation cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	var response struct {
		Observations []observationRecord `json:"observations"`
	}
	payload := map[string]any{"dataset": c.dataset}
	if err := c.postJSON(ctx, c.observationsURL(), payload, &response); err != nil {
		return nil, fmt.Errorf("observation store request failed: %w", err)
	}

	observations := make([]models.Observation, 0, len(response.Observations))
	dropped := 0
	for _, rec := range response.Observations {
		obs, ok := toObservation(rec.SKU, rec.Date, rec.Value)
		if !ok {
			dropped++
			continue
		}
		observations = append(observations, obs)
	}
	if dropped > 0 {
		c.logger.Warn("dropped invalid observations", slog.Int("count", dropped))
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("observation store returned no observations")
	}

	if err := cache.SetJSON(ctx, c.cache, key, observations, c.cacheTTL); err != nil {
		c.logger.Warn("observation cache write failed", slog.Any("error", err))
	}
	return observations, nil
}

// Invalidate drops the memoised response so the next call hits upstream.
func (c *ObservationClient) Invalidate(ctx context.Context) error {
	return c.cache.Del(ctx, c.cacheKey())
}

func (c *ObservationClient) cacheKey() string {
	dataset := c.dataset
	if dataset == "" {
		dataset = "default"
	}
	return cache.Key("observations", dataset)
}

func (c *ObservationClient) observationsURL() string { return c.resolvePath(c.observationsPath) }

func (c *ObservationClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *ObservationClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("observation store returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toObservation(sku, date string, value float64) (models.Observation, bool) {
	sku = strings.TrimSpace(sku)
	if sku == "" || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return models.Observation{}, false
	}
	t, err := utils.ParseDate(date)
	if err != nil {
		return models.Observation{}, false
	}
	return models.Observation{SKU: sku, Date: t, Value: value}, true
}
