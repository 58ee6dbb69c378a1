package api

import "github.com/miradorstack/mirador-forecast/internal/models"

type GenerateRequest struct {
	SKU     string `json:"sku"`
	Horizon int    `json:"horizon,omitempty"`
}

type GenerateResponse struct {
	SKU          string                  `json:"sku"`
	Results      []models.ForecastResult `json:"results"`
	CacheVersion uint64                  `json:"cacheVersion"`
}

type SnapshotRequest struct {
	SKU     string `json:"sku"`
	ModelID string `json:"modelId"`
}

type SnapshotResponse struct {
	Entry        models.CacheEntry `json:"entry"`
	CacheVersion uint64            `json:"cacheVersion"`
}

type SelectRequest struct {
	SKU     string        `json:"sku"`
	ModelID string        `json:"modelId"`
	Method  models.Method `json:"method"`
}

type SetManualRequest struct {
	SKU        string            `json:"sku"`
	ModelID    string            `json:"modelId"`
	Parameters models.Parameters `json:"parameters"`
}

// CacheAck acknowledges a cache write with the resulting version.
type CacheAck struct {
	CacheVersion uint64 `json:"cacheVersion"`
}

type EnqueueRequest struct {
	SKUs   []string `json:"skus,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type EnqueueResponse struct {
	Enqueued  int `json:"enqueued"`
	QueueSize int `json:"queueSize"`
}

type QueueStatusRequest struct{}

type QueueStatusResponse struct {
	Size         int                `json:"size"`
	Items        []models.QueueItem `json:"items"`
	CacheVersion uint64             `json:"cacheVersion"`
}
