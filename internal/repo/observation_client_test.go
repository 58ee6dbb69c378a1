package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/cache"
)

func TestGetObservationsCachesResults(t *testing.T) {
	hits := 0
	memo := cache.NewMemoryProvider()
	client := NewObservationClient("https://store.example.com/api", "/v1/observations", "retail", time.Second, memo, time.Minute, nil)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/api/v1/observations" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["dataset"] != "retail" {
			t.Fatalf("unexpected dataset: %v", body["dataset"])
		}
		return jsonResponse(t, http.StatusOK, observationPayload(
			observationRecord{SKU: "A", Date: "2024-01-01", Value: 10},
			observationRecord{SKU: "A", Date: "2024-02-01", Value: 12},
			observationRecord{SKU: "B", Date: "not-a-date", Value: 3},
			observationRecord{SKU: "B", Date: "2024-01-01", Value: -1},
		)), nil
	}))

	ctx := context.Background()
	obs, err := client.GetObservations(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}
	if len(obs) != 2 || obs[1].Value != 12 {
		t.Fatalf("unexpected observations: %+v", obs)
	}

	cached, err := client.GetObservations(ctx)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(cached) != 2 || !cached[0].Date.Equal(obs[0].Date) {
		t.Fatalf("unexpected cached payload: %+v", cached)
	}

	if err := client.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := client.GetObservations(ctx); err != nil {
		t.Fatalf("unexpected error after invalidate: %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected refetch after invalidate, hits=%d", hits)
	}
}

func TestGetObservationsSurfacesUpstreamErrors(t *testing.T) {
	client := NewObservationClient("https://store.example.com", "/observations", "", time.Second, nil, 0, nil)
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadGateway, map[string]any{}), nil
	}))
	if _, err := client.GetObservations(context.Background()); err == nil {
		t.Fatalf("expected error for upstream failure")
	}

	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, observationPayload()), nil
	}))
	if _, err := client.GetObservations(context.Background()); err == nil {
		t.Fatalf("expected error for empty response")
	}
}

func TestGetObservationsRequiresBaseURL(t *testing.T) {
	client := NewObservationClient("", "/observations", "", time.Second, nil, 0, nil)
	if _, err := client.GetObservations(context.Background()); err == nil {
		t.Fatalf("expected error without base URL")
	}
}
