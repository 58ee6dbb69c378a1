package main

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"
)

type observation struct {
	SKU   string  `json:"sku"`
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type skuProfile struct {
	sku       string
	base      float64
	trend     float64
	amplitude float64
}

var profiles = []skuProfile{
	{sku: "SKU-TREND", base: 100, trend: 10},
	{sku: "SKU-SEASONAL", base: 400, amplitude: 120},
	{sku: "SKU-FLAT", base: 55},
	{sku: "SKU-MIXED", base: 220, trend: 3, amplitude: 40},
}

const months = 36

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/observations", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			Dataset string `json:"dataset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, map[string]any{
			"dataset":      req.Dataset,
			"observations": synthesize(),
		})
	})

	logger := log.New(log.Writer(), "store-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// synthesize builds monthly demand for every profile with a 12 month
// seasonal cycle.
func synthesize() []observation {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]observation, 0, len(profiles)*months)
	for _, p := range profiles {
		for i := 0; i < months; i++ {
			value := p.base + p.trend*float64(i) + p.amplitude*math.Sin(2*math.Pi*float64(i)/12)
			out = append(out, observation{
				SKU:   p.sku,
				Date:  start.AddDate(0, i, 0).Format("2006-01-02"),
				Value: math.Max(0, math.Round(value*100)/100),
			})
		}
	}
	return out
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
