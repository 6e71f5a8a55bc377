// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package tripapi serves aggregated trips over HTTP. Responses are whole
// documents: either the full aggregated trip or a JSON error, never a
// partial body.
package tripapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/triplake/triplake/internal/logctx"
	"github.com/triplake/triplake/internal/tripagg"
	"github.com/triplake/triplake/internal/trips"
)

// TripFetcher yields the aggregated view of a single trip.
type TripFetcher interface {
	GetAggregatedTrip(ctx context.Context, tripID string) (trips.AggregatedTrip, error)
}

// Config configures the trip read API server.
type Config struct {
	Addr     string        `mapstructure:"addr"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func DefaultConfig() Config {
	return Config{
		Addr:     ":8081",
		CacheTTL: 30 * time.Second,
	}
}

var (
	meter = otel.Meter("github.com/triplake/triplake/internal/tripapi")

	requestCounter metric.Int64Counter
)

func init() {
	var err error
	requestCounter, err = meter.Int64Counter(
		"triplake.tripapi.requests",
		metric.WithDescription("Trip API requests by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create requests counter: %w", err))
	}
}

type cachedResponse struct {
	body []byte
	etag string
}

// Server renders aggregated trips as JSON. Rendered bodies are cached for
// a short TTL so hot trips do not hit the aggregator on every request, and
// every body carries a strong ETag so clients can revalidate for free.
type Server struct {
	cfg     Config
	fetcher TripFetcher
	cache   *ttlcache.Cache[string, cachedResponse]
	mux     *http.ServeMux
}

func NewServer(cfg Config, fetcher TripFetcher) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8081"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		fetcher: fetcher,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, cachedResponse](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, cachedResponse](),
		),
		mux: http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/v1/trips/{tripId}", s.handleGetTrip)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until the context is cancelled.
func (s *Server) Run(doneCtx context.Context) error {
	ll := logctx.FromContext(doneCtx)
	ll.Info("Starting trip API server", "addr", s.cfg.Addr)

	go s.cache.Start()
	defer s.cache.Stop()

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-doneCtx.Done():
	}

	ll.Info("Shutting down trip API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ll := logctx.FromContext(ctx)

	tripID := r.PathValue("tripId")
	if tripID == "" {
		writeJSONError(w, http.StatusBadRequest, "trip id is required")
		return
	}

	resp, err := s.render(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripagg.ErrTripNotFound) {
			requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "not_found")))
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("trip %q not found", tripID))
			return
		}
		requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		ll.Error("Failed to aggregate trip", "tripID", tripID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load trip")
		return
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == resp.etag {
		requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "not_modified")))
		w.Header().Set("ETag", resp.etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", resp.etag)
	_, _ = w.Write(resp.body)
}

func (s *Server) render(ctx context.Context, tripID string) (cachedResponse, error) {
	if item := s.cache.Get(tripID); item != nil {
		return item.Value(), nil
	}

	agg, err := s.fetcher.GetAggregatedTrip(ctx, tripID)
	if err != nil {
		return cachedResponse{}, err
	}

	body, err := json.Marshal(agg)
	if err != nil {
		return cachedResponse{}, fmt.Errorf("marshal aggregated trip: %w", err)
	}

	resp := cachedResponse{
		body: body,
		etag: fmt.Sprintf(`"%016x"`, xxhash.Sum64(body)),
	}
	s.cache.Set(tripID, resp, ttlcache.DefaultTTL)
	return resp, nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
