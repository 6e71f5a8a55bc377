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

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/triplake/triplake/internal/logctx"
)

const httpBodyLimitBytes = 1 << 20

// HTTPConfig configures the push notification endpoint.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// HTTPService accepts pushed notifications over POST, for development and
// for storage systems that deliver bucket events via webhook. Accepted
// bodies are handled asynchronously; the POST acknowledges receipt, not
// processing.
type HTTPService struct {
	cfg      HTTPConfig
	handler  Handler
	workChan chan []byte
	tracer   trace.Tracer
}

var _ Backend = (*HTTPService)(nil)

func NewHTTPService(cfg HTTPConfig, handler Handler) *HTTPService {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &HTTPService{
		cfg:      cfg,
		handler:  handler,
		workChan: make(chan []byte, 100),
		tracer:   otel.Tracer("github.com/triplake/triplake/internal/notify"),
	}
}

func (ps *HTTPService) GetName() string {
	return "http"
}

func (ps *HTTPService) Run(doneCtx context.Context) error {
	ll := logctx.FromContext(doneCtx)
	ll.Info("Starting HTTP notification service", "addr", ps.cfg.Addr)

	srv := &http.Server{
		Addr:    ps.cfg.Addr,
		Handler: ps,
	}

	go ps.process(doneCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ll.Error("Failed to start HTTP notification server", "error", err)
		}
	}()

	<-doneCtx.Done()

	ll.Info("Shutting down HTTP notification service")
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	close(ps.workChan)
	return nil
}

func (ps *HTTPService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, httpBodyLimitBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	if len(body) > 0 {
		ps.workChan <- body
	}
	w.WriteHeader(http.StatusOK)
}

func (ps *HTTPService) process(ctx context.Context) {
	ll := logctx.FromContext(ctx)

	for msg := range ps.workChan {
		func() {
			msgCtx, span := ps.tracer.Start(ctx, "notify.http.process")
			defer span.End()

			notices, err := ParseNotices(msg)
			if err != nil {
				ll.Error("Failed to parse pushed notification", "error", err)
				return
			}
			for _, notice := range notices {
				if err := ps.handler(msgCtx, notice); err != nil {
					ll.Error("Failed to handle batch notification", "error", err)
				}
			}
		}()
	}
}
