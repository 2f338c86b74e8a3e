// Package router configures HTTP routes for the planner's API.
//
// Routes configured:
//   - GET  /healthz - Health check endpoint (returns 200 OK)
//   - GET  /plan/current?queue=<name> - Retrieve the latest stored plan
//   - POST /plan/generate - Run an evaluation tick now and return the plan
//   - POST /whatif - Run a standalone simulation with caller-supplied knobs
//   - GET  /metrics - Prometheus metrics endpoint
//
// Plans older than the stale threshold include an X-Queuecap-Stale header so
// a manual-approval UI can warn before acting on an old projection.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/queuecap/pkg/httpx"
	"github.com/HatiCode/queuecap/pkg/planner"
	"github.com/HatiCode/queuecap/pkg/sim"
	"github.com/HatiCode/queuecap/pkg/storage"
)

var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// PlanService is the slice of the evaluation loop the router needs: an
// on-demand tick and the stateless what-if simulator.
type PlanService interface {
	GenerateNow(ctx context.Context) (planner.CapacityPlan, error)
	WhatIf(ctx context.Context, req planner.SimRequest) (sim.Result, error)
}

// SetupRoutes configures HTTP endpoints for the planner.
func SetupRoutes(store storage.Store, svc PlanService, staleAfter time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler())
	mux.HandleFunc("/plan/current", handleGetPlan(store, staleAfter, logger))
	mux.HandleFunc("/plan/generate", handleGeneratePlan(svc, logger))
	mux.HandleFunc("/whatif", handleWhatIf(svc, logger))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// handleGetPlan returns a handler for GET /plan/current?queue=<name>.
func handleGetPlan(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue := r.URL.Query().Get("queue")
		if queue == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "queue parameter required")
			return
		}

		if !queueNameRegex.MatchString(queue) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid queue name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		rec, found, err := store.LatestPlan(ctx, queue)
		if err != nil {
			logger.Error("failed to get plan", "queue", queue, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no plan for queue %q", queue))
			return
		}

		if time.Since(rec.GeneratedAt) > staleAfter {
			w.Header().Set("X-Queuecap-Stale", "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, rec); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleGeneratePlan returns a handler for POST /plan/generate. It runs one
// evaluation tick immediately instead of waiting for the next interval.
func handleGeneratePlan(svc PlanService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		plan, err := svc.GenerateNow(r.Context())
		if err != nil {
			if errors.Is(err, planner.ErrIncompleteMetrics) {
				httpx.WriteError(w, http.StatusUnprocessableEntity, err)
				return
			}
			logger.Error("plan generation failed", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "plan generation failed")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, plan); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleWhatIf returns a handler for POST /whatif. Durations in the request
// body are Go duration JSON numbers (nanoseconds).
func handleWhatIf(svc PlanService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "POST required")
			return
		}

		var req planner.SimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Workers <= 0 || req.ServiceRate <= 0 || req.Horizon <= 0 {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "workers, service_rate and horizon must be positive")
			return
		}

		res, err := svc.WhatIf(r.Context(), req)
		if err != nil {
			if errors.Is(err, sim.ErrSimulationTimeout) {
				httpx.WriteError(w, http.StatusGatewayTimeout, err)
				return
			}
			logger.Error("what-if simulation failed", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "simulation failed")
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
