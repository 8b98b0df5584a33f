package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jack-wz/utest/internal/middleware"
	"github.com/jack-wz/utest/internal/telemetry"
)

// metricsHandler serves the current instrument values as JSON.
func metricsHandler(m *telemetry.Meters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Content-Type", "application/json")

		points, err := m.Collect(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to collect metrics", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			resp := map[string]interface{}{
				"error":         map[string]string{"code": "INTERNAL_ERROR", "message": err.Error()},
				"correlationId": middleware.GetCorrelationID(ctx),
			}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				slog.ErrorContext(ctx, "failed to encode error response", "error", err)
			}
			return
		}
		if points == nil {
			points = []telemetry.Point{}
		}
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": points}); err != nil {
			slog.ErrorContext(ctx, "failed to encode response", "error", err)
		}
	}
}
