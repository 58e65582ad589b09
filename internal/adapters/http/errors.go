package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

// statusFor maps a service error to its HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ports.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ports.ErrInvalid), errors.Is(err, compliance.ErrInvalidMetricInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, compliance.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, compliance.ErrWeatherUnavailable):
		if errors.Is(err, ports.ErrLocationUnresolved) {
			return http.StatusUnprocessableEntity, "location_unresolved"
		}
		return http.StatusServiceUnavailable, "weather_unavailable"
	case errors.Is(err, compliance.ErrNarrativeUnavailable):
		return http.StatusServiceUnavailable, "narrative_unavailable"
	case errors.Is(err, compliance.ErrOrphanRecord):
		return http.StatusConflict, "orphan_record"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "request_id", requestIDFrom(r.Context()), "kind", compliance.KindOf(err), "err", err)
		detail = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Detail: detail, ErrorCode: code, RequestID: requestIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
