package shipments_api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/ShipTrack/internal/apperrors"
	"github.com/pkg/errors"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
}

// writeError переводит apperrors в HTTP-статус. Неклассифицированные ошибки наружу не отдаются.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
	}
	writeJSON(w, r, status, resp)
}

func statusFor(err error) (int, ErrorResponse) {
	var ae *apperrors.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL", Message: "internal server error"}
	}
	resp := ErrorResponse{Error: string(ae.Kind), Message: ae.Message, Fields: ae.Fields}
	switch ae.Kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest, resp
	case apperrors.KindGeocode:
		return http.StatusUnprocessableEntity, resp
	case apperrors.KindNotFound:
		return http.StatusNotFound, resp
	case apperrors.KindDuplicateTracking, apperrors.KindDuplicateEvent, apperrors.KindInvalidState:
		return http.StatusConflict, resp
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: string(ae.Kind), Message: "internal server error"}
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperrors.Validation("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}
