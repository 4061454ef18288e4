package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/models"
)

const maxBodyBytes = 1 << 20

// sourceStatusUpdate is recorded when a caller does not name its trigger.
const sourceStatusUpdate = "status-update"

type batchRequest struct {
	Events []models.NotificationEvent `json:"events"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type submitResponse struct {
	Result *models.SubmitResult `json:"result,omitempty"`
	Error  *errorBody           `json:"error,omitempty"`
}

type batchResponse struct {
	Results []models.SubmitResult `json:"results"`
}

// handleSubmit handles POST /v1/notifications. Suppressions are 200 responses; only engine
// failures map to error statuses.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var ev models.NotificationEvent
	if err := decode(w, r, &ev); err != nil {
		writeError(w, nil, err)
		return
	}
	if ev.SourceTrigger == "" {
		ev.SourceTrigger = sourceStatusUpdate
	}

	res, err := s.engine.Submit(r.Context(), ev)
	if err != nil {
		writeError(w, &res, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Result: &res})
}

// handleSubmitBatch handles POST /v1/notifications/batch. Per-event failures are reported in each
// result's errorCode and do not fail the request.
func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, nil, err)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, nil, errors.NewInvalidEventError("events must not be empty"))
		return
	}
	if len(req.Events) > s.maxBatchSize {
		writeError(w, nil, errors.NewInvalidEventError(
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(req.Events), s.maxBatchSize)))
		return
	}
	for i := range req.Events {
		if req.Events[i].SourceTrigger == "" {
			req.Events[i].SourceTrigger = sourceStatusUpdate
		}
	}

	results, err := s.engine.SubmitAll(r.Context(), req.Events)
	if err != nil {
		s.logger.Warn("batch had failures", map[string]interface{}{
			"size":  len(req.Events),
			"error": err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// handleInspect handles GET /v1/dedup/{fingerprint}.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "fingerprint")
	if !fingerprint.Valid(raw) {
		writeError(w, nil, errors.NewInvalidEventError("fingerprint must be 64 hex characters"))
		return
	}

	out, err := s.engine.Inspect(r.Context(), fingerprint.Fingerprint(raw))
	if err != nil {
		writeError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewPayloadSchemaInvalidError(err.Error())
	}
	return nil
}

func writeError(w http.ResponseWriter, res *models.SubmitResult, err error) {
	stdErr, ok := errors.AsStandardError(err)
	if !ok {
		stdErr = errors.NewInternalError(err)
	}
	writeJSON(w, statusFor(stdErr.Code), submitResponse{
		Result: res,
		Error: &errorBody{
			Code:    string(stdErr.Code),
			Message: stdErr.Message,
			Details: stdErr.Details,
		},
	})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidEvent, errors.ErrCodeInvalidRecipient, errors.ErrCodePayloadSchemaInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeDedupUnavailable, errors.ErrCodeRateLimiterUnavailable, errors.ErrCodeAuditWriteFailed:
		return http.StatusServiceUnavailable
	case errors.ErrCodeDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
