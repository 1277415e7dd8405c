package handler

import (
	"net/http"

	"github.com/yndnr/relaygate/internal/core/domain"
	"github.com/yndnr/relaygate/internal/telemetry/logger"
)

// handleVerifyToken handles POST /internal/v1/tokens/verify.
func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if err := decode(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.Token == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("token is required"))
		return
	}

	consume := h.validator.ConsumeWrite()
	if req.Consume != nil {
		consume = *req.Consume
	}

	id, err := h.validator.ValidateWithConsume(r.Context(), req.Token, consume)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	consumed := consume && id.Class() == domain.TokenClassWrite
	h.logger.DebugContext(logger.WithSubject(r.Context(), id.Subject()), "token verified",
		"class", id.Class(),
		"consumed", consumed,
	)
	h.writeJSON(w, r, http.StatusOK, VerifyTokenResponse{
		Valid:        true,
		Consumed:     consumed,
		IdentityInfo: id.Info(),
	})
}
