package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mandate/internal/negotiation"
	"mandate/pkg/httputil"
	"mandate/pkg/requestcontext"
)

// NegotiationService is the slice of the negotiation service the transport needs.
type NegotiationService interface {
	Start(ctx context.Context, grant *negotiation.GrantRequest) (*negotiation.GrantResponse, error)
	ContinueNegotiation(ctx context.Context, interactRef, presentedToken string) (*negotiation.ContinuationResponse, error)
}

// NegotiationHandler serves the GNAP grant and continuation endpoints.
type NegotiationHandler struct {
	service NegotiationService
	logger  *slog.Logger
}

func NewNegotiationHandler(service NegotiationService, logger *slog.Logger) *NegotiationHandler {
	return &NegotiationHandler{service: service, logger: logger}
}

func (h *NegotiationHandler) Register(r chi.Router) {
	r.Post("/access", h.HandleStart)
	r.Post("/continue", h.HandleContinue)
}

// HandleStart handles POST /api/v1/access.
func (h *NegotiationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grant, ok := httputil.Decode[negotiation.GrantRequest](w, r)
	if !ok {
		return
	}

	response, err := h.service.Start(ctx, grant)
	if err != nil {
		h.logger.WarnContext(ctx, "grant request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

// HandleContinue handles POST /api/v1/continue. The continuation access token
// arrives in the Authorization header, the interact_ref in the body.
func (h *NegotiationHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := httputil.Decode[negotiation.ContinuationRequest](w, r)
	if !ok {
		return
	}

	response, err := h.service.ContinueNegotiation(ctx, body.InteractRef, bearerToken(r))
	if err != nil {
		h.logger.WarnContext(ctx, "continuation rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}
