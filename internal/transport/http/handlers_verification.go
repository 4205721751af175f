package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mandate/internal/verification"
	verifservice "mandate/internal/verification/service"
	"mandate/pkg/httputil"
	"mandate/pkg/requestcontext"
)

// ExchangeService is the slice of the verification exchange the transport needs.
type ExchangeService interface {
	Request(ctx context.Context, state string) (*verifservice.AuthorizationRequest, error)
	Present(ctx context.Context, state, vpToken string) (*verification.Session, error)
}

// Finisher builds the post-exchange redirect back to the requester.
type Finisher interface {
	FinishRedirect(ctx context.Context, id string) (string, error)
}

// VerificationHandler serves the OIDC4VP exchange endpoints.
type VerificationHandler struct {
	exchanges ExchangeService
	finisher  Finisher
	logger    *slog.Logger
}

func NewVerificationHandler(exchanges ExchangeService, finisher Finisher, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{exchanges: exchanges, finisher: finisher, logger: logger}
}

func (h *VerificationHandler) Register(r chi.Router) {
	r.Get("/verify/{state}", h.HandleRequest)
	r.Post("/verify/{state}", h.HandlePresent)
}

// HandleRequest handles GET /api/v1/verify/{state}: the wallet fetches the
// authorization-request parameters before producing its presentation.
func (h *VerificationHandler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.exchanges.Request(r.Context(), chi.URLParam(r, "state"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

type presentRequest struct {
	VPToken string `json:"vp_token"`
}

type presentResponse struct {
	RedirectURI string `json:"redirect_uri"`
}

// HandlePresent handles POST /api/v1/verify/{state}: verify the presented VP
// token and, on success, redirect the wallet to the requester's finish
// callback carrying the interact_ref.
func (h *VerificationHandler) HandlePresent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := chi.URLParam(r, "state")

	body, ok := httputil.Decode[presentRequest](w, r)
	if !ok {
		return
	}

	session, err := h.exchanges.Present(ctx, state, body.VPToken)
	if err != nil {
		h.logger.WarnContext(ctx, "presentation rejected",
			"request_id", requestcontext.RequestID(ctx),
			"state", state,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	redirect, err := h.finisher.FinishRedirect(ctx, session.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, presentResponse{RedirectURI: redirect})
}
