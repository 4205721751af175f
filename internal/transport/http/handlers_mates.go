package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mandate/internal/mates"
	"mandate/pkg/httputil"
	"mandate/pkg/requestcontext"
)

// MatesService is the slice of the trust registry the transport needs.
type MatesService interface {
	ResolveToken(ctx context.Context, token string) (*mates.Mate, error)
}

// MatesHandler serves the trust registry endpoints.
type MatesHandler struct {
	service MatesService
	logger  *slog.Logger
}

func NewMatesHandler(service MatesService, logger *slog.Logger) *MatesHandler {
	return &MatesHandler{service: service, logger: logger}
}

func (h *MatesHandler) Register(r chi.Router) {
	r.Get("/mates/me", h.HandleMe)
}

// HandleMe handles GET /api/v1/mates/me: resolve the presented access token to
// the participant it was issued to.
func (h *MatesHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mate, err := h.service.ResolveToken(ctx, bearerToken(r))
	if err != nil {
		h.logger.WarnContext(ctx, "token resolution failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mate)
}
