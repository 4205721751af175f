package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mandate/internal/credential"
	"mandate/internal/did"
	dErrors "mandate/pkg/domain-errors"
	"mandate/pkg/httputil"
	"mandate/pkg/requestcontext"
)

// IssuerService is the slice of the issuance service the transport needs.
type IssuerService interface {
	IssueCredentialSet(ctx context.Context, subject did.DID) ([]credential.SignedCredential, error)
	IssuePresentation(ctx context.Context, credentials []string, holder did.DID) (*credential.SignedPresentation, error)
}

// CredentialsHandler serves the issuance endpoints.
type CredentialsHandler struct {
	issuer IssuerService
	logger *slog.Logger
}

func NewCredentialsHandler(issuer IssuerService, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{issuer: issuer, logger: logger}
}

func (h *CredentialsHandler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleIssueCredentials)
	r.Post("/presentations", h.HandleIssuePresentation)
}

type issueCredentialsRequest struct {
	Subject string `json:"subject"`
}

type issueCredentialsResponse struct {
	Credentials []credential.SignedCredential `json:"credentials"`
}

// HandleIssueCredentials handles POST /api/v1/credentials.
func (h *CredentialsHandler) HandleIssueCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := httputil.Decode[issueCredentialsRequest](w, r)
	if !ok {
		return
	}
	subject, err := did.Parse(body.Subject)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadFormat, "parse subject"))
		return
	}

	credentials, err := h.issuer.IssueCredentialSet(ctx, subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "credential issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject", body.Subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issueCredentialsResponse{Credentials: credentials})
}

type issuePresentationRequest struct {
	Credentials []string `json:"credentials"`
	Holder      string   `json:"holder,omitempty"`
}

// HandleIssuePresentation handles POST /api/v1/presentations.
func (h *CredentialsHandler) HandleIssuePresentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := httputil.Decode[issuePresentationRequest](w, r)
	if !ok {
		return
	}

	var holder did.DID
	if body.Holder != "" {
		parsed, err := did.Parse(body.Holder)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadFormat, "parse holder"))
			return
		}
		holder = parsed
	}

	presentation, err := h.issuer.IssuePresentation(ctx, body.Credentials, holder)
	if err != nil {
		h.logger.ErrorContext(ctx, "presentation issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, presentation)
}
