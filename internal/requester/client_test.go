package requester

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mandate/internal/negotiation"
	dErrors "mandate/pkg/domain-errors"
)

func TestRequestAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/access", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var grant negotiation.GrantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&grant))
		assert.Equal(t, "acme", grant.Client.ClassID)

		_ = json.NewEncoder(w).Encode(negotiation.GrantResponse{
			Interact: &negotiation.InteractResponse{Redirect: "openid4vp://authorize?client_id=x"},
			Continue: negotiation.ContinueResponse{
				URI:         "http://as.example/api/v1/continue",
				AccessToken: negotiation.AccessToken{Value: "continue-token"},
				Wait:        5,
			},
		})
	}))
	defer server.Close()

	client := New()
	response, err := client.RequestAccess(context.Background(), server.URL, &negotiation.GrantRequest{
		Client: negotiation.ClientDescriptor{ClassID: "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "continue-token", response.Continue.AccessToken.Value)
	assert.Equal(t, "openid4vp://authorize?client_id=x", response.Interact.Redirect)
}

func TestRequestAccessWithoutContinuation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(negotiation.GrantResponse{})
	}))
	defer server.Close()

	_, err := New().RequestAccess(context.Background(), server.URL, &negotiation.GrantRequest{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadFormat, dErrors.CodeOf(err))
}

func TestContinue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GNAP continue-token", r.Header.Get("Authorization"))

		var body negotiation.ContinuationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-1", body.InteractRef)

		_ = json.NewEncoder(w).Encode(negotiation.ContinuationResponse{
			AccessToken: negotiation.AccessToken{Value: "access-token"},
		})
	}))
	defer server.Close()

	response, err := New().Continue(context.Background(), server.URL+"/api/v1/continue", "continue-token", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "access-token", response.AccessToken.Value)
}

func TestContinueRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New().Continue(context.Background(), server.URL+"/api/v1/continue", "bad", "bad")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}
