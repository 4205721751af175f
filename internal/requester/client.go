// Package requester is the outbound half of the negotiation: it lets this
// participant start a grant negotiation at a counter-party and continue it
// once the out-of-band exchange has finished.
package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"mandate/internal/negotiation"
	dErrors "mandate/pkg/domain-errors"
)

// Client talks GNAP to counter-party authorization servers.
type Client struct {
	http *retryablehttp.Client
}

// New builds a requester client with retrying transport.
func New() *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	return &Client{http: client}
}

// RequestAccess starts a negotiation at the counter-party's grant endpoint
// and returns its grant response: the exchange URI to follow plus the
// continuation capability.
func (c *Client) RequestAccess(ctx context.Context, counterpartyURL string, grant *negotiation.GrantRequest) (*negotiation.GrantResponse, error) {
	endpoint := strings.TrimRight(counterpartyURL, "/") + "/api/v1/access"

	var response negotiation.GrantResponse
	if err := c.postJSON(ctx, endpoint, "", grant, &response); err != nil {
		return nil, err
	}
	if response.Continue.URI == "" || response.Continue.AccessToken.Value == "" {
		return nil, dErrors.New(dErrors.CodeBadFormat, "grant response carries no continuation")
	}
	return &response, nil
}

// Continue finishes the negotiation at the continue URI from the grant
// response, authenticating with the continuation access token.
func (c *Client) Continue(ctx context.Context, continueURI, continueToken, interactRef string) (*negotiation.ContinuationResponse, error) {
	body := negotiation.ContinuationRequest{InteractRef: interactRef}

	var response negotiation.ContinuationResponse
	if err := c.postJSON(ctx, continueURI, continueToken, body, &response); err != nil {
		return nil, err
	}
	if response.AccessToken.Value == "" {
		return nil, dErrors.New(dErrors.CodeBadFormat, "continuation response carries no access token")
	}
	return &response, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, token string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode request")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "GNAP "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "call counter-party")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dErrors.Wrap(fmt.Errorf("counter-party answered %d", resp.StatusCode),
			dErrors.CodeUnauthorized, "negotiation refused")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadFormat, "decode counter-party response")
	}
	return nil
}
