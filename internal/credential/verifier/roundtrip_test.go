package verifier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mandate/internal/audit"
	"mandate/internal/credential"
	"mandate/internal/credential/issuer"
	"mandate/internal/keystore"
	"mandate/internal/platform/metrics"
	dErrors "mandate/pkg/domain-errors"
)

var testMetrics = metrics.New()

func newIssuerService(t *testing.T, model credential.DataModelVersion) *issuer.Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys, err := keystore.NewLocal(key)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return issuer.New(issuer.Config{
		IssuerDID:       keys.DID(),
		CredentialTypes: []string{"MembershipCredential"},
		DataModel:       model,
	}, keys, logger, testMetrics, audit.NewPublisher(16, logger)).
		WithClock(func() time.Time { return testNow })
}

// Issued credentials must come back out of the verification chain: the token
// minted for a subject verifies against that subject and nobody else.
func TestIssuedCredentialVerifies(t *testing.T) {
	models := map[string]credential.DataModelVersion{
		"nested vc layout":  credential.DataModelV1,
		"hoisted vc layout": credential.DataModelV2,
	}
	for name, model := range models {
		t.Run(name, func(t *testing.T) {
			svc := newIssuerService(t, model)
			subject := newIdentity(t)
			stranger := newIdentity(t)

			issued, err := svc.IssueCredentialSet(context.Background(), subject.did)
			require.NoError(t, err)
			require.Len(t, issued, 1)

			v := New(WithClock(func() time.Time { return testNow }))
			require.NoError(t, v.VerifyCredential(issued[0].Credential, subject.did.String()))

			err = v.VerifyCredential(issued[0].Credential, stranger.did.String())
			require.Error(t, err)
			require.Equal(t, dErrors.CodeSecurity, dErrors.CodeOf(err))
		})
	}
}
