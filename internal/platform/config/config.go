package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the authorization server.
type Server struct {
	Addr string
	// ExternalURL is the base URL counter-parties reach this server on. Grant,
	// continue and verify endpoints are derived from it.
	ExternalURL string

	PostgresDSN string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	// IssuerKeyFile points at a PEM-encoded RSA private key. Empty means an
	// ephemeral key is generated at startup (dev mode).
	IssuerKeyFile string
	// WalletURL, when set, delegates signing to the external wallet custody
	// service instead of the local key. IssuerDID must be set alongside it.
	WalletURL string
	IssuerDID string

	CredentialTypes  []string
	DataModelVersion string

	// ContinueWait is the advisory polling hint (seconds) in GNAP continuation
	// responses. Not enforced server-side.
	ContinueWait int
}

// VerificationSessionTTL bounds how long an unfinished VP exchange stays
// resolvable in redis. Sized so it never races a live negotiation.
var VerificationSessionTTL = 24 * time.Hour

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("MANDATE_ADDR", ":8080"),
		ExternalURL:      strings.TrimRight(envOr("MANDATE_EXTERNAL_URL", "http://localhost:8080"), "/"),
		PostgresDSN:      os.Getenv("MANDATE_POSTGRES_DSN"),
		RedisURL:         os.Getenv("MANDATE_REDIS_URL"),
		KafkaTopic:       envOr("MANDATE_KAFKA_TOPIC", "mandate.audit"),
		IssuerKeyFile:    os.Getenv("MANDATE_ISSUER_KEY_FILE"),
		WalletURL:        os.Getenv("MANDATE_WALLET_URL"),
		IssuerDID:        os.Getenv("MANDATE_ISSUER_DID"),
		DataModelVersion: envOr("MANDATE_VC_DATA_MODEL", "2.0"),
		ContinueWait:     5,
	}

	if brokers := os.Getenv("MANDATE_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.CredentialTypes = strings.Split(
		envOr("MANDATE_CREDENTIAL_TYPES", "MembershipCredential,DataspaceParticipantCredential"), ",")

	if wait, err := strconv.Atoi(os.Getenv("MANDATE_CONTINUE_WAIT")); err == nil && wait > 0 {
		cfg.ContinueWait = wait
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
