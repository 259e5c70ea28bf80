package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Credentials are the device-scoped, short-lived connection parameters for
// one broker session. They are immutable once obtained; every (re)connect
// attempt fetches a fresh set because the presigned URL expires after
// roughly an hour.
type Credentials struct {
	// BrokerURL is the presigned MQTT-over-WebSocket endpoint (wss://...).
	BrokerURL string `json:"broker_url"`

	// ClientID identifies this session to the broker. Optional; a random
	// ID is generated when the supplier omits it.
	ClientID string `json:"client_id"`

	// DeviceID is the single device these credentials authorize. Only this
	// device's shadow topics may be subscribed on the resulting connection.
	DeviceID string `json:"device_id"`

	// IssuedAt records when the credentials were obtained.
	IssuedAt time.Time `json:"-"`
}

// CredentialSupplier obtains fresh connection credentials.
//
// The token exchange behind it (user login, device-scoped HMAC signing) is
// an external concern; the session only requires that Fetch returns either
// usable credentials or an error. Errors count as connect failures for
// circuit-breaker purposes.
type CredentialSupplier interface {
	Fetch(ctx context.Context) (Credentials, error)
}

// SupplierFunc adapts a plain function to the CredentialSupplier interface.
type SupplierFunc func(ctx context.Context) (Credentials, error)

// Fetch implements CredentialSupplier.
func (f SupplierFunc) Fetch(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// maxCredentialBody bounds the supplier response size (64KB).
const maxCredentialBody = 64 << 10

// HTTPSupplier fetches credentials from an operator-run token endpoint
// returning JSON {"broker_url": ..., "client_id": ..., "device_id": ...}.
//
// This covers the common deployment where the vendor token exchange runs
// in a separate service; any other arrangement can implement
// CredentialSupplier directly.
type HTTPSupplier struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSupplier creates a supplier for the given endpoint.
//
// Parameters:
//   - url: the credential endpoint
//   - token: optional bearer token sent as Authorization header
func NewHTTPSupplier(url, token string) *HTTPSupplier {
	return &HTTPSupplier{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch implements CredentialSupplier.
func (s *HTTPSupplier) Fetch(ctx context.Context) (Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("building credential request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("credential request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Credentials{}, fmt.Errorf("credential endpoint returned status %d", resp.StatusCode)
	}

	var creds Credentials
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCredentialBody)).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("decoding credential response: %w", err)
	}
	if creds.BrokerURL == "" {
		return Credentials{}, fmt.Errorf("credential response missing broker_url")
	}
	if creds.DeviceID == "" {
		return Credentials{}, fmt.Errorf("credential response missing device_id")
	}
	if creds.ClientID == "" {
		creds.ClientID = "aircloud-" + uuid.NewString()
	}
	creds.IssuedAt = time.Now().UTC()

	return creds, nil
}
