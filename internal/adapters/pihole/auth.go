package pihole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

const (
	headerSID  = "X-FTL-SID"
	headerCSRF = "X-FTL-CSRF"
)

// authResponse mirrors the body of POST /api/auth.
type authResponse struct {
	Session *authSession `json:"session"`
	Took    float64      `json:"took"`
}

type authSession struct {
	Valid    bool   `json:"valid"`
	TOTP     bool   `json:"totp"`
	SID      string `json:"sid"`
	CSRF     string `json:"csrf"`
	Validity int    `json:"validity"`
	Message  string `json:"message"`
}

// Authenticator logs in to and out of a node's admin API.
type Authenticator struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewAuthenticator creates an authenticator sharing the given HTTP client.
func NewAuthenticator(httpClient *http.Client) *Authenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Authenticator{httpClient: httpClient, now: time.Now}
}

// Authenticate exchanges the node password for a session. A rejected
// password or an invalid session payload yields ErrAuthentication; network
// failures are returned as *TransportError so the caller can retry them.
func (a *Authenticator) Authenticate(ctx context.Context, node teleporter.Node) (*teleporter.Session, error) {
	payload, err := json.Marshal(map[string]string{"password": node.Password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Endpoint("api", "auth"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("node", node.Name).Msg("pihole.auth.request_failed")
		return nil, &teleporter.TransportError{Op: "authenticate", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &teleporter.TransportError{Op: "authenticate", StatusCode: resp.StatusCode, Err: err}
	}

	var decoded authResponse
	decodeErr := json.Unmarshal(body, &decoded)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg := ""
		if decodeErr == nil && decoded.Session != nil {
			msg = decoded.Session.Message
		}
		log.Error().Str("node", node.Name).Int("status", resp.StatusCode).Str("message", msg).Msg("pihole.auth.rejected")
		return nil, rejected(node, msg)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.Error().Str("node", node.Name).Int("status", resp.StatusCode).Msg("pihole.auth.failed")
		return nil, &teleporter.TransportError{Op: "authenticate", StatusCode: resp.StatusCode}
	case decodeErr != nil:
		return nil, fmt.Errorf("%w: node %s returned an unreadable auth response: %v", teleporter.ErrAuthentication, node.Name, decodeErr)
	}

	s := decoded.Session
	if s == nil || !s.Valid || strings.TrimSpace(s.SID) == "" {
		msg := ""
		if s != nil {
			msg = s.Message
		}
		log.Error().Str("node", node.Name).Str("message", msg).Msg("pihole.auth.invalid_session")
		return nil, rejected(node, msg)
	}

	validity := time.Duration(s.Validity) * time.Second
	if validity <= 0 {
		validity = teleporter.FallbackSessionValidity
	}

	return &teleporter.Session{
		SID:       s.SID,
		CSRF:      s.CSRF,
		TOTP:      s.TOTP,
		Validity:  validity,
		CreatedAt: a.now(),
	}, nil
}

// Logout invalidates the session on the node. A session the node no longer
// knows (401/404) counts as logged out.
func (a *Authenticator) Logout(ctx context.Context, node teleporter.Node, session *teleporter.Session) error {
	if session == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, node.Endpoint("api", "auth"), nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	setSessionHeaders(req, session)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &teleporter.TransportError{Op: "logout", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized:
		return nil
	default:
		return &teleporter.TransportError{Op: "logout", StatusCode: resp.StatusCode}
	}
}

func rejected(node teleporter.Node, msg string) error {
	if msg != "" {
		return fmt.Errorf("%w: node %s: %s", teleporter.ErrAuthentication, node.Name, msg)
	}
	return fmt.Errorf("%w: node %s", teleporter.ErrAuthentication, node.Name)
}

func setSessionHeaders(req *http.Request, session *teleporter.Session) {
	if session == nil {
		return
	}
	if strings.TrimSpace(session.SID) != "" {
		req.Header.Set(headerSID, session.SID)
	}
	if strings.TrimSpace(session.CSRF) != "" {
		req.Header.Set(headerCSRF, session.CSRF)
	}
}
