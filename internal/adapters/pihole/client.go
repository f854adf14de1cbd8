package pihole

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
	"github.com/thomaslazar/pihole-dnspropagate/internal/ports"
)

const (
	defaultAttempts     = 3
	defaultRetryBackoff = 200 * time.Millisecond
	releaseTimeout      = 5 * time.Second
	uploadFileName      = "teleporter.zip"
)

// Client talks to the Teleporter endpoints of a single node. It owns at most
// one session at a time and must not be used by overlapping calls.
type Client struct {
	node       teleporter.Node
	auth       ports.Authenticator
	httpClient *http.Client
	now        func() time.Time

	attempts uint
	backoff  time.Duration

	session     *teleporter.Session
	forceReauth bool
}

// NewClient creates a client for node. Sessions are obtained from auth on demand.
func NewClient(node teleporter.Node, auth ports.Authenticator, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		node:       node,
		auth:       auth,
		httpClient: httpClient,
		now:        time.Now,
		attempts:   defaultAttempts,
		backoff:    defaultRetryBackoff,
	}
}

// DownloadArchive fetches the node's Teleporter backup.
func (c *Client) DownloadArchive(ctx context.Context) ([]byte, error) {
	var archive []byte
	err := c.withRetry(ctx, "download", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.node.Endpoint("api", "teleporter"), nil)
		if err != nil {
			return fmt.Errorf("failed to create download request: %w", err)
		}
		req.Header.Set("Accept", "application/zip")
		setSessionHeaders(req, c.session)

		resp, err := c.send(req, "download")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &teleporter.TransportError{Op: "download", StatusCode: resp.StatusCode, Err: err}
		}
		archive = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// UploadArchive replaces the node's configuration with archive. The upload is
// a single multipart request, so the node either imports the whole archive or
// nothing.
func (c *Client) UploadArchive(ctx context.Context, archive []byte) error {
	if len(archive) == 0 {
		return fmt.Errorf("%w: archive content must be provided", teleporter.ErrArgument)
	}

	body, contentType, err := multipartArchive(archive)
	if err != nil {
		return err
	}

	return c.withRetry(ctx, "upload", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.node.Endpoint("api", "teleporter"), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		setSessionHeaders(req, c.session)

		resp, err := c.send(req, "upload")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// Release logs the session out on a best-effort basis and forgets it locally.
func (c *Client) Release(ctx context.Context) {
	session := c.session
	c.session = nil
	c.forceReauth = false
	if session == nil {
		return
	}

	// Logout must still be attempted when the run itself was canceled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := c.auth.Logout(ctx, c.node, session); err != nil {
		log.Warn().Err(err).Str("node", c.node.Name).Msg("pihole.session.logout_failed")
	}
}

// withRetry runs attempt up to c.attempts times. A 401/403 marks the session
// for replacement so the next attempt logs in again before resending.
func (c *Client) withRetry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	tries := 0
	return retry.Do(
		func() error {
			tries++
			if err := c.ensureSession(ctx); err != nil {
				return err
			}
			err := attempt(ctx)
			if teleporter.IsUnauthorized(err) {
				c.forceReauth = true
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && teleporter.IsRetryable(err)
		}),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(tries) * c.backoff
		}),
		retry.OnRetry(func(_ uint, err error) {
			log.Warn().Err(err).
				Str("node", c.node.Name).
				Str("op", op).
				Int("attempt", tries).
				Dur("delay", time.Duration(tries)*c.backoff).
				Msg("pihole.request.retry")
		}),
	)
}

func (c *Client) ensureSession(ctx context.Context) error {
	if !c.forceReauth && !c.session.IsExpired(c.now()) {
		return nil
	}
	session, err := c.auth.Authenticate(ctx, c.node)
	if err != nil {
		return err
	}
	c.session = session
	c.forceReauth = false
	return nil
}

func (c *Client) send(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &teleporter.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &teleporter.TransportError{Op: op, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func multipartArchive(archive []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, uploadFileName))
	h.Set("Content-Type", "application/zip")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
