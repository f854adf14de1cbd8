package pihole

import (
	"net/http"
	"time"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
	"github.com/thomaslazar/pihole-dnspropagate/internal/ports"
)

const defaultRequestTimeout = 30 * time.Second

// ClientFactory builds one Client per node per run. Each client gets its own
// HTTP client bounded by the request timeout.
type ClientFactory struct {
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

func NewClientFactory(requestTimeout time.Duration) *ClientFactory {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &ClientFactory{requestTimeout: requestTimeout, retryBackoff: defaultRetryBackoff}
}

// NewClient implements ports.ClientFactory.
func (f *ClientFactory) NewClient(node teleporter.Node) ports.ReplicationClient {
	httpClient := &http.Client{Timeout: f.requestTimeout}
	c := NewClient(node, NewAuthenticator(httpClient), httpClient)
	c.backoff = f.retryBackoff
	return c
}
