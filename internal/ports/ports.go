package ports

import (
	"context"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

// ReplicationClient defines the capabilities needed from one node during a run.
// Implementations are not safe for overlapping calls.
type ReplicationClient interface {
	DownloadArchive(ctx context.Context) ([]byte, error)
	UploadArchive(ctx context.Context, archive []byte) error
	Release(ctx context.Context)
}

// ClientFactory creates a fresh ReplicationClient per node per run.
type ClientFactory interface {
	NewClient(node teleporter.Node) ReplicationClient
}

// Authenticator defines capability to log in to and out of a node.
type Authenticator interface {
	Authenticate(ctx context.Context, node teleporter.Node) (*teleporter.Session, error)
	Logout(ctx context.Context, node teleporter.Node, session *teleporter.Session) error
}

// Coordinator runs one synchronization pass.
type Coordinator interface {
	Synchronize(ctx context.Context, dryRun bool) (*teleporter.SyncResult, error)
}
