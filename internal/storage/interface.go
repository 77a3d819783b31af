package storage

import (
	"context"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
)

// Storage is the abstract interface of a snapshot exporter. Exporters are
// written to, never read back by the mirror.
type Storage interface {
	// SaveSnapshot upserts every entity of the snapshot in one transaction
	SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
