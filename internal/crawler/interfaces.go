package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HistoryStore persists the bounded image URL history of each domain.
type HistoryStore interface {
	MergeAndSave(domain string, urls []string) (newCount int, totalCount int, err error)
}

// CheckpointStore persists stop URLs between runs.
type CheckpointStore interface {
	Load() (Checkpoint, error)
	Save(checkpoint Checkpoint) error
}

// Downloader saves harvested images to disk.
type Downloader interface {
	Download(ctx context.Context, domain string, items []Item, cfg DomainConfig) (int, error)
}

// ImageRecorder catalogs harvested images outside the history files.
type ImageRecorder interface {
	RecordImages(ctx context.Context, runID string, domain string, items []Item) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Notifier delivers the run report to a messaging endpoint.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Committer publishes the changed state files to source control.
type Committer interface {
	Publish(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
