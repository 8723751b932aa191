package driveops

import (
	"context"
	"io"

	"github.com/tonimelisma/irdrive/internal/graph"
)

// API is the part of *graph.Client that driveops drives. Tests substitute
// it where a fake Graph server is not convenient.
type API interface {
	GetItem(ctx context.Context, driveID, itemID string) (*graph.Item, error)
	GetItemByPath(ctx context.Context, driveID, remotePath string) (*graph.Item, error)
	ListChildren(ctx context.Context, driveID, parentID string) ([]graph.Item, error)
	CreateFolder(ctx context.Context, driveID, parentID, name string) (*graph.Item, error)
	Upload(ctx context.Context, driveID, parentID, name string, data []byte, contentType string) (*graph.Item, error)
	Download(ctx context.Context, driveID, itemID string, w io.Writer) (int64, error)
}
