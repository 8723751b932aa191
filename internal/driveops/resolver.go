package driveops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/irdrive/internal/graph"
)

// Resolver maps paths on one drive to folders.
type Resolver struct {
	api     API
	driveID string
	logger  *slog.Logger
}

// NewResolver returns a Resolver for driveID.
func NewResolver(api API, driveID string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{api: api, driveID: driveID, logger: logger}
}

// Lookup fetches the item at a slash path relative to the drive root.
// A missing item is Absent, not an error.
func (r *Resolver) Lookup(ctx context.Context, path string) (Lookup, error) {
	item, err := r.api.GetItemByPath(ctx, r.driveID, path)
	if errors.Is(err, graph.ErrNotFound) {
		return Absent(), nil
	}

	if err != nil {
		return Lookup{}, translate(err)
	}

	return Found(itemFrom(item)), nil
}

// EnsurePath returns the folder at spec, creating missing folders below the
// root. Concurrent callers converge on the same folders: a create that loses
// the race gets a 409 and adopts the winner's folder.
func (r *Resolver) EnsurePath(ctx context.Context, spec PathSpec) (*Item, error) {
	current, err := r.root(ctx, spec.Root)
	if err != nil {
		return nil, err
	}

	for i, seg := range spec.Segments {
		path := spec.prefix(i + 1)

		next, err := r.ensureChild(ctx, current, seg, path)
		if err != nil {
			return nil, &ProvisionError{Path: path, Segment: seg, Err: err}
		}

		current = next
	}

	r.logger.Debug("path ensured",
		slog.String("path", spec.String()),
		slog.String("item_id", current.ID),
	)

	return current, nil
}

func (r *Resolver) root(ctx context.Context, root string) (*Item, error) {
	lookup, err := r.Lookup(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("driveops: resolving root %q: %w", root, err)
	}

	item, ok := lookup.Item()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRootNotFound, root)
	}

	if !item.IsFolder() {
		return nil, fmt.Errorf("%w: root %q", ErrNotFolder, root)
	}

	return &item, nil
}

func (r *Resolver) ensureChild(ctx context.Context, parent *Item, name, path string) (*Item, error) {
	if existing, err := r.findFolder(ctx, parent.ID, name); existing != nil || err != nil {
		return existing, err
	}

	created, err := r.api.CreateFolder(ctx, r.driveID, parent.ID, name)
	if err == nil {
		r.logger.Info("created folder",
			slog.String("path", path),
			slog.String("item_id", created.ID),
		)

		item := itemFrom(created)

		return &item, nil
	}

	if !errors.Is(err, graph.ErrConflict) {
		return nil, translate(err)
	}

	// Someone else created it between our listing and our create.
	r.logger.Debug("folder create lost race, re-resolving", slog.String("path", path))

	existing, err := r.findFolder(ctx, parent.ID, name)
	if existing != nil || err != nil {
		return existing, err
	}

	// Listings can lag behind a fresh create; the path lookup does not.
	lookup, err := r.Lookup(ctx, path)
	if err != nil {
		return nil, err
	}

	item, ok := lookup.Item()
	if !ok {
		return nil, fmt.Errorf("%w: %q reported as existing but not found", ErrConflict, path)
	}

	if !item.IsFolder() {
		return nil, fmt.Errorf("%w: %q is a file", ErrNotFolder, path)
	}

	return &item, nil
}

// findFolder returns the child folder called name, nil if there is none, or
// ErrNotFolder if a file holds the name.
func (r *Resolver) findFolder(ctx context.Context, parentID, name string) (*Item, error) {
	children, err := r.api.ListChildren(ctx, r.driveID, parentID)
	if err != nil {
		return nil, translate(err)
	}

	match := matchChild(children, name)
	if match == nil {
		return nil, nil
	}

	if !match.IsFolder {
		return nil, fmt.Errorf("%w: %q is a file", ErrNotFolder, match.Name)
	}

	item := itemFrom(match)

	return &item, nil
}

// CheckDuplicate reports whether anything already occupies spec's full
// path. Nothing is created.
func (r *Resolver) CheckDuplicate(ctx context.Context, spec PathSpec) (bool, error) {
	lookup, err := r.Lookup(ctx, spec.String())
	if err != nil {
		return false, err
	}

	return lookup.Exists(), nil
}

// ListFolders returns the child folders at spec sorted by name. A missing
// path has no folders.
func (r *Resolver) ListFolders(ctx context.Context, spec PathSpec) ([]Item, error) {
	lookup, err := r.Lookup(ctx, spec.String())
	if err != nil {
		return nil, err
	}

	parent, ok := lookup.Item()
	if !ok {
		return []Item{}, nil
	}

	if !parent.IsFolder() {
		return nil, fmt.Errorf("%w: %q", ErrNotFolder, spec.String())
	}

	children, err := r.api.ListChildren(ctx, r.driveID, parent.ID)
	if err != nil {
		return nil, translate(err)
	}

	folders := make([]Item, 0, len(children))

	for i := range children {
		if children[i].IsFolder {
			folders = append(folders, itemFrom(&children[i]))
		}
	}

	sortByName(folders)

	return folders, nil
}
