package driveops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// DefaultUploadParallelism bounds UploadAll when no limit is configured.
const DefaultUploadParallelism = 4

// Upload is one file of an UploadAll batch.
type Upload struct {
	Name        string
	Data        []byte
	ContentType string
}

// Files performs file I/O on one drive by item ID.
type Files struct {
	api         API
	driveID     string
	parallelism int
	logger      *slog.Logger
}

// NewFiles returns a Files for driveID. parallelism bounds UploadAll; values
// below 1 use DefaultUploadParallelism.
func NewFiles(api API, driveID string, parallelism int, logger *slog.Logger) *Files {
	if parallelism < 1 {
		parallelism = DefaultUploadParallelism
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Files{api: api, driveID: driveID, parallelism: parallelism, logger: logger}
}

// Parallelism is the number of uploads UploadAll runs at once.
func (f *Files) Parallelism() int {
	return f.parallelism
}

// List returns the files directly inside folderID, sorted by name.
// Subfolders are left out.
func (f *Files) List(ctx context.Context, folderID string) ([]Item, error) {
	children, err := f.api.ListChildren(ctx, f.driveID, folderID)
	if err != nil {
		return nil, translate(err)
	}

	files := make([]Item, 0, len(children))

	for i := range children {
		if !children[i].IsFolder {
			files = append(files, itemFrom(&children[i]))
		}
	}

	sortByName(files)

	return files, nil
}

// Upload stores data as filename in folderID, replacing a file of the same
// name. The caller picks the name.
func (f *Files) Upload(ctx context.Context, folderID, filename string, data []byte, contentType string) (*Item, error) {
	if err := ValidateName(filename); err != nil {
		return nil, err
	}

	uploaded, err := f.api.Upload(ctx, f.driveID, folderID, filename, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("driveops: uploading %q: %w", filename, translate(err))
	}

	f.logger.Info("uploaded file",
		slog.String("name", filename),
		slog.String("item_id", uploaded.ID),
		slog.Int("size", len(data)),
	)

	item := itemFrom(uploaded)

	return &item, nil
}

// UploadAll uploads a batch into folderID with bounded parallelism and
// returns the items in input order. Names must be distinct, ignoring case.
func (f *Files) UploadAll(ctx context.Context, folderID string, uploads []Upload) ([]Item, error) {
	seen := make(map[string]bool, len(uploads))

	for _, u := range uploads {
		key := foldName(u.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q appears twice in the batch", ErrInvalidPath, u.Name)
		}

		seen[key] = true
	}

	items := make([]Item, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)

	for i, u := range uploads {
		g.Go(func() error {
			item, err := f.Upload(gctx, folderID, u.Name, u.Data, u.ContentType)
			if err != nil {
				return err
			}

			items[i] = *item

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return items, nil
}

// UploadToPath ensures spec exists and uploads into it. A 404 from the
// upload means the folder ID went stale between resolve and upload; the
// path is resolved again and the upload retried once.
func (f *Files) UploadToPath(
	ctx context.Context, resolver *Resolver, spec PathSpec, filename string, data []byte, contentType string,
) (*Item, error) {
	folder, err := resolver.EnsurePath(ctx, spec)
	if err != nil {
		return nil, err
	}

	item, err := f.Upload(ctx, folder.ID, filename, data, contentType)
	if !errors.Is(err, ErrNotFound) {
		return item, err
	}

	f.logger.Warn("upload target went stale, re-resolving",
		slog.String("path", spec.String()),
		slog.String("item_id", folder.ID),
	)

	folder, err = resolver.EnsurePath(ctx, spec)
	if err != nil {
		return nil, err
	}

	return f.Upload(ctx, folder.ID, filename, data, contentType)
}

// Download returns the full content of the file itemID.
func (f *Files) Download(ctx context.Context, itemID string) ([]byte, error) {
	if err := f.checkFile(ctx, itemID); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	if _, err := f.api.Download(ctx, f.driveID, itemID, &buf); err != nil {
		return nil, fmt.Errorf("driveops: downloading %s: %w", itemID, translate(err))
	}

	return buf.Bytes(), nil
}

// DownloadToFile writes the file itemID to targetPath. Content goes to a
// .partial file first and is renamed into place once complete, so a failed
// download never leaves a truncated target.
func (f *Files) DownloadToFile(ctx context.Context, itemID, targetPath string) (int64, error) {
	if targetPath == "" {
		return 0, fmt.Errorf("driveops: download target path must not be empty")
	}

	if err := f.checkFile(ctx, itemID); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return 0, fmt.Errorf("driveops: creating parent dir for %s: %w", targetPath, err)
	}

	partialPath := targetPath + ".partial"

	out, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("driveops: creating %s: %w", partialPath, err)
	}

	n, err := f.api.Download(ctx, f.driveID, itemID, out)

	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(partialPath)
		return 0, fmt.Errorf("driveops: downloading %s: %w", itemID, translate(err))
	}

	if err := os.Rename(partialPath, targetPath); err != nil {
		os.Remove(partialPath)
		return 0, fmt.Errorf("driveops: renaming %s: %w", partialPath, err)
	}

	f.logger.Info("downloaded file",
		slog.String("item_id", itemID),
		slog.String("target", targetPath),
		slog.Int64("size", n),
	)

	return n, nil
}

func (f *Files) checkFile(ctx context.Context, itemID string) error {
	meta, err := f.api.GetItem(ctx, f.driveID, itemID)
	if err != nil {
		return fmt.Errorf("driveops: reading %s: %w", itemID, translate(err))
	}

	if meta.IsFolder {
		return fmt.Errorf("%w: %s", ErrNotFile, itemID)
	}

	return nil
}
