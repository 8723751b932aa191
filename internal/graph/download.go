package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Download copies the content of itemID to w and returns the byte count.
// Graph redirects /content to a pre-authenticated URL on another host, and
// net/http strips the Authorization header when following it.
func (c *Client) Download(ctx context.Context, driveID, itemID string, w io.Writer) (int64, error) {
	apiPath := fmt.Sprintf("/drives/%s/items/%s/content", driveID, url.PathEscape(itemID))

	resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)

	log := c.logger.With(slog.String("item_id", itemID), slog.Int64("bytes", n))
	if err != nil {
		log.Warn("download interrupted", slog.String("error", err.Error()))

		return n, fmt.Errorf("%w: %s: %w", ErrDownloadInterrupted, itemID, err)
	}

	log.Debug("downloaded item content")

	return n, nil
}
