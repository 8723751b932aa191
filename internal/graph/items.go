package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// childrenPageSize is the largest $top Graph accepts on a children listing.
const childrenPageSize = 200

// itemFields is the $select projection for every driveItem read. Only the
// fields Item carries are requested.
const itemFields = "id,name,size,lastModifiedDateTime,parentReference,file,folder"

// Modification times outside [earliestModified, latestModified) are
// treated as unknown.
var (
	earliestModified = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	latestModified   = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// driveItem is the wire form of a Graph driveItem, restricted to itemFields.
type driveItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"lastModifiedDateTime"`
	Parent   *struct {
		ID string `json:"id"`
	} `json:"parentReference"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Folder *json.RawMessage `json:"folder"`
}

func (d *driveItem) item() Item {
	it := Item{
		ID:         d.ID,
		Name:       d.Name,
		Size:       d.Size,
		IsFolder:   d.Folder != nil,
		ModifiedAt: parseModified(d.Modified),
	}

	if d.Parent != nil {
		it.ParentID = d.Parent.ID
	}

	if d.File != nil {
		it.MimeType = d.File.MimeType
	}

	return it
}

// parseModified returns the zero time for a missing, malformed, or
// implausible timestamp.
func parseModified(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil || t.Before(earliestModified) || !t.Before(latestModified) {
		return time.Time{}
	}

	return t.UTC()
}

// escapePath escapes each segment of a slash path for use between the
// colons of a root:/…: address.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}

	return strings.Join(segs, "/")
}

func withSelect(apiPath string) string {
	sep := "?"
	if strings.Contains(apiPath, "?") {
		sep = "&"
	}

	return apiPath + sep + "$select=" + itemFields
}

// readItem decodes a single driveItem body and closes it.
func readItem(resp *http.Response, op string) (*Item, error) {
	defer resp.Body.Close()

	var d driveItem
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("graph: %s: decoding item: %w", op, err)
	}

	it := d.item()

	return &it, nil
}

func (c *Client) getItem(ctx context.Context, apiPath, op string) (*Item, error) {
	resp, err := c.Do(ctx, http.MethodGet, withSelect(apiPath), nil)
	if err != nil {
		return nil, err
	}

	return readItem(resp, op)
}

// GetItem fetches the item itemID.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	c.logger.Debug("get item", slog.String("drive_id", driveID), slog.String("item_id", itemID))

	return c.getItem(ctx, fmt.Sprintf("/drives/%s/items/%s", driveID, url.PathEscape(itemID)), "get item")
}

// GetItemByPath fetches the item at a slash path below the drive root. Outer
// slashes are ignored and the empty path is the root itself.
func (c *Client) GetItemByPath(ctx context.Context, driveID, remotePath string) (*Item, error) {
	remotePath = strings.Trim(remotePath, "/")

	c.logger.Debug("get item by path", slog.String("drive_id", driveID), slog.String("path", remotePath))

	apiPath := fmt.Sprintf("/drives/%s/root", driveID)
	if remotePath != "" {
		apiPath += ":/" + escapePath(remotePath) + ":"
	}

	return c.getItem(ctx, apiPath, "get item by path")
}

// ListChildren returns every child of parentID, following nextLinks until
// the listing is exhausted.
func (c *Client) ListChildren(ctx context.Context, driveID, parentID string) ([]Item, error) {
	next := withSelect(fmt.Sprintf("/drives/%s/items/%s/children?$top=%d",
		driveID, url.PathEscape(parentID), childrenPageSize))

	var (
		items []Item
		pages int
	)

	for next != "" {
		var page struct {
			Value    []driveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
		}

		if err := c.getJSON(ctx, next, "children", &page); err != nil {
			return nil, fmt.Errorf("graph: listing children of %s: %w", parentID, err)
		}

		for i := range page.Value {
			items = append(items, page.Value[i].item())
		}

		pages++

		var err error
		if next, err = c.relative(page.NextLink); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("listed children",
		slog.String("parent_id", parentID),
		slog.Int("pages", pages),
		slog.Int("items", len(items)),
	)

	return items, nil
}

// relative turns an absolute nextLink back into a path for Do. Links that
// leave the client's base URL are refused so the bearer token is never sent
// elsewhere.
func (c *Client) relative(link string) (string, error) {
	if link == "" {
		return "", nil
	}

	rest, ok := strings.CutPrefix(link, c.baseURL)
	if !ok {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", link, c.baseURL)
	}

	return rest, nil
}

// CreateFolder creates name under parentID. An existing child of that name
// fails with ErrConflict rather than being renamed or replaced, which makes
// a replayed POST safe: it either creates the folder or gets the 409.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentID, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	body, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            struct{}{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	if err != nil {
		return nil, fmt.Errorf("graph: encoding create folder request: %w", err)
	}

	resp, err := c.do(ctx, &request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/drives/%s/items/%s/children", driveID, url.PathEscape(parentID)),
		body:        body,
		contentType: "application/json",
		retryable:   true,
	})
	if err != nil {
		return nil, err
	}

	return readItem(resp, "create folder")
}
