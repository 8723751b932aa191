package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const chunkAlignment = 320 * 1024

// SimpleUploadMaxSize is the maximum payload for a single-request upload
// (4 MiB). Larger payloads go through a resumable upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// defaultChunkSize is 10 × 320 KiB.
const defaultChunkSize = 10 * chunkAlignment

// ErrRangeNotSatisfiable is returned when an upload session rejects a chunk
// with 416 (the server holds different byte ranges than the client sent).
var ErrRangeNotSatisfiable = errors.New("graph: upload range not satisfiable")

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// Upload stores data as name inside parentID, replacing any existing file
// of that name. Payloads up to SimpleUploadMaxSize use a single PUT; larger
// payloads use an upload session.
func (c *Client) Upload(
	ctx context.Context, driveID, parentID, name string, data []byte, contentType string,
) (*Item, error) {
	if len(data) <= SimpleUploadMaxSize {
		return c.SimpleUpload(ctx, driveID, parentID, name, data, contentType)
	}

	session, err := c.CreateUploadSession(ctx, driveID, parentID, name)
	if err != nil {
		return nil, err
	}

	item, err := c.uploadChunks(ctx, session, data)
	if err != nil {
		// Best effort: the session expires server-side anyway.
		if cancelErr := c.CancelUploadSession(context.WithoutCancel(ctx), session); cancelErr != nil {
			c.logger.Debug("cancel upload session after failure",
				slog.String("error", cancelErr.Error()),
			)
		}

		return nil, err
	}

	return item, nil
}

// SimpleUpload uploads a payload of at most 4 MiB using a single PUT.
// An empty contentType is sent as application/octet-stream.
func (c *Client) SimpleUpload(
	ctx context.Context, driveID, parentID, name string, data []byte, contentType string,
) (*Item, error) {
	c.logger.Info("simple upload",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int("size", len(data)),
	)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if data == nil {
		data = []byte{}
	}

	resp, err := c.do(ctx, &request{
		method:      http.MethodPut,
		path:        fmt.Sprintf("/drives/%s/items/%s:/%s:/content", driveID, url.PathEscape(parentID), url.PathEscape(name)),
		body:        data,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	return readItem(resp, "simple upload")
}

// CreateUploadSession creates a resumable upload session that replaces any
// existing file of the same name. The returned UploadSession contains a
// pre-authenticated upload URL.
func (c *Client) CreateUploadSession(ctx context.Context, driveID, parentID, name string) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	bodyBytes, err := json.Marshal(createUploadSessionRequest{
		Item: uploadSessionItem{ConflictBehavior: "replace"},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling upload session request: %w", err)
	}

	resp, err := c.do(ctx, &request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/drives/%s/items/%s:/%s:/createUploadSession", driveID, url.PathEscape(parentID), url.PathEscape(name)),
		body:        bodyBytes,
		contentType: "application/json",
		retryable:   true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
	if parseErr != nil {
		c.logger.Debug("invalid upload session expiration, using zero time",
			slog.String("raw", usr.ExpirationDateTime),
		)
	}

	return &UploadSession{UploadURL: usr.UploadURL, ExpirationTime: expTime}, nil
}

// uploadChunks sends data through the session in aligned chunks and
// returns the item from the final chunk.
func (c *Client) uploadChunks(ctx context.Context, session *UploadSession, data []byte) (*Item, error) {
	total := int64(len(data))

	for offset := int64(0); offset < total; {
		end := min(offset+defaultChunkSize, total)

		item, err := c.UploadChunk(ctx, session, data[offset:end], offset, total)
		if err != nil {
			return nil, err
		}

		if item != nil {
			return item, nil
		}

		offset = end
	}

	return nil, errors.New("graph: upload session finished without returning an item")
}

// UploadChunk uploads one chunk of an upload session. Returns the completed
// Item on the final chunk (200/201), nil for intermediate chunks (202).
// The session URL is pre-authenticated, so no Authorization header is sent.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk []byte, offset, total int64,
) (*Item, error) {
	length := int64(len(chunk))

	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	header.Set("Content-Type", "application/octet-stream")

	resp, err := c.doPreAuth(ctx, http.MethodPut, session.UploadURL, chunk, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return nil, fmt.Errorf("graph: draining chunk response body: %w", drainErr)
		}

		return nil, nil

	case http.StatusOK, http.StatusCreated:
		var d driveItem
		if decErr := json.NewDecoder(resp.Body).Decode(&d); decErr != nil {
			return nil, fmt.Errorf("graph: decoding final chunk response: %w", decErr)
		}

		item := d.item()

		return &item, nil

	case http.StatusRequestedRangeNotSatisfiable:
		c.logger.Warn("upload chunk returned 416 Range Not Satisfiable")

		return nil, ErrRangeNotSatisfiable

	default:
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return nil, newGraphError(resp, body)
	}
}

// CancelUploadSession cancels an in-progress upload session.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	resp, err := c.doPreAuth(ctx, http.MethodDelete, session.UploadURL, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("graph: draining cancel session response body: %w", drainErr)
	}

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("graph: cancel upload session failed with status %d", resp.StatusCode)
	}

	return nil
}
