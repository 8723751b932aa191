package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// userResponse mirrors the Graph API /me JSON response.
// Callers see User, via toUser.
type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	// UPN is a fallback when mail is empty.
	UPN string `json:"userPrincipalName"`
}

func (u *userResponse) toUser() User {
	email := u.Mail
	if email == "" {
		email = u.UPN
	}

	return User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       email,
	}
}

// driveResponse mirrors the Graph API drive JSON response.
type driveResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DriveType string      `json:"driveType"`
	WebURL    string      `json:"webUrl"`
	Owner     *ownerFacet `json:"owner"`
}

// ownerFacet represents the owner block in a Graph API drive response.
// Site libraries report a group owner, personal drives a user owner.
type ownerFacet struct {
	User *struct {
		DisplayName string `json:"displayName"`
	} `json:"user"`
	Group *struct {
		DisplayName string `json:"displayName"`
	} `json:"group"`
}

func (d *driveResponse) toDrive() Drive {
	drive := Drive{
		ID:        d.ID,
		Name:      d.Name,
		DriveType: d.DriveType,
		WebURL:    d.WebURL,
	}

	if d.Owner != nil {
		switch {
		case d.Owner.User != nil:
			drive.OwnerName = d.Owner.User.DisplayName
		case d.Owner.Group != nil:
			drive.OwnerName = d.Owner.Group.DisplayName
		}
	}

	return drive
}

type siteResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// getJSON issues a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path, what string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	return nil
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var ur userResponse
	if err := c.getJSON(ctx, "/me", "user", &ur); err != nil {
		return nil, err
	}

	user := ur.toUser()

	c.logger.Debug("fetched user profile",
		slog.String("id", user.ID),
		slog.String("display_name", user.DisplayName),
	)

	return &user, nil
}

// MyDrive returns the authenticated user's personal drive.
func (c *Client) MyDrive(ctx context.Context) (*Drive, error) {
	var dr driveResponse
	if err := c.getJSON(ctx, "/me/drive", "drive", &dr); err != nil {
		return nil, err
	}

	drive := dr.toDrive()

	return &drive, nil
}

// Drive returns a specific drive by ID.
func (c *Client) Drive(ctx context.Context, driveID string) (*Drive, error) {
	var dr driveResponse
	if err := c.getJSON(ctx, "/drives/"+url.PathEscape(driveID), "drive", &dr); err != nil {
		return nil, err
	}

	drive := dr.toDrive()

	return &drive, nil
}

// sitePath converts a site URL such as https://contoso.sharepoint.com/sites/Ops
// into the Graph addressing form /sites/{host}:/{path}.
func sitePath(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("graph: parsing site URL: %w", err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("graph: site URL %q has no host", siteURL)
	}

	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "/sites/" + u.Host, nil
	}

	return fmt.Sprintf("/sites/%s:/%s", u.Host, escapePath(p)), nil
}

// SiteByURL resolves a SharePoint site from its web URL.
func (c *Client) SiteByURL(ctx context.Context, siteURL string) (*Site, error) {
	path, err := sitePath(siteURL)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("resolving site", slog.String("site_url", siteURL))

	var sr siteResponse
	if err := c.getJSON(ctx, path, "site", &sr); err != nil {
		return nil, err
	}

	return &Site{ID: sr.ID, Name: sr.Name, DisplayName: sr.DisplayName, WebURL: sr.WebURL}, nil
}

// SiteDrive returns the default document library of a site.
func (c *Client) SiteDrive(ctx context.Context, siteID string) (*Drive, error) {
	var dr driveResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/sites/%s/drive", url.PathEscape(siteID)), "site drive", &dr); err != nil {
		return nil, err
	}

	drive := dr.toDrive()

	c.logger.Debug("resolved site drive",
		slog.String("site_id", siteID),
		slog.String("drive_id", drive.ID),
	)

	return &drive, nil
}
