package graph

import "time"

// Item is a file or folder. ModifiedAt is zero when Graph reported no
// usable timestamp.
type Item struct {
	ID         string
	Name       string
	ParentID   string
	Size       int64
	IsFolder   bool
	MimeType   string
	ModifiedAt time.Time
}

// User is the authenticated user's profile from /me.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Drive is a document library or personal drive.
type Drive struct {
	ID        string
	Name      string
	DriveType string
	WebURL    string
	OwnerName string
}

// Site is a SharePoint site.
type Site struct {
	ID          string
	Name        string
	DisplayName string
	WebURL      string
}

// UploadSession is a resumable upload session. UploadURL is pre-authenticated;
// NEVER log it.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}
