package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tonimelisma/irdrive/internal/driveops"
)

// DocumentContentType is the MIME type of report documents.
const DocumentContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Provisioner resolves and creates folders on the drive.
type Provisioner interface {
	EnsurePath(ctx context.Context, spec driveops.PathSpec) (*driveops.Item, error)
	CheckDuplicate(ctx context.Context, spec driveops.PathSpec) (bool, error)
	ListFolders(ctx context.Context, spec driveops.PathSpec) ([]driveops.Item, error)
}

// FileStore moves file content by item ID.
type FileStore interface {
	List(ctx context.Context, folderID string) ([]driveops.Item, error)
	UploadAll(ctx context.Context, folderID string, uploads []driveops.Upload) ([]driveops.Item, error)
	Download(ctx context.Context, itemID string) ([]byte, error)
}

// Settings locate the report tree.
type Settings struct {
	Root  string
	Sites Sites
}

// Report is a new incident report to file.
type Report struct {
	Year        int
	Location    string
	Serial      string
	Document    []byte
	Attachments []driveops.Upload
}

// Filed describes a report after Create.
type Filed struct {
	Number string          `json:"number"`
	Folder driveops.Item   `json:"folder"`
	Files  []driveops.Item `json:"files"`
}

// Service files and retrieves incident reports for one signed-in user.
type Service struct {
	folders  Provisioner
	files    FileStore
	settings Settings
	logger   *slog.Logger
}

// NewService returns a Service over the given drive clients.
func NewService(folders Provisioner, files FileStore, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{folders: folders, files: files, settings: settings, logger: logger}
}

// Create files a new report: it refuses an existing incident number before
// touching the drive, then provisions root/year/location/number and
// uploads the document as {number}.docx together with the attachments.
func (s *Service) Create(ctx context.Context, report Report) (*Filed, error) {
	if len(report.Document) == 0 {
		return nil, errors.New("incident: report document is empty")
	}

	code, location, err := s.settings.Sites.Code(report.Location)
	if err != nil {
		return nil, err
	}

	number, err := NewNumber(code, report.Year, report.Serial)
	if err != nil {
		return nil, err
	}

	base, err := s.locationSpec(report.Year, location)
	if err != nil {
		return nil, err
	}

	spec, err := base.Child(number.String())
	if err != nil {
		return nil, fmt.Errorf("incident: building path: %w", err)
	}

	dup, err := s.folders.CheckDuplicate(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("incident: checking %s: %w", number, err)
	}

	if dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, number)
	}

	folder, err := s.folders.EnsurePath(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("incident: provisioning %s: %w", number, err)
	}

	uploads := make([]driveops.Upload, 0, 1+len(report.Attachments))
	uploads = append(uploads, driveops.Upload{
		Name:        number.DocumentName(),
		Data:        report.Document,
		ContentType: DocumentContentType,
	})
	uploads = append(uploads, report.Attachments...)

	items, err := s.files.UploadAll(ctx, folder.ID, uploads)
	if err != nil {
		return nil, fmt.Errorf("incident: uploading %s: %w", number, err)
	}

	s.logger.Info("incident report filed",
		slog.String("number", number.String()),
		slog.String("folder_id", folder.ID),
		slog.Int("files", len(items)),
	)

	return &Filed{Number: number.String(), Folder: *folder, Files: items}, nil
}

// Update uploads files into an existing report folder, replacing files of
// the same name.
func (s *Service) Update(ctx context.Context, folderID string, uploads []driveops.Upload) ([]driveops.Item, error) {
	if folderID == "" {
		return nil, errors.New("incident: folder ID must not be empty")
	}

	if len(uploads) == 0 {
		return []driveops.Item{}, nil
	}

	items, err := s.files.UploadAll(ctx, folderID, uploads)
	if err != nil {
		return nil, fmt.Errorf("incident: updating folder %s: %w", folderID, err)
	}

	return items, nil
}

// Folders lists the report folders filed for year at location.
func (s *Service) Folders(ctx context.Context, year int, location string) ([]driveops.Item, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}

	code, canonical, err := s.settings.Sites.Code(location)
	if err != nil {
		return nil, err
	}

	spec, err := s.locationSpec(year, canonical)
	if err != nil {
		return nil, err
	}

	listed, err := s.folders.ListFolders(ctx, spec)
	if err != nil {
		return nil, err
	}

	// Only folders named for this site and year are reports; anything else
	// under the location folder was put there by hand.
	folders := make([]driveops.Item, 0, len(listed))
	for i := range listed {
		n, err := ParseNumber(listed[i].Name)
		if err != nil || n.Site != code || n.Year != year {
			s.logger.Debug("skipping non-report folder", slog.String("name", listed[i].Name))
			continue
		}

		folders = append(folders, listed[i])
	}

	return folders, nil
}

// locationSpec is the path root/year/location.
func (s *Service) locationSpec(year int, location string) (driveops.PathSpec, error) {
	spec, err := driveops.NewPathSpec(s.settings.Root, strconv.Itoa(year), location)
	if err != nil {
		return driveops.PathSpec{}, fmt.Errorf("incident: building path: %w", err)
	}

	return spec, nil
}

// Files lists the files in a report folder.
func (s *Service) Files(ctx context.Context, folderID string) ([]driveops.Item, error) {
	return s.files.List(ctx, folderID)
}

// Fetch returns a file's content.
func (s *Service) Fetch(ctx context.Context, itemID string) ([]byte, error) {
	return s.files.Download(ctx, itemID)
}
