package web

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/tonimelisma/irdrive/internal/auth"
	"github.com/tonimelisma/irdrive/internal/driveops"
	"github.com/tonimelisma/irdrive/internal/incident"
)

type statusResponse struct {
	auth.Status
	SignInRetry bool `json:"signin_retry,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := s.resume(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.manager.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:      st,
		SignInRetry: r.URL.Query().Get("signin") == "retry",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	// A cookie set on another host name would not accompany the callback.
	if s.origin.Host != "" && !strings.EqualFold(r.Host, s.origin.Host) {
		target := *s.origin
		target.Path = "/login"

		http.Redirect(w, r, target.String(), http.StatusFound)

		return
	}

	id, err := s.resume(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	authURL, err := s.manager.StartSignIn(r.Context(), id, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	err := s.manager.HandleCallback(r.Context(), s.sessionID(r), auth.CallbackFromQuery(r.URL.Query()))

	var flowErr *auth.AuthFlowError

	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.As(err, &flowErr):
		s.logger.Warn("sign-in callback rejected",
			slog.String("reason", flowErr.Reason),
			slog.String("provider_code", flowErr.ProviderCode),
		)
		http.Redirect(w, r, "/?signin=retry", http.StatusFound)
	default:
		s.writeError(w, r, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := s.sessionID(r); id != "" {
		if err := s.manager.Logout(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// serviceHandler is an /api/ handler bound to the caller's drive.
type serviceHandler func(w http.ResponseWriter, r *http.Request, svc *incident.Service)

// withService requires a session with a valid token and binds an incident
// service to it.
func (s *Server) withService(next serviceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := s.sessionID(r)
		if id == "" {
			s.writeError(w, r, auth.ErrReauthRequired)
			return
		}

		if _, err := s.manager.ValidToken(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}

		cfg := s.holder.Config()

		sess, err := s.drives.Session(r.Context(), s.manager.TokenSource(id), driveops.Target{
			SiteURL: cfg.Storage.SiteURL,
			DriveID: cfg.Storage.DriveID,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		svc := incident.NewService(
			sess.Resolver(),
			sess.Files(cfg.Storage.UploadParallelism),
			incident.Settings{Root: cfg.Storage.RootPath, Sites: cfg.Sites},
			s.logger,
		)

		next(w, r, svc)
	}
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request, svc *incident.Service) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "year must be a number"})
		return
	}

	folders, err := svc.Folders(r.Context(), year, r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request, svc *incident.Service) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form: " + err.Error()})
		return
	}

	defer func() { _ = r.MultipartForm.RemoveAll() }()

	year, err := strconv.Atoi(r.FormValue("year"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "year must be a number"})
		return
	}

	docs := r.MultipartForm.File["file"]
	if len(docs) != 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "exactly one report file is required"})
		return
	}

	doc, err := readPart(docs[0])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	attachments := make([]driveops.Upload, 0, len(r.MultipartForm.File["attachments"]))

	for _, fh := range r.MultipartForm.File["attachments"] {
		data, err := readPart(fh)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		attachments = append(attachments, driveops.Upload{
			Name:        fh.Filename,
			Data:        data,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	filed, err := svc.Create(r.Context(), incident.Report{
		Year:        year,
		Location:    r.FormValue("location"),
		Serial:      r.FormValue("serial"),
		Document:    doc,
		Attachments: attachments,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, filed)
}

func (s *Server) handleUpdateIncident(w http.ResponseWriter, r *http.Request, svc *incident.Service) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
		return
	}

	items, err := svc.Update(r.Context(), r.PathValue("folderID"), []driveops.Upload{{
		Name:        r.PathValue("name"),
		Data:        data,
		ContentType: r.Header.Get("Content-Type"),
	}})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, items[0])
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, svc *incident.Service) {
	files, err := svc.Files(r.Context(), r.PathValue("folderID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, svc *incident.Service) {
	data, err := svc.Fetch(r.Context(), r.PathValue("itemID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}
