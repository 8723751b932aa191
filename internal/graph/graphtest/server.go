// Package graphtest provides an in-memory Microsoft Graph drive served over
// httptest. It implements the subset of endpoints the graph package calls:
// path lookup, item and children reads with paging, conflict-checked folder
// creation, simple and session uploads, content download, /me and site
// discovery. Names are matched case-insensitively, as SharePoint does.
package graphtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Defaults used by NewServer.
const (
	DefaultDriveID = "drive-1"
	DefaultSiteID  = "contoso.sharepoint.com,site-1,web-1"
	RootID         = "root"
)

type node struct {
	id       string
	name     string
	parentID string
	folder   bool
	data     []byte
	mimeType string
	created  time.Time
	modified time.Time
}

type uploadSession struct {
	parentID string
	name     string
	buf      []byte
}

// Server is a fake Graph endpoint backed by an in-memory tree.
type Server struct {
	*httptest.Server

	DriveID string
	SiteID  string

	// Token, when set, is the only bearer token accepted.
	Token string

	// PageSize caps children pages below the requested $top.
	PageSize int

	// BeforeCreate runs before a folder create is applied, outside the lock.
	// Tests use it to inject a concurrent writer.
	BeforeCreate func(parentID, name string)

	mu       sync.Mutex
	nodes    map[string]*node
	sessions map[string]*uploadSession
	nextID   int
	creates  int
	requests map[string]int
	failures []injectedFailure
}

type injectedFailure struct {
	method string
	status int
}

// NewServer starts a fake Graph server that is closed on test cleanup.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		DriveID:  DefaultDriveID,
		SiteID:   DefaultSiteID,
		PageSize: 200,
		nodes:    make(map[string]*node),
		sessions: make(map[string]*uploadSession),
		requests: make(map[string]int),
	}

	now := time.Now().UTC()
	s.nodes[RootID] = &node{id: RootID, name: "root", folder: true, created: now, modified: now}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

// FailNext makes the next n requests with the given method (any method if
// empty) fail with status.
func (s *Server) FailNext(n int, method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range n {
		s.failures = append(s.failures, injectedFailure{method: method, status: status})
	}
}

// MkdirAll creates every folder along path and returns the terminal ID.
func (s *Server) MkdirAll(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := RootID

	for _, seg := range splitPath(path) {
		if child := s.childLocked(id, seg); child != nil {
			id = child.id
			continue
		}

		id = s.addLocked(id, seg, true, nil, "").id
	}

	return id
}

// PutFile stores a file under parentID and returns its ID.
func (s *Server) PutFile(parentID, name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putLocked(parentID, name, data, "application/octet-stream").id
}

// Lookup resolves a slash path to an item ID.
func (s *Server) Lookup(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.walkLocked(path)
	if n == nil {
		return "", false
	}

	return n.id, true
}

// ChildNames returns the names of parentID's children, sorted.
func (s *Server) ChildNames(parentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string

	for _, n := range s.nodes {
		if n.parentID == parentID && n.id != RootID {
			names = append(names, n.name)
		}
	}

	sort.Strings(names)

	return names
}

// Content returns a file's stored bytes.
func (s *Server) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.folder {
		return nil, false
	}

	return append([]byte(nil), n.data...), true
}

// FolderCount returns the number of folders, excluding the root.
func (s *Server) FolderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0

	for _, n := range s.nodes {
		if n.folder && n.id != RootID {
			count++
		}
	}

	return count
}

// Creates returns how many folder-create requests succeeded.
func (s *Server) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.creates
}

// Requests returns how many requests were received for a method.
func (s *Server) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests[method]
}

func splitPath(p string) []string {
	var out []string

	for seg := range strings.SplitSeq(strings.Trim(p, "/"), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}

	return out
}

func (s *Server) childLocked(parentID, name string) *node {
	for _, n := range s.nodes {
		if n.parentID == parentID && n.id != RootID && strings.EqualFold(n.name, name) {
			return n
		}
	}

	return nil
}

func (s *Server) walkLocked(path string) *node {
	cur := s.nodes[RootID]

	for _, seg := range splitPath(path) {
		if !cur.folder {
			return nil
		}

		cur = s.childLocked(cur.id, seg)
		if cur == nil {
			return nil
		}
	}

	return cur
}

func (s *Server) addLocked(parentID, name string, folder bool, data []byte, mime string) *node {
	s.nextID++
	now := time.Now().UTC()

	n := &node{
		id:       fmt.Sprintf("item-%d", s.nextID),
		name:     name,
		parentID: parentID,
		folder:   folder,
		data:     data,
		mimeType: mime,
		created:  now,
		modified: now,
	}
	s.nodes[n.id] = n

	return n
}

func (s *Server) putLocked(parentID, name string, data []byte, mime string) *node {
	if existing := s.childLocked(parentID, name); existing != nil && !existing.folder {
		existing.data = data
		existing.mimeType = mime
		existing.modified = time.Now().UTC()

		return existing
	}

	return s.addLocked(parentID, name, false, data, mime)
}

// --- HTTP ---

type itemJSON struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Size                 int         `json:"size"`
	ETag                 string      `json:"eTag"`
	CreatedDateTime      string      `json:"createdDateTime"`
	LastModifiedDateTime string      `json:"lastModifiedDateTime"`
	ParentReference      *parentJSON `json:"parentReference,omitempty"`
	Folder               *folderJSON `json:"folder,omitempty"`
	File                 *fileJSON   `json:"file,omitempty"`
}

type parentJSON struct {
	ID      string `json:"id"`
	DriveID string `json:"driveId"`
}

type folderJSON struct {
	ChildCount int `json:"childCount"`
}

type fileJSON struct {
	MimeType string `json:"mimeType"`
}

func (s *Server) toJSONLocked(n *node) itemJSON {
	it := itemJSON{
		ID:                   n.id,
		Name:                 n.name,
		Size:                 len(n.data),
		ETag:                 fmt.Sprintf("%q", n.modified.Format(time.RFC3339Nano)),
		CreatedDateTime:      n.created.Format(time.RFC3339),
		LastModifiedDateTime: n.modified.Format(time.RFC3339),
	}

	if n.id != RootID {
		it.ParentReference = &parentJSON{ID: n.parentID, DriveID: s.DriveID}
	}

	if n.folder {
		count := 0

		for _, c := range s.nodes {
			if c.parentID == n.id && c.id != RootID {
				count++
			}
		}

		it.Folder = &folderJSON{ChildCount: count}
	} else {
		it.File = &fileJSON{MimeType: n.mimeType}
	}

	return it
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if failed := s.injectFailure(w, r); failed {
		return
	}

	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/upload/"):
		s.serveUploadSession(w, r, strings.TrimPrefix(path, "/upload/"))
		return
	case strings.HasPrefix(path, "/download/"):
		s.serveDownload(w, strings.TrimPrefix(path, "/download/"))
		return
	}

	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "InvalidAuthenticationToken", "Access token is empty or invalid.")
		return
	}

	switch {
	case path == "/me":
		writeJSON(w, http.StatusOK, map[string]string{
			"id": "user-1", "displayName": "Test User", "userPrincipalName": "test.user@contoso.com",
		})
	case path == "/me/drive":
		s.serveDrive(w)
	case strings.HasPrefix(path, "/sites/"):
		s.serveSites(w, strings.TrimPrefix(path, "/sites/"))
	case strings.HasPrefix(path, "/drives/"+s.DriveID+"/"):
		s.serveDriveItems(w, r, strings.TrimPrefix(path, "/drives/"+s.DriveID))
	default:
		writeError(w, http.StatusNotFound, "itemNotFound", "no such route")
	}
}

func (s *Server) injectFailure(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.requests[r.Method]++

	for i, f := range s.failures {
		if f.method == "" || f.method == r.Method {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			s.mu.Unlock()

			_, _ = io.Copy(io.Discard, r.Body)
			writeError(w, f.status, "injected", "injected failure")

			return true
		}
	}

	s.mu.Unlock()

	return false
}

func (s *Server) authorized(r *http.Request) bool {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") || h == "Bearer " {
		return false
	}

	return s.Token == "" || h == "Bearer "+s.Token
}

func (s *Server) serveDrive(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id": s.DriveID, "name": "Documents", "driveType": "documentLibrary",
	})
}

func (s *Server) serveSites(w http.ResponseWriter, rest string) {
	if strings.HasSuffix(rest, "/drive") {
		if strings.TrimSuffix(rest, "/drive") != s.SiteID {
			writeError(w, http.StatusNotFound, "itemNotFound", "site not found")
			return
		}

		s.serveDrive(w)

		return
	}

	host, sitePath, _ := strings.Cut(rest, ":")
	writeJSON(w, http.StatusOK, map[string]string{
		"id":          s.SiteID,
		"name":        strings.TrimPrefix(sitePath, "/sites/"),
		"displayName": strings.TrimPrefix(sitePath, "/sites/"),
		"webUrl":      "https://" + host + sitePath,
	})
}

func (s *Server) serveDriveItems(w http.ResponseWriter, r *http.Request, rest string) {
	switch {
	case rest == "/root" && r.Method == http.MethodGet:
		s.serveItem(w, RootID)
	case strings.HasPrefix(rest, "/root:/") && strings.HasSuffix(rest, ":") && r.Method == http.MethodGet:
		s.servePath(w, strings.TrimSuffix(strings.TrimPrefix(rest, "/root:/"), ":"))
	case strings.HasPrefix(rest, "/items/"):
		s.serveItemRoute(w, r, strings.TrimPrefix(rest, "/items/"))
	default:
		writeError(w, http.StatusNotFound, "itemNotFound", "no such route")
	}
}

func (s *Server) serveItemRoute(w http.ResponseWriter, r *http.Request, tail string) {
	if idPart, rel, ok := strings.Cut(tail, ":/"); ok {
		name, action, _ := strings.Cut(rel, ":/")

		switch {
		case action == "content" && r.Method == http.MethodPut:
			s.serveSimpleUpload(w, r, idPart, name)
		case action == "createUploadSession" && r.Method == http.MethodPost:
			s.serveCreateSession(w, idPart, name)
		default:
			writeError(w, http.StatusNotFound, "itemNotFound", "no such route")
		}

		return
	}

	id, sub, _ := strings.Cut(tail, "/")

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.serveItem(w, id)
	case sub == "children" && r.Method == http.MethodGet:
		s.serveChildren(w, r, id)
	case sub == "children" && r.Method == http.MethodPost:
		s.serveCreateFolder(w, r, id)
	case sub == "content" && r.Method == http.MethodGet:
		s.mu.Lock()
		n, ok := s.nodes[id]
		s.mu.Unlock()

		if !ok || n.folder {
			writeError(w, http.StatusNotFound, "itemNotFound", "item not found")
			return
		}

		http.Redirect(w, r, s.URL+"/download/"+id, http.StatusFound)
	default:
		writeError(w, http.StatusNotFound, "itemNotFound", "no such route")
	}
}

func (s *Server) serveItem(w http.ResponseWriter, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		writeError(w, http.StatusNotFound, "itemNotFound", "item not found")
		return
	}

	writeJSON(w, http.StatusOK, s.toJSONLocked(n))
}

func (s *Server) servePath(w http.ResponseWriter, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.walkLocked(path)
	if n == nil {
		writeError(w, http.StatusNotFound, "itemNotFound", "path not found")
		return
	}

	writeJSON(w, http.StatusOK, s.toJSONLocked(n))
}

func (s *Server) serveChildren(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[id]
	if !ok || !parent.folder {
		writeError(w, http.StatusNotFound, "itemNotFound", "item not found")
		return
	}

	var kids []*node

	for _, n := range s.nodes {
		if n.parentID == id && n.id != RootID {
			kids = append(kids, n)
		}
	}

	sort.Slice(kids, func(i, j int) bool { return kids[i].id < kids[j].id })

	top, err := strconv.Atoi(r.URL.Query().Get("$top"))
	if err != nil || top <= 0 || top > s.PageSize {
		top = s.PageSize
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("$skiptoken")) //nolint:errcheck // absent means 0
	skip = min(max(skip, 0), len(kids))
	end := min(skip+top, len(kids))

	value := make([]itemJSON, 0, end-skip)
	for _, n := range kids[skip:end] {
		value = append(value, s.toJSONLocked(n))
	}

	resp := map[string]any{"value": value}
	if end < len(kids) {
		resp["@odata.nextLink"] = fmt.Sprintf("%s/drives/%s/items/%s/children?$top=%d&$skiptoken=%d",
			s.URL, s.DriveID, id, top, end)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) serveCreateFolder(w http.ResponseWriter, r *http.Request, parentID string) {
	var req struct {
		Name             string          `json:"name"`
		Folder           json.RawMessage `json:"folder"`
		ConflictBehavior string          `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalidRequest", "bad create body")
		return
	}

	if s.BeforeCreate != nil {
		s.BeforeCreate(parentID, req.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok || !parent.folder {
		writeError(w, http.StatusNotFound, "itemNotFound", "parent not found")
		return
	}

	if s.childLocked(parentID, req.Name) != nil {
		writeError(w, http.StatusConflict, "nameAlreadyExists", "An item with the same name already exists under the parent")
		return
	}

	n := s.addLocked(parentID, req.Name, true, nil, "")
	s.creates++

	writeJSON(w, http.StatusCreated, s.toJSONLocked(n))
}

func (s *Server) serveSimpleUpload(w http.ResponseWriter, r *http.Request, parentID, name string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalidRequest", "read body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok || !parent.folder {
		writeError(w, http.StatusNotFound, "itemNotFound", "parent not found")
		return
	}

	if existing := s.childLocked(parentID, name); existing != nil && existing.folder {
		writeError(w, http.StatusConflict, "nameAlreadyExists", "a folder has that name")
		return
	}

	n := s.putLocked(parentID, name, data, r.Header.Get("Content-Type"))
	writeJSON(w, http.StatusCreated, s.toJSONLocked(n))
}

func (s *Server) serveCreateSession(w http.ResponseWriter, parentID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent, ok := s.nodes[parentID]; !ok || !parent.folder {
		writeError(w, http.StatusNotFound, "itemNotFound", "parent not found")
		return
	}

	s.nextID++
	sid := fmt.Sprintf("session-%d", s.nextID)
	s.sessions[sid] = &uploadSession{parentID: parentID, name: name}

	writeJSON(w, http.StatusOK, map[string]string{
		"uploadUrl":          s.URL + "/upload/" + sid,
		"expirationDateTime": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
}

func (s *Server) serveUploadSession(w http.ResponseWriter, r *http.Request, sid string) {
	if r.Header.Get("Authorization") != "" {
		writeError(w, http.StatusBadRequest, "invalidRequest", "upload URLs are pre-authenticated")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sid]
	if !ok {
		writeError(w, http.StatusNotFound, "itemNotFound", "no such session")
		return
	}

	if r.Method == http.MethodDelete {
		delete(s.sessions, sid)
		w.WriteHeader(http.StatusNoContent)

		return
	}

	var start, end, total int
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
		writeError(w, http.StatusBadRequest, "invalidRange", "bad Content-Range")
		return
	}

	if start != len(sess.buf) {
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "invalidRange", "unexpected offset")
		return
	}

	chunk, _ := io.ReadAll(r.Body) //nolint:errcheck // short read is caught by the length check
	if len(chunk) != end-start+1 {
		writeError(w, http.StatusBadRequest, "invalidRange", "length mismatch")
		return
	}

	sess.buf = append(sess.buf, chunk...)

	if len(sess.buf) < total {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"nextExpectedRanges": []string{fmt.Sprintf("%d-", len(sess.buf))},
		})

		return
	}

	delete(s.sessions, sid)
	n := s.putLocked(sess.parentID, sess.name, sess.buf, "application/octet-stream")
	writeJSON(w, http.StatusCreated, s.toJSONLocked(n))
}

func (s *Server) serveDownload(w http.ResponseWriter, id string) {
	data, ok := s.Content(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}
