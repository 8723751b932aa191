package driveops

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/irdrive/internal/graph"
)

func TestEnsurePath_CreatesMissingFolders(t *testing.T) {
	srv, r := newTestResolver(t)
	ctx := context.Background()
	before := srv.FolderCount()

	spec := mustSpec(t, "2025", "Davao City", "SMCOD-IR-GS-DVO-2025-0007")

	folder, err := r.EnsurePath(ctx, spec)
	require.NoError(t, err)

	assert.True(t, folder.IsFolder())
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0007", folder.Name)
	assert.Equal(t, before+3, srv.FolderCount())
	assert.Equal(t, 3, srv.Creates())

	id, ok := srv.Lookup(spec.String())
	require.True(t, ok)
	assert.Equal(t, id, folder.ID)
}

func TestEnsurePath_Idempotent(t *testing.T) {
	srv, r := newTestResolver(t)
	ctx := context.Background()
	before := srv.FolderCount()

	spec := mustSpec(t, "2025", "Davao City", "SMCOD-IR-GS-DVO-2025-0007")

	first, err := r.EnsurePath(ctx, spec)
	require.NoError(t, err)

	second, err := r.EnsurePath(ctx, spec)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, before+3, srv.FolderCount())
	assert.Equal(t, 3, srv.Creates(), "second call must not create anything")
}

func TestEnsurePath_RootOnly(t *testing.T) {
	srv, r := newTestResolver(t)

	folder, err := r.EnsurePath(context.Background(), mustSpec(t))
	require.NoError(t, err)

	id, _ := srv.Lookup(testRoot)
	assert.Equal(t, id, folder.ID)
	assert.Zero(t, srv.Creates())
}

func TestEnsurePath_ReusesCaseVariant(t *testing.T) {
	srv, r := newTestResolver(t)

	existing := srv.MkdirAll(testRoot + "/2025/davao city")

	folder, err := r.EnsurePath(context.Background(), mustSpec(t, "2025", "Davao City"))
	require.NoError(t, err)

	assert.Equal(t, existing, folder.ID)
	assert.Zero(t, srv.Creates())
}

func TestEnsurePath_ConcurrentCallersConverge(t *testing.T) {
	srv, r := newTestResolver(t)
	before := srv.FolderCount()

	// Hold every create of the first segment until both callers have
	// listed and decided to create, so one of them must lose with a 409.
	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)

	srv.BeforeCreate = func(_, name string) {
		if name != "2025" {
			return
		}

		mu.Lock()
		arrived++
		if arrived == 2 {
			close(release)
		}
		mu.Unlock()

		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}

	spec := mustSpec(t, "2025", "Davao City", "SMCOD-IR-GS-DVO-2025-0007")

	const callers = 2

	ids := make([]string, callers)

	g, ctx := errgroup.WithContext(context.Background())

	for i := range callers {
		g.Go(func() error {
			folder, err := r.EnsurePath(ctx, spec)
			if err != nil {
				return err
			}

			ids[i] = folder.ID

			return nil
		})
	}

	require.NoError(t, g.Wait())

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, before+3, srv.FolderCount())

	rootID, _ := srv.Lookup(testRoot)
	assert.Equal(t, []string{"2025"}, srv.ChildNames(rootID))
}

func TestEnsurePath_AdoptsFolderCreatedDuringRace(t *testing.T) {
	srv, r := newTestResolver(t)

	var injected string

	srv.BeforeCreate = func(_, name string) {
		if name == "Davao City" && injected == "" {
			injected = srv.MkdirAll(testRoot + "/2025/DAVAO CITY")
		}
	}

	folder, err := r.EnsurePath(context.Background(), mustSpec(t, "2025", "Davao City", "0007"))
	require.NoError(t, err)

	require.NotEmpty(t, injected)

	parent, ok := srv.Lookup(testRoot + "/2025/Davao City")
	require.True(t, ok)
	assert.Equal(t, injected, parent)
	assert.Equal(t, []string{"DAVAO CITY"}, srv.ChildNames(mustLookup(t, srv.Lookup, testRoot+"/2025")))
	assert.Equal(t, []string{"0007"}, srv.ChildNames(injected))
	assert.Equal(t, "0007", folder.Name)
}

func mustLookup(t *testing.T, lookup func(string) (string, bool), path string) string {
	t.Helper()

	id, ok := lookup(path)
	require.True(t, ok, path)

	return id
}

// laggingAPI hides one child from the first listing after a conflict,
// as an eventually consistent listing would.
type laggingAPI struct {
	API
	hide      string
	conflicts int
	mu        sync.Mutex
}

func (a *laggingAPI) CreateFolder(ctx context.Context, driveID, parentID, name string) (*graph.Item, error) {
	item, err := a.API.CreateFolder(ctx, driveID, parentID, name)
	if err != nil {
		a.mu.Lock()
		a.conflicts++
		a.mu.Unlock()
	}

	return item, err
}

func (a *laggingAPI) ListChildren(ctx context.Context, driveID, parentID string) ([]graph.Item, error) {
	items, err := a.API.ListChildren(ctx, driveID, parentID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := items[:0]

	for _, it := range items {
		if it.Name != a.hide {
			out = append(out, it)
		}
	}

	return out, nil
}

func TestEnsurePath_FallsBackToPathLookupWhenListingLags(t *testing.T) {
	srv, client := newTestDrive(t)
	existing := srv.MkdirAll(testRoot + "/2025")

	api := &laggingAPI{API: client, hide: "2025"}
	r := NewResolver(api, srv.DriveID, testLogger())

	folder, err := r.EnsurePath(context.Background(), mustSpec(t, "2025"))
	require.NoError(t, err)

	assert.Equal(t, existing, folder.ID)
	assert.Equal(t, 1, api.conflicts)
	assert.Zero(t, srv.Creates())
}

func TestEnsurePath_RootMissing(t *testing.T) {
	srv, r := newTestResolver(t)

	spec, err := NewPathSpec("No Such Library/Reports", "2025")
	require.NoError(t, err)

	_, err = r.EnsurePath(context.Background(), spec)
	require.ErrorIs(t, err, ErrRootNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, srv.Creates(), "nothing may be created under a missing root")
}

func TestEnsurePath_RootIsFile(t *testing.T) {
	srv, r := newTestResolver(t)

	rootID, _ := srv.Lookup(testRoot)
	srv.PutFile(rootID, "notes.txt", []byte("x"))

	spec, err := NewPathSpec(testRoot+"/notes.txt", "2025")
	require.NoError(t, err)

	_, err = r.EnsurePath(context.Background(), spec)
	assert.ErrorIs(t, err, ErrNotFolder)
}

func TestEnsurePath_FileBlocksSegment(t *testing.T) {
	srv, r := newTestResolver(t)

	yearID := srv.MkdirAll(testRoot + "/2025")
	srv.PutFile(yearID, "Davao City", []byte("not a folder"))

	_, err := r.EnsurePath(context.Background(), mustSpec(t, "2025", "Davao City", "0007"))
	require.ErrorIs(t, err, ErrNotFolder)

	var perr *ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Davao City", perr.Segment)
	assert.Equal(t, testRoot+"/2025/Davao City", perr.Path)
}

func TestEnsurePath_RemoteFailure(t *testing.T) {
	srv, r := newTestResolver(t)

	srv.FailNext(1, http.MethodPost, http.StatusForbidden)

	_, err := r.EnsurePath(context.Background(), mustSpec(t, "2025"))
	require.ErrorIs(t, err, ErrTransport)

	var perr *ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "2025", perr.Segment)
}

func TestEnsurePath_Canceled(t *testing.T) {
	_, r := newTestResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.EnsurePath(ctx, mustSpec(t, "2025"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookup_AbsentAndFound(t *testing.T) {
	srv, r := newTestResolver(t)
	ctx := context.Background()

	lookup, err := r.Lookup(ctx, testRoot+"/2030")
	require.NoError(t, err)
	assert.False(t, lookup.Exists())

	id := srv.MkdirAll(testRoot + "/2030")

	lookup, err = r.Lookup(ctx, testRoot+"/2030")
	require.NoError(t, err)

	item, ok := lookup.Item()
	require.True(t, ok)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, KindFolder, item.Kind)
}

func TestCheckDuplicate(t *testing.T) {
	_, r := newTestResolver(t)
	ctx := context.Background()

	spec := mustSpec(t, "2025", "Davao City", "SMCOD-IR-GS-DVO-2025-0007")

	dup, err := r.CheckDuplicate(ctx, spec)
	require.NoError(t, err)
	assert.False(t, dup)

	_, err = r.EnsurePath(ctx, spec)
	require.NoError(t, err)

	dup, err = r.CheckDuplicate(ctx, spec)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestCheckDuplicate_MissingRootIsNotDuplicate(t *testing.T) {
	srv, r := newTestResolver(t)

	spec, err := NewPathSpec("Nowhere", "2025")
	require.NoError(t, err)

	dup, err := r.CheckDuplicate(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Zero(t, srv.Creates())
}

func TestListFolders(t *testing.T) {
	srv, r := newTestResolver(t)
	ctx := context.Background()

	spec := mustSpec(t, "2025", "Davao City")

	folders, err := r.ListFolders(ctx, spec)
	require.NoError(t, err)
	assert.Empty(t, folders)

	srv.MkdirAll(testRoot + "/2025/Davao City/SMCOD-IR-GS-DVO-2025-0002")
	cityID := srv.MkdirAll(testRoot + "/2025/Davao City/SMCOD-IR-GS-DVO-2025-0001")
	srv.PutFile(cityID, "stray.txt", []byte("x"))

	parentID, _ := srv.Lookup(testRoot + "/2025/Davao City")
	srv.PutFile(parentID, "index.xlsx", []byte("x"))

	folders, err = r.ListFolders(ctx, spec)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0001", folders[0].Name)
	assert.Equal(t, "SMCOD-IR-GS-DVO-2025-0002", folders[1].Name)
}
