package driveops

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/irdrive/internal/graph"
	"github.com/tonimelisma/irdrive/internal/graph/graphtest"
)

const testRoot = "Ground Station Operations/Incident Reports"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDrive starts a fake drive with testRoot already present.
func newTestDrive(t *testing.T) (*graphtest.Server, *graph.Client) {
	t.Helper()

	srv := graphtest.NewServer(t)
	srv.MkdirAll(testRoot)

	client := graph.NewClient(srv.URL, srv.Client(), graph.StaticToken("tok"), testLogger(), "irdrive-test")

	return srv, client
}

func newTestResolver(t *testing.T) (*graphtest.Server, *Resolver) {
	t.Helper()

	srv, client := newTestDrive(t)

	return srv, NewResolver(client, srv.DriveID, testLogger())
}

func mustSpec(t *testing.T, segments ...string) PathSpec {
	t.Helper()

	spec, err := NewPathSpec(testRoot, segments...)
	require.NoError(t, err)

	return spec
}
