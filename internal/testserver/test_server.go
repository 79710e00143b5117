// Package testserver wires the full HTTP stack over a temporary data directory for tests.
package testserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/clusterbench/internal/clustering"
	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/filestore"
	"github.com/rpggio/clusterbench/internal/mcp"
	"github.com/rpggio/clusterbench/internal/runner"
	"github.com/rpggio/clusterbench/internal/sqlite"
	"github.com/rpggio/clusterbench/internal/transport"
	"github.com/stretchr/testify/require"
)

// Options configures a TestServer. Zero values pick test defaults.
type Options struct {
	// DataDir is reused across servers to simulate restarts.
	DataDir string
	Library clustering.Library
	Workers int
}

type TestServer struct {
	Server   *httptest.Server
	Projects *project.Service
	Runner   *runner.Runner
	Store    *filestore.Store
	MCP      *sdkmcp.Server
	DataDir  string
	history  *sqlite.DB
	// Recovered lists the projects marked interrupted at startup.
	Recovered []string
}

func New(t *testing.T, opts Options) *TestServer {
	t.Helper()

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = t.TempDir()
	}
	lib := opts.Library
	if lib == nil {
		lib = clustering.NewBuiltin()
	}
	workers := opts.Workers
	if workers == 0 {
		workers = 2
	}

	store, err := filestore.New(dataDir, nil)
	require.NoError(t, err)

	db, err := sqlite.New(filepath.Join(dataDir, "history.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)
	r := runner.New(lib, runner.Options{Workers: workers}, nil)
	projectSvc := project.NewService(store, r, activitySvc, nil)
	r.Start(context.Background(), projectSvc)

	recovered, err := projectSvc.RecoverInterrupted(context.Background())
	require.NoError(t, err)

	mcpServer := mcp.NewServer(mcp.Config{Projects: projectSvc, Version: "test"})
	server := httptest.NewServer(transport.NewServer(projectSvc, transport.Options{
		MCP: mcp.NewHTTPHandler(mcpServer),
	}))

	ts := &TestServer{
		Server:    server,
		Projects:  projectSvc,
		Runner:    r,
		Store:     store,
		MCP:       mcpServer,
		DataDir:   dataDir,
		Recovered: recovered,
		history:   db,
	}

	t.Cleanup(ts.Close)
	return ts
}

// Close stops the HTTP server and the runner. It is safe to call twice.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.Runner.Shutdown(ctx)
	_ = ts.history.Close()
}

// Do sends a request with a JSON body (or raw bytes) and returns status and body.
func (ts *TestServer) Do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "text/csv"
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// DoJSON sends a request, checks the status and decodes the response into out.
func (ts *TestServer) DoJSON(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	status, data := ts.Do(t, method, path, body)
	require.Equal(t, wantStatus, status, string(data))
	if out != nil {
		require.NoError(t, json.Unmarshal(data, out))
	}
}

// WaitIdle polls the project status until the project leaves its working state
// and the runner holds no job for it.
func (ts *TestServer) WaitIdle(t *testing.T, projectID string) project.StatusView {
	t.Helper()
	var status project.StatusView
	require.Eventually(t, func() bool {
		current, err := ts.Projects.GetStatus(context.Background(), projectID)
		if err != nil {
			return false
		}
		status = current
		return !status.State.Working() && !ts.Runner.Pending(projectID)
	}, 10*time.Second, 10*time.Millisecond)
	return status
}
