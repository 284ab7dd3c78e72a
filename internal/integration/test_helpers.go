package integration

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeblocks/internal/app"
	"codeblocks/internal/config"
	"codeblocks/pkg/types"
)

// testExercises seeds every integration database
var testExercises = []types.Definition{
	{ID: "abc123", Title: "Return one", Instructions: "Return the number one", Code: "function f() {\n}", Solution: "return 1;"},
	{ID: "xyz", Title: "Async case", Instructions: "Await the promise", Code: "// await", Solution: "await p;"},
}

// NewTestConfig returns a config backed by a temp sqlite database and seed file
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	data, err := json.Marshal(testExercises)
	require.NoError(t, err)
	seedPath := filepath.Join(dir, "exercises.json")
	require.NoError(t, os.WriteFile(seedPath, data, 0o600))

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "codeblocks.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.SeedFile = seedPath
	return cfg
}

// StartApplication runs a full server until the test ends and returns its base URL
func StartApplication(t *testing.T, cfg *config.Config) (*app.Application, string) {
	t.Helper()
	ctx := context.Background()

	application, err := app.NewApplication(ctx, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, application.Start(ctx))

	// Stop tolerates a second call, so tests may stop early
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	})

	return application, "http://" + application.GetAddr()
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
