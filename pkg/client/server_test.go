package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codeblocks/internal/broker"
	"codeblocks/internal/hub"
	"codeblocks/internal/router"
	"codeblocks/internal/websocket"
	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// fakeBackend serves the REST surface from memory and the real-time channel
// from a real hub
type fakeBackend struct {
	server   *httptest.Server
	hub      *hub.Hub
	registry *websocket.Registry

	mu          sync.Mutex
	defs        map[string]types.Definition
	roles       map[string]types.Role
	rejectRoles bool
	failAll     bool
	requests    map[string]int
	lastQuery   map[string]string
}

func (b *fakeBackend) BufferSeed(ctx context.Context, exerciseID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.defs[exerciseID]
	if !ok {
		return "", interfaces.ErrExerciseNotFound
	}
	return def.Code, nil
}

func (b *fakeBackend) Get(ctx context.Context, exerciseID string) (*types.Definition, error) {
	return nil, interfaces.ErrExerciseNotFound
}

func (b *fakeBackend) List(ctx context.Context) ([]types.CatalogEntry, error) {
	return nil, nil
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return newRateLimitedBackend(t, 6000)
}

// newRateLimitedBackend allows each participant perMinute codeChange events
func newRateLimitedBackend(t *testing.T, perMinute int) *fakeBackend {
	t.Helper()

	b := &fakeBackend{
		defs: map[string]types.Definition{
			"abc123": {ID: "abc123", Title: "Return one", Instructions: "return 1", Code: "// start", Solution: "return 1;"},
			"xyz":    {ID: "xyz", Title: "Other", Code: "other seed", Solution: "x"},
		},
		roles:     make(map[string]types.Role),
		requests:  make(map[string]int),
		lastQuery: make(map[string]string),
	}

	logger := zap.NewNop().Sugar()
	b.hub = hub.NewHub(b, broker.NewMemory(), logger)
	require.NoError(t, b.hub.Start(context.Background()))

	registry := websocket.NewRegistry()
	b.registry = registry
	r := router.NewRouter(b.hub, registry, perMinute, logger)
	ws := websocket.NewHandler(registry, r, websocket.DefaultOptions(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.HandleWebSocket)
	mux.HandleFunc("/codeblocks", b.serveREST)
	mux.HandleFunc("/codeblocks/", b.serveREST)

	b.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		registry.CloseAll()
		b.server.Close()
		_ = b.hub.Stop()
	})
	return b
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[path]
}

func (b *fakeBackend) query(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastQuery[path]
}

func (b *fakeBackend) serveREST(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests[r.URL.Path]++
	b.lastQuery[r.URL.Path] = r.URL.RawQuery
	w.Header().Set("Content-Type", "application/json")

	if b.failAll {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1:
		entries := []types.CatalogEntry{}
		for _, id := range []string{"xyz", "abc123"} {
			def := b.defs[id]
			entries = append(entries, def.Catalog())
		}
		_ = json.NewEncoder(w).Encode(entries)

	case len(parts) == 2:
		def, ok := b.defs[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(def)

	case len(parts) == 3 && parts[2] == "role":
		if _, ok := b.defs[parts[1]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		key := parts[1] + "/" + r.URL.Query().Get("participant")
		if raw := r.URL.Query().Get("role"); raw != "" {
			if b.rejectRoles {
				w.WriteHeader(http.StatusConflict)
				return
			}
			b.roles[key] = types.Role(raw)
		} else if _, ok := b.roles[key]; !ok {
			b.roles[key] = types.DefaultRole
		}
		_ = json.NewEncoder(w).Encode(map[string]types.Role{"role": b.roles[key]})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
