package herdsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/bartoszzontek/highlander-farm/herdstore"
)

// stubConn is a switchable connectivity probe.
type stubConn struct{ online int32 }

func (c *stubConn) Online() bool { return atomic.LoadInt32(&c.online) == 1 }

func (c *stubConn) set(online bool) {
	if online {
		atomic.StoreInt32(&c.online, 1)
	} else {
		atomic.StoreInt32(&c.online, 0)
	}
}

// harness wires a repository and sync service against an in-memory store and
// an httptest fake of the remote API.
type harness struct {
	t      *testing.T
	store  *herdstore.Store
	repo   *Repository
	sync   *SyncService
	conn   *stubConn
	server *httptest.Server
	remote *RemoteClient
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()

	store, err := herdstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	remote := NewRemoteClient(server.URL, func(ctx context.Context) (string, error) {
		return "test-token", nil
	})

	conn := &stubConn{online: 1}
	cfg := DefaultConfig()
	cfg.RetryDelay = Duration(10 * time.Millisecond)

	return &harness{
		t:      t,
		store:  store,
		repo:   NewRepository(store, remote, conn, nil),
		sync:   NewSyncService(store, remote, conn, cfg, nil),
		conn:   conn,
		server: server,
		remote: remote,
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *harness) pendingOps() []herdstore.PendingOperation {
	h.t.Helper()
	ops, err := h.store.PendingOperations(context.Background())
	require.NoError(h.t, err)
	return ops
}

func (h *harness) animals() []herdstore.Animal {
	h.t.Helper()
	animals, err := h.store.Animals(context.Background())
	require.NoError(h.t, err)
	return animals
}

var validAnimal = AnimalInput{
	TagID:     "PL001",
	Name:      "Bella",
	Breed:     "Highland Cattle",
	BirthDate: "2020-04-01",
	Sex:       herdstore.SexFemale,
}
