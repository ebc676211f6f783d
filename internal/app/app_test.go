package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/remote"
	"github.com/paper-piper/Dini/internal/storage"
	"github.com/paper-piper/Dini/pkg/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walletServer is an in-memory implementation of the wallet HTTP contract.
type walletServer struct {
	mu              sync.Mutex
	sessions        map[string]string
	records         map[string][]dto.Transaction
	seq             int
	loggedOut       []string
	rejectHeartbeat bool
	failList        bool
}

func newWalletServer(t *testing.T) (*walletServer, string) {
	t.Helper()
	w := &walletServer{
		sessions: make(map[string]string),
		records:  make(map[string][]dto.Transaction),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", w.auth)
	mux.HandleFunc("POST /login", w.auth)
	mux.HandleFunc("POST /logout", w.logout)
	mux.HandleFunc("POST /heartbeat", w.heartbeat)
	mux.HandleFunc("GET /transactions", w.list)
	mux.HandleFunc("POST /transactions", w.create)
	mux.HandleFunc("GET /connected-users", w.users)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv.URL
}

func (w *walletServer) auth(rw http.ResponseWriter, r *http.Request) {
	var req dto.Auth
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	w.seq++
	id := fmt.Sprintf("session-%d", w.seq)
	w.sessions[id] = req.Username
	w.mu.Unlock()

	_ = json.NewEncoder(rw).Encode(dto.Session{SessionID: id})
}

func (w *walletServer) user(r *http.Request) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	u, ok := w.sessions[r.Header.Get("Session-Id")]
	return u, ok
}

func (w *walletServer) logout(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := r.Header.Get("Session-Id")
	w.loggedOut = append(w.loggedOut, id)
	delete(w.sessions, id)
}

func (w *walletServer) heartbeat(rw http.ResponseWriter, r *http.Request) {
	_, ok := w.user(r)

	w.mu.Lock()
	reject := w.rejectHeartbeat
	w.mu.Unlock()

	if !ok || reject {
		rw.WriteHeader(http.StatusUnauthorized)
	}
}

func (w *walletServer) list(rw http.ResponseWriter, r *http.Request) {
	u, ok := w.user(r)
	if !ok {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.mu.Lock()
	fail := w.failList
	w.mu.Unlock()
	if fail {
		http.Error(rw, "unavailable", http.StatusServiceUnavailable)
		return
	}

	w.mu.Lock()
	out := append([]dto.Transaction{}, w.records[u]...)
	w.mu.Unlock()

	_ = json.NewEncoder(rw).Encode(out)
}

func (w *walletServer) create(rw http.ResponseWriter, r *http.Request) {
	u, ok := w.user(r)
	if !ok {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req dto.CreateTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	w.seq++
	created := dto.Transaction{
		ID:        fmt.Sprintf("tx-%d", w.seq),
		Type:      req.Type,
		Amount:    req.Amount,
		Status:    "pending",
		Details:   req.Details,
		Timestamp: time.Date(2024, 12, 10, 15, 0, w.seq, 0, time.UTC).Format("2006-01-02T15:04:05.000000"),
	}
	w.records[u] = append(w.records[u], created)
	w.mu.Unlock()

	_ = json.NewEncoder(rw).Encode(created)
}

func (w *walletServer) users(rw http.ResponseWriter, r *http.Request) {
	u, ok := w.user(r)
	if !ok {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.mu.Lock()
	var names []string
	for _, name := range w.sessions {
		if name != u {
			names = append(names, name)
		}
	}
	w.mu.Unlock()

	_ = json.NewEncoder(rw).Encode(names)
}

func (w *walletServer) settleAll(status string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for u := range w.records {
		for i := range w.records[u] {
			if w.records[u][i].Status == "pending" {
				w.records[u][i].Status = status
			}
		}
	}
}

func (w *walletServer) setFailList(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failList = v
}

func (w *walletServer) setRejectHeartbeat(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rejectHeartbeat = v
}

type harness struct {
	server *walletServer
	clock  *clock.Fake
	cfg    *config.Config
	slot   storage.Slot
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	server, url := newWalletServer(t)

	slot, err := storage.OpenBolt(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Close() })

	return &harness{
		server: server,
		clock:  clock.NewFake(time.Date(2024, 12, 10, 15, 0, 0, 0, time.UTC)),
		slot:   slot,
		url:    url,
		cfg: &config.Config{
			ServerAddress:     url,
			PollInterval:      5 * time.Second,
			HeartbeatInterval: time.Minute,
			RequestTimeout:    time.Second,
			OpeningBalance:    1000,
			MiningMin:         2 * time.Second,
			MiningMax:         2 * time.Second,
			MiningTick:        100 * time.Millisecond,
			MiningReward:      20,
			MiningSeed:        1,
		},
	}
}

func (h *harness) app(t *testing.T) *App {
	t.Helper()
	client, err := remote.New(h.url, remote.Options{Timeout: time.Second})
	require.NoError(t, err)

	a := newApp(h.cfg, h.slot, client, h.clock)
	t.Cleanup(a.Stop)
	return a
}

func TestStartWithoutSessionNeedsLogin(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)

	assert.ErrorIs(t, a.Start(context.Background()), ErrLoginRequired)
}

func TestBuyIsPendingThenApproved(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx, "alice", "pw"))
	require.NoError(t, a.Start(ctx))

	tx, err := a.Submit(ctx, domain.TxBuy, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(a.Balance()))

	h.server.settleAll("approved")
	h.clock.Advance(h.cfg.PollInterval)

	settled, err := a.WaitSettled(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, settled.Status)
	assert.True(t, decimal.NewFromInt(1050).Equal(a.Balance()))
}

func TestSessionSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.app(t)
	require.NoError(t, first.Login(ctx, "alice", "pw"))
	_, err := first.Submit(ctx, domain.TxBuy, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	first.Stop()

	second := h.app(t)
	require.NoError(t, second.Start(ctx))

	sess, state := second.Session()
	assert.Equal(t, domain.Authenticated, state)
	assert.Equal(t, "alice", sess.Username)
	assert.Len(t, second.History(), 1)
}

func TestHeartbeatRejectionExpiresSession(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "alice", "pw"))
	require.NoError(t, a.Start(ctx))
	tx, err := a.Submit(ctx, domain.TxSell, decimal.NewFromInt(5), "")
	require.NoError(t, err)

	h.server.setRejectHeartbeat(true)
	h.clock.Advance(h.cfg.HeartbeatInterval)

	_, state := a.Session()
	assert.Equal(t, domain.Expired, state)

	_, err = a.Submit(ctx, domain.TxBuy, decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = a.WaitSettled(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.ErrorIs(t, a.Start(ctx), ErrLoginRequired)
}

func TestTransferDetailsAndRecipients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob := h.app(t)
	require.NoError(t, bob.Register(ctx, "bob", "pw"))

	alice := h.app(t)
	require.NoError(t, alice.Login(ctx, "alice", "pw"))

	users, err := alice.ConnectedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)

	tx, err := alice.Transfer(ctx, "bob", decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, domain.TxTransfer, tx.Type)
	assert.Equal(t, "To: bob", tx.Details)

	_, err = alice.Transfer(ctx, "", decimal.NewFromInt(3))
	assert.ErrorIs(t, err, domain.ErrInvalidDraft)
}

func TestMineSubmitsReward(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "alice", "pw"))
	require.NoError(t, a.Start(ctx))

	run, err := a.Mine(ctx)
	require.NoError(t, err)

	_, err = a.Mine(ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	h.clock.Advance(2 * time.Second)
	tx, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TxMine, tx.Type)

	h.server.settleAll("approved")
	h.clock.Advance(h.cfg.PollInterval)
	assert.True(t, decimal.NewFromInt(1020).Equal(a.Balance()))
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "alice", "pw"))
	require.NoError(t, a.Logout(ctx))

	_, state := a.Session()
	assert.Equal(t, domain.Anonymous, state)
	assert.Equal(t, []string{"session-1"}, h.server.loggedOut)
	assert.ErrorIs(t, a.Start(ctx), ErrLoginRequired)
}

func TestWaitSettledHonoursContext(t *testing.T) {
	h := newHarness(t)
	a := h.app(t)

	require.NoError(t, a.Login(context.Background(), "alice", "pw"))
	tx, err := a.Submit(context.Background(), domain.TxBuy, decimal.NewFromInt(1), "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.WaitSettled(ctx, tx.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectedUsersAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bob := h.app(t)
	require.NoError(t, bob.Register(ctx, "bob", "pw"))

	first := h.app(t)
	require.NoError(t, first.Login(ctx, "alice", "pw"))
	first.Stop()

	second := h.app(t)
	users, err := second.ConnectedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestLogoutAfterRestartEndsServerSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.app(t)
	require.NoError(t, first.Login(ctx, "alice", "pw"))
	sess, _ := first.Session()
	first.Stop()

	second := h.app(t)
	require.NoError(t, second.Logout(ctx))

	h.server.mu.Lock()
	loggedOut := append([]string{}, h.server.loggedOut...)
	h.server.mu.Unlock()
	assert.Equal(t, []string{sess.ID}, loggedOut)

	third := h.app(t)
	assert.ErrorIs(t, third.Start(ctx), ErrLoginRequired)
}

func TestStartToleratesUnreachableHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.app(t)
	require.NoError(t, a.Login(ctx, "alice", "pw"))
	_, err := a.Submit(ctx, domain.TxBuy, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	a.Stop()

	h.server.setFailList(true)
	restarted := h.app(t)
	require.NoError(t, restarted.Start(ctx))
	_, state := restarted.Session()
	assert.Equal(t, domain.Authenticated, state)
	assert.Empty(t, restarted.History())

	h.server.setFailList(false)
	h.server.settleAll("approved")
	require.NoError(t, restarted.sync.PollOnce(ctx))
	assert.Len(t, restarted.History(), 1)
}
