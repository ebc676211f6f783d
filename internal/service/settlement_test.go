package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/config"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settleHarness struct {
	repo    *txRepo
	clock   *clock.Fake
	txs     *TransactionService
	settler *Settler
}

func newSettleHarness(failureRate float64) *settleHarness {
	repo := newTxRepo()
	clk := clock.NewFake(time.Date(2024, 12, 10, 15, 0, 0, 0, time.UTC))
	cfg := &config.ServerConfig{
		SettleInterval: time.Second,
		SettleDelay:    time.Second,
		FailureRate:    failureRate,
		OpeningBalance: 100,
	}
	return &settleHarness{
		repo:    repo,
		clock:   clk,
		txs:     NewTransactionService(repo, clk),
		settler: NewSettler(repo, cfg, clk, rand.New(rand.NewPCG(7, 7))),
	}
}

func (h *settleHarness) create(t *testing.T, userID int64, typ string, amount float64, details string) string {
	t.Helper()
	tx, err := h.txs.Create(context.Background(), userID, dto.CreateTransaction{Type: typ, Amount: decimal.NewFromFloat(amount), Details: details})
	require.NoError(t, err)
	return tx.ID
}

func (h *settleHarness) settle(t *testing.T) int {
	t.Helper()
	h.clock.Advance(time.Second)
	n, err := h.settler.SettleDue(context.Background())
	require.NoError(t, err)
	return n
}

func TestSettleWaitsForDelay(t *testing.T) {
	h := newSettleHarness(0)
	id := h.create(t, 1, "buy", 10, "")

	n, err := h.settler.SettleDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.StatusPending, h.repo.byID(id).Status)

	assert.Equal(t, 1, h.settle(t))
	assert.Equal(t, domain.StatusApproved, h.repo.byID(id).Status)

	assert.Zero(t, h.settle(t), "settled records are not revisited")
}

func TestSettleFailureRate(t *testing.T) {
	h := newSettleHarness(1)
	id := h.create(t, 1, "buy", 10, "")

	h.settle(t)
	assert.Equal(t, domain.StatusFailed, h.repo.byID(id).Status)
}

func TestSettleInsufficientFunds(t *testing.T) {
	h := newSettleHarness(0)
	within := h.create(t, 1, "sell", 100, "")
	h.settle(t)
	assert.Equal(t, domain.StatusApproved, h.repo.byID(within).Status)

	beyond := h.create(t, 1, "sell", 1, "")
	h.settle(t)
	assert.Equal(t, domain.StatusFailed, h.repo.byID(beyond).Status)
}

func TestSettleTransfer(t *testing.T) {
	tests := []struct {
		name    string
		details string
		amount  float64
		status  domain.TxStatus
		credit  bool
	}{
		{name: "approved", details: "To: bob", amount: 30, status: domain.StatusApproved, credit: true},
		{name: "unknown recipient", details: "To: mallory", amount: 30, status: domain.StatusFailed},
		{name: "to self", details: "To: alice", amount: 30, status: domain.StatusFailed},
		{name: "no recipient", details: "", amount: 30, status: domain.StatusFailed},
		{name: "insufficient", details: "To: bob", amount: 101, status: domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSettleHarness(0)
			id := h.create(t, 1, "transfer", tt.amount, tt.details)
			h.settle(t)

			assert.Equal(t, tt.status, h.repo.byID(id).Status)

			received, err := h.repo.Transactions(context.Background(), 2)
			require.NoError(t, err)
			if !tt.credit {
				assert.Empty(t, received)
				return
			}
			require.Len(t, received, 1)
			assert.Equal(t, domain.TxReceive, received[0].Type)
			assert.Equal(t, domain.StatusApproved, received[0].Status)
			assert.Equal(t, "From: alice", received[0].Details)
			assert.Equal(t, "30", received[0].Amount.String())
		})
	}
}

func TestSettlerRunStopsWithContext(t *testing.T) {
	h := newSettleHarness(0)
	id := h.create(t, 1, "buy", 10, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.settler.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.clock.Active() == 1 }, time.Second, time.Millisecond)
	h.clock.Advance(time.Second)
	assert.Equal(t, domain.StatusApproved, h.repo.byID(id).Status)

	cancel()
	<-done
	assert.Zero(t, h.clock.Active())
}

func TestRecipient(t *testing.T) {
	tests := []struct {
		details string
		name    string
		ok      bool
	}{
		{details: "To: bob", name: "bob", ok: true},
		{details: "  To:bob  ", name: "bob", ok: true},
		{details: "To: ", ok: false},
		{details: "From: bob", ok: false},
		{details: "", ok: false},
	}

	for _, tt := range tests {
		name, ok := Recipient(tt.details)
		assert.Equal(t, tt.ok, ok, tt.details)
		assert.Equal(t, tt.name, name, tt.details)
	}
}
