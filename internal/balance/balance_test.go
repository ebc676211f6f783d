package balance

import (
	"math/rand/v2"
	"testing"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func tx(id string, typ domain.TxType, amount string, status domain.TxStatus) domain.Transaction {
	return domain.Transaction{ID: id, Type: typ, Amount: decimal.RequireFromString(amount), Status: status}
}

func TestCalculate(t *testing.T) {
	opening := decimal.NewFromInt(1000)

	tests := []struct {
		name string
		txs  []domain.Transaction
		want string
	}{
		{"empty", nil, "1000"},
		{"pending buy has no effect", []domain.Transaction{tx("a", domain.TxBuy, "50", domain.StatusPending)}, "1000"},
		{"approved buy", []domain.Transaction{tx("a", domain.TxBuy, "50", domain.StatusApproved)}, "1050"},
		{"failed buy", []domain.Transaction{tx("a", domain.TxBuy, "50", domain.StatusFailed)}, "1000"},
		{"credits", []domain.Transaction{
			tx("a", domain.TxMine, "20", domain.StatusApproved),
			tx("b", domain.TxReceive, "2.5", domain.StatusApproved),
		}, "1022.5"},
		{"debits", []domain.Transaction{
			tx("a", domain.TxSell, "100", domain.StatusApproved),
			tx("b", domain.TxTransfer, "0.25", domain.StatusApproved),
		}, "899.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.txs, opening)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCalculateIgnoresObservationOrder(t *testing.T) {
	buy := tx("a", domain.TxBuy, "100", domain.StatusApproved)
	sell := tx("b", domain.TxSell, "30", domain.StatusApproved)

	assert.True(t, decimal.NewFromInt(70).Equal(Calculate([]domain.Transaction{buy, sell}, decimal.Zero)))
	assert.True(t, decimal.NewFromInt(70).Equal(Calculate([]domain.Transaction{sell, buy}, decimal.Zero)))
}

func TestRecomputeMatchesRunningDelta(t *testing.T) {
	types := []domain.TxType{domain.TxBuy, domain.TxSell, domain.TxTransfer, domain.TxMine, domain.TxReceive}
	statuses := []domain.TxStatus{domain.StatusPending, domain.StatusApproved, domain.StatusFailed}
	rng := rand.New(rand.NewPCG(1, 2))

	var txs []domain.Transaction
	running := decimal.Zero
	for i := 0; i < 200; i++ {
		next := domain.Transaction{
			Type:   types[rng.IntN(len(types))],
			Amount: decimal.New(rng.Int64N(100000), -2),
			Status: statuses[rng.IntN(len(statuses))],
		}
		txs = append(txs, next)
		if next.Status == domain.StatusApproved {
			running = running.Add(next.SignedAmount())
		}

		assert.True(t, running.Equal(Calculate(txs, decimal.Zero)), "step %d", i)
	}

	rng.Shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })
	assert.True(t, running.Equal(Calculate(txs, decimal.Zero)))
}
