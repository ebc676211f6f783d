package txsync

import (
	"testing"
	"time"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 12, 10, 15, 0, 0, 0, time.UTC)

func tx(id string, typ domain.TxType, amount int64, status domain.TxStatus) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Type:      typ,
		Amount:    decimal.NewFromInt(amount),
		Timestamp: t0,
		Status:    status,
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name        string
		local       []domain.Transaction
		snapshot    []domain.Transaction
		want        []domain.Transaction
		wantChanged bool
	}{
		{
			name:        "new records are appended in snapshot order",
			local:       []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending)},
			snapshot:    []domain.Transaction{tx("c", domain.TxReceive, 5, domain.StatusApproved), tx("b", domain.TxMine, 20, domain.StatusApproved)},
			want:        []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending), tx("c", domain.TxReceive, 5, domain.StatusApproved), tx("b", domain.TxMine, 20, domain.StatusApproved)},
			wantChanged: true,
		},
		{
			name:        "status advances to the server version",
			local:       []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending)},
			snapshot:    []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusApproved)},
			want:        []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusApproved)},
			wantChanged: true,
		},
		{
			name:  "same status keeps the local record",
			local: []domain.Transaction{{ID: "a", Type: domain.TxBuy, Amount: decimal.NewFromInt(50), Status: domain.StatusPending, Details: "local"}},
			snapshot: []domain.Transaction{
				{ID: "a", Type: domain.TxBuy, Amount: decimal.NewFromInt(50), Status: domain.StatusPending, Details: "server"},
			},
			want:        []domain.Transaction{{ID: "a", Type: domain.TxBuy, Amount: decimal.NewFromInt(50), Status: domain.StatusPending, Details: "local"}},
			wantChanged: false,
		},
		{
			name:        "local-only records survive",
			local:       []domain.Transaction{tx("mine", domain.TxSell, 10, domain.StatusPending)},
			snapshot:    nil,
			want:        []domain.Transaction{tx("mine", domain.TxSell, 10, domain.StatusPending)},
			wantChanged: false,
		},
		{
			name:        "pending never overwrites a terminal status",
			local:       []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusFailed)},
			snapshot:    []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending)},
			want:        []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusFailed)},
			wantChanged: false,
		},
		{
			name:        "duplicate ids in a snapshot collapse",
			snapshot:    []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending), tx("a", domain.TxBuy, 50, domain.StatusApproved)},
			want:        []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusApproved)},
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Merge(tt.local, tt.snapshot)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	local := []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending)}
	snapshot := []domain.Transaction{
		tx("a", domain.TxBuy, 50, domain.StatusApproved),
		tx("b", domain.TxReceive, 7, domain.StatusApproved),
	}

	once, changed := Merge(local, snapshot)
	assert.True(t, changed)

	twice, changed := Merge(once, snapshot)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestMergeConvergesRegardlessOfSnapshotOrder(t *testing.T) {
	a := tx("a", domain.TxBuy, 50, domain.StatusApproved)
	b := tx("b", domain.TxSell, 10, domain.StatusFailed)
	local := []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending), tx("b", domain.TxSell, 10, domain.StatusPending)}

	forward, _ := Merge(local, []domain.Transaction{a, b})
	backward, _ := Merge(local, []domain.Transaction{b, a})

	assert.ElementsMatch(t, forward, backward)
	assert.False(t, domain.HasPending(forward))
}

func TestMergeDoesNotAliasLocal(t *testing.T) {
	local := []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusPending)}
	merged, _ := Merge(local, []domain.Transaction{tx("a", domain.TxBuy, 50, domain.StatusApproved)})

	assert.Equal(t, domain.StatusPending, local[0].Status)
	assert.Equal(t, domain.StatusApproved, merged[0].Status)
}
