package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxBuy      TxType = "buy"
	TxSell     TxType = "sell"
	TxTransfer TxType = "transfer"
	TxMine     TxType = "mine"
	TxReceive  TxType = "receive"
)

func (t TxType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxTransfer, TxMine, TxReceive:
		return true
	}
	return false
}

// Credits reports whether an approved transaction of this type adds to the balance.
func (t TxType) Credits() bool {
	return t == TxBuy || t == TxMine || t == TxReceive
}

type TxStatus string

const (
	StatusPending  TxStatus = "pending"
	StatusApproved TxStatus = "approved"
	StatusFailed   TxStatus = "failed"
)

func (s TxStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusFailed
}

func (s TxStatus) Terminal() bool {
	return s == StatusApproved || s == StatusFailed
}

type Transaction struct {
	ID        string
	Type      TxType
	Amount    decimal.Decimal
	Timestamp time.Time
	Status    TxStatus
	Details   string
}

// SignedAmount is the balance effect of the transaction once approved.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type.Credits() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Draft is a transaction the client asks the server to create.
type Draft struct {
	Type    TxType
	Amount  decimal.Decimal
	Details string
}

func (d Draft) Validate() error {
	if !d.Type.Valid() {
		return ErrInvalidDraft
	}
	if d.Amount.IsNegative() {
		return ErrInvalidDraft
	}
	return nil
}

func HasPending(txs []Transaction) bool {
	for _, tx := range txs {
		if tx.Status == StatusPending {
			return true
		}
	}
	return false
}

// SortNewestFirst returns a copy of txs ordered by timestamp, newest first.
func SortNewestFirst(txs []Transaction) []Transaction {
	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

type SessionState int

const (
	Anonymous SessionState = iota
	Authenticated
	Expired
)

func (s SessionState) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	}
	return "unknown"
}

type Session struct {
	Username string
	ID       string
}

// Server side records.

type User struct {
	ID           int64
	Login        string
	Password     string
	RegisteredAt time.Time
}

type ServerSession struct {
	ID       string
	UserID   int64
	LastSeen time.Time
	Revoked  bool
}

// Record is a transaction as the server stores it, with its owner.
type Record struct {
	Transaction
	UserID int64
	Owner  string
}
