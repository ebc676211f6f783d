package dto

import (
	"fmt"
	"time"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/shopspring/decimal"
)

/**
  {
      "id": "6f1c...",
      "type": "buy",
      "amount": 50,
      "status": "pending",
      "details": "To: bob",
      "timestamp": "2024-12-10T15:15:45.123456"
  }
*/

// Amounts travel as JSON numbers and are decoded without a float round trip.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Transaction struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Details   string          `json:"details,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type CreateTransaction struct {
	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details,omitempty"`
	Status  string          `json:"status"`
}

// timestampLayouts covers RFC 3339 and the zone-less ISO 8601 form produced
// by Python's datetime.isoformat().
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (t Transaction) ToDomain() (domain.Transaction, error) {
	if t.ID == "" {
		return domain.Transaction{}, fmt.Errorf("transaction without id")
	}

	typ := domain.TxType(t.Type)
	if !typ.Valid() {
		return domain.Transaction{}, fmt.Errorf("transaction %s: unknown type %q", t.ID, t.Type)
	}

	status := domain.TxStatus(t.Status)
	if !status.Valid() {
		return domain.Transaction{}, fmt.Errorf("transaction %s: unknown status %q", t.ID, t.Status)
	}

	ts, err := ParseTimestamp(t.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}

	return domain.Transaction{
		ID:        t.ID,
		Type:      typ,
		Amount:    t.Amount,
		Timestamp: ts,
		Status:    status,
		Details:   t.Details,
	}, nil
}

func FromDomain(tx domain.Transaction) Transaction {
	return Transaction{
		ID:        tx.ID,
		Type:      string(tx.Type),
		Amount:    tx.Amount,
		Status:    string(tx.Status),
		Details:   tx.Details,
		Timestamp: tx.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func FromDraft(d domain.Draft) CreateTransaction {
	return CreateTransaction{
		Type:    string(d.Type),
		Amount:  d.Amount,
		Details: d.Details,
		Status:  string(domain.StatusPending),
	}
}
