// Package balance derives the displayed balance from reconciled transactions.
package balance

import (
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/shopspring/decimal"
)

// Calculate folds every approved transaction's signed amount onto opening.
// Pending and failed records have no effect.
func Calculate(txs []domain.Transaction, opening decimal.Decimal) decimal.Decimal {
	total := opening
	for _, tx := range txs {
		if tx.Status != domain.StatusApproved {
			continue
		}
		total = total.Add(tx.SignedAmount())
	}
	return total
}
