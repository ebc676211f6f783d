package txsync

import "github.com/paper-piper/Dini/internal/domain"

// Merge folds an authoritative snapshot into the local list and reports
// whether anything changed. Unknown ids are appended in snapshot order, a
// differing status replaces the local record, and records the snapshot does
// not mention are kept. A pending status never overwrites a terminal one.
func Merge(local, snapshot []domain.Transaction) ([]domain.Transaction, bool) {
	merged := make([]domain.Transaction, len(local), len(local)+len(snapshot))
	copy(merged, local)

	index := make(map[string]int, len(merged))
	for i, tx := range merged {
		index[tx.ID] = i
	}

	changed := false
	for _, tx := range snapshot {
		i, ok := index[tx.ID]
		if !ok {
			index[tx.ID] = len(merged)
			merged = append(merged, tx)
			changed = true
			continue
		}

		cur := merged[i]
		if cur.Status == tx.Status {
			continue
		}
		if cur.Status.Terminal() && !tx.Status.Terminal() {
			continue
		}
		merged[i] = tx
		changed = true
	}

	return merged, changed
}
