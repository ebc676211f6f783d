package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/internal/storage"
	"github.com/paper-piper/Dini/pkg/dto"
)

const slotKey = "session"

// SlotPersister keeps the session as one JSON record in a storage.Slot.
type SlotPersister struct {
	slot storage.Slot
}

func NewSlotPersister(slot storage.Slot) *SlotPersister {
	return &SlotPersister{slot: slot}
}

func (p *SlotPersister) Load() (domain.Session, bool, error) {
	raw, err := p.slot.Get(slotKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("error reading session slot: %w", err)
	}

	var stored dto.StoredSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Session{}, false, fmt.Errorf("error decoding session slot: %w", err)
	}
	if stored.SessionID == "" || stored.Username == "" {
		return domain.Session{}, false, nil
	}

	return domain.Session{Username: stored.Username, ID: stored.SessionID}, true, nil
}

func (p *SlotPersister) Save(s domain.Session) error {
	raw, err := json.Marshal(dto.StoredSession{Username: s.Username, SessionID: s.ID})
	if err != nil {
		return fmt.Errorf("error encoding session: %w", err)
	}
	return p.slot.Put(slotKey, raw)
}

func (p *SlotPersister) Clear() error {
	return p.slot.Delete(slotKey)
}
