package service

import (
	"slices"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateSyncing       State = "syncing"
	StateEmpty         State = "empty"
)

// Snapshot is an immutable view of the store at one publish.
type Snapshot struct {
	State     State
	Items     []entity.Property
	IsSyncing bool
	LastError error

	index map[entity.PropertyID]struct{}
}

func newSnapshot(state State, items []entity.Property, syncing bool, lastErr error) *Snapshot {
	items = slices.Clone(items)
	if items == nil {
		items = []entity.Property{}
	}
	index := make(map[entity.PropertyID]struct{}, len(items))
	for _, p := range items {
		index[p.ID] = struct{}{}
	}
	return &Snapshot{State: state, Items: items, IsSyncing: syncing, LastError: lastErr, index: index}
}

func (s Snapshot) IsSaved(id entity.PropertyID) bool {
	_, ok := s.index[id]
	return ok
}

func (s Snapshot) Count() int { return len(s.Items) }
