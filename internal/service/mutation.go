package service

import (
	"slices"
	"sync"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
)

const (
	ActionSave   = "save"
	ActionUnsave = "unsave"
	ActionClear  = "clear"
)

type mutationKind int

const (
	mutationToggle mutationKind = iota
	mutationSave
	mutationUnsave
	mutationClear
)

func (k mutationKind) String() string {
	switch k {
	case mutationToggle:
		return "toggle"
	case mutationSave:
		return ActionSave
	case mutationUnsave:
		return ActionUnsave
	case mutationClear:
		return ActionClear
	default:
		return "unknown"
	}
}

// mutation is one accepted change waiting for its remote write. property
// already carries the savedAt stamped when it was accepted.
type mutation struct {
	kind     mutationKind
	property entity.Property
	action   string

	done chan error
	once sync.Once
}

// apply returns items with the mutation applied. The input is never modified.
func (m *mutation) apply(items []entity.Property) ([]entity.Property, bool) {
	idx := slices.IndexFunc(items, func(p entity.Property) bool { return p.ID == m.property.ID })
	switch m.kind {
	case mutationToggle:
		if idx >= 0 {
			return slices.Delete(slices.Clone(items), idx, idx+1), true
		}
		return append(slices.Clone(items), m.property), true
	case mutationSave:
		if idx >= 0 {
			return items, false
		}
		return append(slices.Clone(items), m.property), true
	case mutationUnsave:
		if idx < 0 {
			return items, false
		}
		return slices.Delete(slices.Clone(items), idx, idx+1), true
	case mutationClear:
		if len(items) == 0 {
			return items, false
		}
		return []entity.Property{}, true
	}
	return items, false
}

func (m *mutation) complete(err error) {
	m.once.Do(func() {
		m.done <- err
	})
}
