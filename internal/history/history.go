// Package history keeps a linear undo/redo list of settings snapshots.
package history

import (
	"slices"

	"github.com/shinyyama/abracadabra/internal/model"
)

// History is an append-only arena of snapshots with a movable cursor.
// The arena is never empty and the cursor always points into it.
// It is not safe for concurrent use; the owning session serializes access.
type History struct {
	snapshots []model.Settings
	cursor    int
}

func New(initial model.Settings) *History {
	return &History{snapshots: []model.Settings{initial}}
}

// Record drops every snapshot after the cursor, then appends s and moves the
// cursor onto it. Anything that was undone before this call is unreachable after it.
func (h *History) Record(s model.Settings) {
	kept := h.snapshots[:h.cursor+1]
	if len(kept) < len(h.snapshots) {
		// Undone snapshots stay untouched in the old array.
		kept = slices.Clip(kept)
	}
	h.snapshots = append(kept, s)
	h.cursor = len(h.snapshots) - 1
}

// Undo steps back one snapshot. No-op at the first snapshot.
func (h *History) Undo() {
	if h.cursor > 0 {
		h.cursor--
	}
}

// Redo steps forward one snapshot. No-op at the last snapshot.
func (h *History) Redo() {
	if h.cursor < len(h.snapshots)-1 {
		h.cursor++
	}
}

func (h *History) Current() model.Settings {
	return h.snapshots[h.cursor]
}

func (h *History) CanUndo() bool { return h.cursor > 0 }

func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

func (h *History) Cursor() int { return h.cursor }

func (h *History) Len() int { return len(h.snapshots) }
