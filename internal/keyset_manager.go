package internal

import (
	"sync"

	"github.com/lychee-technology/shardquery"
)

// KeysetManager tracks per-province pagination cursor state for a single
// job. Exactly one writer ever touches a given province's entry at a time
// (the shard executor owns that province's loop), so a sync.Map is enough:
// it avoids a single contended mutex across all provinces without needing
// per-province locks of its own.
type KeysetManager struct {
	state sync.Map // province (string) -> *shardquery.CursorState
}

// NewKeysetManager returns an empty manager.
func NewKeysetManager() *KeysetManager {
	return &KeysetManager{}
}

// Save inspects the last row of the just-emitted batch and records the
// cursor to resume from for province. If "id" is present and non-null, a
// standard cursor is saved; otherwise the first up to three non-null values,
// in the row's own insertion order, become a consolidated cursor.
func (k *KeysetManager) Save(lastRow *shardquery.Row, province string) {
	if lastRow == nil {
		return
	}

	if idVal, ok := lastRow.Get("id"); ok && idVal != nil {
		cursor := shardquery.StandardCursor{}
		if id, ok := asInt64(idVal); ok {
			cursor.ID = id
		}
		if serie, ok := lastRow.Get("serie_equipo"); ok {
			if s, ok := serie.(string); ok {
				cursor.Serie = s
			}
		}
		if lugar, ok := lastRow.Get("lugar"); ok {
			if s, ok := lugar.(string); ok {
				cursor.Place = s
			}
		}
		k.state.Store(province, &shardquery.CursorState{Standard: &cursor})
		return
	}

	var values [3]any
	count := 0
	for _, key := range lastRow.Keys() {
		if count >= 3 {
			break
		}
		v, _ := lastRow.Get(key)
		if v == nil {
			continue
		}
		values[count] = v
		count++
	}
	consolidated := &shardquery.ConsolidatedCursor{Col0: values[0], Col1: values[1], Col2: values[2]}
	k.state.Store(province, &shardquery.CursorState{Consolidated: consolidated})
}

// Load returns the saved cursor state for province, or nil if none exists.
func (k *KeysetManager) Load(province string) *shardquery.CursorState {
	v, ok := k.state.Load(province)
	if !ok {
		return nil
	}
	return v.(*shardquery.CursorState)
}

// Clear drops the saved cursor for province.
func (k *KeysetManager) Clear(province string) {
	k.state.Delete(province)
}

// IsStandardTuple reports whether tup looks like a standard cursor tuple:
// at least one entry, and the first entry is integer-typed.
func IsStandardTuple(tup []any) bool {
	return shardquery.IsStandard(tup)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
