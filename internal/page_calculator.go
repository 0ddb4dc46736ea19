package internal

import "github.com/lychee-technology/shardquery"

// PageCalculator builds the next request-scoped FilterParams for a shard,
// given the configured batch size and the KeysetManager's saved cursor
// state. It never talks to a shard itself, and the shard executors do not
// call it: they build their page filters themselves.
type PageCalculator struct {
	keyset *KeysetManager
	memory *MemoryMonitor
}

// NewPageCalculator builds a calculator backed by keyset cursor state and a
// memory monitor for sizing.
func NewPageCalculator(keyset *KeysetManager, memory *MemoryMonitor) *PageCalculator {
	return &PageCalculator{keyset: keyset, memory: memory}
}

// FirstPage clears all cursor fields and sets limit to batchSize.
func (p *PageCalculator) FirstPage(filters *shardquery.FilterParams, batchSize int) *shardquery.FilterParams {
	out := *filters
	out.ClearCursor()
	out.Limit = batchSize
	return &out
}

// WithOffset clears any cursor and sets limit/offset explicitly.
func (p *PageCalculator) WithOffset(filters *shardquery.FilterParams, batchSize, offset int) *shardquery.FilterParams {
	out := *filters
	out.ClearCursor()
	out.Limit = batchSize
	o := offset
	out.Offset = &o
	return &out
}

// WithKeyset rejects an offset-bearing filter and populates cursor fields
// from the manager's saved state for province. If no state exists yet, it
// falls back to FirstPage.
func (p *PageCalculator) WithKeyset(filters *shardquery.FilterParams, batchSize int, province string) *shardquery.FilterParams {
	state := p.keyset.Load(province)
	if state == nil {
		return p.FirstPage(filters, batchSize)
	}

	out := *filters
	out.Offset = nil
	out.Limit = batchSize

	switch {
	case state.Standard != nil:
		id := state.Standard.ID
		serie := state.Standard.Serie
		place := state.Standard.Place
		out.LastID = &id
		out.LastSerie = &serie
		out.LastPlace = &place
		out.ConsolidatedKey = nil
	case state.Consolidated != nil:
		out.LastID = nil
		out.LastSerie = nil
		out.LastPlace = nil
		out.ConsolidatedKey = map[string]any{
			"campo_0": state.Consolidated.Col0,
			"campo_1": state.Consolidated.Col1,
			"campo_2": state.Consolidated.Col2,
		}
	default:
		return p.FirstPage(filters, batchSize)
	}

	return &out
}

// ShouldContinue reports whether a page that returned `returned` rows, when
// dispatched with a batch size of `batchSize`, implies there may be more.
func (p *PageCalculator) ShouldContinue(returned, batchSize int) bool {
	return returned >= batchSize
}

// OptimalSize returns MemoryMonitor.OptimalBatchSize(max(defaultSize, base)).
func (p *PageCalculator) OptimalSize(defaultSize, base int) int {
	size := defaultSize
	if base > size {
		size = base
	}
	return p.memory.OptimalBatchSize(size)
}
