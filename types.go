package shardquery

import "time"

// QueryStatus is the lifecycle state of a registered Query.
type QueryStatus string

const (
	QueryStatusPending    QueryStatus = "PENDING"
	QueryStatusAnalysed   QueryStatus = "ANALYSED"
	QueryStatusError      QueryStatus = "ERROR"
	QueryStatusRegistered QueryStatus = "REGISTERED"
	QueryStatusObsolete   QueryStatus = "OBSOLETE"
)

// ConsolidationKind describes how a query's rows should be produced in a
// single consolidated pass, or RAW if no such pass applies.
type ConsolidationKind string

const (
	ConsolidationAggregation         ConsolidationKind = "AGGREGATION"
	ConsolidationAggregationStream   ConsolidationKind = "AGGREGATION_STREAMING"
	ConsolidationAggregationHighVol  ConsolidationKind = "AGGREGATION_HIGH_VOLUME"
	ConsolidationRaw                 ConsolidationKind = "RAW"
	ConsolidationRawStreaming        ConsolidationKind = "RAW_STREAMING"
	ConsolidationDedup               ConsolidationKind = "DEDUP"
	ConsolidationHierarchical        ConsolidationKind = "HIERARCHICAL"
	ConsolidationCombined            ConsolidationKind = "COMBINED"
	ConsolidationForceAggregation    ConsolidationKind = "FORCE_AGGREGATION"
)

// consolidationRank fixes the monotonic ordering AGGREGATION < AGGREGATION_STREAMING
// < AGGREGATION_HIGH_VOLUME used by the "increasing estimate never picks a cheaper
// kind" invariant. Kinds outside the aggregation ladder rank above it.
var consolidationRank = map[ConsolidationKind]int{
	ConsolidationAggregation:        0,
	ConsolidationAggregationStream:  1,
	ConsolidationAggregationHighVol: 2,
	ConsolidationRaw:                3,
	ConsolidationRawStreaming:       3,
	ConsolidationDedup:              3,
	ConsolidationHierarchical:       3,
	ConsolidationCombined:           3,
	ConsolidationForceAggregation:   3,
}

// ConsolidationRank returns the monotonic ordering position of a ConsolidationKind.
func ConsolidationRank(k ConsolidationKind) int {
	return consolidationRank[k]
}

// PaginationStrategy is how a query's rows are paged across successive calls.
type PaginationStrategy string

const (
	PaginationKeysetWithID       PaginationStrategy = "KEYSET_WITH_ID"
	PaginationCompositeKey       PaginationStrategy = "COMPOSITE_KEY"
	PaginationKeysetConsolidated PaginationStrategy = "KEYSET_CONSOLIDATED"
	PaginationOffset             PaginationStrategy = "OFFSET"
	PaginationNone                PaginationStrategy = "NO_PAGINATION"
	PaginationLimitOnlyFallback   PaginationStrategy = "LIMIT_ONLY_FALLBACK"
)

// FilterKind is the shape of a detected WHERE-clause filter.
type FilterKind string

const (
	FilterDateRange    FilterKind = "DATE_RANGE"
	FilterBoolean      FilterKind = "BOOLEAN"
	FilterArrayInteger FilterKind = "ARRAY_INTEGER"
	FilterArrayText    FilterKind = "ARRAY_TEXT"
	FilterTextExact    FilterKind = "TEXT_EXACT"
	FilterTextLike     FilterKind = "TEXT_LIKE"
)

// FieldKind classifies a single SELECT-list expression.
type FieldKind string

const (
	FieldLocation       FieldKind = "LOCATION"
	FieldTime           FieldKind = "TIME"
	FieldNumericSum     FieldKind = "NUMERIC_SUM"
	FieldNumericCount   FieldKind = "NUMERIC_COUNT"
	FieldComputed       FieldKind = "COMPUTED"
	FieldIdentifier     FieldKind = "IDENTIFIER"
	FieldCategorisation FieldKind = "CATEGORISATION"
	FieldDetail         FieldKind = "DETAIL"
)

// KeysetDataType is the declared type of a keyset column, used to decide
// whether two candidates collide (e.g. two temporal keys).
type KeysetDataType string

const (
	KeysetInteger   KeysetDataType = "INTEGER"
	KeysetText      KeysetDataType = "TEXT"
	KeysetDate      KeysetDataType = "DATE"
	KeysetTimestamp KeysetDataType = "TIMESTAMP"
	KeysetBoolean   KeysetDataType = "BOOLEAN"
)

// Query is a registered, named SQL report that may be fanned out to shards.
type Query struct {
	Code          string
	SQL           string
	Category      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int
	Active        bool
	EstimatedRows *int64
	MaxLimit      int
	TimeoutSecs   int
	Status        QueryStatus
	Tags          []string
	LastUsed      *time.Time
	UseCount      int64
}

// FilterSpec describes one UI-facing filter derived from the WHERE clause.
type FilterSpec struct {
	Kind         FilterKind
	SQLColumn    string
	Label        string
	Parameters   []string
	DataType     string
	Multivalued  bool
	Required     bool
	Options      []string
	HardCoded    bool
	RewriteHint  string
}

// KeysetField is a candidate column for keyset pagination.
type KeysetField struct {
	ColumnRef     string
	ParameterName string
	DataType      KeysetDataType
	Priority      int
}

// QueryMetadata is the 1:1 analysis result attached to a Query.
type QueryMetadata struct {
	QueryCode          string
	Consolidable       bool
	ConsolidationKind   ConsolidationKind
	PaginationStrategy PaginationStrategy
	GroupingFields     []string
	NumericFields      []string
	TimeFields         []string
	LocationFields     []string
	KeysetFields       []KeysetField
	IDColumn           string
	FilterSchema       map[string]FilterSpec
}

// StandardCursor anchors standard keyset pagination to the last emitted row.
type StandardCursor struct {
	ID    int64
	Serie string
	Place string
}

// ConsolidatedCursor anchors consolidated keyset pagination to the first
// three non-null values of the last emitted row, in that row's own column
// order (see DESIGN.md open question (b)).
type ConsolidatedCursor struct {
	Col0 any
	Col1 any
	Col2 any
}

// CursorState is per-shard, per-job pagination anchor state. Exactly one of
// Standard/Consolidated is active at a time; both nil means "no cursor yet".
type CursorState struct {
	Standard     *StandardCursor
	Consolidated *ConsolidatedCursor
}

// IsStandard reports whether tup looks like a standard cursor tuple: at
// least one entry, and the first entry is integer-typed.
func IsStandard(tup []any) bool {
	if len(tup) == 0 {
		return false
	}
	switch tup[0].(type) {
	case int, int32, int64:
		return true
	default:
		return false
	}
}

// EstimationResult aggregates per-shard dataset-size estimates.
type EstimationResult struct {
	Total int64
	Mean  int64
	Max   int64
}

// FilterParams is the request-scoped bag of filter and pagination values
// threaded through every shard call. ConsolidatedKey uses the stable keys
// "campo_0"/"campo_1"/"campo_2".
type FilterParams struct {
	SpecificDate *time.Time
	DateFrom     *time.Time
	DateTo       *time.Time

	StateIDs      []int
	InfractionIDs []int
	ConcessionIDs []int
	ExportaSacit  *bool

	Limit  int
	Offset *int

	LastID    *int64
	LastSerie *string
	LastPlace *string

	ConsolidatedKey map[string]any

	Extra map[string]any
}

// ClearCursor clears every cursor-related field (offset and keyset alike),
// enforcing the invariant that a cursor never coexists with an offset.
func (f *FilterParams) ClearCursor() {
	f.Offset = nil
	f.LastID = nil
	f.LastSerie = nil
	f.LastPlace = nil
	f.ConsolidatedKey = nil
}

// Row is an ordered name -> value map. Go's built-in map does not preserve
// insertion order, which several invariants depend on (KeysetManager's
// "first three non-null values in insertion order"), so Row tracks key
// order explicitly alongside the value map.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty, ready-to-use Row.
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// Set assigns a value, appending the key to the order if it is new.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it was present.
func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Delete removes a key, preserving the order of remaining keys.
func (r *Row) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Clone returns a deep-enough copy: a new key slice and value map, sharing
// only the (treated as immutable) leaf values.
func (r *Row) Clone() *Row {
	out := &Row{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Len returns the number of keys in the row.
func (r *Row) Len() int {
	return len(r.keys)
}
