package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/lychee-technology/shardquery"
)

type streamingShardStore struct {
	province string
	rows     []*shardquery.Row
	execErr  error
}

func (s *streamingShardStore) Province() string { return s.province }

func (s *streamingShardStore) ExecutePage(ctx context.Context, queryCode string, filters *shardquery.FilterParams) ([]*shardquery.Row, error) {
	return nil, nil
}

func (s *streamingShardStore) Execute(ctx context.Context, queryCode string, filters *shardquery.FilterParams, onRow func(*shardquery.Row) error) error {
	for _, r := range s.rows {
		if err := onRow(r); err != nil {
			return err
		}
	}
	return s.execErr
}

func (s *streamingShardStore) CountFrom(ctx context.Context, sql string, filters *shardquery.FilterParams) (int64, error) {
	return 0, nil
}

func streamRows(n int) []*shardquery.Row {
	rows := make([]*shardquery.Row, n)
	for i := range rows {
		r := shardquery.NewRow()
		r.Set("id", int64(i))
		r.Set("row_id", int64(5000+i))
		rows[i] = r
	}
	return rows
}

func TestStreamingExecutorFlushesFullChunksAndResidual(t *testing.T) {
	shard := &streamingShardStore{province: "misiones", rows: streamRows(25)}
	out := &stubProcessingContext{}

	err := RunStreamingExecutor(context.Background(), shard, out, testMemoryMonitor(), "Q1", &shardquery.FilterParams{}, StreamingConfig{ChunkSize: 10, LogFrequency: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.batches) != 3 {
		t.Fatalf("expected 3 batches (10,10,5), got %d", len(out.batches))
	}
	if len(out.batches[2]) != 5 {
		t.Errorf("expected residual batch of 5, got %d", len(out.batches[2]))
	}
	if out.totalRows() != 25 {
		t.Errorf("expected 25 total rows forwarded, got %d", out.totalRows())
	}
}

func TestStreamingExecutorRestampsAndStripsRowID(t *testing.T) {
	shard := &streamingShardStore{province: "misiones", rows: streamRows(1)}
	out := &stubProcessingContext{}

	if err := RunStreamingExecutor(context.Background(), shard, out, testMemoryMonitor(), "Q1", &shardquery.FilterParams{}, StreamingConfig{ChunkSize: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := out.batches[0][0]
	if _, ok := row.Get("row_id"); ok {
		t.Error("expected row_id stripped")
	}
	if prov, _ := row.Get("provincia"); prov != "misiones" {
		t.Errorf("expected provincia misiones, got %v", prov)
	}
}

func TestStreamingExecutorWrapsDriverError(t *testing.T) {
	shard := &streamingShardStore{province: "formosa", execErr: errors.New("cursor closed")}
	out := &stubProcessingContext{}

	err := RunStreamingExecutor(context.Background(), shard, out, testMemoryMonitor(), "Q1", &shardquery.FilterParams{}, StreamingConfig{ChunkSize: 10})
	if err == nil || !shardquery.IsShardError(err) {
		t.Errorf("expected a ShardError, got %v", err)
	}
}

func TestStreamingExecutorWithTransformDropsNilResults(t *testing.T) {
	shard := &streamingShardStore{province: "chubut", rows: streamRows(4)}
	out := &stubProcessingContext{}

	transform := func(r *shardquery.Row) *shardquery.Row {
		id, _ := r.Get("id")
		if id.(int64)%2 == 0 {
			return nil
		}
		return r
	}

	err := RunStreamingExecutorWithTransform(context.Background(), shard, out, testMemoryMonitor(), "Q1", &shardquery.FilterParams{}, StreamingConfig{ChunkSize: 10}, transform)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.totalRows() != 2 {
		t.Errorf("expected 2 surviving rows out of 4, got %d", out.totalRows())
	}
}

func TestStreamingExecutorTransformPanicSkipsRowAndContinues(t *testing.T) {
	shard := &streamingShardStore{province: "chubut", rows: streamRows(3)}
	out := &stubProcessingContext{}

	transform := func(r *shardquery.Row) *shardquery.Row {
		id, _ := r.Get("id")
		if id.(int64) == 1 {
			panic("boom")
		}
		return r
	}

	err := RunStreamingExecutorWithTransform(context.Background(), shard, out, testMemoryMonitor(), "Q1", &shardquery.FilterParams{}, StreamingConfig{ChunkSize: 10}, transform)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.totalRows() != 2 {
		t.Errorf("expected the panicking row skipped and the other 2 forwarded, got %d", out.totalRows())
	}
}

func TestStreamingExecutorClearsCursorFieldsOnOutgoingFilter(t *testing.T) {
	var capturedOffset *int
	shard := &capturingShardStore{province: "rio_negro", capture: func(f *shardquery.FilterParams) {
		capturedOffset = f.Offset
	}}
	out := &stubProcessingContext{}
	offset := 40
	filters := &shardquery.FilterParams{Offset: &offset}

	if err := RunStreamingExecutor(context.Background(), shard, out, testMemoryMonitor(), "Q1", filters, StreamingConfig{ChunkSize: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedOffset != nil {
		t.Error("expected outgoing filter to have offset cleared")
	}
}

type capturingShardStore struct {
	province string
	capture  func(*shardquery.FilterParams)
}

func (s *capturingShardStore) Province() string { return s.province }

func (s *capturingShardStore) ExecutePage(ctx context.Context, queryCode string, filters *shardquery.FilterParams) ([]*shardquery.Row, error) {
	return nil, nil
}

func (s *capturingShardStore) Execute(ctx context.Context, queryCode string, filters *shardquery.FilterParams, onRow func(*shardquery.Row) error) error {
	s.capture(filters)
	return nil
}

func (s *capturingShardStore) CountFrom(ctx context.Context, sql string, filters *shardquery.FilterParams) (int64, error) {
	return 0, nil
}
