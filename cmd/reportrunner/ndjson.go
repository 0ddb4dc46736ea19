package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/lychee-technology/shardquery"
)

// ndjsonWriter is a ProcessingContext that streams each row as one JSON
// object per line. Push is called concurrently across shard goroutines, so
// writes are serialized with a mutex.
type ndjsonWriter struct {
	mu  sync.Mutex
	out *bufio.Writer
	enc *json.Encoder
}

func newNDJSONWriter(w io.Writer) *ndjsonWriter {
	buffered := bufio.NewWriter(w)
	return &ndjsonWriter{out: buffered, enc: json.NewEncoder(buffered)}
}

func (n *ndjsonWriter) Push(ctx context.Context, batch []*shardquery.Row) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, row := range batch {
		obj := make(map[string]any, row.Len())
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			obj[key] = v
		}
		if err := n.enc.Encode(obj); err != nil {
			return err
		}
	}
	return nil
}

func (n *ndjsonWriter) DrainAll(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.out.Flush()
}
