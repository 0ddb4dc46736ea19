package internal

import (
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// WrapExecutionError classifies a raw error from a ShardStore call. A
// MemoryExhaustion error is rethrown wrapped with province/query context
// unchanged in kind (per spec.md §4.12/§4.14); any other error is logged and
// rethrown as a ShardError.
func WrapExecutionError(err error, province, queryCode string) error {
	if err == nil {
		return nil
	}
	if shardquery.IsMemoryExhaustionError(err) {
		sqe := err.(*shardquery.ShardQueryError)
		return sqe.WithProvince(province).WithQueryCode(queryCode)
	}
	zap.S().Errorw("shard execution error", "province", province, "queryCode", queryCode, "error", err)
	return shardquery.NewShardError("shard execution failed", err).WithProvince(province).WithQueryCode(queryCode)
}
