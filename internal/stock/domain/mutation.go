package domain

// BatchMutation pairs a batch's post-operation state with the ledger entry
// recording the change. The pair must be persisted atomically: a committed
// quantity change without its ledger row is a fatal inconsistency.
type BatchMutation struct {
	Batch *StockBatch
	Txn   *StockTransaction
}
