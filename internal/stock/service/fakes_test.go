package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

func decimalFromInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// fakeState is a shared in-memory datastore backing the store fakes. It
// mirrors the repository contracts: clones on read, version checks on write,
// ledger appends paired with batch updates.
type fakeState struct {
	batches   map[string]*domain.StockBatch
	batchIDs  []string
	txns      []*domain.StockTransaction
	holds     map[string]*domain.Reservation
	holdIDs   []string
	drugs     map[string]*domain.Drug
	suppliers map[string]*domain.Supplier

	batchSeq int
	txnSeq   int
	holdSeq  int

	// applyErr, when set, fails the next n Apply/Create calls
	applyErr      error
	applyErrCount int

	now func() time.Time
}

func newFakeState() *fakeState {
	return &fakeState{
		batches:   make(map[string]*domain.StockBatch),
		holds:     make(map[string]*domain.Reservation),
		drugs:     make(map[string]*domain.Drug),
		suppliers: make(map[string]*domain.Supplier),
		now:       time.Now,
	}
}

func cloneBatch(b *domain.StockBatch) *domain.StockBatch {
	c := *b
	return &c
}

func cloneTxn(t *domain.StockTransaction) *domain.StockTransaction {
	c := *t
	return &c
}

func (st *fakeState) nextTxnID() string {
	st.txnSeq++
	return fmt.Sprintf("TXN-20250101-%04d", st.txnSeq)
}

func (st *fakeState) appendTxn(txn *domain.StockTransaction) {
	if txn.ID == "" {
		txn.ID = fmt.Sprintf("txn-row-%d", len(st.txns)+1)
	}
	txn.TransactionID = st.nextTxnID()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = st.now()
	}
	st.txns = append(st.txns, cloneTxn(txn))
}

func (st *fakeState) applyMutations(muts []domain.BatchMutation) error {
	if st.applyErrCount > 0 {
		st.applyErrCount--
		return st.applyErr
	}
	for _, m := range muts {
		existing, ok := st.batches[m.Batch.ID]
		if !ok {
			return errors.NotFound("batch")
		}
		if existing.Version != m.Batch.Version {
			return errors.Conflict("batch was modified concurrently")
		}
	}
	for _, m := range muts {
		m.Batch.Version++
		st.batches[m.Batch.ID] = cloneBatch(m.Batch)
		if m.Txn != nil {
			st.appendTxn(m.Txn)
		}
	}
	return nil
}

type fakeBatchStore struct{ st *fakeState }

func (f *fakeBatchStore) GetByID(_ context.Context, id string) (*domain.StockBatch, error) {
	b, ok := f.st.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	return cloneBatch(b), nil
}

func (f *fakeBatchStore) list(filter func(*domain.StockBatch) bool) []*domain.StockBatch {
	var out []*domain.StockBatch
	for _, id := range f.st.batchIDs {
		b := f.st.batches[id]
		if filter(b) {
			out = append(out, cloneBatch(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NoExpiry != b.NoExpiry {
			return !a.NoExpiry
		}
		if a.NoExpiry || a.ExpiryDate == nil || b.ExpiryDate == nil {
			return false
		}
		return a.ExpiryDate.Before(*b.ExpiryDate)
	})
	return out
}

func (f *fakeBatchStore) ListByDrug(_ context.Context, drugID string) ([]*domain.StockBatch, error) {
	return f.list(func(b *domain.StockBatch) bool { return b.DrugID == drugID }), nil
}

func (f *fakeBatchStore) ListActiveByDrug(_ context.Context, drugID string) ([]*domain.StockBatch, error) {
	return f.list(func(b *domain.StockBatch) bool {
		return b.DrugID == drugID && b.Status == domain.BatchStatusActive && b.QuantityAvailable > 0
	}), nil
}

func (f *fakeBatchStore) ListStocked(_ context.Context) ([]*domain.StockBatch, error) {
	return f.list(func(b *domain.StockBatch) bool { return b.QuantityAvailable > 0 }), nil
}

func (f *fakeBatchStore) ListAll(_ context.Context) ([]*domain.StockBatch, error) {
	return f.list(func(*domain.StockBatch) bool { return true }), nil
}

func (f *fakeBatchStore) Create(_ context.Context, batch *domain.StockBatch, txn *domain.StockTransaction) error {
	if f.st.applyErrCount > 0 {
		f.st.applyErrCount--
		return f.st.applyErr
	}
	f.st.batchSeq++
	if batch.ID == "" {
		batch.ID = fmt.Sprintf("batch-%d", f.st.batchSeq)
	}
	batch.InternalBatchID = fmt.Sprintf("BTH-20250101-%03d", f.st.batchSeq)
	batch.Version = 1
	batch.CreatedAt = f.st.now()

	f.st.batches[batch.ID] = cloneBatch(batch)
	f.st.batchIDs = append(f.st.batchIDs, batch.ID)

	txn.BatchID = batch.ID
	f.st.appendTxn(txn)
	return nil
}

func (f *fakeBatchStore) Apply(_ context.Context, muts []domain.BatchMutation) error {
	return f.st.applyMutations(muts)
}

func (f *fakeBatchStore) ApplyReversal(_ context.Context, mut domain.BatchMutation, originalTxnRowID string) error {
	var original *domain.StockTransaction
	for _, t := range f.st.txns {
		if t.ID == originalTxnRowID {
			original = t
			break
		}
	}
	if original == nil {
		return errors.NotFound("transaction")
	}
	if original.IsReversed {
		return errors.Conflict("transaction has already been reversed")
	}
	if err := f.st.applyMutations([]domain.BatchMutation{mut}); err != nil {
		return err
	}
	original.IsReversed = true
	original.ReversedByTransaction = &mut.Txn.TransactionID
	return nil
}

type fakeLedgerStore struct{ st *fakeState }

func (f *fakeLedgerStore) GetByID(_ context.Context, id string) (*domain.StockTransaction, error) {
	for _, t := range f.st.txns {
		if t.ID == id {
			return cloneTxn(t), nil
		}
	}
	return nil, errors.NotFound("transaction")
}

func (f *fakeLedgerStore) GetByTransactionID(_ context.Context, transactionID string) (*domain.StockTransaction, error) {
	for _, t := range f.st.txns {
		if t.TransactionID == transactionID {
			return cloneTxn(t), nil
		}
	}
	return nil, errors.NotFound("transaction")
}

func (f *fakeLedgerStore) ListByBatch(_ context.Context, batchID string) ([]*domain.StockTransaction, error) {
	var out []*domain.StockTransaction
	for _, t := range f.st.txns {
		if t.BatchID == batchID {
			out = append(out, cloneTxn(t))
		}
	}
	return out, nil
}

func (f *fakeLedgerStore) ListByDrug(_ context.Context, drugID string, from, to time.Time) ([]*domain.StockTransaction, error) {
	var out []*domain.StockTransaction
	for i := len(f.st.txns) - 1; i >= 0; i-- {
		t := f.st.txns[i]
		if t.DrugID == drugID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, cloneTxn(t))
		}
	}
	return out, nil
}

func (f *fakeLedgerStore) ListRange(_ context.Context, from, to time.Time) ([]*domain.StockTransaction, error) {
	var out []*domain.StockTransaction
	for _, t := range f.st.txns {
		if !t.CreatedAt.Before(from) && !t.CreatedAt.After(to) {
			out = append(out, cloneTxn(t))
		}
	}
	return out, nil
}

type fakeReservationStore struct{ st *fakeState }

func (f *fakeReservationStore) Create(_ context.Context, holds []*domain.Reservation, muts []domain.BatchMutation) error {
	if err := f.st.applyMutations(muts); err != nil {
		return err
	}
	for _, h := range holds {
		f.st.holdSeq++
		if h.ID == "" {
			h.ID = fmt.Sprintf("hold-%d", f.st.holdSeq)
		}
		hc := *h
		f.st.holds[h.ID] = &hc
		f.st.holdIDs = append(f.st.holdIDs, h.ID)
	}
	return nil
}

func (f *fakeReservationStore) Delete(_ context.Context, holdIDs []string, muts []domain.BatchMutation) error {
	if err := f.st.applyMutations(muts); err != nil {
		return err
	}
	for _, id := range holdIDs {
		delete(f.st.holds, id)
	}
	return nil
}

func (f *fakeReservationStore) listHolds(filter func(*domain.Reservation) bool) []*domain.Reservation {
	var out []*domain.Reservation
	for _, id := range f.st.holdIDs {
		h, ok := f.st.holds[id]
		if !ok || !filter(h) {
			continue
		}
		hc := *h
		out = append(out, &hc)
	}
	return out
}

func (f *fakeReservationStore) ListByOrder(_ context.Context, orderReference string) ([]*domain.Reservation, error) {
	return f.listHolds(func(h *domain.Reservation) bool { return h.OrderReference == orderReference }), nil
}

func (f *fakeReservationStore) ListExpired(_ context.Context, now time.Time) ([]*domain.Reservation, error) {
	return f.listHolds(func(h *domain.Reservation) bool { return h.Expired(now) }), nil
}

func (f *fakeReservationStore) ListByBatch(_ context.Context, batchID string) ([]*domain.Reservation, error) {
	return f.listHolds(func(h *domain.Reservation) bool { return h.BatchID == batchID }), nil
}

type fakeDrugStore struct{ st *fakeState }

func (f *fakeDrugStore) GetByID(_ context.Context, id string) (*domain.Drug, error) {
	d, ok := f.st.drugs[id]
	if !ok {
		return nil, errors.NotFound("drug")
	}
	dc := *d
	return &dc, nil
}

func (f *fakeDrugStore) ListByIDs(_ context.Context, ids []string) ([]*domain.Drug, error) {
	var out []*domain.Drug
	for _, id := range ids {
		if d, ok := f.st.drugs[id]; ok {
			dc := *d
			out = append(out, &dc)
		}
	}
	return out, nil
}

func (f *fakeDrugStore) UpdateAggregate(_ context.Context, drugID string, quantity int) error {
	d, ok := f.st.drugs[drugID]
	if !ok {
		return errors.NotFound("drug")
	}
	d.Quantity = quantity
	d.IsAvailable = quantity > 0
	return nil
}

func (f *fakeDrugStore) ListDirectQuantity(_ context.Context) ([]*domain.Drug, error) {
	var out []*domain.Drug
	for _, d := range f.st.drugs {
		if !d.HasBatches && d.Quantity > 0 {
			dc := *d
			out = append(out, &dc)
		}
	}
	return out, nil
}

type fakeSupplierStore struct{ st *fakeState }

func (f *fakeSupplierStore) GetByID(_ context.Context, id string) (*domain.Supplier, error) {
	s, ok := f.st.suppliers[id]
	if !ok {
		return nil, errors.NotFound("supplier")
	}
	sc := *s
	return &sc, nil
}

func (f *fakeSupplierStore) ListByIDs(_ context.Context, ids []string) ([]*domain.Supplier, error) {
	var out []*domain.Supplier
	for _, id := range ids {
		if s, ok := f.st.suppliers[id]; ok {
			sc := *s
			out = append(out, &sc)
		}
	}
	return out, nil
}

func (f *fakeSupplierStore) RecordOrder(_ context.Context, id string, at time.Time) error {
	s, ok := f.st.suppliers[id]
	if !ok {
		return errors.NotFound("supplier")
	}
	s.OrdersCount++
	s.LastOrderDate = &at
	return nil
}

// fixture bundles the fakes with the services under test
type fixture struct {
	st           *fakeState
	batches      *fakeBatchStore
	ledger       *fakeLedgerStore
	reservations *fakeReservationStore
	drugs        *fakeDrugStore
	suppliers    *fakeSupplierStore

	stock   *StockService
	reserve *ReservationService
	reports *ReportService

	now time.Time
}

func newFixture() *fixture {
	st := newFakeState()
	f := &fixture{
		st:           st,
		batches:      &fakeBatchStore{st: st},
		ledger:       &fakeLedgerStore{st: st},
		reservations: &fakeReservationStore{st: st},
		drugs:        &fakeDrugStore{st: st},
		suppliers:    &fakeSupplierStore{st: st},
		now:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	st.now = func() time.Time { return f.now }

	log := logger.New("stock-service-test", "test")
	f.stock = NewStockService(f.batches, f.ledger, f.drugs, f.suppliers, nil, log, 3)
	f.stock.now = func() time.Time { return f.now }
	f.reserve = NewReservationService(f.batches, f.reservations, f.drugs, nil, log, 48*time.Hour, 3)
	f.reserve.now = func() time.Time { return f.now }
	f.reports = NewReportService(f.batches, f.ledger, f.drugs, f.suppliers, log)
	f.reports.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) addDrug(id, name, category string, price int64) {
	f.st.drugs[id] = &domain.Drug{
		ID: id, Name: name, Category: category,
		Price:      decimalFromInt(price),
		HasBatches: true,
	}
}

func (f *fixture) addSupplier(id, name, status string) {
	f.st.suppliers[id] = &domain.Supplier{ID: id, Name: name, Status: status}
}

func (f *fixture) batch(id string) *domain.StockBatch {
	return f.st.batches[id]
}

func (f *fixture) lastTxn() *domain.StockTransaction {
	if len(f.st.txns) == 0 {
		return nil
	}
	return f.st.txns[len(f.st.txns)-1]
}
