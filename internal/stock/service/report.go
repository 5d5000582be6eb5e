package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// ReportService computes the read-only stock reports. Reports never mutate
// and never fail on empty data; no stock simply yields zeroed aggregates.
type ReportService struct {
	batches   BatchStore
	ledger    LedgerStore
	drugs     DrugStore
	suppliers SupplierStore
	logger    *logger.Logger
	now       func() time.Time
}

// NewReportService creates a new report service
func NewReportService(batches BatchStore, ledger LedgerStore, drugs DrugStore, suppliers SupplierStore, log *logger.Logger) *ReportService {
	return &ReportService{
		batches:   batches,
		ledger:    ledger,
		drugs:     drugs,
		suppliers: suppliers,
		logger:    log.WithComponent("report_service"),
		now:       time.Now,
	}
}

// DrugValuation is one product's slice of the valuation report
type DrugValuation struct {
	DrugID       string          `json:"drug_id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Quantity     int             `json:"quantity"`
	CostValue    decimal.Decimal `json:"cost_value"`
	RetailValue  decimal.Decimal `json:"retail_value"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
	Legacy       bool            `json:"legacy,omitempty"`
}

// CategoryValuation aggregates valuation per product category
type CategoryValuation struct {
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	CostValue   decimal.Decimal `json:"cost_value"`
	RetailValue decimal.Decimal `json:"retail_value"`
}

// SupplierValuation aggregates valuation per supplier
type SupplierValuation struct {
	SupplierID  string          `json:"supplier_id"`
	Name        string          `json:"name"`
	Batches     int             `json:"batches"`
	Quantity    int             `json:"quantity"`
	CostValue   decimal.Decimal `json:"cost_value"`
	RetailValue decimal.Decimal `json:"retail_value"`
}

// ValuationReport is the stock valuation snapshot
type ValuationReport struct {
	GeneratedAt      time.Time           `json:"generated_at"`
	TotalCostValue   decimal.Decimal     `json:"total_cost_value"`
	TotalRetailValue decimal.Decimal     `json:"total_retail_value"`
	ProfitMargin     decimal.Decimal     `json:"profit_margin"`
	ByProduct        []DrugValuation     `json:"by_product"`
	ByCategory       []CategoryValuation `json:"by_category"`
	BySupplier       []SupplierValuation `json:"by_supplier"`
}

// Valuation values every ACTIVE batch with stock on hand at cost and at
// retail (batch override or the product price), grouped by product, category
// and supplier. Legacy products that predate batch tracking carry a direct
// quantity; they contribute to the totals and product groups at list price
// but have no supplier to attribute.
func (s *ReportService) Valuation(ctx context.Context) (*ValuationReport, error) {
	batches, err := s.batches.ListStocked(ctx)
	if err != nil {
		return nil, err
	}

	active := batches[:0]
	drugIDs := make([]string, 0, len(batches))
	supplierIDs := make([]string, 0, len(batches))
	seenDrug := make(map[string]bool)
	seenSupplier := make(map[string]bool)
	for _, b := range batches {
		if b.Status != domain.BatchStatusActive {
			continue
		}
		active = append(active, b)
		if !seenDrug[b.DrugID] {
			seenDrug[b.DrugID] = true
			drugIDs = append(drugIDs, b.DrugID)
		}
		if !seenSupplier[b.SupplierID] {
			seenSupplier[b.SupplierID] = true
			supplierIDs = append(supplierIDs, b.SupplierID)
		}
	}

	drugsByID, err := s.drugMap(ctx, drugIDs)
	if err != nil {
		return nil, err
	}
	suppliersByID, err := s.supplierMap(ctx, supplierIDs)
	if err != nil {
		return nil, err
	}

	report := &ValuationReport{GeneratedAt: s.now()}
	products := make(map[string]*DrugValuation)
	categories := make(map[string]*CategoryValuation)
	bySupplier := make(map[string]*SupplierValuation)

	for _, b := range active {
		drug := drugsByID[b.DrugID]
		qty := decimal.NewFromInt(int64(b.QuantityAvailable))
		costValue := qty.Mul(b.CostPrice)

		var listPrice decimal.Decimal
		name, category := b.DrugID, ""
		if drug != nil {
			listPrice = drug.Price
			name, category = drug.Name, drug.Category
		}
		retailValue := qty.Mul(b.UnitSellingPrice(listPrice))

		report.TotalCostValue = report.TotalCostValue.Add(costValue)
		report.TotalRetailValue = report.TotalRetailValue.Add(retailValue)

		p := products[b.DrugID]
		if p == nil {
			p = &DrugValuation{DrugID: b.DrugID, Name: name, Category: category}
			products[b.DrugID] = p
		}
		p.Quantity += b.QuantityAvailable
		p.CostValue = p.CostValue.Add(costValue)
		p.RetailValue = p.RetailValue.Add(retailValue)

		c := categories[category]
		if c == nil {
			c = &CategoryValuation{Category: category}
			categories[category] = c
		}
		c.Quantity += b.QuantityAvailable
		c.CostValue = c.CostValue.Add(costValue)
		c.RetailValue = c.RetailValue.Add(retailValue)

		sv := bySupplier[b.SupplierID]
		if sv == nil {
			sv = &SupplierValuation{SupplierID: b.SupplierID, Name: b.SupplierID}
			if sup := suppliersByID[b.SupplierID]; sup != nil {
				sv.Name = sup.Name
			}
			bySupplier[b.SupplierID] = sv
		}
		sv.Batches++
		sv.Quantity += b.QuantityAvailable
		sv.CostValue = sv.CostValue.Add(costValue)
		sv.RetailValue = sv.RetailValue.Add(retailValue)
	}

	// Legacy direct-quantity products: valued at list price for both sides,
	// counted in totals and product/category groups, absent from the
	// supplier breakdown because no batch ties them to one.
	legacy, err := s.drugs.ListDirectQuantity(ctx)
	if err != nil {
		return nil, err
	}
	for _, drug := range legacy {
		qty := decimal.NewFromInt(int64(drug.Quantity))
		value := qty.Mul(drug.Price)

		report.TotalCostValue = report.TotalCostValue.Add(value)
		report.TotalRetailValue = report.TotalRetailValue.Add(value)

		products[drug.ID] = &DrugValuation{
			DrugID:      drug.ID,
			Name:        drug.Name,
			Category:    drug.Category,
			Quantity:    drug.Quantity,
			CostValue:   value,
			RetailValue: value,
			Legacy:      true,
		}

		c := categories[drug.Category]
		if c == nil {
			c = &CategoryValuation{Category: drug.Category}
			categories[drug.Category] = c
		}
		c.Quantity += drug.Quantity
		c.CostValue = c.CostValue.Add(value)
		c.RetailValue = c.RetailValue.Add(value)
	}

	for _, p := range products {
		p.ProfitMargin = profitMargin(p.CostValue, p.RetailValue)
		report.ByProduct = append(report.ByProduct, *p)
	}
	for _, c := range categories {
		report.ByCategory = append(report.ByCategory, *c)
	}
	for _, sv := range bySupplier {
		report.BySupplier = append(report.BySupplier, *sv)
	}
	sort.Slice(report.ByProduct, func(i, j int) bool { return report.ByProduct[i].Name < report.ByProduct[j].Name })
	sort.Slice(report.ByCategory, func(i, j int) bool { return report.ByCategory[i].Category < report.ByCategory[j].Category })
	sort.Slice(report.BySupplier, func(i, j int) bool { return report.BySupplier[i].Name < report.BySupplier[j].Name })

	report.ProfitMargin = profitMargin(report.TotalCostValue, report.TotalRetailValue)
	return report, nil
}

// profitMargin is (retail − cost) / retail × 100, rounded to two places.
// Zero retail value yields a zero margin rather than a division by zero.
func profitMargin(cost, retail decimal.Decimal) decimal.Decimal {
	if retail.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return retail.Sub(cost).Div(retail).Mul(hundred).Round(2)
}

// BatchExpiry is one batch's line in the expiry report
type BatchExpiry struct {
	BatchID           string     `json:"batch_id"`
	InternalBatchID   string     `json:"internal_batch_id"`
	BatchNumber       string     `json:"batch_number"`
	DrugID            string     `json:"drug_id"`
	DrugName          string     `json:"drug_name"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	DaysRemaining     int        `json:"days_remaining"`
	NoExpiry          bool       `json:"no_expiry"`
	QuantityAvailable int        `json:"quantity_available"`
	Status            string     `json:"status"`
}

// ExpiryBuckets groups stocked batches by days until expiry
type ExpiryBuckets struct {
	Expired    []BatchExpiry `json:"expired"`
	Days0To30  []BatchExpiry `json:"days_0_to_30"`
	Days31To60 []BatchExpiry `json:"days_31_to_60"`
	Days61To90 []BatchExpiry `json:"days_61_to_90"`
	Over90     []BatchExpiry `json:"over_90"`
	NoExpiry   []BatchExpiry `json:"no_expiry"`
}

// ExpiryReport is the expiry timeline snapshot
type ExpiryReport struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Buckets         ExpiryBuckets  `json:"buckets"`
	CriticalBatches []BatchExpiry  `json:"critical_batches"`
	StatusCounts    map[string]int `json:"status_counts"`
}

// Expiry buckets every batch still holding stock by days until expiry, lists
// the critical ones (expired or expiring within 30 days) soonest first, and
// counts batches per status across the whole store.
func (s *ReportService) Expiry(ctx context.Context) (*ExpiryReport, error) {
	batches, err := s.batches.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	drugIDs := make([]string, 0, len(batches))
	seen := make(map[string]bool)
	for _, b := range batches {
		if b.QuantityAvailable > 0 && !seen[b.DrugID] {
			seen[b.DrugID] = true
			drugIDs = append(drugIDs, b.DrugID)
		}
	}
	drugsByID, err := s.drugMap(ctx, drugIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &ExpiryReport{
		GeneratedAt:  now,
		StatusCounts: make(map[string]int),
	}

	for _, b := range batches {
		report.StatusCounts[string(b.Status)]++

		if b.QuantityAvailable == 0 {
			continue
		}

		line := BatchExpiry{
			BatchID:           b.ID,
			InternalBatchID:   b.InternalBatchID,
			BatchNumber:       b.BatchNumber,
			DrugID:            b.DrugID,
			ExpiryDate:        b.ExpiryDate,
			NoExpiry:          b.NoExpiry,
			QuantityAvailable: b.QuantityAvailable,
			Status:            string(b.Status),
		}
		if drug := drugsByID[b.DrugID]; drug != nil {
			line.DrugName = drug.Name
		}

		days, ok := b.DaysUntilExpiry(now)
		if !ok {
			report.Buckets.NoExpiry = append(report.Buckets.NoExpiry, line)
			continue
		}
		line.DaysRemaining = days

		switch {
		case days < 0:
			report.Buckets.Expired = append(report.Buckets.Expired, line)
		case days <= 30:
			report.Buckets.Days0To30 = append(report.Buckets.Days0To30, line)
		case days <= 60:
			report.Buckets.Days31To60 = append(report.Buckets.Days31To60, line)
		case days <= 90:
			report.Buckets.Days61To90 = append(report.Buckets.Days61To90, line)
		default:
			report.Buckets.Over90 = append(report.Buckets.Over90, line)
		}

		if days <= 30 {
			report.CriticalBatches = append(report.CriticalBatches, line)
		}
	}

	sort.Slice(report.CriticalBatches, func(i, j int) bool {
		return report.CriticalBatches[i].DaysRemaining < report.CriticalBatches[j].DaysRemaining
	})
	return report, nil
}

// MovementTotal aggregates ledger rows of one transaction type
type MovementTotal struct {
	Count    int `json:"count"`
	Quantity int `json:"quantity"`
}

// DailyMovement is one day of the movement time series
type DailyMovement struct {
	Date     string `json:"date"`
	Received int    `json:"received"`
	Sold     int    `json:"sold"`
	Adjusted int    `json:"adjusted"`
	Returned int    `json:"returned"`
	Other    int    `json:"other"`
}

// DrugMovement ranks one drug's total ledger movement
type DrugMovement struct {
	DrugID   string `json:"drug_id"`
	Name     string `json:"name"`
	In       int    `json:"in"`
	Out      int    `json:"out"`
	Movement int    `json:"movement"`
}

// MovementReport sums ledger activity over a window
type MovementReport struct {
	From     time.Time                `json:"from"`
	To       time.Time                `json:"to"`
	ByType   map[string]MovementTotal `json:"by_type"`
	Daily    []DailyMovement          `json:"daily"`
	TopDrugs []DrugMovement           `json:"top_drugs"`
}

// Movement sums ledger rows by type over the window (the last 30 days when
// unset), builds a daily series and ranks drugs by total units moved in
// either direction.
func (s *ReportService) Movement(ctx context.Context, from, to time.Time) (*MovementReport, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}

	txns, err := s.ledger.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &MovementReport{
		From:   from,
		To:     to,
		ByType: make(map[string]MovementTotal),
	}

	daily := make(map[string]*DailyMovement)
	perDrug := make(map[string]*DrugMovement)

	for _, t := range txns {
		abs := t.Quantity
		if abs < 0 {
			abs = -abs
		}

		total := report.ByType[string(t.Type)]
		total.Count++
		total.Quantity += abs
		report.ByType[string(t.Type)] = total

		day := t.CreatedAt.Format("2006-01-02")
		d := daily[day]
		if d == nil {
			d = &DailyMovement{Date: day}
			daily[day] = d
		}
		switch t.Type {
		case domain.TxnReceived, domain.TxnTransferIn:
			d.Received += abs
		case domain.TxnSold:
			d.Sold += abs
		case domain.TxnAdjustmentAdd, domain.TxnAdjustmentSubtract:
			d.Adjusted += abs
		case domain.TxnReturnToSupplier, domain.TxnReturnFromCustomer:
			d.Returned += abs
		default:
			d.Other += abs
		}

		m := perDrug[t.DrugID]
		if m == nil {
			m = &DrugMovement{DrugID: t.DrugID}
			perDrug[t.DrugID] = m
		}
		if t.Quantity >= 0 {
			m.In += abs
		} else {
			m.Out += abs
		}
		m.Movement += abs
	}

	for _, d := range daily {
		report.Daily = append(report.Daily, *d)
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Date < report.Daily[j].Date })

	drugIDs := make([]string, 0, len(perDrug))
	for id := range perDrug {
		drugIDs = append(drugIDs, id)
	}
	drugsByID, err := s.drugMap(ctx, drugIDs)
	if err != nil {
		return nil, err
	}
	for _, m := range perDrug {
		if drug := drugsByID[m.DrugID]; drug != nil {
			m.Name = drug.Name
		}
		report.TopDrugs = append(report.TopDrugs, *m)
	}
	sort.Slice(report.TopDrugs, func(i, j int) bool {
		a, b := report.TopDrugs[i], report.TopDrugs[j]
		if a.Movement != b.Movement {
			return a.Movement > b.Movement
		}
		return a.DrugID < b.DrugID
	})

	return report, nil
}

func (s *ReportService) drugMap(ctx context.Context, ids []string) (map[string]*domain.Drug, error) {
	if len(ids) == 0 {
		return map[string]*domain.Drug{}, nil
	}
	drugs, err := s.drugs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Drug, len(drugs))
	for _, d := range drugs {
		byID[d.ID] = d
	}
	return byID, nil
}

func (s *ReportService) supplierMap(ctx context.Context, ids []string) (map[string]*domain.Supplier, error) {
	if len(ids) == 0 {
		return map[string]*domain.Supplier{}, nil
	}
	suppliers, err := s.suppliers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Supplier, len(suppliers))
	for _, sup := range suppliers {
		byID[sup.ID] = sup
	}
	return byID, nil
}
