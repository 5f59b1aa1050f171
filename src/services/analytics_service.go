// backend/src/services/analytics_service.go
package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/model"
)

const (
	ckAnalyticsSummary     = "analytics_summary_%s_%s_%s"
	ckAnalyticsCategory    = "analytics_category_%s_%s_%s"
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// MonthlyFlow is one month's aggregated income and expense.
type MonthlyFlow struct {
	Month   string `json:"month"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
}

// CounterpartyTotal aggregates outgoing money per counterparty.
type CounterpartyTotal struct {
	Counterparty string `json:"counterparty"`
	Total        string `json:"total"`
	Count        int    `json:"count"`
}

// AnalyticsSummary is the per-entity dashboard payload.
type AnalyticsSummary struct {
	TotalIncome       string              `json:"totalIncome"`
	TotalExpense      string              `json:"totalExpense"`
	Net               string              `json:"net"`
	TransactionCount  int                 `json:"transactionCount"`
	Monthly           []MonthlyFlow       `json:"monthly"`
	TopCounterparties []CounterpartyTotal `json:"topCounterparties"`
	From              string              `json:"from"`
	To                string              `json:"to"`
}

// CategoryTotal aggregates manual expense operations per expense type.
type CategoryTotal struct {
	ExpenseTypeID string `json:"expenseTypeId"`
	Name          string `json:"name"`
	Total         string `json:"total"`
	Count         int    `json:"count"`
}

type AnalyticsService interface {
	GetSummary(entityID, from, to string) (*AnalyticsSummary, error)
	GetByCategory(entityID, from, to string) ([]CategoryTotal, error)
	GetTimeline(entityID, from, to string) ([]MonthlyFlow, error)
	GetRecent(entityID string, limit int) ([]model.BankTransaction, error)
	InvalidateEntity(entityID string)
}

type analyticsServiceImpl struct {
	reportCache *cache.Cache

	mu sync.Mutex
	// entity → cache keys issued for it, so a sync can drop them all
	keysByEntity map[string][]string
}

func NewAnalyticsService(reportCache *cache.Cache) AnalyticsService {
	return &analyticsServiceImpl{
		reportCache:  reportCache,
		keysByEntity: make(map[string][]string),
	}
}

func (s *analyticsServiceImpl) GetSummary(entityID, from, to string) (*AnalyticsSummary, error) {
	cacheKey := fmt.Sprintf(ckAnalyticsSummary, entityID, from, to)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(*AnalyticsSummary), nil
	}

	txs, err := model.ListBankTransactions(database.DB, entityID, model.BankTransactionFilter{
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		return nil, err
	}

	totalIncome := decimal.Zero
	totalExpense := decimal.Zero
	monthlyIncome := map[string]decimal.Decimal{}
	monthlyExpense := map[string]decimal.Decimal{}
	byCounterparty := map[string]decimal.Decimal{}
	countByCounterparty := map[string]int{}

	for _, tx := range txs {
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			continue
		}
		month := tx.Date
		if len(month) >= 7 {
			month = month[:7]
		}
		if tx.Direction == model.DirectionIncome {
			totalIncome = totalIncome.Add(amount)
			monthlyIncome[month] = monthlyIncome[month].Add(amount)
		} else {
			totalExpense = totalExpense.Add(amount)
			monthlyExpense[month] = monthlyExpense[month].Add(amount)
			if tx.Counterparty != "" {
				byCounterparty[tx.Counterparty] = byCounterparty[tx.Counterparty].Add(amount)
				countByCounterparty[tx.Counterparty]++
			}
		}
	}

	months := map[string]bool{}
	for m := range monthlyIncome {
		months[m] = true
	}
	for m := range monthlyExpense {
		months[m] = true
	}
	monthList := make([]string, 0, len(months))
	for m := range months {
		monthList = append(monthList, m)
	}
	sort.Strings(monthList)

	monthly := make([]MonthlyFlow, 0, len(monthList))
	for _, m := range monthList {
		monthly = append(monthly, MonthlyFlow{
			Month:   m,
			Income:  monthlyIncome[m].StringFixed(2),
			Expense: monthlyExpense[m].StringFixed(2),
		})
	}

	top := make([]CounterpartyTotal, 0, len(byCounterparty))
	for name, total := range byCounterparty {
		top = append(top, CounterpartyTotal{
			Counterparty: name,
			Total:        total.StringFixed(2),
			Count:        countByCounterparty[name],
		})
	}
	sort.Slice(top, func(i, j int) bool {
		a, _ := decimal.NewFromString(top[i].Total)
		b, _ := decimal.NewFromString(top[j].Total)
		return a.GreaterThan(b)
	})
	if len(top) > 10 {
		top = top[:10]
	}

	summary := &AnalyticsSummary{
		TotalIncome:       totalIncome.StringFixed(2),
		TotalExpense:      totalExpense.StringFixed(2),
		Net:               totalIncome.Sub(totalExpense).StringFixed(2),
		TransactionCount:  len(txs),
		Monthly:           monthly,
		TopCounterparties: top,
		From:              from,
		To:                to,
	}

	s.reportCache.Set(cacheKey, summary, DefaultCacheExpiration)
	s.rememberKey(entityID, cacheKey)
	return summary, nil
}

func (s *analyticsServiceImpl) GetByCategory(entityID, from, to string) ([]CategoryTotal, error) {
	cacheKey := fmt.Sprintf(ckAnalyticsCategory, entityID, from, to)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.([]CategoryTotal), nil
	}

	filter := model.OperationFilter{OperationType: model.OperationExpense, Limit: 100000}
	if t, err := time.Parse("2006-01-02", from); err == nil {
		filter.DateFrom = t
	}
	if t, err := time.Parse("2006-01-02", to); err == nil {
		filter.DateTo = t.AddDate(0, 0, 1)
	}
	ops, err := model.ListOperations(database.DB, entityID, filter)
	if err != nil {
		return nil, err
	}

	names := map[string]string{}
	types, err := model.ListExpenseTypesByEntity(database.DB, entityID)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		names[t.ID] = t.Name
	}

	totals := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for _, op := range ops {
		amount, err := decimal.NewFromString(op.Amount)
		if err != nil {
			continue
		}
		totals[op.ExpenseTypeID] = totals[op.ExpenseTypeID].Add(amount)
		counts[op.ExpenseTypeID]++
	}

	out := make([]CategoryTotal, 0, len(totals))
	for typeID, total := range totals {
		name := names[typeID]
		if name == "" {
			name = "Без категории"
		}
		out = append(out, CategoryTotal{
			ExpenseTypeID: typeID,
			Name:          name,
			Total:         total.StringFixed(2),
			Count:         counts[typeID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := decimal.NewFromString(out[i].Total)
		b, _ := decimal.NewFromString(out[j].Total)
		return a.GreaterThan(b)
	})

	s.reportCache.Set(cacheKey, out, DefaultCacheExpiration)
	s.rememberKey(entityID, cacheKey)
	return out, nil
}

func (s *analyticsServiceImpl) GetTimeline(entityID, from, to string) ([]MonthlyFlow, error) {
	summary, err := s.GetSummary(entityID, from, to)
	if err != nil {
		return nil, err
	}
	return summary.Monthly, nil
}

func (s *analyticsServiceImpl) GetRecent(entityID string, limit int) ([]model.BankTransaction, error) {
	txs, err := model.ListBankTransactions(database.DB, entityID, model.BankTransactionFilter{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *analyticsServiceImpl) rememberKey(entityID, cacheKey string) {
	s.mu.Lock()
	s.keysByEntity[entityID] = append(s.keysByEntity[entityID], cacheKey)
	s.mu.Unlock()
}

func (s *analyticsServiceImpl) InvalidateEntity(entityID string) {
	s.mu.Lock()
	keys := s.keysByEntity[entityID]
	delete(s.keysByEntity, entityID)
	s.mu.Unlock()
	for _, key := range keys {
		s.reportCache.Delete(key)
	}
}
