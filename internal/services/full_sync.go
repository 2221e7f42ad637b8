package services

import "fmt"

// SyncAll runs every entity sync in dependency order: categories feed the
// event fan-out, events feed the dependent installment fetch, and account
// totals read the installment rows. The run aborts on the first
// non-retryable failure; results up to that point stay committed.
func (p *Pipeline) SyncAll() (map[string]*SyncResult, error) {
	steps := []struct {
		name string
		run  func() (*SyncResult, error)
	}{
		{"categories", p.SyncCategories},
		{"receivables", func() (*SyncResult, error) { return p.SyncReceivables("", "") }},
		{"payables", func() (*SyncResult, error) { return p.SyncPayables("", "") }},
		{"sales", p.SyncSales},
		{"installments", p.SyncInstallments},
		{"accounts", p.SyncFinancialAccounts},
	}

	results := make(map[string]*SyncResult, len(steps))
	for _, step := range steps {
		result, err := step.run()
		if err != nil {
			return results, fmt.Errorf("%s sync failed: %w", step.name, err)
		}
		results[step.name] = result
	}
	return results, nil
}
