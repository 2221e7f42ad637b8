package services

import (
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/transform"
)

const accountResource = "contas-financeiras"

// SyncFinancialAccounts mirrors the financial account listing and derives
// each account's running totals from the synced installment rows:
// received / receivable outstanding from revenue installments, paid /
// payable outstanding from expense installments, and the current balance
// as received - paid + receivable outstanding - payable outstanding.
func (p *Pipeline) SyncFinancialAccounts() (*SyncResult, error) {
	runID, log := p.runLogger(models.TableFinancialAccounts)

	watermark, err := p.watermarks.LastSync(p.tenantID, models.TableFinancialAccounts)
	if err != nil {
		return nil, err
	}

	items, err := p.api.List(accountResource, nil)
	if err != nil {
		log.Error().Err(err).Msg("Financial account fetch failed")
		return nil, err
	}

	rows := make([]record.Record, 0, len(items))
	for _, rec := range items {
		row := transform.FlattenFinancialAccount(rec)

		if id := rec.Str("id"); id != nil {
			totals, err := p.accountTotals(*id)
			if err != nil {
				return nil, err
			}
			row["total_recebido"] = totals.received
			row["total_a_receber"] = totals.receivable
			row["total_pago"] = totals.paid
			row["total_a_pagar"] = totals.payable
			row["saldo_atual"] = totals.received - totals.paid + totals.receivable - totals.payable
		}

		rows = append(rows, row)
	}

	if err := p.writer.Flush(models.TableFinancialAccounts, rows, "id"); err != nil {
		return nil, err
	}

	log.Info().Int("synced", len(rows)).Msg("Financial accounts synced")
	return &SyncResult{
		Message:    "Financial accounts synced successfully",
		TotalItems: len(rows),
		Examined:   len(items),
		LastSync:   formatWatermark(watermark),
		RunID:      runID,
	}, nil
}

type accountTotals struct {
	received   float64
	receivable float64
	paid       float64
	payable    float64
}

func (p *Pipeline) accountTotals(accountID string) (accountTotals, error) {
	var t accountTotals
	var err error

	revenue := map[string]interface{}{"conta_financeira_id": accountID, "tipo_evento": models.CategoryKindRevenue}
	expense := map[string]interface{}{"conta_financeira_id": accountID, "tipo_evento": models.CategoryKindExpense}

	if t.received, err = p.store.SumWhere(models.TableInstallments, "valor_pago", revenue); err != nil {
		return t, err
	}
	if t.receivable, err = p.store.SumWhere(models.TableInstallments, "valor_nao_pago", revenue); err != nil {
		return t, err
	}
	if t.paid, err = p.store.SumWhere(models.TableInstallments, "valor_pago", expense); err != nil {
		return t, err
	}
	if t.payable, err = p.store.SumWhere(models.TableInstallments, "valor_nao_pago", expense); err != nil {
		return t, err
	}
	return t, nil
}
