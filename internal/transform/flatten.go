// Package transform flattens the nested Conta Azul documents into the flat
// row schemas written to the warehouse, and decides which candidate records
// changed since the last sync. Transformers are total: any input, including
// an empty document, produces a fully-keyed row (missing fields become null).
package transform

import (
	"conta-sync-service/internal/record"
)

// FlattenCategory maps one category document to its warehouse row. Parent
// reference may arrive as a plain id or as a nested object.
func FlattenCategory(rec record.Record) record.Record {
	parentID := rec.Str("categoria_pai")
	if parentID == nil {
		parentID = rec.Child("categoria_pai").Str("id")
	}

	return record.Record{
		"id":                  strOrNil(rec.Str("id")),
		"nome":                strOrNil(rec.Str("nome")),
		"versao":              floatOrNil(rec.Float("versao")),
		"categoria_pai_id":    strOrNil(parentID),
		"tipo":                strOrNil(rec.Str("tipo")),
		"considera_custo_dre": boolOrNil(rec.Bool("considera_custo_dre")),
		"permite_alteracao":   boolOrNil(rec.Bool("permite_alteracao")),
	}
}

// FlattenFinancialEvent maps one receivable or payable event. The two kinds
// share a shape; kind is recorded as a first-class column. Due, creation and
// update dates are truncated to calendar days.
func FlattenFinancialEvent(rec record.Record, kind string) record.Record {
	return record.Record{
		"id":              strOrNil(rec.Str("id")),
		"tipo_evento":     kind,
		"descricao":       strOrNil(rec.Str("descricao")),
		"data_vencimento": strOrNil(record.DateOnly(rec.Str("data_vencimento"))),
		"status":          strOrNil(rec.Str("status")),
		"total":           floatOrNil(rec.Float("total")),
		"nao_pago":        floatOrNil(rec.Float("nao_pago")),
		"pago":            floatOrNil(rec.Float("pago")),
		"data_criacao":    strOrNil(record.DateOnly(rec.Str("data_criacao"))),
		"data_alteracao":  strOrNil(record.DateOnly(rec.Str("data_alteracao"))),
		"categoria_id":    strOrNil(rec.Str("categoria_id")),
		"categoria_nome":  strOrNil(rec.Str("categoria_nome")),
	}
}

// FlattenSale maps one sale document. Emission is truncated to the calendar
// day; installment summary fields come from the first installment when any
// exist.
func FlattenSale(rec record.Record) record.Record {
	customer := rec.Child("customer")
	discount := rec.Child("discount")
	payment := rec.Child("payment")
	seller := rec.Child("seller")
	account := payment.Child("financial_account")
	installments := payment.Slice("installments")

	row := record.Record{
		"id":                         strOrNil(rec.Str("id")),
		"conta_azul_id":              floatOrNil(rec.Float("contaAzulId")),
		"number":                     floatOrNil(rec.Float("number")),
		"emission":                   strOrNil(record.DateOnly(rec.Str("emission"))),
		"status":                     strOrNil(rec.Str("status")),
		"scheduled":                  boolOrNil(rec.Bool("scheduled")),
		"customer_id":                strOrNil(customer.Str("id")),
		"customer_name":              strOrNil(customer.Str("name")),
		"customer_company":           strOrNil(customer.Str("company_name")),
		"customer_email":             strOrNil(customer.Str("email")),
		"customer_type":              strOrNil(customer.Str("person_type")),
		"discount_type":              strOrNil(discount.Str("measure_unit")),
		"discount_rate":              floatOrNil(discount.Float("rate")),
		"payment_type":               strOrNil(payment.Str("type")),
		"payment_method":             strOrNil(payment.Str("method")),
		"financial_account_id":       strOrNil(account.Str("uuid")),
		"financial_account_name":     strOrNil(account.Str("name")),
		"notes":                      strOrNil(rec.Str("notes")),
		"shipping_cost":              floatOrNil(rec.Float("shipping_cost")),
		"total":                      floatOrNil(rec.Float("total")),
		"seller_id":                  strOrNil(seller.Str("id")),
		"seller_name":                strOrNil(seller.Str("name")),
		"installments_count":         len(installments),
		"first_installment_value":    nil,
		"first_installment_due_date": nil,
	}

	if len(installments) > 0 {
		row["first_installment_value"] = floatOrNil(installments[0].Float("value"))
		row["first_installment_due_date"] = strOrNil(installments[0].Str("due_date"))
	}

	return row
}

// FlattenFinancialAccount maps one financial account. The running-total
// columns are placeholders filled in by the account sync from warehouse
// aggregates.
func FlattenFinancialAccount(rec record.Record) record.Record {
	return record.Record{
		"id":              strOrNil(rec.Str("id")),
		"nome":            strOrNil(rec.Str("nome")),
		"banco":           strOrNil(rec.Str("banco")),
		"numero_conta":    strOrNil(rec.Str("numero_conta")),
		"ativo":           boolOrNil(rec.Bool("ativo")),
		"padrao":          boolOrNil(rec.Bool("padrao")),
		"total_recebido":  nil,
		"total_a_receber": nil,
		"total_pago":      nil,
		"total_a_pagar":   nil,
		"saldo_atual":     nil,
	}
}

// FlattenInstallment maps one installment of a financial event. parentID
// records the owning event; kind carries the parent's revenue/expense
// discriminator so account totals can be derived from installments alone.
func FlattenInstallment(rec record.Record, parentID, kind string) record.Record {
	accountID := rec.Str("conta_financeira_id")
	if accountID == nil {
		accountID = rec.Child("conta_financeira").Str("id")
	}

	return record.Record{
		"id":                      strOrNil(rec.Str("id")),
		"conta_id":                parentID,
		"tipo_evento":             kind,
		"status":                  strOrNil(rec.Str("status")),
		"condicao_pagamento":      strOrNil(rec.Str("condicao_pagamento")),
		"referencia":              strOrNil(rec.Str("referencia")),
		"agendado":                boolOrNil(rec.Bool("agendado")),
		"tipo":                    strOrNil(rec.Str("tipo")),
		"rateio":                  strOrNil(rec.Str("rateio")),
		"conciliado":              boolOrNil(rec.Bool("conciliado")),
		"valor_pago":              floatOrNil(rec.Float("valor_pago")),
		"perda":                   floatOrNil(rec.Float("perda")),
		"valor_nao_pago":          floatOrNil(rec.Float("valor_nao_pago")),
		"data_vencimento":         strOrNil(record.DateOnly(rec.Str("data_vencimento"))),
		"data_prevista_pagamento": strOrNil(record.DateOnly(rec.Str("data_prevista_pagamento"))),
		"descricao":               strOrNil(rec.Str("descricao")),
		"conta_financeira_id":     strOrNil(accountID),
		"forma_pagamento":         strOrNil(rec.Str("forma_pagamento")),
	}
}

// FlattenSettlement maps one settlement (baixa) of an installment. The value
// composition arrives either as a nested object or as a JSON-encoded string;
// both forms are decoded identically, and an undecodable value yields null
// composition fields without dropping the row.
func FlattenSettlement(rec record.Record, installmentID string) record.Record {
	comp := rec.Composition("valor_composicao")

	return record.Record{
		"id":                  strOrNil(rec.Str("id")),
		"parcela_id":          installmentID,
		"versao":              floatOrNil(rec.Float("versao")),
		"data_pagamento":      strOrNil(record.DateOnly(rec.Str("data_pagamento"))),
		"conciliacao_id":      strOrNil(rec.Str("conciliacao_id")),
		"observacao":          strOrNil(rec.Str("observacao")),
		"forma_pagamento":     strOrNil(rec.Str("forma_pagamento")),
		"origem":              strOrNil(rec.Str("origem")),
		"recibo_digital_id":   strOrNil(rec.Str("recibo_digital_id")),
		"tipo_evento":         strOrNil(rec.Str("tipo_evento")),
		"nsu":                 strOrNil(rec.Str("nsu")),
		"referencia_id":       strOrNil(rec.Str("referencia_id")),
		"data_alteracao":      strOrNil(rec.Str("data_alteracao")),
		"baixa_desconto":      floatOrNil(comp.Float("desconto")),
		"baixa_juros":         floatOrNil(comp.Float("juros")),
		"baixa_multa":         floatOrNil(comp.Float("multa")),
		"baixa_taxa":          floatOrNil(comp.Float("taxa")),
		"baixa_valor_bruto":   floatOrNil(comp.Float("valor_bruto")),
		"baixa_valor_liquido": floatOrNil(comp.Float("valor_liquido")),
	}
}

// The *OrNil helpers force typed nil pointers into untyped nils so row
// values compare and serialize as plain nulls.

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func floatOrNil(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolOrNil(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}
