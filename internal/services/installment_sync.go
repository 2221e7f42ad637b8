package services

import (
	"errors"
	"time"

	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/record"
	"conta-sync-service/internal/transform"
)

const (
	installmentSub = "parcelas"
	// subResourceCooldown is the fixed (not exponential) sleep after a 429
	// on a sub-resource fetch.
	subResourceCooldown = 10 * time.Second
	// subResourceAttempts bounds retries for one event before abandoning it.
	subResourceAttempts = 3
)

// SyncInstallments runs the dependent multi-level fetch: for every synced
// financial event with a positive paid amount (and, incrementally, updated
// since the last installment sync), its installment breakdown is fetched
// from the per-event endpoint under a strict 50-requests-per-minute ceiling.
// Installments and their nested settlements are flushed together in bounded
// batches so partial progress stays durable.
func (p *Pipeline) SyncInstallments() (*SyncResult, error) {
	runID, log := p.runLogger(models.TableInstallments)

	watermark, err := p.watermarks.LastSync(p.tenantID, models.TableInstallments)
	if err != nil {
		return nil, err
	}

	events, err := p.paidEventsSince(watermark)
	if err != nil {
		return nil, err
	}

	sched := newFixedIntervalScheduler(p.cfg.SubResourcePerMin, p.now, p.sleep)

	var installmentRows, settlementRows []record.Record
	var skipped []string
	total := 0
	processed := 0

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for _, ev := range events {
		id := ev.Str("id")
		if id == nil {
			continue
		}
		kind := models.CategoryKindRevenue
		resource := receivableResource
		if k := ev.Str("tipo_evento"); k != nil && *k == models.CategoryKindExpense {
			kind = models.CategoryKindExpense
			resource = payableResource
		}

		items, err := p.fetchEventInstallments(resource, *id, sched)
		if err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				log.Warn().Str("event", *id).Msg("Event abandoned after retry budget, continuing")
				skipped = append(skipped, *id)
				continue
			}
			log.Error().Err(err).Str("event", *id).Msg("Installment fetch failed")
			return nil, err
		}

		for _, inst := range items {
			installmentRows = append(installmentRows, transform.FlattenInstallment(inst, *id, kind))
			instID := inst.Str("id")
			if instID == nil {
				continue
			}
			for _, settlement := range inst.Slice("baixas") {
				settlementRows = append(settlementRows, transform.FlattenSettlement(settlement, *instID))
			}
		}

		processed++
		if processed%batchSize == 0 {
			total += len(installmentRows)
			if err := p.flushInstallmentBatch(installmentRows, settlementRows); err != nil {
				return nil, err
			}
			installmentRows = nil
			settlementRows = nil
		}
	}

	total += len(installmentRows)
	if err := p.flushInstallmentBatch(installmentRows, settlementRows); err != nil {
		return nil, err
	}

	log.Info().Int("events", len(events)).Int("installments", total).Int("skipped_events", len(skipped)).Msg("Installments synced")
	return &SyncResult{
		Message:       "Installments synced successfully",
		TotalItems:    total,
		Examined:      len(events),
		LastSync:      formatWatermark(watermark),
		SkippedEvents: skipped,
		RunID:         runID,
	}, nil
}

// paidEventsSince selects the synced events worth a sub-resource fetch: only
// paid or partially paid events carry installment detail, and with an
// existing watermark only events changed since it.
func (p *Pipeline) paidEventsSince(watermark *time.Time) ([]record.Record, error) {
	var events []record.Record

	for _, table := range []string{models.TableReceivables, models.TablePayables} {
		exists, err := p.store.TableExists(table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		rows, err := p.store.QueryAll(table)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			paid := row.Float("pago")
			if paid == nil || *paid <= 0 {
				continue
			}
			if !transform.WasUpdatedSince(row, watermark) {
				continue
			}
			events = append(events, row)
		}
	}

	return events, nil
}

func (p *Pipeline) fetchEventInstallments(resource, eventID string, sched *fixedIntervalScheduler) ([]record.Record, error) {
	for attempt := 1; attempt <= subResourceAttempts; attempt++ {
		sched.Wait()
		items, err := p.api.GetSub(resource, eventID, installmentSub)
		if err == nil {
			return items, nil
		}
		if contaazul.IsStatus(err, 429) {
			p.sleep(subResourceCooldown)
			continue
		}
		// Credential re-reads on 401 are already bounded inside the client;
		// anything surfacing here is not retryable for this run.
		return nil, err
	}
	return nil, ErrRetriesExhausted
}

func (p *Pipeline) flushInstallmentBatch(installments, settlements []record.Record) error {
	if err := p.writer.Flush(models.TableInstallments, installments, "conta_id"); err != nil {
		return err
	}
	if len(settlements) > 0 {
		if err := p.writer.Flush(models.TableSettlements, settlements, "parcela_id"); err != nil {
			return err
		}
	}
	return nil
}

// fixedIntervalScheduler enforces the global sub-resource ceiling: the next
// allowed request time advances by a constant interval after every request,
// and a saturated per-minute counter sleeps until the window rolls over.
type fixedIntervalScheduler struct {
	interval    time.Duration
	perMinute   int
	count       int
	windowStart time.Time
	next        time.Time
	now         func() time.Time
	sleep       func(time.Duration)
}

func newFixedIntervalScheduler(perMinute int, now func() time.Time, sleep func(time.Duration)) *fixedIntervalScheduler {
	if perMinute <= 0 {
		perMinute = 50
	}
	return &fixedIntervalScheduler{
		interval:  time.Minute / time.Duration(perMinute),
		perMinute: perMinute,
		now:       now,
		sleep:     sleep,
	}
}

// Wait blocks until the next request slot is available.
func (s *fixedIntervalScheduler) Wait() {
	n := s.now()
	if s.windowStart.IsZero() {
		s.windowStart = n
	}

	if n.Before(s.next) {
		s.sleep(s.next.Sub(n))
		n = s.next
	}

	if n.Sub(s.windowStart) >= time.Minute {
		s.windowStart = n
		s.count = 0
	}

	if s.count >= s.perMinute {
		rollover := s.windowStart.Add(time.Minute)
		s.sleep(rollover.Sub(n))
		n = rollover
		s.windowStart = n
		s.count = 0
	}

	s.count++
	s.next = n.Add(s.interval)
}
