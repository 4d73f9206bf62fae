package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rent_notifications/internal/metrics"
	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"
	"rent_notifications/internal/sms"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver produces the due set for a dispatch run.
type Resolver interface {
	PropertiesDueToday(ctx context.Context) ([]models.DueItem, error)
	ContractsExpiring(ctx context.Context, thresholdDays int) ([]models.DueItem, error)
}

// EventSink receives notification outcomes for the reporting feed.
// Publishing is best effort; a sink failure never changes a send outcome.
type EventSink interface {
	Publish(ctx context.Context, p models.OutcomePayload) error
}

// RunSummary is the aggregate a dispatch run returns. Per-item failures are
// visible only through the audit log and these counts; they never fail the
// run itself.
type RunSummary struct {
	PropertiesFound              int
	TenantsSent                  int
	OwnersSent                   int
	OwnersWithMultipleProperties int
}

// Dispatcher drives one notification run: resolve the due set, message every
// tenant in parallel, then one consolidated message per owner. One bad phone
// number never blocks the rest of the run.
type Dispatcher struct {
	resolver Resolver
	guard    *Guard
	sender   sms.Sender
	events   EventSink // optional
	logger   *zap.Logger

	now func() time.Time
}

func NewDispatcher(resolver Resolver, guard *Guard, sender sms.Sender, events EventSink, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver: resolver,
		guard:    guard,
		sender:   sender,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// dispatchPlan parameterizes a run: rent-due and contract-expiry share the
// whole orchestration and differ only in kinds and message bodies.
type dispatchPlan struct {
	runName          string
	notificationType string
	tenantKind       string
	ownerKind        string
	tenantBody       func(models.DueItem) string
	ownerBody        func([]models.DueItem) string
}

var rentDuePlan = dispatchPlan{
	runName:          "rent_due",
	notificationType: models.TypeRentDue,
	tenantKind:       models.KindTenantDue,
	ownerKind:        models.KindOwnerConsolidated,
	tenantBody:       tenantRentDueBody,
	ownerBody:        ownerConsolidatedBody,
}

var contractExpiryPlan = dispatchPlan{
	runName:          "contract_expiry",
	notificationType: models.TypeContractExpiry,
	tenantKind:       models.KindTenantExpiry,
	ownerKind:        models.KindOwnerExpiry,
	tenantBody:       tenantExpiryBody,
	ownerBody:        ownerExpiryBody,
}

// RunRentDue dispatches rent-due notices for today. A resolver failure
// aborts the run before anything is sent or logged.
func (d *Dispatcher) RunRentDue(ctx context.Context) (*RunSummary, error) {
	items, err := d.resolver.PropertiesDueToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve due set: %w", err)
	}
	return d.dispatch(ctx, items, rentDuePlan), nil
}

// RunContractExpiry dispatches expiry notices for contracts ending within
// thresholdDays.
func (d *Dispatcher) RunContractExpiry(ctx context.Context, thresholdDays int) (*RunSummary, error) {
	items, err := d.resolver.ContractsExpiring(ctx, thresholdDays)
	if err != nil {
		return nil, fmt.Errorf("resolve expiring set: %w", err)
	}
	return d.dispatch(ctx, items, contractExpiryPlan), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, items []models.DueItem, plan dispatchPlan) *RunSummary {
	summary := &RunSummary{PropertiesFound: len(items)}
	if len(items) == 0 {
		return summary
	}

	runID := uuid.NewString()
	day := d.now().UTC()
	start := time.Now()
	defer func() {
		metrics.ObserveDispatchDuration(plan.runName, time.Since(start))
	}()

	log := d.logger.With(zap.String("run_id", runID), zap.String("run", plan.runName))
	log.Info("dispatch run started", zap.Int("items", len(items)))

	// Tenant phase: all sends fire together and the phase settles when every
	// launched send has finished; a failure in one never cancels another.
	tenantOK := make([]bool, len(items))
	var wg sync.WaitGroup
	for i := range items {
		it := items[i]
		if !it.HasTenantContact() {
			// Insufficient data: not sent, not recorded as failed.
			log.Warn("missing tenant data, skipping",
				zap.String("property", it.PropertyName))
			continue
		}
		wg.Add(1)
		go func(i int, it models.DueItem) {
			defer wg.Done()
			tenantOK[i] = d.sendTenant(ctx, runID, day, it, plan)
		}(i, it)
	}
	wg.Wait()

	for _, ok := range tenantOK {
		if ok {
			summary.TenantsSent++
		}
	}

	// Owner phase: group by owner phone in resolver order, one consolidated
	// message per owner, again fired in parallel.
	groups, order := groupByOwner(items)

	ownerOK := make([]bool, len(order))
	var owg sync.WaitGroup
	for i, phone := range order {
		owg.Add(1)
		go func(i int, phone string, its []models.DueItem) {
			defer owg.Done()
			ownerOK[i] = d.sendOwner(ctx, runID, day, phone, its, plan)
		}(i, phone, groups[phone])
	}
	owg.Wait()

	for _, ok := range ownerOK {
		if ok {
			summary.OwnersSent++
		}
	}
	for _, phone := range order {
		if len(groups[phone]) > 1 {
			summary.OwnersWithMultipleProperties++
		}
	}

	log.Info("dispatch run finished",
		zap.Int("properties_found", summary.PropertiesFound),
		zap.Int("tenants_sent", summary.TenantsSent),
		zap.Int("owners_sent", summary.OwnersSent),
	)
	return summary
}

func (d *Dispatcher) sendTenant(ctx context.Context, runID string, day time.Time, it models.DueItem, plan dispatchPlan) bool {
	key := IdempotencyKey(models.ChannelSMS, plan.tenantKind, day, it.PropertyID)
	log := d.logger.With(
		zap.String("run_id", runID),
		zap.String("key", key),
		zap.String("property", it.PropertyName),
	)

	already, err := d.guard.HasSucceeded(ctx, key)
	if err != nil {
		// Cannot confirm the key is fresh; skip rather than risk a
		// duplicate send.
		log.Error("idempotency check failed, skipping", zap.Error(err))
		return false
	}
	if already {
		log.Info("already sent, skipping")
		return true
	}

	propertyID := it.PropertyID
	body := plan.tenantBody(it)
	rec := &models.NotificationRecord{
		PropertyID:       &propertyID,
		Channel:          models.ChannelSMS,
		Recipient:        *it.TenantPhone,
		IdempotencyKey:   key,
		NotificationType: plan.notificationType,
		MessageBody:      body,
	}

	return d.sendAndRecord(ctx, runID, rec, log, plan)
}

func (d *Dispatcher) sendOwner(ctx context.Context, runID string, day time.Time, ownerPhone string, items []models.DueItem, plan dispatchPlan) bool {
	key := IdempotencyKey(models.ChannelSMS, plan.ownerKind, day, ownerPhone)
	log := d.logger.With(
		zap.String("run_id", runID),
		zap.String("key", key),
		zap.Int("properties", len(items)),
	)

	already, err := d.guard.HasSucceeded(ctx, key)
	if err != nil {
		log.Error("idempotency check failed, skipping", zap.Error(err))
		return false
	}
	if already {
		log.Info("already sent, skipping")
		return true
	}

	rec := &models.NotificationRecord{
		Channel:          models.ChannelSMS,
		Recipient:        ownerPhone,
		IdempotencyKey:   key,
		NotificationType: plan.notificationType,
		MessageBody:      plan.ownerBody(items),
	}

	return d.sendAndRecord(ctx, runID, rec, log, plan)
}

// sendAndRecord performs the transport call and writes the audit row.
// Recording is best effort: a log-store failure after a successful send is
// surfaced via metrics and logs but does not change the outcome.
func (d *Dispatcher) sendAndRecord(ctx context.Context, runID string, rec *models.NotificationRecord, log *zap.Logger, plan dispatchPlan) bool {
	res, sendErr := d.sender.Send(ctx, sms.Message{To: rec.Recipient, Body: rec.MessageBody})
	if sendErr != nil {
		var tErr *sms.SendError
		if errors.As(sendErr, &tErr) {
			code, msg := tErr.Code, tErr.Message
			rec.ErrorCode = &code
			rec.ErrorMessage = &msg
		} else {
			msg := sendErr.Error()
			rec.ErrorMessage = &msg
		}
		rec.Status = models.StatusFailed

		metrics.IncSMSFailed(plan.notificationType)
		log.Error("sms send failed", zap.Error(sendErr))

		if err := d.guard.RecordFailed(ctx, rec); err != nil {
			metrics.IncLogWriteError()
			log.Error("notification log write failed", zap.Error(err))
		}
		d.publishOutcome(ctx, runID, rec)
		return false
	}

	sid := res.SID
	rec.MessageSID = &sid
	rec.Status = models.StatusSent

	metrics.IncSMSSent(plan.notificationType)
	log.Info("sms sent", zap.String("sid", sid))

	if err := d.guard.RecordSent(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateSent) {
			// A concurrent run recorded first; same logical outcome.
			log.Info("sent row already recorded by another run")
		} else {
			// The message is out but the audit row is missing: the
			// idempotency guarantee is broken for this attempt and a
			// re-run may send again. Surface it, keep the outcome.
			metrics.IncLogWriteError()
			log.Error("notification log write failed after send", zap.Error(err))
		}
	}
	d.publishOutcome(ctx, runID, rec)
	return true
}

func (d *Dispatcher) publishOutcome(ctx context.Context, runID string, rec *models.NotificationRecord) {
	if d.events == nil {
		return
	}
	p := models.OutcomePayload{
		RunID:          runID,
		IdempotencyKey: rec.IdempotencyKey,
		Channel:        rec.Channel,
		Type:           rec.NotificationType,
		Recipient:      rec.Recipient,
		Status:         rec.Status,
		At:             time.Now().UTC(),
	}
	if rec.ErrorMessage != nil {
		p.ErrorMessage = *rec.ErrorMessage
	}
	if err := d.events.Publish(ctx, p); err != nil {
		d.logger.Warn("outcome event enqueue failed",
			zap.String("key", rec.IdempotencyKey), zap.Error(err))
	}
}

func groupByOwner(items []models.DueItem) (map[string][]models.DueItem, []string) {
	groups := make(map[string][]models.DueItem)
	order := make([]string, 0, len(items))

	for _, it := range items {
		if it.OwnerPhone == nil || *it.OwnerPhone == "" {
			continue
		}
		phone := *it.OwnerPhone
		if _, ok := groups[phone]; !ok {
			order = append(order, phone)
		}
		groups[phone] = append(groups[phone], it)
	}
	return groups, order
}
