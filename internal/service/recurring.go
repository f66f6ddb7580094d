package service

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/recurring"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/idempotency"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

type RecurringInvoiceService interface {
	CreateRecurringInvoice(ctx context.Context, cc types.CompanyContext, req dto.CreateRecurringInvoiceRequest) (*dto.RecurringInvoiceResponse, error)
	GetRecurringInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.RecurringInvoiceResponse, error)
	ListRecurringInvoices(ctx context.Context, cc types.CompanyContext, filter *dto.RecurringInvoiceFilter) (*dto.ListRecurringInvoicesResponse, error)
	CancelRecurringInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.RecurringInvoiceResponse, error)

	// AdvanceRecurringCycle bills the cycle starting at next_billing_date when
	// it is due by the target date and moves next_billing_date one period on.
	// Billing a cycle that was already billed is a no-op.
	AdvanceRecurringCycle(ctx context.Context, cc types.CompanyContext, id string, req dto.AdvanceRecurringInvoiceRequest) (*dto.AdvanceRecurringInvoiceResponse, error)

	// ProcessDue advances every due record of the company once. A failing
	// record is reported in the results and never stops the others.
	ProcessDue(ctx context.Context, cc types.CompanyContext, asOf time.Time) (*dto.ProcessDueResponse, error)

	// ProcessAllDue runs ProcessDue for every company with due records.
	ProcessAllDue(ctx context.Context, asOf time.Time) ([]*dto.ProcessDueResponse, error)
}

type recurringInvoiceService struct {
	ServiceParams
	taxService TaxService
	idempGen   *idempotency.Generator
}

func NewRecurringInvoiceService(params ServiceParams, taxService TaxService) RecurringInvoiceService {
	return &recurringInvoiceService{
		ServiceParams: params,
		taxService:    taxService,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *recurringInvoiceService) CreateRecurringInvoice(ctx context.Context, cc types.CompanyContext, req dto.CreateRecurringInvoiceRequest) (*dto.RecurringInvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	r := req.ToRecurringInvoice(cc, now, s.Config.Billing.Currency)

	if r.ContractID != nil {
		c, err := s.ContractRepo.Get(ctx, cc.CompanyID, *r.ContractID)
		if err != nil {
			return nil, err
		}
		if c.BaseModel.Status == types.StatusArchived {
			return nil, ierr.NewError("contract is archived").
				WithHintf("Contract %s is archived and cannot be billed", c.ID).
				Mark(ierr.ErrInvalidOperation)
		}
		if c.ClientID != r.ClientID {
			return nil, ierr.NewError("contract belongs to another client").
				WithHintf("Contract %s does not belong to client %s", c.ID, r.ClientID).
				Mark(ierr.ErrValidation)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		r.Currency = c.Currency
	}

	if err := s.RecurringRepo.Create(ctx, r); err != nil {
		return nil, err
	}

	log := newAuditLog(cc, now)
	log.record(audit.EntityTypeRecurringInvoice, r.ID, audit.ActionRecurringCreated, nil, amountPtr(r.Amount), "recurring invoice scheduled", map[string]any{
		"frequency":         r.Frequency,
		"next_billing_date": r.NextBillingDate.Format(time.DateOnly),
	})
	s.AuditPublisher.Publish(ctx, log.entries...)

	s.Logger.WithContext(ctx).Infow("created recurring invoice",
		"recurring_invoice_id", r.ID,
		"client_id", r.ClientID,
		"frequency", r.Frequency,
		"next_billing_date", r.NextBillingDate)
	return dto.NewRecurringInvoiceResponse(r), nil
}

func (s *recurringInvoiceService) GetRecurringInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.RecurringInvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	r, err := s.RecurringRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewRecurringInvoiceResponse(r), nil
}

func (s *recurringInvoiceService) ListRecurringInvoices(ctx context.Context, cc types.CompanyContext, filter *dto.RecurringInvoiceFilter) (*dto.ListRecurringInvoicesResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &dto.RecurringInvoiceFilter{QueryFilter: *types.NewDefaultQueryFilter()}
	}

	records, err := s.RecurringRepo.List(ctx, filter.ToFilter(cc.CompanyID))
	if err != nil {
		return nil, err
	}
	return &dto.ListRecurringInvoicesResponse{
		Items: lo.Map(records, func(r *recurring.RecurringInvoice, _ int) *dto.RecurringInvoiceResponse {
			return dto.NewRecurringInvoiceResponse(r)
		}),
		Pagination: dto.NewPaginationResponse(len(records), &filter.QueryFilter),
	}, nil
}

func (s *recurringInvoiceService) CancelRecurringInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.RecurringInvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	log := newAuditLog(cc, s.now())
	var result *recurring.RecurringInvoice

	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()
		r, err := s.RecurringRepo.Get(ctx, cc.CompanyID, id)
		if err != nil {
			return err
		}
		result = r
		if !r.IsActive() {
			return nil
		}
		r.RecurringStatus = types.RecurringInvoiceStatusCancelled
		r.UpdatedAt = s.now()
		r.UpdatedBy = cc.Actor()
		if err := s.RecurringRepo.Update(ctx, r); err != nil {
			return err
		}
		log.record(audit.EntityTypeRecurringInvoice, r.ID, audit.ActionRecurringCancelled, nil, nil, "recurring invoice cancelled", nil)
		return nil
	}, lock.RecurringKey(cc.CompanyID, id))
	if err != nil {
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	return dto.NewRecurringInvoiceResponse(result), nil
}

func (s *recurringInvoiceService) AdvanceRecurringCycle(ctx context.Context, cc types.CompanyContext, id string, req dto.AdvanceRecurringInvoiceRequest) (*dto.AdvanceRecurringInvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	target := req.GetTargetDate(now)
	var usage *contract.Usage
	if req.Usage != nil {
		usage = &contract.Usage{
			AssetCount: req.Usage.AssetCount,
			UserCount:  req.Usage.UserCount,
			Units:      req.Usage.Units,
		}
	}

	log := newAuditLog(cc, now)
	var resp *dto.AdvanceRecurringInvoiceResponse

	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()
		var err error
		resp, err = s.advance(ctx, cc, id, target, usage, log)
		return err
	}, lock.RecurringKey(cc.CompanyID, id))

	if err != nil {
		if isCycleFailure(err) {
			s.recordFailure(ctx, cc, id, err)
		}
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	return resp, nil
}

// advance does the work of one cycle inside the caller's lock and transaction.
func (s *recurringInvoiceService) advance(
	ctx context.Context,
	cc types.CompanyContext,
	id string,
	target time.Time,
	usage *contract.Usage,
	log *auditLog,
) (*dto.AdvanceRecurringInvoiceResponse, error) {
	r, err := s.RecurringRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if !r.IsActive() {
		return nil, ierr.NewError("recurring invoice is not active").
			WithHintf("Recurring invoice %s is %s", r.ID, r.RecurringStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	resp := &dto.AdvanceRecurringInvoiceResponse{NextBillingDate: r.NextBillingDate}
	if !r.IsDue(target) {
		// the cycle for target has been billed already
		resp.AlreadyProcessed = true
		resp.RecurringInvoice = dto.NewRecurringInvoiceResponse(r)
		return resp, nil
	}

	var c *contract.Contract
	if r.ContractID != nil {
		if c, err = s.loadContract(ctx, cc.CompanyID, *r.ContractID); err != nil {
			return nil, err
		}
	}

	plan, err := recurring.PlanCycle(ctx, r, c, usage, s.lateFeePolicy())
	if err != nil {
		return nil, err
	}

	periodStart := types.DateOnly(r.NextBillingDate)
	oldAmount := r.Amount
	now := s.now()

	if plan.Request != nil {
		inv, err := s.InvoiceRepo.GetForPeriod(ctx, cc.CompanyID, r.ID, periodStart)
		switch {
		case err == nil:
			// invoice written by an earlier attempt whose advance was lost
			s.Logger.WithContext(ctx).Warnw("cycle invoice already exists, advancing only",
				"recurring_invoice_id", r.ID,
				"invoice_id", inv.ID)
		case ierr.IsNotFound(err):
			inv = s.cycleInvoice(cc, r, plan.Request, now)
			if err := createInvoice(ctx, s.ServiceParams, s.taxService, inv); err != nil {
				return nil, err
			}
			log.record(audit.EntityTypeInvoice, inv.ID, audit.ActionInvoiceCreated, nil, amountPtr(inv.Amount), "recurring cycle billed", map[string]any{
				"recurring_invoice_id": r.ID,
				"period_start":         periodStart.Format(time.DateOnly),
				"late_fee":             plan.Request.LateFee.StringFixed(2),
				"prorated":             plan.Request.Prorated,
			})
		default:
			return nil, err
		}
		resp.Invoice = dto.NewInvoiceResponse(inv)
		r.LastInvoiceID = lo.ToPtr(inv.ID)
		r.LastBilledAt = lo.ToPtr(now)
		if r.ContractID != nil {
			r.Amount = plan.Request.CycleAmount
		}
	} else {
		resp.Skipped = true
	}

	r.NextBillingDate = plan.NextBillingDate
	r.FailedAttempts = 0
	r.LastError = ""
	if plan.Finished {
		r.RecurringStatus = types.RecurringInvoiceStatusCancelled
	}
	r.UpdatedAt = now
	r.UpdatedBy = cc.Actor()
	if err := s.RecurringRepo.Update(ctx, r); err != nil {
		return nil, err
	}

	log.record(audit.EntityTypeRecurringInvoice, r.ID, audit.ActionRecurringAdvanced, amountPtr(oldAmount), amountPtr(r.Amount), "billing cycle advanced", map[string]any{
		"period_start":      periodStart.Format(time.DateOnly),
		"next_billing_date": r.NextBillingDate.Format(time.DateOnly),
		"finished":          plan.Finished,
	})

	resp.NextBillingDate = r.NextBillingDate
	resp.RecurringInvoice = dto.NewRecurringInvoiceResponse(r)
	s.Logger.WithContext(ctx).Infow("advanced recurring invoice",
		"recurring_invoice_id", r.ID,
		"period_start", periodStart,
		"next_billing_date", r.NextBillingDate,
		"invoice_id", lo.FromPtr(r.LastInvoiceID),
		"skipped", resp.Skipped)
	return resp, nil
}

// cycleInvoice materializes the plan as an invoice. The id is derived from
// the record and the period so a duplicate generation collides on create.
func (s *recurringInvoiceService) cycleInvoice(cc types.CompanyContext, r *recurring.RecurringInvoice, req *recurring.InvoiceRequest, now time.Time) *invoice.Invoice {
	key := s.idempGen.GenerateKey(idempotency.ScopeRecurringCycle, map[string]interface{}{
		"company_id":           cc.CompanyID,
		"recurring_invoice_id": r.ID,
		"period_start":         req.PeriodStart.Format(time.DateOnly),
	})

	inv := &invoice.Invoice{
		ID:                 types.UUID_PREFIX_INVOICE + "_" + key,
		ClientID:           req.ClientID,
		Currency:           req.Currency,
		IssueDate:          req.IssueDate,
		DueDate:            req.DueDate,
		Discount:           decimal.Zero,
		Status:             types.InvoiceStatusUnpaid,
		Jurisdiction:       r.Jurisdiction,
		State:              r.State,
		County:             r.County,
		City:               r.City,
		IncludeUSF:         r.IncludeUSF,
		Exemptions:         r.Exemptions,
		ContractID:         req.ContractID,
		RecurringInvoiceID: lo.ToPtr(r.ID),
		PeriodStart:        lo.ToPtr(req.PeriodStart),
		PeriodEnd:          lo.ToPtr(req.PeriodEnd),
		Items:              make([]*invoice.InvoiceItem, 0, len(req.Lines)),
		Version:            1,
		BaseModel:          types.GetDefaultBaseModel(cc, now),
	}
	for i, line := range req.Lines {
		inv.Items = append(inv.Items, &invoice.InvoiceItem{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
			InvoiceID:   inv.ID,
			Description: line.Description,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			ServiceType: line.ServiceType,
			Position:    i,
			CreatedAt:   now,
		})
	}
	return inv
}

// recordFailure counts a failed generation on the record in its own
// transaction, after the failed one has rolled back.
func (s *recurringInvoiceService) recordFailure(ctx context.Context, cc types.CompanyContext, id string, cause error) {
	log := newAuditLog(cc, s.now())
	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()
		r, err := s.RecurringRepo.Get(ctx, cc.CompanyID, id)
		if err != nil {
			return err
		}
		r.RecordFailure(cause)
		r.UpdatedAt = s.now()
		r.UpdatedBy = cc.Actor()
		if err := s.RecurringRepo.Update(ctx, r); err != nil {
			return err
		}
		log.record(audit.EntityTypeRecurringInvoice, r.ID, audit.ActionRecurringFailed, nil, nil, r.LastError, map[string]any{
			"failed_attempts": r.FailedAttempts,
		})
		return nil
	}, lock.RecurringKey(cc.CompanyID, id))
	if err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to record billing failure",
			"recurring_invoice_id", id,
			"cause", cause,
			"error", err)
		return
	}
	s.AuditPublisher.Publish(ctx, log.entries...)
}

// isCycleFailure tells billing failures, which count against the record,
// from conflicts and lookups that say nothing about its configuration.
func isCycleFailure(err error) bool {
	return !ierr.IsVersionConflict(err) && !ierr.IsNotFound(err) && !ierr.IsInvalidOperation(err)
}

func (s *recurringInvoiceService) ProcessDue(ctx context.Context, cc types.CompanyContext, asOf time.Time) (*dto.ProcessDueResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	asOf = types.DateOnly(asOf)
	due, err := s.RecurringRepo.ListDue(ctx, cc.CompanyID, asOf)
	if err != nil {
		return nil, err
	}

	workers := s.Config.Scheduler.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]dto.ProcessDueResult, len(due))
	p := pool.New().WithMaxGoroutines(workers)
	for i, r := range due {
		i, id := i, r.ID
		p.Go(func() {
			results[i] = s.processOne(ctx, cc, id, asOf)
		})
	}
	p.Wait()

	resp := &dto.ProcessDueResponse{AsOf: asOf, Results: results}
	for _, res := range results {
		if res.Error != "" {
			resp.Failed++
		} else if !res.AlreadyProcessed {
			resp.Processed++
		}
	}

	s.Logger.WithContext(ctx).Infow("processed due recurring invoices",
		"as_of", asOf,
		"due", len(due),
		"processed", resp.Processed,
		"failed", resp.Failed)
	return resp, nil
}

// processOne isolates one record: errors and panics become its result.
func (s *recurringInvoiceService) processOne(ctx context.Context, cc types.CompanyContext, id string, asOf time.Time) dto.ProcessDueResult {
	result := dto.ProcessDueResult{RecurringInvoiceID: id}

	var (
		resp *dto.AdvanceRecurringInvoiceResponse
		err  error
		pc   panics.Catcher
	)
	pc.Try(func() {
		resp, err = s.AdvanceRecurringCycle(ctx, cc, id, dto.AdvanceRecurringInvoiceRequest{TargetDate: &asOf})
	})
	if recovered := pc.Recovered(); recovered != nil {
		err = ierr.WithError(recovered.AsError()).
			WithHintf("Billing recurring invoice %s panicked", id).
			Mark(ierr.ErrSystem)
	}

	if err != nil {
		result.Error = err.Error()
		if hint := ierr.HintOf(err); hint != "" {
			result.Error = hint
		}
		s.Sentry.CaptureBillingFailure(ctx, cc.CompanyID, id, err)
		s.Logger.WithContext(ctx).Errorw("recurring invoice billing failed",
			"recurring_invoice_id", id,
			"error", err)
		return result
	}

	result.AlreadyProcessed = resp.AlreadyProcessed
	result.NextBillingDate = lo.ToPtr(resp.NextBillingDate)
	if resp.Invoice != nil {
		result.InvoiceID = resp.Invoice.ID
	}
	return result
}

func (s *recurringInvoiceService) ProcessAllDue(ctx context.Context, asOf time.Time) ([]*dto.ProcessDueResponse, error) {
	companies, err := s.RecurringRepo.ListDueCompanies(ctx, types.DateOnly(asOf))
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.ProcessDueResponse, 0, len(companies))
	for _, companyID := range companies {
		cc := types.CompanyContext{
			CompanyID: companyID,
			UserID:    types.SystemUserID,
			RequestID: types.GenerateUUID(),
		}
		resp, err := s.ProcessDue(ctx, cc, asOf)
		if err != nil {
			// one company's listing failure must not stop the run
			s.Sentry.CaptureException(err)
			s.Logger.WithContext(cc.Into(ctx)).Errorw("failed to process company billing run", "error", err)
			continue
		}
		responses = append(responses, resp)
	}
	return responses, nil
}
