package service

import (
	"context"
	"fmt"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/payment"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/idempotency"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type PaymentService interface {
	// ApplyPayment records a payment against one invoice and returns the
	// invoice's new balance and status. Balance may go negative.
	ApplyPayment(ctx context.Context, cc types.CompanyContext, req dto.ApplyPaymentRequest) (*dto.ApplyPaymentResponse, error)

	// AllocatePayment spreads one payment over a client's invoices. Anything
	// left once every candidate is settled becomes client credit.
	AllocatePayment(ctx context.Context, cc types.CompanyContext, req dto.AllocatePaymentRequest) (*dto.AllocatePaymentResponse, error)

	// ProcessRefund returns part of a completed payment. Without allow_exceed
	// the refunds of a payment never add up past its net amount.
	ProcessRefund(ctx context.Context, cc types.CompanyContext, paymentID string, req dto.RefundPaymentRequest) (*dto.RefundPaymentResponse, error)

	GetPayment(ctx context.Context, cc types.CompanyContext, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, cc types.CompanyContext, filter *dto.PaymentFilter) (*dto.ListPaymentsResponse, error)
	GetBalance(ctx context.Context, cc types.CompanyContext, clientID string) (*dto.ClientBalanceResponse, error)
}

type paymentService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

// paymentID derives the record id from a client idempotency key so a retried
// request finds the payment it created the first time.
func (s *paymentService) paymentID(cc types.CompanyContext, prefix, operation, key string, extra ...string) string {
	if key == "" {
		return types.GenerateUUIDWithPrefix(prefix)
	}
	params := map[string]interface{}{
		"company_id": cc.CompanyID,
		"operation":  operation,
		"key":        key,
	}
	for i, v := range extra {
		params[fmt.Sprintf("scope_%d", i)] = v
	}
	return prefix + "_" + s.idempGen.GenerateKey(idempotency.ScopePayment, params)
}

// findExisting returns the payment with id when a retry already created it.
func (s *paymentService) findExisting(ctx context.Context, companyID, id string) (*payment.Payment, error) {
	existing, err := s.PaymentRepo.Get(ctx, companyID, id)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

func (s *paymentService) ApplyPayment(ctx context.Context, cc types.CompanyContext, req dto.ApplyPaymentRequest) (*dto.ApplyPaymentResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	id := s.paymentID(cc, types.UUID_PREFIX_PAYMENT, "apply", req.IdempotencyKey, req.InvoiceID)
	log := newAuditLog(cc, now)
	var resp *dto.ApplyPaymentResponse

	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()

		inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, req.InvoiceID)
		if err != nil {
			return err
		}

		existing, err := s.findExisting(ctx, cc.CompanyID, id)
		if err != nil {
			return err
		}
		if existing != nil {
			resp = &dto.ApplyPaymentResponse{
				Payment:        dto.NewPaymentResponse(existing),
				NewBalance:     inv.Balance,
				NewStatus:      inv.Status,
				AlreadyApplied: true,
			}
			return nil
		}

		p := req.ToPayment(cc, id, inv.ClientID, now)
		if err := p.Validate(); err != nil {
			return err
		}
		if p.IsCompleted() {
			p.Allocations = []*payment.Allocation{{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
				CompanyID: cc.CompanyID,
				PaymentID: p.ID,
				InvoiceID: inv.ID,
				Amount:    p.Amount,
				CreatedAt: now,
			}}
		}
		if err := s.PaymentRepo.Create(ctx, p); err != nil {
			return err
		}

		oldBalance := inv.Balance
		if err := s.refreshBalance(ctx, inv); err != nil {
			return err
		}
		inv.UpdatedAt = now
		inv.UpdatedBy = cc.Actor()
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		log.record(audit.EntityTypePayment, p.ID, audit.ActionPaymentApplied, amountPtr(oldBalance), amountPtr(inv.Balance), "payment applied", map[string]any{
			"invoice_id":     inv.ID,
			"amount":         p.Amount.StringFixed(2),
			"processing_fee": p.ProcessingFee.StringFixed(2),
			"method":         p.Method,
			"payment_status": p.PaymentStatus,
		})

		resp = &dto.ApplyPaymentResponse{
			Payment:    dto.NewPaymentResponse(p),
			NewBalance: inv.Balance,
			NewStatus:  inv.Status,
		}
		return nil
	}, lock.InvoiceKey(cc.CompanyID, req.InvoiceID), lock.PaymentKey(cc.CompanyID, id))
	if err != nil {
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	s.Logger.WithContext(ctx).Infow("applied payment",
		"payment_id", resp.Payment.ID,
		"invoice_id", req.InvoiceID,
		"amount", req.Amount,
		"new_balance", resp.NewBalance,
		"new_status", resp.NewStatus,
		"already_applied", resp.AlreadyApplied)
	return resp, nil
}

func (s *paymentService) AllocatePayment(ctx context.Context, cc types.CompanyContext, req dto.AllocatePaymentRequest) (*dto.AllocatePaymentResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	id := s.paymentID(cc, types.UUID_PREFIX_PAYMENT, "allocate", req.IdempotencyKey, req.ClientID)

	invoiceIDs := req.InvoiceIDs
	if len(invoiceIDs) == 0 {
		outstanding, err := s.InvoiceRepo.List(ctx, &invoice.Filter{
			QueryFilter:     &types.QueryFilter{Limit: types.MaxLimit},
			CompanyID:       cc.CompanyID,
			ClientID:        req.ClientID,
			OutstandingOnly: true,
		})
		if err != nil {
			return nil, err
		}
		invoiceIDs = lo.Map(outstanding, func(inv *invoice.Invoice, _ int) string { return inv.ID })
	}

	keys := []string{
		lock.AllocationKey(cc.CompanyID, req.ClientID),
		lock.PaymentKey(cc.CompanyID, id),
	}
	for _, invoiceID := range invoiceIDs {
		keys = append(keys, lock.InvoiceKey(cc.CompanyID, invoiceID))
	}

	log := newAuditLog(cc, now)
	var resp *dto.AllocatePaymentResponse

	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()

		existing, err := s.findExisting(ctx, cc.CompanyID, id)
		if err != nil {
			return err
		}
		if existing != nil {
			resp, err = s.allocationReplay(ctx, cc, existing)
			return err
		}

		invoices := make(map[string]*invoice.Invoice, len(invoiceIDs))
		candidates := make([]payment.Candidate, 0, len(invoiceIDs))
		for _, invoiceID := range invoiceIDs {
			inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, invoiceID)
			if err != nil {
				return err
			}
			if inv.ClientID != req.ClientID {
				return ierr.NewError("invoice belongs to another client").
					WithHintf("Invoice %s does not belong to client %s", inv.ID, req.ClientID).
					Mark(ierr.ErrValidation)
			}
			if err := s.refreshBalance(ctx, inv); err != nil {
				return err
			}
			invoices[inv.ID] = inv
			candidates = append(candidates, payment.Candidate{
				InvoiceID: inv.ID,
				IssueDate: inv.IssueDate,
				DueDate:   inv.DueDate,
				Balance:   inv.Balance,
			})
		}

		plan, err := payment.Allocate(req.Amount, candidates, req.GetStrategy())
		if err != nil {
			return err
		}

		p := req.ToPayment(cc, id, now)
		if err := p.Validate(); err != nil {
			return err
		}
		p.Allocations = lo.Map(plan.Lines, func(line payment.AllocationLine, i int) *payment.Allocation {
			return &payment.Allocation{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
				CompanyID: cc.CompanyID,
				PaymentID: p.ID,
				InvoiceID: line.InvoiceID,
				Amount:    line.Amount,
				Sequence:  i,
				CreatedAt: now,
			}
		})
		if err := s.PaymentRepo.Create(ctx, p); err != nil {
			return err
		}

		if plan.Credit.IsPositive() {
			if err := s.PaymentRepo.CreateCreditEntry(ctx, &payment.CreditEntry{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT),
				CompanyID: cc.CompanyID,
				ClientID:  p.ClientID,
				PaymentID: p.ID,
				Amount:    plan.Credit,
				Reason:    "unallocated payment remainder",
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		balances := make([]dto.InvoiceBalance, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			inv := invoices[line.InvoiceID]
			if err := s.refreshBalance(ctx, inv); err != nil {
				return err
			}
			inv.UpdatedAt = now
			inv.UpdatedBy = cc.Actor()
			if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
				return err
			}
			log.record(audit.EntityTypeInvoice, inv.ID, audit.ActionPaymentAllocated, amountPtr(line.BalanceBefore), amountPtr(inv.Balance), "payment allocated", map[string]any{
				"payment_id": p.ID,
				"amount":     line.Amount.StringFixed(2),
			})
			balances = append(balances, dto.InvoiceBalance{
				InvoiceID:  inv.ID,
				Amount:     line.Amount,
				NewBalance: inv.Balance,
				NewStatus:  inv.Status,
			})
		}

		log.record(audit.EntityTypePayment, p.ID, audit.ActionPaymentAllocated, nil, amountPtr(p.Amount), "payment received", map[string]any{
			"client_id":       p.ClientID,
			"strategy":        req.GetStrategy(),
			"total_allocated": plan.TotalAllocated.StringFixed(2),
			"credit":          plan.Credit.StringFixed(2),
		})

		resp = &dto.AllocatePaymentResponse{
			Payment:        dto.NewPaymentResponse(p),
			Allocations:    balances,
			TotalAllocated: plan.TotalAllocated,
			Credit:         plan.Credit,
		}
		return nil
	}, keys...)
	if err != nil {
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	s.Logger.WithContext(ctx).Infow("allocated payment",
		"payment_id", resp.Payment.ID,
		"client_id", req.ClientID,
		"amount", req.Amount,
		"invoices", len(resp.Allocations),
		"credit", resp.Credit,
		"already_applied", resp.AlreadyApplied)
	return resp, nil
}

// allocationReplay rebuilds the response of an allocation created by an
// earlier attempt with the same idempotency key.
func (s *paymentService) allocationReplay(ctx context.Context, cc types.CompanyContext, p *payment.Payment) (*dto.AllocatePaymentResponse, error) {
	resp := &dto.AllocatePaymentResponse{
		Payment:        dto.NewPaymentResponse(p),
		Allocations:    make([]dto.InvoiceBalance, 0, len(p.Allocations)),
		TotalAllocated: decimal.Zero,
		AlreadyApplied: true,
	}
	for _, a := range p.Allocations {
		inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, a.InvoiceID)
		if err != nil {
			return nil, err
		}
		resp.TotalAllocated = resp.TotalAllocated.Add(a.Amount)
		resp.Allocations = append(resp.Allocations, dto.InvoiceBalance{
			InvoiceID:  a.InvoiceID,
			Amount:     a.Amount,
			NewBalance: inv.Balance,
			NewStatus:  inv.Status,
		})
	}
	resp.Credit = p.Amount.Sub(resp.TotalAllocated)
	return resp, nil
}

func (s *paymentService) ProcessRefund(ctx context.Context, cc types.CompanyContext, paymentID string, req dto.RefundPaymentRequest) (*dto.RefundPaymentResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()

	// allocations of a completed payment never change, so the invoices to
	// lock are known before taking the locks
	original, err := s.PaymentRepo.Get(ctx, cc.CompanyID, paymentID)
	if err != nil {
		return nil, err
	}
	id := s.paymentID(cc, types.UUID_PREFIX_REFUND, "refund", req.IdempotencyKey, paymentID)

	keys := []string{
		lock.PaymentKey(cc.CompanyID, paymentID),
		lock.AllocationKey(cc.CompanyID, original.ClientID),
	}
	for _, a := range original.Allocations {
		keys = append(keys, lock.InvoiceKey(cc.CompanyID, a.InvoiceID))
	}

	log := newAuditLog(cc, now)
	var resp *dto.RefundPaymentResponse

	err = s.mutate(ctx, func(ctx context.Context) error {
		log.reset()

		original, err := s.PaymentRepo.Get(ctx, cc.CompanyID, paymentID)
		if err != nil {
			return err
		}
		if original.IsRefund() {
			return ierr.NewError("cannot refund a refund").
				WithHintf("Payment %s is itself a refund", paymentID).
				Mark(ierr.ErrInvalidOperation)
		}
		if !original.IsCompleted() {
			return ierr.NewError("payment is not completed").
				WithHintf("Payment %s is %s and cannot be refunded", paymentID, original.PaymentStatus).
				Mark(ierr.ErrInvalidOperation)
		}

		existing, err := s.findExisting(ctx, cc.CompanyID, id)
		if err != nil {
			return err
		}
		if existing != nil {
			resp, err = s.refundReplay(ctx, cc, original, existing)
			return err
		}

		refunds, err := s.PaymentRepo.ListRefunds(ctx, cc.CompanyID, paymentID)
		if err != nil {
			return err
		}
		refunded := decimal.Zero
		for _, r := range refunds {
			if r.IsCompleted() {
				refunded = refunded.Add(r.Amount.Abs())
			}
		}

		net := original.NetAmount()
		exceeds := refunded.Add(req.Amount).GreaterThan(net)
		if exceeds && !req.AllowExceed {
			return ierr.NewError("refund exceeds original payment").
				WithHintf("Refund of %s exceeds the refundable %s of payment %s",
					req.Amount.StringFixed(2), types.Round2(net.Sub(refunded)).StringFixed(2), paymentID).
				WithReportableDetails(map[string]any{
					"payment_id":       paymentID,
					"net_amount":       net.StringFixed(2),
					"already_refunded": refunded.StringFixed(2),
					"requested":        req.Amount.StringFixed(2),
				}).
				Mark(ierr.ErrValidation)
		}

		// reversals already recorded against the original's invoices
		history := append([]*payment.Allocation{}, original.Allocations...)
		for _, r := range refunds {
			if r.IsCompleted() {
				history = append(history, r.Allocations...)
			}
		}
		plan := payment.PlanRefund(req.Amount, history)

		refund := &payment.Payment{
			ID:                id,
			ClientID:          original.ClientID,
			InvoiceID:         original.InvoiceID,
			Kind:              types.PaymentKindRefund,
			Amount:            req.Amount.Neg(),
			ProcessingFee:     decimal.Zero,
			Method:            original.Method,
			PaymentStatus:     types.PaymentStatusCompleted,
			PaymentDate:       now,
			Reason:            req.Reason,
			OriginalPaymentID: lo.ToPtr(original.ID),
			ExceedOverride:    exceeds,
			BaseModel:         types.GetDefaultBaseModel(cc, now),
		}
		refund.Allocations = lo.Map(plan.Lines, func(line payment.RefundLine, i int) *payment.Allocation {
			return &payment.Allocation{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ALLOCATION),
				CompanyID: cc.CompanyID,
				PaymentID: refund.ID,
				InvoiceID: line.InvoiceID,
				Amount:    line.Amount.Neg(),
				Sequence:  len(history) + i,
				CreatedAt: now,
			}
		})
		if err := s.PaymentRepo.Create(ctx, refund); err != nil {
			return err
		}

		if plan.Credit.IsPositive() {
			if err := s.PaymentRepo.CreateCreditEntry(ctx, &payment.CreditEntry{
				ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT),
				CompanyID: cc.CompanyID,
				ClientID:  original.ClientID,
				PaymentID: refund.ID,
				Amount:    plan.Credit.Neg(),
				Reason:    req.Reason,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		resp = &dto.RefundPaymentResponse{
			Refund:         dto.NewPaymentResponse(refund),
			Invoices:       make([]dto.InvoiceBalance, 0, len(plan.Lines)),
			CreditReversed: plan.Credit,
		}
		for _, line := range plan.Lines {
			inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, line.InvoiceID)
			if err != nil {
				return err
			}
			oldBalance := inv.Balance
			if err := s.refreshBalance(ctx, inv); err != nil {
				return err
			}
			inv.UpdatedAt = now
			inv.UpdatedBy = cc.Actor()
			if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
				return err
			}
			log.record(audit.EntityTypeInvoice, inv.ID, audit.ActionPaymentRefunded, amountPtr(oldBalance), amountPtr(inv.Balance), req.Reason, map[string]any{
				"refund_id": refund.ID,
				"amount":    line.Amount.StringFixed(2),
			})
			resp.Invoices = append(resp.Invoices, dto.InvoiceBalance{
				InvoiceID:  inv.ID,
				Amount:     line.Amount,
				NewBalance: inv.Balance,
				NewStatus:  inv.Status,
			})
			if inv.ID == lo.FromPtr(original.InvoiceID) {
				resp.NewBalance = amountPtr(inv.Balance)
			}
		}

		log.record(audit.EntityTypePayment, refund.ID, audit.ActionPaymentRefunded, amountPtr(original.Amount), amountPtr(refund.Amount), req.Reason, map[string]any{
			"original_payment_id": original.ID,
			"credit_reversed":     plan.Credit.StringFixed(2),
			"exceed_override":     exceeds,
		})
		return nil
	}, keys...)
	if err != nil {
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	s.Logger.WithContext(ctx).Infow("processed refund",
		"refund_id", resp.Refund.ID,
		"payment_id", paymentID,
		"amount", req.Amount,
		"credit_reversed", resp.CreditReversed,
		"already_applied", resp.AlreadyApplied)
	return resp, nil
}

func (s *paymentService) refundReplay(ctx context.Context, cc types.CompanyContext, original, refund *payment.Payment) (*dto.RefundPaymentResponse, error) {
	resp := &dto.RefundPaymentResponse{
		Refund:         dto.NewPaymentResponse(refund),
		Invoices:       make([]dto.InvoiceBalance, 0, len(refund.Allocations)),
		CreditReversed: refund.Amount.Abs(),
		AlreadyApplied: true,
	}
	for _, a := range refund.Allocations {
		inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, a.InvoiceID)
		if err != nil {
			return nil, err
		}
		resp.CreditReversed = resp.CreditReversed.Sub(a.Amount.Abs())
		resp.Invoices = append(resp.Invoices, dto.InvoiceBalance{
			InvoiceID:  inv.ID,
			Amount:     a.Amount.Abs(),
			NewBalance: inv.Balance,
			NewStatus:  inv.Status,
		})
		if inv.ID == lo.FromPtr(original.InvoiceID) {
			resp.NewBalance = amountPtr(inv.Balance)
		}
	}
	return resp, nil
}

func (s *paymentService) GetPayment(ctx context.Context, cc types.CompanyContext, id string) (*dto.PaymentResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	p, err := s.PaymentRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) ListPayments(ctx context.Context, cc types.CompanyContext, filter *dto.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &dto.PaymentFilter{QueryFilter: *types.NewDefaultQueryFilter()}
	}

	payments, err := s.PaymentRepo.List(ctx, filter.ToFilter(cc.CompanyID))
	if err != nil {
		return nil, err
	}
	return &dto.ListPaymentsResponse{
		Items:      lo.Map(payments, func(p *payment.Payment, _ int) *dto.PaymentResponse { return dto.NewPaymentResponse(p) }),
		Pagination: dto.NewPaginationResponse(len(payments), &filter.QueryFilter),
	}, nil
}

func (s *paymentService) GetBalance(ctx context.Context, cc types.CompanyContext, clientID string) (*dto.ClientBalanceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, ierr.NewError("client id is required").
			WithHint("Provide the client whose balance to compute").
			Mark(ierr.ErrValidation)
	}

	invoices, err := s.InvoiceRepo.List(ctx, &invoice.Filter{
		QueryFilter: &types.QueryFilter{Limit: types.MaxLimit},
		CompanyID:   cc.CompanyID,
		ClientID:    clientID,
	})
	if err != nil {
		return nil, err
	}
	credit, err := s.PaymentRepo.GetCreditBalance(ctx, cc.CompanyID, clientID)
	if err != nil {
		return nil, err
	}

	balance := &payment.ClientBalance{
		ClientID:         clientID,
		TotalInvoiced:    decimal.Zero,
		TotalPaid:        decimal.Zero,
		OutstandingTotal: decimal.Zero,
		CreditBalance:    types.Round2(credit),
	}
	for _, inv := range invoices {
		balance.TotalInvoiced = balance.TotalInvoiced.Add(inv.Amount)
		balance.TotalPaid = balance.TotalPaid.Add(inv.AmountPaid)
		balance.OutstandingTotal = balance.OutstandingTotal.Add(inv.Balance)
	}
	balance.NetBalance = balance.OutstandingTotal.Sub(balance.CreditBalance)
	return &dto.ClientBalanceResponse{ClientBalance: balance}, nil
}
