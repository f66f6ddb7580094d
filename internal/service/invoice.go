package service

import (
	"context"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/domain/audit"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type InvoiceService interface {
	CreateInvoice(ctx context.Context, cc types.CompanyContext, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, cc types.CompanyContext, filter *dto.InvoiceFilter) (*dto.ListInvoicesResponse, error)

	AddItem(ctx context.Context, cc types.CompanyContext, invoiceID string, req dto.CreateInvoiceItemRequest) (*dto.InvoiceResponse, error)
	UpdateItem(ctx context.Context, cc types.CompanyContext, invoiceID, itemID string, req dto.UpdateInvoiceItemRequest) (*dto.InvoiceResponse, error)
	RemoveItem(ctx context.Context, cc types.CompanyContext, invoiceID, itemID string) (*dto.InvoiceResponse, error)
	SetDiscount(ctx context.Context, cc types.CompanyContext, invoiceID string, req dto.SetDiscountRequest) (*dto.InvoiceResponse, error)

	// Recalculate rebuilds every derived field from the items, the discount
	// and the completed payments.
	Recalculate(ctx context.Context, cc types.CompanyContext, invoiceID string) (*dto.InvoiceResponse, error)

	// CalculateTotals prices lines without persisting anything.
	CalculateTotals(ctx context.Context, cc types.CompanyContext, req dto.InvoiceTotalsRequest) (*dto.InvoiceTotalsResponse, error)
}

type invoiceService struct {
	ServiceParams
	taxService TaxService
}

func NewInvoiceService(params ServiceParams, taxService TaxService) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		taxService:    taxService,
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, cc types.CompanyContext, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	now := s.now()
	inv := req.ToInvoice(cc, now, s.Config.Billing.Currency)

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		return createInvoice(ctx, s.ServiceParams, s.taxService, inv)
	})
	if err != nil {
		return nil, err
	}

	log := newAuditLog(cc, now)
	log.record(audit.EntityTypeInvoice, inv.ID, audit.ActionInvoiceCreated, nil, amountPtr(inv.Amount), "invoice created", map[string]any{
		"client_id":  inv.ClientID,
		"item_count": len(inv.Items),
	})
	s.AuditPublisher.Publish(ctx, log.entries...)

	s.Logger.WithContext(ctx).Infow("created invoice",
		"invoice_id", inv.ID,
		"client_id", inv.ClientID,
		"amount", inv.Amount)
	return dto.NewInvoiceResponse(inv), nil
}

// createInvoice computes the totals of a new invoice and stores it. It runs
// inside the caller's transaction.
func createInvoice(ctx context.Context, p ServiceParams, taxService TaxService, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	totals, err := invoice.CalculateTotals(inv.Items, inv.Discount, taxService.InvoiceTaxer(ctx, inv))
	if err != nil {
		return err
	}
	inv.ApplyTotals(totals)
	inv.ApplyPayments(decimal.Zero, p.Config.Billing.StatusTolerance)
	return p.InvoiceRepo.Create(ctx, inv)
}

func (s *invoiceService) GetInvoice(ctx context.Context, cc types.CompanyContext, id string) (*dto.InvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, cc types.CompanyContext, filter *dto.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &dto.InvoiceFilter{QueryFilter: *types.NewDefaultQueryFilter()}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter.ToFilter(cc.CompanyID))
	if err != nil {
		return nil, err
	}
	return &dto.ListInvoicesResponse{
		Items:      lo.Map(invoices, func(inv *invoice.Invoice, _ int) *dto.InvoiceResponse { return dto.NewInvoiceResponse(inv) }),
		Pagination: dto.NewPaginationResponse(len(invoices), &filter.QueryFilter),
	}, nil
}

func (s *invoiceService) AddItem(ctx context.Context, cc types.CompanyContext, invoiceID string, req dto.CreateInvoiceItemRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.modify(ctx, cc, invoiceID, audit.ActionInvoiceItemAdded, "line item added", func(inv *invoice.Invoice) (map[string]any, error) {
		item := req.ToInvoiceItem(s.now())
		item.InvoiceID = inv.ID
		inv.Items = append(inv.Items, item)
		return map[string]any{"item_id": item.ID}, nil
	})
}

func (s *invoiceService) UpdateItem(ctx context.Context, cc types.CompanyContext, invoiceID, itemID string, req dto.UpdateInvoiceItemRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.modify(ctx, cc, invoiceID, audit.ActionInvoiceItemUpdated, "line item updated", func(inv *invoice.Invoice) (map[string]any, error) {
		item, ok := inv.FindItem(itemID)
		if !ok {
			return nil, itemNotFound(invoiceID, itemID)
		}
		before := map[string]any{
			"unit_price": item.UnitPrice.String(),
			"quantity":   item.Quantity.String(),
		}
		req.Apply(item)
		return map[string]any{
			"item_id": itemID,
			"before":  before,
			"after": map[string]any{
				"unit_price": item.UnitPrice.String(),
				"quantity":   item.Quantity.String(),
			},
		}, nil
	})
}

func (s *invoiceService) RemoveItem(ctx context.Context, cc types.CompanyContext, invoiceID, itemID string) (*dto.InvoiceResponse, error) {
	return s.modify(ctx, cc, invoiceID, audit.ActionInvoiceItemRemoved, "line item removed", func(inv *invoice.Invoice) (map[string]any, error) {
		if !inv.RemoveItem(itemID) {
			return nil, itemNotFound(invoiceID, itemID)
		}
		return map[string]any{"item_id": itemID}, nil
	})
}

func (s *invoiceService) SetDiscount(ctx context.Context, cc types.CompanyContext, invoiceID string, req dto.SetDiscountRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reason := lo.Ternary(req.Reason == "", "discount changed", req.Reason)
	return s.modify(ctx, cc, invoiceID, audit.ActionInvoiceDiscountSet, reason, func(inv *invoice.Invoice) (map[string]any, error) {
		old := inv.Discount
		inv.Discount = types.Round2(req.Discount)
		return map[string]any{
			"old_discount": old.StringFixed(2),
			"new_discount": inv.Discount.StringFixed(2),
		}, nil
	})
}

func (s *invoiceService) Recalculate(ctx context.Context, cc types.CompanyContext, invoiceID string) (*dto.InvoiceResponse, error) {
	return s.modify(ctx, cc, invoiceID, audit.ActionInvoiceRecalculated, "recalculated", func(*invoice.Invoice) (map[string]any, error) {
		return nil, nil
	})
}

func (s *invoiceService) CalculateTotals(ctx context.Context, cc types.CompanyContext, req dto.InvoiceTotalsRequest) (*dto.InvoiceTotalsResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := req.ToInvoice()
	inv.CompanyID = cc.CompanyID
	totals, err := invoice.CalculateTotals(inv.Items, inv.Discount, s.taxService.InvoiceTaxer(ctx, inv))
	if err != nil {
		return nil, err
	}
	return &dto.InvoiceTotalsResponse{Totals: totals}, nil
}

// modify is the read, change, recompute, persist sequence shared by every
// invoice mutation. It holds the invoice lock and retries on version conflict.
func (s *invoiceService) modify(
	ctx context.Context,
	cc types.CompanyContext,
	invoiceID string,
	action audit.Action,
	reason string,
	change func(inv *invoice.Invoice) (map[string]any, error),
) (*dto.InvoiceResponse, error) {
	if err := validateCompany(cc); err != nil {
		return nil, err
	}

	ctx = cc.Into(ctx)
	log := newAuditLog(cc, s.now())
	var result *invoice.Invoice

	err := s.mutate(ctx, func(ctx context.Context) error {
		log.reset()

		inv, err := s.InvoiceRepo.Get(ctx, cc.CompanyID, invoiceID)
		if err != nil {
			return err
		}
		oldAmount := inv.Amount

		metadata, err := change(inv)
		if err != nil {
			return err
		}
		if err := recalculateInvoice(ctx, s.ServiceParams, s.taxService, inv); err != nil {
			return err
		}
		inv.UpdatedAt = s.now()
		inv.UpdatedBy = cc.Actor()

		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		log.record(audit.EntityTypeInvoice, inv.ID, action, amountPtr(oldAmount), amountPtr(inv.Amount), reason, metadata)
		result = inv
		return nil
	}, lock.InvoiceKey(cc.CompanyID, invoiceID))
	if err != nil {
		return nil, err
	}

	s.AuditPublisher.Publish(ctx, log.entries...)
	s.Logger.WithContext(ctx).Infow("updated invoice",
		"invoice_id", result.ID,
		"action", action,
		"amount", result.Amount,
		"balance", result.Balance,
		"status", result.Status)
	return dto.NewInvoiceResponse(result), nil
}

// recalculateInvoice derives totals from the current items and discount and
// then the balance and status from the completed payments.
func recalculateInvoice(ctx context.Context, p ServiceParams, taxService TaxService, inv *invoice.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	totals, err := invoice.CalculateTotals(inv.Items, inv.Discount, taxService.InvoiceTaxer(ctx, inv))
	if err != nil {
		return err
	}
	inv.ApplyTotals(totals)
	return p.refreshBalance(ctx, inv)
}

func itemNotFound(invoiceID, itemID string) error {
	return ierr.NewError("invoice item not found").
		WithHintf("Invoice %s has no line item %s", invoiceID, itemID).
		Mark(ierr.ErrNotFound)
}
