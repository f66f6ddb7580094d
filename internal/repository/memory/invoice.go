package memory

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

// InvoiceStore implements invoice.Repository
type InvoiceStore struct {
	*Store[*invoice.Invoice]
}

func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{Store: NewStore("invoice", copyInvoice)}
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	c := *inv
	c.Exemptions = append([]types.TaxCategory(nil), inv.Exemptions...)
	c.Items = lo.Map(inv.Items, func(item *invoice.InvoiceItem, _ int) *invoice.InvoiceItem {
		ic := *item
		return &ic
	})
	return &c
}

func (s *InvoiceStore) Create(_ context.Context, inv *invoice.Invoice) error {
	for i, item := range inv.Items {
		item.InvoiceID = inv.ID
		item.Position = i
	}
	return s.Store.Create(inv.ID, inv)
}

func (s *InvoiceStore) Get(_ context.Context, companyID, id string) (*invoice.Invoice, error) {
	return s.Store.Get(id, func(inv *invoice.Invoice) bool { return inv.CompanyID == companyID })
}

func (s *InvoiceStore) List(_ context.Context, filter *invoice.Filter) ([]*invoice.Invoice, error) {
	if filter == nil {
		filter = &invoice.Filter{}
	}
	match := func(inv *invoice.Invoice) bool {
		if inv.CompanyID != filter.CompanyID || inv.BaseModel.Status != types.StatusPublished {
			return false
		}
		if filter.ClientID != "" && inv.ClientID != filter.ClientID {
			return false
		}
		if filter.RecurringInvoiceID != "" && lo.FromPtr(inv.RecurringInvoiceID) != filter.RecurringInvoiceID {
			return false
		}
		if len(filter.Statuses) > 0 && !lo.Contains(filter.Statuses, inv.Status) {
			return false
		}
		if filter.OutstandingOnly && !inv.Balance.IsPositive() {
			return false
		}
		return true
	}
	less := func(a, b *invoice.Invoice) bool {
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if !a.IssueDate.Equal(b.IssueDate) {
			return a.IssueDate.Before(b.IssueDate)
		}
		return a.ID < b.ID
	}
	return s.Store.List(match, less, filter.QueryFilter), nil
}

func (s *InvoiceStore) Update(_ context.Context, inv *invoice.Invoice) error {
	for i, item := range inv.Items {
		item.InvoiceID = inv.ID
		item.Position = i
	}
	next := copyInvoice(inv)
	next.Version = inv.Version + 1
	err := s.Store.Put(inv.ID, next, func(stored *invoice.Invoice) error {
		if stored.CompanyID != inv.CompanyID {
			return s.notFound(inv.ID)
		}
		return versionCheck("invoice", inv.ID, inv.Version, stored.Version)
	})
	if err != nil {
		return err
	}
	inv.Version++
	return nil
}

func (s *InvoiceStore) GetForPeriod(_ context.Context, companyID, recurringInvoiceID string, periodStart time.Time) (*invoice.Invoice, error) {
	day := types.DateOnly(periodStart)
	matches := s.Store.List(func(inv *invoice.Invoice) bool {
		return inv.CompanyID == companyID &&
			lo.FromPtr(inv.RecurringInvoiceID) == recurringInvoiceID &&
			inv.PeriodStart != nil &&
			types.DateOnly(*inv.PeriodStart).Equal(day)
	}, nil, nil)
	if len(matches) == 0 {
		return nil, s.notFound(recurringInvoiceID + "@" + day.Format(time.DateOnly))
	}
	return matches[0], nil
}
