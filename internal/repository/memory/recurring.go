package memory

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/domain/recurring"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
)

// RecurringInvoiceStore implements recurring.Repository
type RecurringInvoiceStore struct {
	*Store[*recurring.RecurringInvoice]
}

func NewRecurringInvoiceStore() *RecurringInvoiceStore {
	return &RecurringInvoiceStore{Store: NewStore("recurring invoice", copyRecurring)}
}

func copyRecurring(r *recurring.RecurringInvoice) *recurring.RecurringInvoice {
	c := *r
	c.Exemptions = append([]types.TaxCategory(nil), r.Exemptions...)
	return &c
}

func byNextBillingDate(a, b *recurring.RecurringInvoice) bool {
	if !a.NextBillingDate.Equal(b.NextBillingDate) {
		return a.NextBillingDate.Before(b.NextBillingDate)
	}
	return a.ID < b.ID
}

func (s *RecurringInvoiceStore) Create(_ context.Context, r *recurring.RecurringInvoice) error {
	return s.Store.Create(r.ID, r)
}

func (s *RecurringInvoiceStore) Get(_ context.Context, companyID, id string) (*recurring.RecurringInvoice, error) {
	return s.Store.Get(id, func(r *recurring.RecurringInvoice) bool { return r.CompanyID == companyID })
}

func (s *RecurringInvoiceStore) List(_ context.Context, filter *recurring.Filter) ([]*recurring.RecurringInvoice, error) {
	if filter == nil {
		filter = &recurring.Filter{}
	}
	match := func(r *recurring.RecurringInvoice) bool {
		if r.CompanyID != filter.CompanyID || r.Status != types.StatusPublished {
			return false
		}
		if filter.ClientID != "" && r.ClientID != filter.ClientID {
			return false
		}
		if filter.ContractID != "" && lo.FromPtr(r.ContractID) != filter.ContractID {
			return false
		}
		return filter.Status == "" || r.RecurringStatus == filter.Status
	}
	return s.Store.List(match, byNextBillingDate, filter.QueryFilter), nil
}

func (s *RecurringInvoiceStore) Update(_ context.Context, r *recurring.RecurringInvoice) error {
	next := copyRecurring(r)
	next.Version = r.Version + 1
	err := s.Store.Put(r.ID, next, func(stored *recurring.RecurringInvoice) error {
		if stored.CompanyID != r.CompanyID {
			return s.notFound(r.ID)
		}
		return versionCheck("recurring invoice", r.ID, r.Version, stored.Version)
	})
	if err != nil {
		return err
	}
	r.Version++
	return nil
}

func (s *RecurringInvoiceStore) due(asOf time.Time) FilterFunc[*recurring.RecurringInvoice] {
	return func(r *recurring.RecurringInvoice) bool {
		return r.Status == types.StatusPublished && r.IsDue(asOf)
	}
}

func (s *RecurringInvoiceStore) ListDue(_ context.Context, companyID string, asOf time.Time) ([]*recurring.RecurringInvoice, error) {
	due := s.due(asOf)
	return s.Store.List(func(r *recurring.RecurringInvoice) bool {
		return r.CompanyID == companyID && due(r)
	}, byNextBillingDate, nil), nil
}

func (s *RecurringInvoiceStore) ListDueCompanies(_ context.Context, asOf time.Time) ([]string, error) {
	records := s.Store.List(s.due(asOf), func(a, b *recurring.RecurringInvoice) bool {
		return a.CompanyID < b.CompanyID
	}, nil)
	return lo.Uniq(lo.Map(records, func(r *recurring.RecurringInvoice, _ int) string { return r.CompanyID })), nil
}
