package memory

import (
	"context"
	"sync"

	"github.com/mspfin/billing-engine/internal/domain/payment"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentStore implements payment.Repository
type PaymentStore struct {
	*Store[*payment.Payment]

	mu      sync.RWMutex
	credits []*payment.CreditEntry
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{Store: NewStore("payment", copyPayment)}
}

func copyPayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.Allocations = lo.Map(p.Allocations, func(a *payment.Allocation, _ int) *payment.Allocation {
		ac := *a
		return &ac
	})
	return &c
}

func byPaymentDate(a, b *payment.Payment) bool {
	if !a.PaymentDate.Equal(b.PaymentDate) {
		return a.PaymentDate.Before(b.PaymentDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) error {
	for _, a := range p.Allocations {
		a.PaymentID = p.ID
		a.CompanyID = p.CompanyID
	}
	return s.Store.Create(p.ID, p)
}

func (s *PaymentStore) Get(_ context.Context, companyID, id string) (*payment.Payment, error) {
	return s.Store.Get(id, func(p *payment.Payment) bool { return p.CompanyID == companyID })
}

func (s *PaymentStore) List(_ context.Context, filter *payment.Filter) ([]*payment.Payment, error) {
	if filter == nil {
		filter = &payment.Filter{}
	}
	match := func(p *payment.Payment) bool {
		if p.CompanyID != filter.CompanyID {
			return false
		}
		if filter.ClientID != "" && p.ClientID != filter.ClientID {
			return false
		}
		if filter.Kind != "" && p.Kind != filter.Kind {
			return false
		}
		if filter.InvoiceID != "" {
			touches := lo.FromPtr(p.InvoiceID) == filter.InvoiceID ||
				lo.ContainsBy(p.Allocations, func(a *payment.Allocation) bool { return a.InvoiceID == filter.InvoiceID })
			if !touches {
				return false
			}
		}
		return true
	}
	return s.Store.List(match, byPaymentDate, filter.QueryFilter), nil
}

func (s *PaymentStore) ListRefunds(_ context.Context, companyID, originalPaymentID string) ([]*payment.Payment, error) {
	return s.Store.List(func(p *payment.Payment) bool {
		return p.CompanyID == companyID &&
			p.Kind == types.PaymentKindRefund &&
			lo.FromPtr(p.OriginalPaymentID) == originalPaymentID
	}, byPaymentDate, nil), nil
}

func (s *PaymentStore) SumCompletedForInvoice(_ context.Context, companyID, invoiceID string) (decimal.Decimal, error) {
	payments := s.Store.List(func(p *payment.Payment) bool {
		return p.CompanyID == companyID && p.IsCompleted()
	}, nil, nil)

	total := decimal.Zero
	for _, p := range payments {
		for _, a := range p.Allocations {
			if a.InvoiceID == invoiceID {
				total = total.Add(a.Amount)
			}
		}
	}
	return total, nil
}

func (s *PaymentStore) CreateCreditEntry(_ context.Context, entry *payment.CreditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.ContainsBy(s.credits, func(e *payment.CreditEntry) bool { return e.ID == entry.ID }) {
		return ierr.NewError("credit entry already exists").
			WithHintf("credit entry %s already exists", entry.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	c := *entry
	s.credits = append(s.credits, &c)
	return nil
}

func (s *PaymentStore) GetCreditBalance(_ context.Context, companyID, clientID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.credits {
		if e.CompanyID == companyID && e.ClientID == clientID {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

// Clear removes all payments and credit entries
func (s *PaymentStore) Clear() {
	s.Store.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits = nil
}
