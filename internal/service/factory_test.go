package service

import (
	"context"
	"sync/atomic"
	"testing"

	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/stretchr/testify/suite"
)

// newTestServiceParams wires the services to the suite's in-memory stores.
func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetClock(),
		s.GetLocker(),
		s.GetCache(),
		nil,
		stores.InvoiceRepo,
		stores.ContractRepo,
		stores.RecurringRepo,
		stores.PaymentRepo,
		stores.TaxRateRepo,
		s.GetAuditRecorder(),
	)
}

type ServiceParamsSuite struct {
	testutil.BaseServiceTestSuite
	params ServiceParams
}

func TestServiceParams(t *testing.T) {
	suite.Run(t, new(ServiceParamsSuite))
}

func (s *ServiceParamsSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = newTestServiceParams(&s.BaseServiceTestSuite)
}

func (s *ServiceParamsSuite) TestMutateRetriesVersionConflicts() {
	var attempts int32
	err := s.params.mutate(s.GetContext(), func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return ierr.NewError("stale").Mark(ierr.ErrVersionConflict)
		}
		return nil
	}, "lock:invoice:a")
	s.NoError(err)
	s.Equal(int32(3), attempts)
}

func (s *ServiceParamsSuite) TestMutateGivesUpAfterMaxRetries() {
	var attempts int32
	err := s.params.mutate(s.GetContext(), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return ierr.NewError("stale").Mark(ierr.ErrVersionConflict)
	}, "lock:invoice:a")
	s.Error(err)
	s.True(ierr.IsVersionConflict(err))
	s.Equal(int32(s.GetConfig().Scheduler.MaxRetries+1), attempts)
}

func (s *ServiceParamsSuite) TestMutateDoesNotRetryOtherErrors() {
	var attempts int32
	err := s.params.mutate(s.GetContext(), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return ierr.NewError("bad input").Mark(ierr.ErrValidation)
	}, "lock:invoice:a")
	s.True(ierr.IsValidation(err))
	s.Equal(int32(1), attempts)
}

func (s *ServiceParamsSuite) TestMutateTakesDuplicateKeysOnce() {
	// a second acquisition of the same key would block forever
	err := s.params.mutate(s.GetContext(), func(ctx context.Context) error {
		return nil
	}, "lock:invoice:b", "lock:invoice:a", "lock:invoice:b")
	s.NoError(err)
}
