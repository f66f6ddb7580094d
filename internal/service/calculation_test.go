package service

import (
	"testing"
	"time"

	"github.com/mspfin/billing-engine/internal/api/dto"
	ierr "github.com/mspfin/billing-engine/internal/errors"
	"github.com/mspfin/billing-engine/internal/testutil"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type CalculationServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CalculationService
}

func TestCalculationService(t *testing.T) {
	suite.Run(t, new(CalculationServiceSuite))
}

func (s *CalculationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCalculationService(newTestServiceParams(&s.BaseServiceTestSuite))
}

func (s *CalculationServiceSuite) TestProrate_CalendarMonth() {
	resp, err := s.service.Prorate(s.GetContext(), dto.ProrationRequest{
		FullAmount: dec("300"),
		StartDate:  day(2024, time.April, 16),
		EndDate:    day(2024, time.April, 30),
	})
	s.Require().NoError(err)
	s.Equal(30, resp.PeriodDays)
	s.Equal(15, resp.DaysCovered)
	s.Equal("150.00", resp.Amount.StringFixed(2))
	s.Equal(types.DayCountActual, resp.Convention)
}

func (s *CalculationServiceSuite) TestProrate_ExplicitPeriod() {
	periodStart := day(2024, time.January, 15)
	periodEnd := day(2024, time.February, 15)

	resp, err := s.service.Prorate(s.GetContext(), dto.ProrationRequest{
		FullAmount:  dec("310"),
		PeriodStart: &periodStart,
		PeriodEnd:   &periodEnd,
		StartDate:   day(2024, time.February, 5),
		EndDate:     day(2024, time.February, 14),
	})
	s.Require().NoError(err)
	s.Equal(31, resp.PeriodDays)
	s.Equal(10, resp.DaysCovered)
	s.Equal("100.00", resp.Amount.StringFixed(2))
}

func (s *CalculationServiceSuite) TestProrate_Invalid() {
	periodStart := day(2024, time.January, 1)

	_, err := s.service.Prorate(s.GetContext(), dto.ProrationRequest{
		FullAmount:  dec("100"),
		PeriodStart: &periodStart,
		StartDate:   day(2024, time.January, 5),
		EndDate:     day(2024, time.January, 10),
	})
	s.True(ierr.IsValidation(err))

	_, err = s.service.Prorate(s.GetContext(), dto.ProrationRequest{
		FullAmount: dec("100"),
		DayCount:   "banker",
		StartDate:  day(2024, time.January, 5),
		EndDate:    day(2024, time.January, 10),
	})
	s.True(ierr.IsConfiguration(err))

	_, err = s.service.Prorate(s.GetContext(), dto.ProrationRequest{
		FullAmount: dec("100"),
		StartDate:  day(2024, time.January, 10),
		EndDate:    day(2024, time.January, 5),
	})
	s.True(ierr.IsValidation(err))
}
