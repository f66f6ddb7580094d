package testutil

import (
	"context"
	"time"

	"github.com/mspfin/billing-engine/internal/cache"
	"github.com/mspfin/billing-engine/internal/clock"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/domain/invoice"
	"github.com/mspfin/billing-engine/internal/domain/payment"
	"github.com/mspfin/billing-engine/internal/domain/recurring"
	"github.com/mspfin/billing-engine/internal/domain/tax"
	"github.com/mspfin/billing-engine/internal/lock"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/mspfin/billing-engine/internal/repository/memory"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/mspfin/billing-engine/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InvoiceRepo   invoice.Repository
	ContractRepo  contract.Repository
	RecurringRepo recurring.Repository
	PaymentRepo   payment.Repository
	TaxRateRepo   tax.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	cc     types.CompanyContext
	stores Stores
	db     postgres.IClient
	locker lock.Locker
	cache  cache.Cache
	audit  *AuditRecorder
	logger *logger.Logger
	config *config.Configuration
	clock  *clock.Fixed
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelInfo
	s.config.Scheduler.LockTTL = 2 * time.Second

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.cc = DefaultCompanyContext()
	s.ctx = SetupContext()
	s.clock = clock.NewFixed(time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC))
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.cache.Flush(s.ctx)
	s.audit.Reset()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		InvoiceRepo:   memory.NewInvoiceStore(),
		ContractRepo:  memory.NewContractStore(),
		RecurringRepo: memory.NewRecurringInvoiceStore(),
		PaymentRepo:   memory.NewPaymentStore(),
		TaxRateRepo:   memory.NewTaxRateStore(),
	}
	s.db = memory.NewTxClient()
	s.locker = lock.NewMemoryLocker()
	s.cache = cache.NewInMemoryCache(s.config, s.logger)
	s.audit = NewAuditRecorder()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetCompanyContext returns the tenant and actor every test runs as
func (s *BaseServiceTestSuite) GetCompanyContext() types.CompanyContext {
	return s.cc
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the transaction client of the in-memory stores
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

func (s *BaseServiceTestSuite) GetLocker() lock.Locker {
	return s.locker
}

func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetAuditRecorder returns the publisher capturing audit entries
func (s *BaseServiceTestSuite) GetAuditRecorder() *AuditRecorder {
	return s.audit
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetClock returns the fixed test clock
func (s *BaseServiceTestSuite) GetClock() *clock.Fixed {
	return s.clock
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.clock.Now().UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
