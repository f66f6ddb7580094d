package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mspfin/billing-engine/internal/service"
	"github.com/mspfin/billing-engine/internal/types"
)

// RunRecurringBilling performs one billing run. AS_OF (YYYY-MM-DD) replays
// a past date, COMPANY_ID limits the run to one company.
func RunRecurringBilling() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	asOf := a.params.Clock.Now().UTC()
	if v := os.Getenv("AS_OF"); v != "" {
		asOf, err = time.Parse(time.DateOnly, v)
		if err != nil {
			return fmt.Errorf("AS_OF must be YYYY-MM-DD: %w", err)
		}
	}

	recurringService := service.NewRecurringInvoiceService(a.params, service.NewTaxService(a.params))
	ctx := context.Background()

	if companyID := os.Getenv("COMPANY_ID"); companyID != "" {
		cc := types.CompanyContext{
			CompanyID: companyID,
			UserID:    types.SystemUserID,
			RequestID: types.GenerateUUID(),
		}
		resp, err := recurringService.ProcessDue(ctx, cc, asOf)
		if err != nil {
			return err
		}
		for _, r := range resp.Results {
			a.log.Infow("recurring invoice",
				"recurring_invoice_id", r.RecurringInvoiceID,
				"invoice_id", r.InvoiceID,
				"already_processed", r.AlreadyProcessed,
				"error", r.Error)
		}
		a.log.Infow("billing run finished", "company_id", companyID, "processed", resp.Processed, "failed", resp.Failed)
		return nil
	}

	responses, err := recurringService.ProcessAllDue(ctx, asOf)
	if err != nil {
		return err
	}
	processed, failed := 0, 0
	for _, resp := range responses {
		processed += resp.Processed
		failed += resp.Failed
	}
	a.log.Infow("billing run finished", "as_of", asOf, "companies", len(responses), "processed", processed, "failed", failed)
	return nil
}
