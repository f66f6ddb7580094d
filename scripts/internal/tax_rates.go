package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mspfin/billing-engine/internal/api/dto"
	"github.com/mspfin/billing-engine/internal/service"
	"github.com/mspfin/billing-engine/internal/types"
)

// ImportTaxRates creates the local tax rates listed in TAX_RATES_FILE for
// COMPANY_ID. The file holds a JSON array of tax rate requests.
func ImportTaxRates() error {
	companyID := os.Getenv("COMPANY_ID")
	path := os.Getenv("TAX_RATES_FILE")
	if companyID == "" || path == "" {
		return fmt.Errorf("COMPANY_ID and TAX_RATES_FILE are required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var requests []dto.CreateTaxRateRequest
	if err := json.Unmarshal(raw, &requests); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cc := types.CompanyContext{
		CompanyID: companyID,
		UserID:    os.Getenv("USER_ID"),
		RequestID: types.GenerateUUID(),
	}
	taxService := service.NewTaxService(a.params)

	created := 0
	for i, req := range requests {
		rate, err := taxService.CreateTaxRate(context.Background(), cc, req)
		if err != nil {
			a.log.Errorw("failed to create tax rate",
				"index", i,
				"state", req.State,
				"type", req.Type,
				"error", err)
			continue
		}
		created++
		a.log.Infow("created tax rate", "id", rate.ID, "name", rate.Name, "rate", rate.Rate)
	}

	a.log.Infow("tax rate import finished", "created", created, "total", len(requests))
	if created < len(requests) {
		return fmt.Errorf("%d of %d tax rates failed", len(requests)-created, len(requests))
	}
	return nil
}
