package postgres

import (
	"context"

	"github.com/mspfin/billing-engine/internal/domain/contract"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/postgres"
	"github.com/samber/lo"
)

type contractRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewContractRepository(client postgres.IClient, logger *logger.Logger) contract.Repository {
	return &contractRepository{client: client, logger: logger}
}

type contractRow struct {
	contract.Contract
	TiersJSON      jsonColumn[[]contract.Tier]          `db:"tiers"`
	ScheduleJSON   jsonColumn[[]contract.ScheduleEntry] `db:"schedule"`
	EscalationJSON jsonColumn[*contract.Escalation]     `db:"escalation"`
	DiscountJSON   jsonColumn[*contract.Discount]       `db:"discount"`
}

func newContractRow(c *contract.Contract) *contractRow {
	row := &contractRow{Contract: *c}
	row.TiersJSON.V = lo.Ternary(c.Tiers == nil, []contract.Tier{}, c.Tiers)
	row.ScheduleJSON.V = lo.Ternary(c.Schedule == nil, []contract.ScheduleEntry{}, c.Schedule)
	row.EscalationJSON.V = c.Escalation
	row.DiscountJSON.V = c.Discount
	return row
}

func (r *contractRow) toDomain() *contract.Contract {
	c := r.Contract
	c.Tiers = r.TiersJSON.V
	c.Schedule = r.ScheduleJSON.V
	c.Escalation = r.EscalationJSON.V
	c.Discount = r.DiscountJSON.V
	if len(c.Tiers) == 0 {
		c.Tiers = nil
	}
	if len(c.Schedule) == 0 {
		c.Schedule = nil
	}
	return &c
}

const contractColumns = `id, company_id, client_id, name, currency, billing_model, frequency, custom_months,
	day_count, start_date, end_date, monthly_amount, base_amount, per_asset_rate, per_user_rate,
	minimum_users, usage_rate, included_usage, asset_count, user_count, tier_metric, tiers, schedule,
	escalation, discount, status, created_at, updated_at, created_by, updated_by`

func (r *contractRepository) Create(ctx context.Context, c *contract.Contract) error {
	r.logger.Debugw("creating contract",
		"contract_id", c.ID,
		"company_id", c.CompanyID,
		"billing_model", c.BillingModel,
	)

	query := `
		INSERT INTO contracts (` + contractColumns + `) VALUES (
			:id, :company_id, :client_id, :name, :currency, :billing_model, :frequency, :custom_months,
			:day_count, :start_date, :end_date, :monthly_amount, :base_amount, :per_asset_rate,
			:per_user_rate, :minimum_users, :usage_rate, :included_usage, :asset_count, :user_count,
			:tier_metric, :tiers, :schedule, :escalation, :discount, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)`

	_, err := r.client.Querier(ctx).NamedExecContext(ctx, query, newContractRow(c))
	return dbError(err, "contract", c.ID)
}

func (r *contractRepository) Get(ctx context.Context, companyID, id string) (*contract.Contract, error) {
	var row contractRow
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 AND company_id = $2`
	if err := r.client.Querier(ctx).GetContext(ctx, &row, query, id, companyID); err != nil {
		return nil, dbError(err, "contract", id)
	}
	return row.toDomain(), nil
}

func (r *contractRepository) List(ctx context.Context, filter *contract.Filter) ([]*contract.Contract, error) {
	if filter == nil {
		filter = &contract.Filter{}
	}

	var c conditions
	c.add("company_id = $%d", filter.CompanyID)
	if !filter.IncludeArchived {
		c.raw("status = 'published'")
	}
	if filter.ClientID != "" {
		c.add("client_id = $%d", filter.ClientID)
	}

	query := `SELECT ` + contractColumns + ` FROM contracts` + c.where() +
		` ORDER BY created_at, id` + c.page(filter.QueryFilter)

	var rows []*contractRow
	if err := r.client.Querier(ctx).SelectContext(ctx, &rows, query, c.args...); err != nil {
		return nil, dbError(err, "contracts", "")
	}
	return lo.Map(rows, func(row *contractRow, _ int) *contract.Contract { return row.toDomain() }), nil
}

func (r *contractRepository) Update(ctx context.Context, c *contract.Contract) error {
	r.logger.Debugw("updating contract", "contract_id", c.ID, "company_id", c.CompanyID)

	query := `
		UPDATE contracts SET
			name = :name,
			billing_model = :billing_model,
			frequency = :frequency,
			custom_months = :custom_months,
			day_count = :day_count,
			start_date = :start_date,
			end_date = :end_date,
			monthly_amount = :monthly_amount,
			base_amount = :base_amount,
			per_asset_rate = :per_asset_rate,
			per_user_rate = :per_user_rate,
			minimum_users = :minimum_users,
			usage_rate = :usage_rate,
			included_usage = :included_usage,
			asset_count = :asset_count,
			user_count = :user_count,
			tier_metric = :tier_metric,
			tiers = :tiers,
			schedule = :schedule,
			escalation = :escalation,
			discount = :discount,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	result, err := r.client.Querier(ctx).NamedExecContext(ctx, query, newContractRow(c))
	if err != nil {
		return dbError(err, "contract", c.ID)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return dbError(lo.Ternary(err != nil, err, errNoRows), "contract", c.ID)
	}
	return nil
}
