package types

import (
	"time"
)

// BaseModel is embedded by every persisted aggregate.
// Any change here must be reflected in the migrations.
type BaseModel struct {
	CompanyID string    `db:"company_id" json:"company_id"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
}

func GetDefaultBaseModel(cc CompanyContext, now time.Time) BaseModel {
	now = now.UTC()
	return BaseModel{
		CompanyID: cc.CompanyID,
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: cc.Actor(),
		UpdatedBy: cc.Actor(),
	}
}
