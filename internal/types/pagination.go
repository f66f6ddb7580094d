package types

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// QueryFilter is the common list filter for repositories.
type QueryFilter struct {
	Limit  int `form:"limit" json:"limit" validate:"omitempty,min=1,max=500"`
	Offset int `form:"offset" json:"offset" validate:"omitempty,min=0"`
}

func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{Limit: DefaultLimit}
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit <= 0 {
		return DefaultLimit
	}
	if f.Limit > MaxLimit {
		return MaxLimit
	}
	return f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}
