package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_INVOICE           = "inv"
	UUID_PREFIX_INVOICE_LINE_ITEM = "inv_line"
	UUID_PREFIX_CONTRACT          = "contract"
	UUID_PREFIX_RECURRING_INVOICE = "recur"
	UUID_PREFIX_PAYMENT           = "pay"
	UUID_PREFIX_REFUND            = "refund"
	UUID_PREFIX_ALLOCATION        = "alloc"
	UUID_PREFIX_CREDIT            = "credit"
	UUID_PREFIX_TAX_RATE          = "taxrate"
	UUID_PREFIX_AUDIT             = "audit"
)
