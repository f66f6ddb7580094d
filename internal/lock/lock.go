package lock

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL bounds how long a crashed holder can block a record.
const DefaultTTL = 30 * time.Second

// Locker serializes read-modify-write sequences on one record.
type Locker interface {
	// WithLock runs fn while holding key. The lock is released when fn returns,
	// whatever the result. Waiting stops when ctx is done.
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

func InvoiceKey(companyID, invoiceID string) string {
	return fmt.Sprintf("lock:invoice:%s:%s", companyID, invoiceID)
}

func RecurringKey(companyID, recurringID string) string {
	return fmt.Sprintf("lock:recurring:%s:%s", companyID, recurringID)
}

// AllocationKey guards every allocation batch of one client.
func AllocationKey(companyID, clientID string) string {
	return fmt.Sprintf("lock:allocation:%s:%s", companyID, clientID)
}

// PaymentKey guards refunds against one original payment.
func PaymentKey(companyID, paymentID string) string {
	return fmt.Sprintf("lock:payment:%s:%s", companyID, paymentID)
}
