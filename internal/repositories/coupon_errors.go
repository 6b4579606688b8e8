package repositories

import (
	"errors"
	"fmt"
)

// CouponUsageErrorCode enumerates failure reasons for coupon usage counters.
type CouponUsageErrorCode string

const (
	// CouponUsageUnknown represents an unspecified failure.
	CouponUsageUnknown CouponUsageErrorCode = "unknown"
	// CouponUsageLimitReached indicates UsedCount already equals UsageLimit.
	CouponUsageLimitReached CouponUsageErrorCode = "usage_limit_reached"
	// CouponUsageNotRedeemed indicates a release was attempted on a coupon with no recorded use.
	CouponUsageNotRedeemed CouponUsageErrorCode = "not_redeemed"
	// CouponUsageLimitBelowUsed indicates an update tried to set UsageLimit below UsedCount.
	CouponUsageLimitBelowUsed CouponUsageErrorCode = "usage_limit_below_used"
)

// CouponUsageError wraps coupon counter failures with machine readable codes.
type CouponUsageError struct {
	Op      string
	Code    CouponUsageErrorCode
	Message string
	Err     error
}

func (e *CouponUsageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *CouponUsageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCouponUsageError constructs a typed coupon usage error.
func NewCouponUsageError(op string, code CouponUsageErrorCode, message string) *CouponUsageError {
	if message == "" {
		message = string(code)
	}
	return &CouponUsageError{Op: op, Code: code, Message: message}
}

// IsCouponUsageLimitReached reports whether err carries CouponUsageLimitReached.
func IsCouponUsageLimitReached(err error) bool {
	var usageErr *CouponUsageError
	return errors.As(err, &usageErr) && usageErr.Code == CouponUsageLimitReached
}

// IsCouponUsageLimitBelowUsed reports whether err carries CouponUsageLimitBelowUsed.
func IsCouponUsageLimitBelowUsed(err error) bool {
	var usageErr *CouponUsageError
	return errors.As(err, &usageErr) && usageErr.Code == CouponUsageLimitBelowUsed
}
