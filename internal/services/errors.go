package services

import (
	"errors"
	"fmt"

	"github.com/hanko-field/storefront/internal/repositories"
)

// RuleViolation is a business-rule rejection carrying a machine readable reason. It wraps a
// service sentinel (ErrOrderInvalidState, ErrCouponRejected) so callers can match either.
type RuleViolation struct {
	Code    string
	Message string
	Err     error
}

func (v *RuleViolation) Error() string {
	if v == nil {
		return ""
	}
	if v.Err != nil {
		return fmt.Sprintf("%v: %s", v.Err, v.Message)
	}
	return v.Message
}

func (v *RuleViolation) Unwrap() error {
	if v == nil {
		return nil
	}
	return v.Err
}

func newRuleViolation(sentinel error, code, format string, args ...any) *RuleViolation {
	return &RuleViolation{Code: code, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// RuleViolationCode extracts the reason code from err when it is a RuleViolation.
func RuleViolationCode(err error) (string, bool) {
	var violation *RuleViolation
	if errors.As(err, &violation) {
		return violation.Code, true
	}
	return "", false
}

// repositoryErrorClass maps persistence errors onto a service's sentinels.
type repositoryErrorClass struct {
	notFound    error
	conflict    error
	unavailable error
}

func (c repositoryErrorClass) mapError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", c.notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", c.conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", c.unavailable, err)
		}
	}
	return err
}
