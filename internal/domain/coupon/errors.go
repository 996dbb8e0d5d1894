package coupon

import "fmt"

// ValidationError reports a malformed coupon definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid coupon %s: %s", e.Field, e.Message)
}

// Reason discriminates why a coupon was rejected for a given cart and user.
type Reason string

const (
	ReasonNotActive              Reason = "not_active"
	ReasonExpired                Reason = "expired"
	ReasonNotYetValid            Reason = "not_yet_valid"
	ReasonGlobalLimitReached     Reason = "global_limit_reached"
	ReasonUserNotEligible        Reason = "user_not_eligible"
	ReasonUserLimitReached       Reason = "user_limit_reached"
	ReasonBelowMinimumOrderValue Reason = "below_minimum_order_value"
	ReasonNoApplicableItems      Reason = "no_applicable_items"
	ReasonExcludedItemPresent    Reason = "excluded_item_present"
)

// EligibilityError is the single failure type returned by Evaluate. Callers
// branch on Reason; Message is safe to surface to customers verbatim.
type EligibilityError struct {
	Reason  Reason
	Message string
}

func (e *EligibilityError) Error() string {
	return e.Message
}

func ineligible(reason Reason, format string, args ...any) *EligibilityError {
	return &EligibilityError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}
