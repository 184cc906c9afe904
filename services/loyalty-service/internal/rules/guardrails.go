package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// Violation codes returned by CheckRedemption.
const (
	ViolationProgramDisabled   = "program_disabled"
	ViolationRewardInactive    = "reward_inactive"
	ViolationRewardNotStarted  = "reward_not_started"
	ViolationRewardEnded       = "reward_ended"
	ViolationCartBelowMinimum  = "cart_below_minimum"
	ViolationTierTooLow        = "tier_too_low"
	ViolationLimitReached      = "per_customer_limit_reached"
	ViolationInsufficientPoint = "insufficient_points"
	ViolationInvalidCart       = "invalid_cart_total"
)

type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GuardrailError lists every rule a redemption attempt broke.
type GuardrailError struct {
	Violations []Violation
}

func (e *GuardrailError) Error() string {
	codes := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		codes = append(codes, v.Code)
	}
	return "redemption blocked: " + strings.Join(codes, ", ")
}

// Has reports whether the error contains the given violation code.
func (e *GuardrailError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (e *GuardrailError) Messages() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Message)
	}
	return out
}

type RedemptionRequest struct {
	Settings       model.Settings
	Reward         model.Reward
	Account        model.Account
	CartTotalCents int64
	// PriorRedemptions counts this customer's non-cancelled redemptions of the reward.
	PriorRedemptions int
	Now              time.Time
}

// CheckRedemption returns nil when the redemption may proceed, otherwise a *GuardrailError.
func CheckRedemption(req RedemptionRequest) error {
	var vs []Violation
	add := func(code, format string, args ...any) {
		vs = append(vs, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if !req.Settings.Enabled {
		add(ViolationProgramDisabled, "loyalty program is disabled")
	}
	r := req.Reward
	if !r.Active {
		add(ViolationRewardInactive, "reward %q is not active", r.Name)
	}
	if r.StartsAt != nil && req.Now.Before(*r.StartsAt) {
		add(ViolationRewardNotStarted, "reward %q is not available until %s", r.Name, r.StartsAt.UTC().Format(time.RFC3339))
	}
	if r.EndsAt != nil && !req.Now.Before(*r.EndsAt) {
		add(ViolationRewardEnded, "reward %q ended at %s", r.Name, r.EndsAt.UTC().Format(time.RFC3339))
	}
	if req.CartTotalCents <= 0 {
		add(ViolationInvalidCart, "cart total must be positive")
	} else if req.CartTotalCents < r.MinCartTotalCents {
		add(ViolationCartBelowMinimum, "cart total %d is below the minimum of %d cents", req.CartTotalCents, r.MinCartTotalCents)
	}
	if !MeetsTier(req.Account.Tier, r.TierRequired) {
		add(ViolationTierTooLow, "reward requires tier %s, customer is %s", r.TierRequired, req.Account.Tier)
	}
	if r.PerCustomerLimit > 0 && req.PriorRedemptions >= r.PerCustomerLimit {
		add(ViolationLimitReached, "reward may be redeemed at most %d times per customer", r.PerCustomerLimit)
	}
	if req.Account.Balance < r.PointCost {
		add(ViolationInsufficientPoint, "balance %d is below the reward cost of %d points", req.Account.Balance, r.PointCost)
	}

	if len(vs) == 0 {
		return nil
	}
	return &GuardrailError{Violations: vs}
}

// ComputeDiscount returns the discount in cents for a reward applied to a cart.
// The result is capped at maxDiscountPercent of the cart and at the cart itself.
func ComputeDiscount(r model.Reward, cartTotalCents int64, maxDiscountPercent int) int64 {
	if cartTotalCents <= 0 {
		return 0
	}
	var d int64
	switch r.DiscountType {
	case model.DiscountFixed:
		d = r.DiscountValue
	case model.DiscountPercent:
		d = cartTotalCents * r.DiscountValue / 100
	}
	if maxDiscountPercent > 0 {
		if limit := cartTotalCents * int64(maxDiscountPercent) / 100; d > limit {
			d = limit
		}
	}
	if d > cartTotalCents {
		d = cartTotalCents
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ValidateReward checks a reward definition before it is stored.
func ValidateReward(r model.Reward) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("name is required")
	case r.PointCost <= 0:
		return fmt.Errorf("point_cost must be positive")
	case r.DiscountType != model.DiscountFixed && r.DiscountType != model.DiscountPercent:
		return fmt.Errorf("discount_type must be fixed or percent")
	case r.DiscountValue <= 0:
		return fmt.Errorf("discount_value must be positive")
	case r.DiscountType == model.DiscountPercent && r.DiscountValue > 100:
		return fmt.Errorf("percent discount_value must be at most 100")
	case r.MinCartTotalCents < 0:
		return fmt.Errorf("min_cart_total_cents must not be negative")
	case r.PerCustomerLimit < 0:
		return fmt.Errorf("per_customer_limit must not be negative")
	case r.TierRequired != "" && !r.TierRequired.Valid():
		return fmt.Errorf("unknown tier %q", r.TierRequired)
	case r.StartsAt != nil && r.EndsAt != nil && !r.EndsAt.After(*r.StartsAt):
		return fmt.Errorf("ends_at must be after starts_at")
	}
	return nil
}

// ValidateSettings checks per-business program settings.
func ValidateSettings(s model.Settings) error {
	switch {
	case s.PointsPerDollar < 0 || s.PointsPerDollar > 100:
		return fmt.Errorf("points_per_dollar must be between 0 and 100")
	case s.ExpiryDays < 0 || s.ExpiryDays > 3650:
		return fmt.Errorf("expiry_days must be between 0 and 3650")
	case s.MaxDiscountPercent < 1 || s.MaxDiscountPercent > 100:
		return fmt.Errorf("max_discount_percent must be between 1 and 100")
	case s.RedemptionCodeTTLDays < 1 || s.RedemptionCodeTTLDays > 365:
		return fmt.Errorf("redemption_code_ttl_days must be between 1 and 365")
	}
	return nil
}
