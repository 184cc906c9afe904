package model

import "time"

type DiscountType string

const (
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

type Reward struct {
	ID                string       `json:"id"`
	BusinessID        string       `json:"business_id"`
	Name              string       `json:"name"`
	PointCost         int64        `json:"point_cost"`
	DiscountType      DiscountType `json:"discount_type"`
	DiscountValue     int64        `json:"discount_value"`
	MinCartTotalCents int64        `json:"min_cart_total_cents"`
	TierRequired      Tier         `json:"tier_required,omitempty"`
	PerCustomerLimit  int          `json:"per_customer_limit"`
	Active            bool         `json:"active"`
	StartsAt          *time.Time   `json:"starts_at,omitempty"`
	EndsAt            *time.Time   `json:"ends_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

type RedemptionStatus string

const (
	RedemptionIssued    RedemptionStatus = "issued"
	RedemptionApplied   RedemptionStatus = "applied"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

type Redemption struct {
	ID             string           `json:"id"`
	BusinessID     string           `json:"business_id"`
	CustomerID     string           `json:"customer_id"`
	RewardID       string           `json:"reward_id"`
	Code           string           `json:"code"`
	PointCost      int64            `json:"point_cost"`
	CartTotalCents int64            `json:"cart_total_cents"`
	DiscountCents  int64            `json:"discount_cents"`
	Status         RedemptionStatus `json:"status"`
	InvoiceID      string           `json:"invoice_id,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
	ExpiresAt      time.Time        `json:"expires_at"`
	AppliedAt      *time.Time       `json:"applied_at,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
