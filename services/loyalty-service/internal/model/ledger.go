package model

import "time"

// TxType classifies a points transaction. Credits are positive, debits negative.
type TxType string

const (
	TxEarn        TxType = "earn"
	TxRedeem      TxType = "redeem"
	TxExpire      TxType = "expire"
	TxAdjust      TxType = "adjust"
	TxRefund      TxType = "refund"
	TxReversal    TxType = "reversal"
	TxCampaign    TxType = "campaign"
	TxAchievement TxType = "achievement"
	TxImport      TxType = "import"
	TxCorrection  TxType = "correction"
)

// Expiring reports whether credits of this type carry an expiry date.
func (t TxType) Expiring() bool {
	switch t {
	case TxEarn, TxCampaign, TxAchievement, TxImport:
		return true
	}
	return false
}

// Transaction sources.
const (
	SourceAppointment   = "appointment"
	SourcePayment       = "payment"
	SourceRedemption    = "redemption"
	SourceCampaign      = "campaign"
	SourceAchievement   = "achievement"
	SourceManual        = "manual"
	SourceImport        = "import"
	SourceNormalization = "normalization"
	SourceExpiry        = "expiry"

	SourceAppointmentReversal = "appointment_reversal"
)

// ReservedSource reports whether source is written only by the service's own
// flows. Client supplied credits may not use these keys.
func ReservedSource(source string) bool {
	switch source {
	case SourceAppointment, SourceAppointmentReversal, SourceRedemption, SourceCampaign,
		SourceAchievement, SourceImport, SourceNormalization, SourceExpiry:
		return true
	}
	return false
}

type Account struct {
	BusinessID       string    `json:"business_id"`
	CustomerID       string    `json:"customer_id"`
	Balance          int64     `json:"balance"`
	LifetimeEarned   int64     `json:"lifetime_earned"`
	LifetimeRedeemed int64     `json:"lifetime_redeemed"`
	LifetimeExpired  int64     `json:"lifetime_expired"`
	Tier             Tier      `json:"tier"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Transaction struct {
	ID           string     `json:"id"`
	Seq          int64      `json:"seq"`
	BusinessID   string     `json:"business_id"`
	CustomerID   string     `json:"customer_id"`
	Type         TxType     `json:"type"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balance_after"`
	Source       string     `json:"source,omitempty"`
	SourceID     string     `json:"source_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	Actor        string     `json:"actor,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Tier is the loyalty level derived from lifetime earned points.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// Rank orders tiers; unknown tiers rank below bronze.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierPlatinum:
		return 4
	}
	return 0
}

// Settings are the per-business loyalty program parameters.
type Settings struct {
	BusinessID            string    `json:"business_id"`
	PointsPerDollar       int       `json:"points_per_dollar"`
	ExpiryDays            int       `json:"expiry_days"`
	MaxDiscountPercent    int       `json:"max_discount_percent"`
	RedemptionCodeTTLDays int       `json:"redemption_code_ttl_days"`
	Enabled               bool      `json:"enabled"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func DefaultSettings(businessID string) Settings {
	return Settings{
		BusinessID:            businessID,
		PointsPerDollar:       1,
		ExpiryDays:            365,
		MaxDiscountPercent:    50,
		RedemptionCodeTTLDays: 30,
		Enabled:               true,
	}
}

// ExpiryFor returns when a credit created at t expires, or nil if points never expire.
func (s Settings) ExpiryFor(t time.Time) *time.Time {
	if s.ExpiryDays <= 0 {
		return nil
	}
	exp := t.AddDate(0, 0, s.ExpiryDays)
	return &exp
}
