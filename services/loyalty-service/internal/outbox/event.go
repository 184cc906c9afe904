package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	BusinessID    string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by the loyalty service.
const (
	TypePointsEarned        = "loyalty.points.earned.v1"
	TypePointsRedeemed      = "loyalty.points.redeemed.v1"
	TypePointsExpired       = "loyalty.points.expired.v1"
	TypeTierChanged         = "loyalty.tier.changed.v1"
	TypeCampaignAwarded     = "loyalty.campaign.awarded.v1"
	TypeAchievementUnlocked = "loyalty.achievement.unlocked.v1"
)
