package loyalty

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/inbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

// Store is the persistence the service needs; *storage.Repository implements it.
// Methods taking a pgx.Tx must be called inside WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
	Reader() storage.Querier

	GetSettings(ctx context.Context, q storage.Querier, businessID string) (model.Settings, error)
	UpsertSettings(ctx context.Context, q storage.Querier, s model.Settings) (model.Settings, error)
	CreateClient(ctx context.Context, c storage.APIClient) error
	GetClient(ctx context.Context, clientID string) (storage.APIClient, error)

	LockAccount(ctx context.Context, tx pgx.Tx, businessID, customerID string) (model.Account, error)
	GetAccount(ctx context.Context, q storage.Querier, businessID, customerID string) (model.Account, error)
	UpdateAccount(ctx context.Context, tx pgx.Tx, a model.Account) error
	ListAccountCustomers(ctx context.Context, businessID, after string, limit int) ([]string, error)
	ListCustomers(ctx context.Context, businessID, after string, limit int) ([]string, error)
	ListExpiryCandidates(ctx context.Context, businessID string, after storage.AccountKey, limit int) ([]storage.AccountKey, error)

	InsertTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error
	FindTransactionBySource(ctx context.Context, q storage.Querier, businessID, customerID string, typ model.TxType, source, sourceID string) (model.Transaction, bool, error)
	ListTransactions(ctx context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error)
	LedgerTransactions(ctx context.Context, q storage.Querier, businessID, customerID string) ([]model.Transaction, error)

	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key, scope string) (storage.IdempotencyRecord, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key string, statusCode int, response []byte) error
	InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt storage.ProviderEvent) error

	CreateReward(ctx context.Context, rw model.Reward) (model.Reward, error)
	GetReward(ctx context.Context, q storage.Querier, businessID, rewardID string) (model.Reward, error)
	ListRewards(ctx context.Context, businessID string, activeOnly bool) ([]model.Reward, error)
	DeactivateReward(ctx context.Context, businessID, rewardID string) error
	InsertRedemption(ctx context.Context, tx pgx.Tx, rd *model.Redemption) error
	GetRedemptionForUpdate(ctx context.Context, tx pgx.Tx, businessID, redemptionID string) (model.Redemption, error)
	GetRedemptionByCodeForUpdate(ctx context.Context, tx pgx.Tx, businessID, code string) (model.Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, tx pgx.Tx, rd model.Redemption) error
	CountRedemptions(ctx context.Context, q storage.Querier, businessID, customerID, rewardID string) (int, error)

	UpsertCampaign(ctx context.Context, c model.Campaign) (model.Campaign, error)
	GetCampaignByKey(ctx context.Context, businessID, key string) (model.Campaign, error)
	ListCampaigns(ctx context.Context, businessID string) ([]model.Campaign, error)
	ClaimCampaignAward(ctx context.Context, tx pgx.Tx, campaignID, businessID, customerID string) (bool, error)
	SetCampaignAwardTransaction(ctx context.Context, tx pgx.Tx, campaignID, customerID, transactionID string) error

	UnlockedAchievements(ctx context.Context, q storage.Querier, businessID, customerID string) (map[string]bool, error)
	UnlockAchievement(ctx context.Context, tx pgx.Tx, businessID, customerID, key string, points int64) (bool, error)

	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, bool, error)
	UpsertAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) error
	CustomerAppointments(ctx context.Context, q storage.Querier, businessID, customerID string) ([]model.Appointment, error)
	UpsertStats(ctx context.Context, q storage.Querier, s model.CustomerStats) error
	GetStats(ctx context.Context, q storage.Querier, businessID, customerID string) (model.CustomerStats, bool, error)
}

// EventWriter appends outbox events inside a ledger transaction.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Inbox deduplicates consumed messages inside the transaction that applies them.
type Inbox interface {
	Record(ctx context.Context, q inbox.Execer, eventID string, eventType string) (bool, error)
}

var (
	_ Store       = (*storage.Repository)(nil)
	_ EventWriter = (*outbox.Repository)(nil)
	_ Inbox       = (*inbox.Repository)(nil)
)
