package loyalty

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/inbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/outbox"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/storage"
)

// memTx stands in for a pgx.Tx. The store ignores it; WithTx provides
// atomicity by restoring a snapshot when fn fails.
type memTx struct{ pgx.Tx }

type memState struct {
	settings     map[string]model.Settings
	clients      map[string]storage.APIClient
	accounts     map[storage.AccountKey]model.Account
	txs          []model.Transaction
	seq          int64
	idem         map[string]storage.IdempotencyRecord
	provider     map[string]bool
	rewards      map[string]model.Reward
	redemptions  map[string]model.Redemption
	campaigns    map[string]model.Campaign
	awards       map[string]string
	achievements map[string]int64
	appointments map[string]model.Appointment
	stats        map[storage.AccountKey]model.CustomerStats
	events       []outbox.Event
	inbox        map[string]bool
}

func (s memState) clone() memState {
	c := s
	c.settings = maps.Clone(s.settings)
	c.clients = maps.Clone(s.clients)
	c.accounts = maps.Clone(s.accounts)
	c.txs = slices.Clone(s.txs)
	c.idem = maps.Clone(s.idem)
	c.provider = maps.Clone(s.provider)
	c.rewards = maps.Clone(s.rewards)
	c.redemptions = maps.Clone(s.redemptions)
	c.campaigns = maps.Clone(s.campaigns)
	c.awards = maps.Clone(s.awards)
	c.achievements = maps.Clone(s.achievements)
	c.appointments = maps.Clone(s.appointments)
	c.stats = maps.Clone(s.stats)
	c.events = slices.Clone(s.events)
	c.inbox = maps.Clone(s.inbox)
	return c
}

// memStore is an in-memory Store, EventWriter and Inbox with the same
// uniqueness and check constraints as the schema.
type memStore struct {
	mu  sync.Mutex
	now func() time.Time
	st  memState
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{now: now, st: memState{
		settings:     map[string]model.Settings{},
		clients:      map[string]storage.APIClient{},
		accounts:     map[storage.AccountKey]model.Account{},
		idem:         map[string]storage.IdempotencyRecord{},
		provider:     map[string]bool{},
		rewards:      map[string]model.Reward{},
		redemptions:  map[string]model.Redemption{},
		campaigns:    map[string]model.Campaign{},
		awards:       map[string]string{},
		achievements: map[string]int64{},
		appointments: map[string]model.Appointment{},
		stats:        map[storage.AccountKey]model.CustomerStats{},
		inbox:        map[string]bool{},
	}}
}

var (
	_ Store       = (*memStore)(nil)
	_ EventWriter = (*memStore)(nil)
	_ Inbox       = (*memStore)(nil)
)

func uniqueViolation() error { return &pgconn.PgError{Code: "23505"} }
func checkViolation() error  { return &pgconn.PgError{Code: "23514"} }

func memKey(parts ...string) string { return strings.Join(parts, "|") }

// WithTx serializes transactions and rolls state back when fn fails.
func (m *memStore) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	if err := fn(memTx{}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (m *memStore) Reader() storage.Querier { return nil }

func (m *memStore) GetSettings(_ context.Context, _ storage.Querier, businessID string) (model.Settings, error) {
	if s, ok := m.st.settings[businessID]; ok {
		return s, nil
	}
	return model.DefaultSettings(businessID), nil
}

func (m *memStore) UpsertSettings(_ context.Context, _ storage.Querier, s model.Settings) (model.Settings, error) {
	s.UpdatedAt = m.now()
	m.st.settings[s.BusinessID] = s
	return s, nil
}

func (m *memStore) CreateClient(_ context.Context, c storage.APIClient) error {
	if _, ok := m.st.clients[c.ClientID]; ok {
		return uniqueViolation()
	}
	m.st.clients[c.ClientID] = c
	return nil
}

func (m *memStore) GetClient(_ context.Context, clientID string) (storage.APIClient, error) {
	c, ok := m.st.clients[clientID]
	if !ok {
		return storage.APIClient{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *memStore) LockAccount(_ context.Context, _ pgx.Tx, businessID, customerID string) (model.Account, error) {
	k := storage.AccountKey{BusinessID: businessID, CustomerID: customerID}
	acc, ok := m.st.accounts[k]
	if !ok {
		now := m.now()
		acc = model.Account{BusinessID: businessID, CustomerID: customerID, Tier: model.TierBronze, CreatedAt: now, UpdatedAt: now}
		m.st.accounts[k] = acc
	}
	return acc, nil
}

func (m *memStore) GetAccount(_ context.Context, _ storage.Querier, businessID, customerID string) (model.Account, error) {
	acc, ok := m.st.accounts[storage.AccountKey{BusinessID: businessID, CustomerID: customerID}]
	if !ok {
		return model.Account{}, storage.ErrNotFound
	}
	return acc, nil
}

func (m *memStore) UpdateAccount(_ context.Context, _ pgx.Tx, a model.Account) error {
	if a.Balance < 0 {
		return checkViolation()
	}
	a.UpdatedAt = m.now()
	m.st.accounts[storage.AccountKey{BusinessID: a.BusinessID, CustomerID: a.CustomerID}] = a
	return nil
}

func accountKeyLess(a, b storage.AccountKey) bool {
	if a.BusinessID != b.BusinessID {
		return a.BusinessID < b.BusinessID
	}
	return a.CustomerID < b.CustomerID
}

func memPage(ids map[string]bool, after string, limit int) []string {
	var out []string
	for id := range ids {
		if id > after {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) ListAccountCustomers(_ context.Context, businessID, after string, limit int) ([]string, error) {
	ids := map[string]bool{}
	for k := range m.st.accounts {
		if k.BusinessID == businessID {
			ids[k.CustomerID] = true
		}
	}
	return memPage(ids, after, limit), nil
}

func (m *memStore) ListCustomers(_ context.Context, businessID, after string, limit int) ([]string, error) {
	ids := map[string]bool{}
	for k := range m.st.accounts {
		if k.BusinessID == businessID {
			ids[k.CustomerID] = true
		}
	}
	for _, a := range m.st.appointments {
		if a.BusinessID == businessID {
			ids[a.CustomerID] = true
		}
	}
	return memPage(ids, after, limit), nil
}

func (m *memStore) ListExpiryCandidates(_ context.Context, businessID string, after storage.AccountKey, limit int) ([]storage.AccountKey, error) {
	now := m.now()
	due := map[storage.AccountKey]bool{}
	for _, t := range m.st.txs {
		if t.Amount > 0 && t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
			due[storage.AccountKey{BusinessID: t.BusinessID, CustomerID: t.CustomerID}] = true
		}
	}
	var out []storage.AccountKey
	for k, acc := range m.st.accounts {
		if businessID != "" && k.BusinessID != businessID {
			continue
		}
		if acc.Balance <= 0 || !due[k] || !accountKeyLess(after, k) {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return accountKeyLess(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertTransaction(_ context.Context, _ pgx.Tx, t *model.Transaction) error {
	if t.SourceID != "" && t.Type != model.TxImport {
		if _, found, _ := m.FindTransactionBySource(context.Background(), nil, t.BusinessID, t.CustomerID, t.Type, t.Source, t.SourceID); found {
			return uniqueViolation()
		}
	}
	m.st.seq++
	t.Seq = m.st.seq
	t.CreatedAt = m.now()
	m.st.txs = append(m.st.txs, *t)
	return nil
}

func (m *memStore) FindTransactionBySource(_ context.Context, _ storage.Querier, businessID, customerID string, typ model.TxType, source, sourceID string) (model.Transaction, bool, error) {
	for _, t := range m.st.txs {
		if t.BusinessID == businessID && t.CustomerID == customerID && t.Type == typ && t.Source == source && t.SourceID == sourceID {
			return t, true, nil
		}
	}
	return model.Transaction{}, false, nil
}

func (m *memStore) ListTransactions(_ context.Context, businessID, customerID string, limit int, beforeSeq int64) ([]model.Transaction, error) {
	var out []model.Transaction
	for i := len(m.st.txs) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.st.txs[i]
		if t.BusinessID != businessID || t.CustomerID != customerID {
			continue
		}
		if beforeSeq > 0 && t.Seq >= beforeSeq {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) LedgerTransactions(_ context.Context, _ storage.Querier, businessID, customerID string) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range m.st.txs {
		if t.BusinessID == businessID && t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, businessID, idemKey, scope string) (storage.IdempotencyRecord, error) {
	k := memKey(businessID, idemKey)
	rec, ok := m.st.idem[k]
	if !ok {
		rec = storage.IdempotencyRecord{BusinessID: businessID, IdempotencyKey: idemKey, Scope: scope}
		m.st.idem[k] = rec
	}
	if rec.Scope != scope {
		return storage.IdempotencyRecord{}, storage.ErrIdempotencyScope
	}
	return rec, nil
}

func (m *memStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, businessID, idemKey string, statusCode int, response []byte) error {
	k := memKey(businessID, idemKey)
	rec := m.st.idem[k]
	rec.StatusCode = statusCode
	rec.ResponsePayload = response
	m.st.idem[k] = rec
	return nil
}

func (m *memStore) InsertProviderEvent(_ context.Context, _ pgx.Tx, evt storage.ProviderEvent) error {
	k := memKey(evt.Provider, evt.ProviderEventID)
	if m.st.provider[k] {
		return storage.ErrDuplicateProviderEvent
	}
	m.st.provider[k] = true
	return nil
}

func (m *memStore) CreateReward(_ context.Context, rw model.Reward) (model.Reward, error) {
	rw.CreatedAt = m.now()
	m.st.rewards[rw.ID] = rw
	return rw, nil
}

func (m *memStore) GetReward(_ context.Context, _ storage.Querier, businessID, rewardID string) (model.Reward, error) {
	rw, ok := m.st.rewards[rewardID]
	if !ok || rw.BusinessID != businessID {
		return model.Reward{}, storage.ErrNotFound
	}
	return rw, nil
}

func (m *memStore) ListRewards(_ context.Context, businessID string, activeOnly bool) ([]model.Reward, error) {
	var out []model.Reward
	for _, rw := range m.st.rewards {
		if rw.BusinessID == businessID && (rw.Active || !activeOnly) {
			out = append(out, rw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointCost != out[j].PointCost {
			return out[i].PointCost < out[j].PointCost
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memStore) DeactivateReward(_ context.Context, businessID, rewardID string) error {
	rw, ok := m.st.rewards[rewardID]
	if !ok || rw.BusinessID != businessID {
		return storage.ErrNotFound
	}
	rw.Active = false
	m.st.rewards[rewardID] = rw
	return nil
}

func (m *memStore) InsertRedemption(_ context.Context, _ pgx.Tx, rd *model.Redemption) error {
	for _, other := range m.st.redemptions {
		if other.BusinessID == rd.BusinessID && other.Code == rd.Code {
			return uniqueViolation()
		}
	}
	rd.CreatedAt = m.now()
	m.st.redemptions[rd.ID] = *rd
	return nil
}

func (m *memStore) GetRedemptionForUpdate(_ context.Context, _ pgx.Tx, businessID, redemptionID string) (model.Redemption, error) {
	rd, ok := m.st.redemptions[redemptionID]
	if !ok || rd.BusinessID != businessID {
		return model.Redemption{}, storage.ErrNotFound
	}
	return rd, nil
}

func (m *memStore) GetRedemptionByCodeForUpdate(_ context.Context, _ pgx.Tx, businessID, code string) (model.Redemption, error) {
	for _, rd := range m.st.redemptions {
		if rd.BusinessID == businessID && rd.Code == code {
			return rd, nil
		}
	}
	return model.Redemption{}, storage.ErrNotFound
}

func (m *memStore) UpdateRedemptionStatus(_ context.Context, _ pgx.Tx, rd model.Redemption) error {
	if _, ok := m.st.redemptions[rd.ID]; !ok {
		return storage.ErrNotFound
	}
	m.st.redemptions[rd.ID] = rd
	return nil
}

func (m *memStore) CountRedemptions(_ context.Context, _ storage.Querier, businessID, customerID, rewardID string) (int, error) {
	n := 0
	for _, rd := range m.st.redemptions {
		if rd.BusinessID == businessID && rd.CustomerID == customerID && rd.RewardID == rewardID && rd.Status != model.RedemptionCancelled {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertCampaign(_ context.Context, c model.Campaign) (model.Campaign, error) {
	k := memKey(c.BusinessID, c.Key)
	if prev, ok := m.st.campaigns[k]; ok {
		c.ID, c.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		c.CreatedAt = m.now()
	}
	m.st.campaigns[k] = c
	return c, nil
}

func (m *memStore) GetCampaignByKey(_ context.Context, businessID, campaignKey string) (model.Campaign, error) {
	c, ok := m.st.campaigns[memKey(businessID, campaignKey)]
	if !ok {
		return model.Campaign{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *memStore) ListCampaigns(_ context.Context, businessID string) ([]model.Campaign, error) {
	var out []model.Campaign
	for _, c := range m.st.campaigns {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) ClaimCampaignAward(_ context.Context, _ pgx.Tx, campaignID, _, customerID string) (bool, error) {
	k := memKey(campaignID, customerID)
	if _, ok := m.st.awards[k]; ok {
		return false, nil
	}
	m.st.awards[k] = ""
	return true, nil
}

func (m *memStore) SetCampaignAwardTransaction(_ context.Context, _ pgx.Tx, campaignID, customerID, transactionID string) error {
	m.st.awards[memKey(campaignID, customerID)] = transactionID
	return nil
}

func (m *memStore) UnlockedAchievements(_ context.Context, _ storage.Querier, businessID, customerID string) (map[string]bool, error) {
	out := map[string]bool{}
	prefix := memKey(businessID, customerID) + "|"
	for k := range m.st.achievements {
		if name, ok := strings.CutPrefix(k, prefix); ok {
			out[name] = true
		}
	}
	return out, nil
}

func (m *memStore) UnlockAchievement(_ context.Context, _ pgx.Tx, businessID, customerID, achievement string, points int64) (bool, error) {
	k := memKey(businessID, customerID, achievement)
	if _, ok := m.st.achievements[k]; ok {
		return false, nil
	}
	m.st.achievements[k] = points
	return true, nil
}

func (m *memStore) GetAppointmentForUpdate(_ context.Context, _ pgx.Tx, businessID, appointmentID string) (model.Appointment, bool, error) {
	a, ok := m.st.appointments[memKey(businessID, appointmentID)]
	return a, ok, nil
}

func (m *memStore) UpsertAppointment(_ context.Context, _ pgx.Tx, a model.Appointment) error {
	a.UpdatedAt = m.now()
	m.st.appointments[memKey(a.BusinessID, a.AppointmentID)] = a
	return nil
}

func (m *memStore) CustomerAppointments(_ context.Context, _ storage.Querier, businessID, customerID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range m.st.appointments {
		if a.BusinessID == businessID && a.CustomerID == customerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out, nil
}

func (m *memStore) UpsertStats(_ context.Context, _ storage.Querier, s model.CustomerStats) error {
	m.st.stats[storage.AccountKey{BusinessID: s.BusinessID, CustomerID: s.CustomerID}] = s
	return nil
}

func (m *memStore) GetStats(_ context.Context, _ storage.Querier, businessID, customerID string) (model.CustomerStats, bool, error) {
	s, ok := m.st.stats[storage.AccountKey{BusinessID: businessID, CustomerID: customerID}]
	if !ok {
		return model.CustomerStats{BusinessID: businessID, CustomerID: customerID}, false, nil
	}
	return s, true, nil
}

func (m *memStore) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	m.st.events = append(m.st.events, evt)
	return nil
}

func (m *memStore) Record(_ context.Context, _ inbox.Execer, eventID, _ string) (bool, error) {
	if m.st.inbox[eventID] {
		return false, nil
	}
	m.st.inbox[eventID] = true
	return true, nil
}

// seed appends a transaction as-is and keeps the account balance in step,
// for ledgers written before the uniqueness rules existed.
func (m *memStore) seed(t model.Transaction) {
	m.st.seq++
	t.Seq = m.st.seq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	m.st.txs = append(m.st.txs, t)
	k := storage.AccountKey{BusinessID: t.BusinessID, CustomerID: t.CustomerID}
	acc, ok := m.st.accounts[k]
	if !ok {
		acc = model.Account{BusinessID: t.BusinessID, CustomerID: t.CustomerID, Tier: model.TierBronze}
	}
	acc.Balance += t.Amount
	m.st.accounts[k] = acc
}

func (m *memStore) eventsOf(eventType string) []outbox.Event {
	var out []outbox.Event
	for _, e := range m.st.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
