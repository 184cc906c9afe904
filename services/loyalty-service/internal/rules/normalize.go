package rules

import (
	"fmt"

	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
)

// NormalizationReport describes what PlanNormalization found for one account.
type NormalizationReport struct {
	CustomerID        string     `json:"customer_id"`
	StoredBalance     int64      `json:"stored_balance"`
	LedgerBalance     int64      `json:"ledger_balance"`
	FinalBalance      int64      `json:"final_balance"`
	DuplicateCredits  int        `json:"duplicate_credits"`
	ReversedPoints    int64      `json:"reversed_points"`
	NegativeFloored   int64      `json:"negative_floored"`
	BalanceDrift      bool       `json:"balance_drift"`
	CountersChanged   bool       `json:"counters_changed"`
	StoredTier        model.Tier `json:"stored_tier"`
	Tier              model.Tier `json:"tier"`
	CorrectionEntries int        `json:"correction_entries"`
	Applied           bool       `json:"applied"`
}

// Changed reports whether applying the plan would modify anything.
func (r NormalizationReport) Changed() bool {
	return r.CorrectionEntries > 0 || r.BalanceDrift || r.CountersChanged || r.StoredTier != r.Tier
}

// NormalizationPlan is the set of writes that brings an account back in line with its ledger.
type NormalizationPlan struct {
	Report      NormalizationReport
	Corrections []model.Transaction
	// Account holds the recomputed balance, counters and tier.
	Account model.Account
}

func creditKey(t model.Transaction) string {
	return fmt.Sprintf("%s|%s|%s", t.Type, t.Source, t.SourceID)
}

// PlanNormalization inspects an account and its transactions (oldest first)
// and returns the corrections needed so that:
//   - each keyed credit counts once; later duplicates are reversed,
//   - the ledger never sums below zero,
//   - the stored balance equals the ledger sum,
//   - lifetime counters and tier match the ledger.
//
// Earlier correction entries are honoured so the plan is stable when rerun.
func PlanNormalization(acc model.Account, txs []model.Transaction) NormalizationPlan {
	rep := NormalizationReport{
		CustomerID:    acc.CustomerID,
		StoredBalance: acc.Balance,
		StoredTier:    acc.Tier,
	}

	reversed := make(map[string]bool)
	for _, t := range txs {
		if t.Type == model.TxCorrection && t.Source == model.SourceNormalization && t.SourceID != "" {
			reversed[t.SourceID] = true
		}
	}

	var sum int64
	var counters Counters
	seen := make(map[string]bool)
	var dups []model.Transaction
	for _, t := range txs {
		sum += t.Amount
		counters.Accumulate(t.Type, t.Amount)
		if t.Amount <= 0 || t.SourceID == "" || t.Type == model.TxCorrection {
			continue
		}
		k := creditKey(t)
		if !seen[k] {
			seen[k] = true
			continue
		}
		if !reversed[t.ID] {
			dups = append(dups, t)
		}
	}
	rep.LedgerBalance = sum
	rep.DuplicateCredits = len(dups)

	var corrections []model.Transaction
	running := sum
	for _, d := range dups {
		amt := d.Amount
		if running < amt {
			amt = running
		}
		if amt <= 0 {
			continue
		}
		running -= amt
		rep.ReversedPoints += amt
		counters.Accumulate(model.TxCorrection, -amt)
		corrections = append(corrections, model.Transaction{
			BusinessID:   acc.BusinessID,
			CustomerID:   acc.CustomerID,
			Type:         model.TxCorrection,
			Amount:       -amt,
			BalanceAfter: running,
			Source:       model.SourceNormalization,
			SourceID:     d.ID,
			Description:  fmt.Sprintf("reverse duplicate %s credit %s/%s", d.Type, d.Source, d.SourceID),
		})
	}
	if running < 0 {
		rep.NegativeFloored = -running
		corrections = append(corrections, model.Transaction{
			BusinessID:   acc.BusinessID,
			CustomerID:   acc.CustomerID,
			Type:         model.TxCorrection,
			Amount:       -running,
			BalanceAfter: 0,
			Source:       model.SourceNormalization,
			Description:  "floor negative ledger balance at zero",
		})
		running = 0
	}

	rep.FinalBalance = running
	rep.BalanceDrift = acc.Balance != sum
	rep.CorrectionEntries = len(corrections)

	out := acc
	out.Balance = running
	counters.Apply(&out)
	rep.Tier = out.Tier
	rep.CountersChanged = CountersOf(acc) != counters

	return NormalizationPlan{Report: rep, Corrections: corrections, Account: out}
}
