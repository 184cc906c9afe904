package loyalty

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/model"
	"github.com/md-rashed-zaman/detailcrm/services/loyalty-service/internal/rules"
)

// NormalizeAccount plans and, unless dryRun, applies the corrections that
// bring an account back in line with its ledger.
func (s *Service) NormalizeAccount(ctx context.Context, businessID, customerID string, dryRun bool) (rules.NormalizationReport, error) {
	if err := validCustomer(businessID, customerID); err != nil {
		return rules.NormalizationReport{}, err
	}
	var rep rules.NormalizationReport
	err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		acc, err := s.repo.LockAccount(ctx, tx, businessID, customerID)
		if err != nil {
			return err
		}
		txs, err := s.repo.LedgerTransactions(ctx, tx, businessID, customerID)
		if err != nil {
			return err
		}
		plan := rules.PlanNormalization(acc, txs)
		rep = plan.Report
		if dryRun || !rep.Changed() {
			return nil
		}
		for _, c := range plan.Corrections {
			c.ID = uuid.NewString()
			if err := s.repo.InsertTransaction(ctx, tx, &c); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateAccount(ctx, tx, plan.Account); err != nil {
			return err
		}
		rep.Applied = true
		s.logger.Info("account normalized",
			"business_id", businessID,
			"customer_id", customerID,
			"corrections", len(plan.Corrections),
			"stored_balance", rep.StoredBalance,
			"final_balance", rep.FinalBalance,
		)
		return nil
	})
	return rep, err
}

type NormalizeSummary struct {
	Accounts int                         `json:"accounts"`
	Changed  int                         `json:"changed"`
	DryRun   bool                        `json:"dry_run"`
	Reports  []rules.NormalizationReport `json:"reports"`
}

// NormalizeAll normalizes every account of the tenant. Only accounts that
// needed changes are included in Reports.
func (s *Service) NormalizeAll(ctx context.Context, businessID string, dryRun bool) (NormalizeSummary, error) {
	if businessID == "" {
		return NormalizeSummary{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	sum := NormalizeSummary{DryRun: dryRun}
	after := ""
	for {
		ids, err := s.repo.ListAccountCustomers(ctx, businessID, after, customerPageSize)
		if err != nil {
			return sum, err
		}
		for _, id := range ids {
			rep, err := s.NormalizeAccount(ctx, businessID, id, dryRun)
			if err != nil {
				return sum, fmt.Errorf("normalize %s: %w", id, err)
			}
			sum.Accounts++
			if rep.Changed() {
				sum.Changed++
				sum.Reports = append(sum.Reports, rep)
			}
		}
		if len(ids) < customerPageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	return sum, nil
}

type ImportRow struct {
	Line       int
	CustomerID string
	Points     int64
	LegacyID   string
}

type ImportSummary struct {
	Rows     int      `json:"rows"`
	Imported int      `json:"imported"`
	Points   int64    `json:"points"`
	Skipped  []string `json:"skipped,omitempty"`
}

// ParseImportCSV reads customer_id,points,legacy_id rows. A header row is allowed.
func ParseImportCSV(r io.Reader) ([]ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []ImportRow
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "customer_id") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected customer_id,points[,legacy_id]", line)
		}
		pts, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid points %q", line, rec[1])
		}
		row := ImportRow{Line: line, CustomerID: strings.TrimSpace(rec[0]), Points: pts}
		if len(rec) > 2 {
			row.LegacyID = strings.TrimSpace(rec[2])
		}
		if row.CustomerID == "" {
			return nil, fmt.Errorf("line %d: customer_id is required", line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ImportBalances writes legacy balances as import credits. Import rows are not
// deduplicated; NormalizeAll reverses legacy ids imported twice.
func (s *Service) ImportBalances(ctx context.Context, businessID string, rows []ImportRow, actor string) (ImportSummary, error) {
	if businessID == "" {
		return ImportSummary{}, fmt.Errorf("%w: business_id is required", ErrInvalidArgument)
	}
	var sum ImportSummary
	for _, row := range rows {
		sum.Rows++
		if row.Points <= 0 {
			sum.Skipped = append(sum.Skipped, fmt.Sprintf("line %d: non-positive points", row.Line))
			continue
		}
		err := s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			settings, err := s.repo.GetSettings(ctx, tx, businessID)
			if err != nil {
				return err
			}
			acc, err := s.repo.LockAccount(ctx, tx, businessID, row.CustomerID)
			if err != nil {
				return err
			}
			_, err = s.post(ctx, tx, settings, &acc, entry{
				Type:        model.TxImport,
				Amount:      row.Points,
				Source:      model.SourceImport,
				SourceID:    row.LegacyID,
				Description: "imported legacy balance",
				Actor:       actor,
			})
			return err
		})
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", row.Line, err)
		}
		sum.Imported++
		sum.Points += row.Points
	}
	return sum, nil
}
