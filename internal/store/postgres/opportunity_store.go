package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/triarb/internal/domain"
)

var _ domain.OpportunityStore = (*OpportunityStore)(nil)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, session_id, exchange, path, start_amount, end_amount,
	profit, fee_rate, legs, detected_at`

// Insert stores a new opportunity. Re-inserting an id is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, session_id, exchange, path, start_asset,
			start_amount, end_amount, profit, fee_rate,
			legs, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
		ON CONFLICT (id) DO NOTHING`

	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: encode legs %s: %w", opp.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		opp.ID, opp.SessionID, opp.Exchange, opp.Path, string(opp.Triangle.Start),
		opp.StartAmount, opp.EndAmount, opp.Profit, opp.FeeRate,
		legs, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	return collectOpportunities(rows, "list recent opportunities")
}

// ListBefore returns every opportunity detected before the cutoff, oldest
// first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities
		WHERE detected_at < $1 ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return collectOpportunities(rows, "list opportunities before")
}

// DeleteBefore removes opportunities detected before the cutoff and returns
// how many rows went.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func collectOpportunities(rows pgx.Rows, op string) ([]domain.Opportunity, error) {
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		var legs []byte

		if err := rows.Scan(
			&opp.ID, &opp.SessionID, &opp.Exchange, &opp.Path,
			&opp.StartAmount, &opp.EndAmount, &opp.Profit, &opp.FeeRate,
			&legs, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		if err := json.Unmarshal(legs, &opp.Legs); err != nil {
			return nil, fmt.Errorf("postgres: decode legs %s: %w", opp.ID, err)
		}
		restoreTriangle(&opp)
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return opps, nil
}

// restoreTriangle rebuilds the fields that are not stored verbatim from the
// path and leg symbols. Rows that do not parse keep a zero triangle.
func restoreTriangle(opp *domain.Opportunity) {
	for i := range opp.Legs {
		if p, err := domain.ParsePair(opp.Legs[i].Symbol); err == nil {
			opp.Legs[i].Pair = p
		}
	}
	assets := strings.Split(opp.Path, "->")
	if len(assets) != 4 {
		return
	}
	opp.Triangle = domain.Triangle{
		Start: domain.Asset(assets[0]),
		Mid:   domain.Asset(assets[1]),
		End:   domain.Asset(assets[2]),
		A:     opp.Legs[0].Pair,
		B:     opp.Legs[1].Pair,
		C:     opp.Legs[2].Pair,
	}
}
