package pg

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/db"
)

// AuditRepo — журнал решений цикла. Каждая оценённая пара пишется отдельной строкой,
// исполненные прыжки идут с chosen=true и потом получают исход через MarkOutcome.
type AuditRepo struct {
	db db.TxManager
}

func NewAuditRepo(txm db.TxManager) *AuditRepo {
	return &AuditRepo{db: txm}
}

func (r *AuditRepo) Append(ctx context.Context, rec models.AuditRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Audit.Append: %w", err)
		}
	}()

	blob, err := sonic.Marshal(rec.Decision)
	if err != nil {
		return err
	}

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO trade_audit (pair, chosen, decision, reasoning, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.Decision.Pair, rec.Decision.Chosen, blob, rec.Reasoning, rec.Decision.Time)
		return err
	})
}

// RecentOutcomes отдаёт PnL последних n исполненных прыжков, старые первыми,
// чтобы адаптер видел хронологию.
func (r *AuditRepo) RecentOutcomes(ctx context.Context, n int) (outcomes []float64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Audit.RecentOutcomes: %w", err)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, `
		SELECT decision FROM trade_audit
		WHERE chosen = true AND NOT (decision->>'failed')::bool
		ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		if err = rows.Scan(&blob); err != nil {
			return nil, err
		}
		var d models.TradeDecision
		if err = sonic.Unmarshal(blob, &d); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, d.PnLPct)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// разворачиваем в хронологический порядок
	for i, j := 0, len(outcomes)-1; i < j; i, j = i+1, j-1 {
		outcomes[i], outcomes[j] = outcomes[j], outcomes[i]
	}
	return outcomes, nil
}

// RecentDecisions отдаёт последние n записей для /report, свежие первыми.
func (r *AuditRepo) RecentDecisions(ctx context.Context, n int) (records []models.AuditRecord, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Audit.RecentDecisions: %w", err)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, `
		SELECT decision, reasoning FROM trade_audit
		ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		var rec models.AuditRecord
		if err = rows.Scan(&blob, &rec.Reasoning); err != nil {
			return nil, err
		}
		if err = sonic.Unmarshal(blob, &rec.Decision); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
