package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/db"
)

// RiskEventsRepo — append-only журнал переходов риск-менеджера.
type RiskEventsRepo struct {
	db db.TxManager
}

func NewRiskEventsRepo(txm db.TxManager) *RiskEventsRepo {
	return &RiskEventsRepo{db: txm}
}

func (r *RiskEventsRepo) Append(ctx context.Context, ev models.RiskEvent) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.RiskEvents.Append: %w", err)
		}
	}()

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO risk_events (event_type, description, portfolio_value, loss_pct, action_taken, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(ev.Type), ev.Description, ev.PortfolioValue, ev.LossPct, ev.Action, ev.Time)
		return err
	})
}

// Recent отдаёт последние n событий, свежие первыми.
func (r *RiskEventsRepo) Recent(ctx context.Context, n int) (events []models.RiskEvent, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.RiskEvents.Recent: %w", err)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, `
		SELECT event_type, description, portfolio_value, loss_pct, action_taken, created_at
		FROM risk_events ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ev models.RiskEvent
		var typ string
		if err = rows.Scan(&typ, &ev.Description, &ev.PortfolioValue, &ev.LossPct, &ev.Action, &ev.Time); err != nil {
			return nil, err
		}
		ev.Type = models.RiskEventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}
