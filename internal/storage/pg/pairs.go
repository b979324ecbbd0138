package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scout_bot/internal/models"
	"scout_bot/pkg/db"
)

// PairsRepo хранит пороговые ratio по парам между рестартами:
// bootstrap делается один раз, дальше пороги живут в базе.
type PairsRepo struct {
	db db.TxManager
}

func NewPairsRepo(txm db.TxManager) *PairsRepo {
	return &PairsRepo{db: txm}
}

func (r *PairsRepo) Save(ctx context.Context, pair models.Pair) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Pairs.Save: %w", err)
		}
	}()

	return r.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO pairs (id, from_coin, to_coin, ratio, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET ratio = $4, updated_at = now()`,
			pair.ID, pair.FromCoin, pair.ToCoin, pair.Ratio)
		return err
	})
}

func (r *PairsRepo) LoadAll(ctx context.Context) (pairs []models.Pair, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Pairs.LoadAll: %w", err)
		}
	}()

	rows, err := r.db.Conn().Query(ctx, `SELECT id, from_coin, to_coin, ratio FROM pairs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Pair
		if err = rows.Scan(&p.ID, &p.FromCoin, &p.ToCoin, &p.Ratio); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
