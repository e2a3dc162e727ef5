package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"market_feed/internal/models"
	"market_feed/pkg/db"
)

// Source: откуда берётся список отслеживаемых инструментов.
type Source interface {
	List(ctx context.Context) ([]string, error)
}

// Static: список из конфига.
type Static []string

func (s Static) List(context.Context) ([]string, error) {
	return models.NormSymbols(s), nil
}

const (
	createTable = `CREATE TABLE IF NOT EXISTS tracked_instruments (
	symbol     TEXT PRIMARY KEY,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	seedSymbol    = `INSERT INTO tracked_instruments (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`
	selectEnabled = `SELECT symbol FROM tracked_instruments WHERE enabled ORDER BY symbol`
)

// Postgres читает таблицу tracked_instruments. Саму таблицу правит внешний CRUD.
type Postgres struct {
	tx db.TxManager
}

func NewPostgres(tx db.TxManager) *Postgres {
	return &Postgres{tx: tx}
}

// Migrate создаёт таблицу, если её нет, и досеивает defaults (существующие строки не трогает).
func (p *Postgres) Migrate(ctx context.Context, defaults []string) error {
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx, createTable); err != nil {
			return errors.Wrap(err, "create tracked_instruments")
		}
		for _, sym := range models.NormSymbols(defaults) {
			if _, err := tx.Exec(ctxTx, seedSymbol, sym); err != nil {
				return errors.Wrapf(err, "seed %s", sym)
			}
		}
		return nil
	})
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.tx.Conn().Query(ctx, selectEnabled)
	if err != nil {
		return nil, errors.Wrap(err, "select tracked_instruments")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, errors.Wrap(err, "scan tracked_instruments")
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read tracked_instruments")
	}
	return models.NormSymbols(out), nil
}
