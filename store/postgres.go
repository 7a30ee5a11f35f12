package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS q_values (
	table_name TEXT             NOT NULL,
	state_key  TEXT             NOT NULL,
	action     INTEGER          NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (table_name, state_key, action)
)`

type qRow struct {
	StateKey string  `db:"state_key"`
	Action   int     `db:"action"`
	Value    float64 `db:"value"`
}

// PostgresStore keeps one named table as rows of q_values. Saves replace
// every row of the table inside a single transaction.
type PostgresStore struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
}

// NewPostgresStore uses db for the table called name.
func NewPostgresStore(db *sqlx.DB, name string, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, table: name, timeout: timeout}
}

// OpenPostgres connects with the lib/pq driver.
func OpenPostgres(dsn, name string, timeout time.Duration) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(db, name, timeout), nil
}

func (p *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// EnsureSchema creates q_values if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create q_values: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (map[Key]float64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var rows []qRow
	query := `SELECT state_key, action, value FROM q_values WHERE table_name = $1`
	if err := p.db.SelectContext(ctx, &rows, query, p.table); err != nil {
		return nil, fmt.Errorf("select q_values: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	out := make(map[Key]float64, len(rows))
	for _, r := range rows {
		if r.StateKey == "" || r.Action < 0 {
			return nil, fmt.Errorf("%w: row %q/%d", ErrCorrupt, r.StateKey, r.Action)
		}
		out[Key{State: r.StateKey, Action: r.Action}] = r.Value
	}
	return out, nil
}

func (p *PostgresStore) Save(ctx context.Context, values map[Key]float64) (err error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	keys := make([]Key, 0, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value for %s is not finite", k)
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].State != keys[j].State {
			return keys[i].State < keys[j].State
		}
		return keys[i].Action < keys[j].Action
	})

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM q_values WHERE table_name = $1`, p.table); err != nil {
		return fmt.Errorf("delete q_values: %w", err)
	}
	insert := `INSERT INTO q_values (table_name, state_key, action, value) VALUES ($1, $2, $3, $4)`
	for _, k := range keys {
		if _, err = tx.ExecContext(ctx, insert, p.table, k.State, k.Action, values[k]); err != nil {
			return fmt.Errorf("insert %s: %w", k, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }
