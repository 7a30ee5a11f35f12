package rl

import (
	"context"
	"errors"

	"github.com/evdnx/gotsrl/logger"
	"github.com/evdnx/gotsrl/metrics"
	"github.com/evdnx/gotsrl/store"
)

// LoadTable reads the table from st. It never fails: a cold start or an
// unreadable store both yield an empty table.
func LoadTable(ctx context.Context, st store.Store, log logger.Logger) *QTable {
	if log == nil {
		log = logger.NewNop()
	}
	values, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("qtable_cold_start")
		return emptyTable()
	case err != nil:
		metrics.StoreErrors.WithLabelValues("load").Inc()
		log.Warn("qtable_load_failed", logger.Err(err))
		return emptyTable()
	}
	t, err := FromSnapshot(values)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load").Inc()
		log.Warn("qtable_load_failed", logger.Err(err))
		return emptyTable()
	}
	metrics.QTableStates.Set(float64(t.Len()))
	log.Info("qtable_loaded", logger.Int("states", t.Len()))
	return t
}

func emptyTable() *QTable {
	metrics.QTableStates.Set(0)
	return NewQTable()
}

// SaveTable writes a snapshot of t to st.
func SaveTable(ctx context.Context, st store.Store, t *QTable) error {
	if err := st.Save(ctx, t.Snapshot()); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		return err
	}
	return nil
}
