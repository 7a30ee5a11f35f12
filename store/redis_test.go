package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreLoad(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "gotsrl:qtable", time.Second)
	ctx := context.Background()

	mock.ExpectHGetAll("gotsrl:qtable").SetVal(map[string]string{
		"2_1_1_0_1_2|0":  "0.25",
		"2_1_1_0_1_2|14": "-1.5",
	})
	out, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Key]float64{
		{State: "2_1_1_0_1_2", Action: 0}:  0.25,
		{State: "2_1_1_0_1_2", Action: 14}: -1.5,
	}, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreLoadMissingAndCorrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "q", 0)
	ctx := context.Background()

	mock.ExpectHGetAll("q").SetVal(map[string]string{})
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectHGetAll("q").SetVal(map[string]string{"0_0_0_0_0_0|1": "lots"})
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)

	mock.ExpectHGetAll("q").SetErr(errors.New("i/o timeout"))
	_, err = s.Load(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSaveSwapsStagingHash(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "q", time.Second)
	ctx := context.Background()

	values := map[Key]float64{
		{State: "1_0_0_0_0_0", Action: 2}: 0.5,
		{State: "0_0_0_0_0_0", Action: 9}: -2,
	}
	mock.ExpectDel("q:staging").SetVal(0)
	mock.ExpectHSet("q:staging", "0_0_0_0_0_0|9", "-2", "1_0_0_0_0_0|2", "0.5").SetVal(2)
	mock.ExpectRename("q:staging", "q").SetVal("OK")

	require.NoError(t, s.Save(ctx, values))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSaveEmptyDeletes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "q", 0)

	mock.ExpectDel("q").SetVal(1)
	require.NoError(t, s.Save(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreSaveFailureLeavesLiveKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "q", 0)

	mock.ExpectDel("q:staging").SetVal(0)
	mock.ExpectHSet("q:staging", "0_0_0_0_0_0|1", "3").SetErr(errors.New("OOM"))

	err := s.Save(context.Background(), map[Key]float64{{State: "0_0_0_0_0_0", Action: 1}: 3})
	assert.Error(t, err)
	// no RENAME was issued
	assert.NoError(t, mock.ExpectationsWereMet())
}
