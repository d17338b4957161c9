package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The economy store works on the package-level DB handle, so these tests
// swap in an in-memory database for their duration.
func useTestDB(t *testing.T) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, createTables(context.Background(), db))

	prev := DB
	DB = db
	t.Cleanup(func() {
		DB = prev
		_ = db.Close()
	})
}

func TestGetBalanceUnknownUser(t *testing.T) {
	useTestDB(t)

	balance, err := GetBalance(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestAdjustBalance(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()
	userID := snowflake.ID(2)

	require.NoError(t, AdjustBalance(ctx, userID, 50))
	require.NoError(t, AdjustBalance(ctx, userID, 25))

	balance, err := GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 75, balance)
}

func TestClaimDaily(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()
	userID := snowflake.ID(3)

	balance, wait, err := ClaimDaily(ctx, userID, 100)
	require.NoError(t, err)
	assert.Zero(t, wait)
	assert.Equal(t, 100, balance)

	// Immediate second claim is on cooldown and leaves the balance alone.
	balance, wait, err = ClaimDaily(ctx, userID, 100)
	require.NoError(t, err)
	assert.Greater(t, wait.Hours(), 23.0)
	assert.Equal(t, 100, balance)
}

func TestTransfer(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()
	alice := snowflake.ID(10)
	bob := snowflake.ID(11)

	require.NoError(t, AdjustBalance(ctx, alice, 100))

	remaining, err := Transfer(ctx, alice, bob, 40)
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)

	bobBalance, err := GetBalance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 40, bobBalance)
}

func TestTransferInsufficientFunds(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()
	alice := snowflake.ID(20)
	bob := snowflake.ID(21)

	require.NoError(t, AdjustBalance(ctx, alice, 30))

	_, err := Transfer(ctx, alice, bob, 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Neither side changed.
	aliceBalance, err := GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 30, aliceBalance)
	bobBalance, err := GetBalance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, bobBalance)
}

func TestTransferRejectsBadAmounts(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()

	_, err := Transfer(ctx, snowflake.ID(30), snowflake.ID(31), 0)
	assert.Error(t, err)
	_, err = Transfer(ctx, snowflake.ID(30), snowflake.ID(31), -5)
	assert.Error(t, err)
}

func TestTopBalances(t *testing.T) {
	useTestDB(t)
	ctx := context.Background()

	require.NoError(t, AdjustBalance(ctx, snowflake.ID(40), 10))
	require.NoError(t, AdjustBalance(ctx, snowflake.ID(41), 30))
	require.NoError(t, AdjustBalance(ctx, snowflake.ID(42), 20))

	top, err := TopBalances(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, snowflake.ID(41), top[0].UserID)
	assert.Equal(t, snowflake.ID(42), top[1].UserID)
	assert.Equal(t, snowflake.ID(40), top[2].UserID)
}
