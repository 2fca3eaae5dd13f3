package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ivanoskov/copperx_bot/internal/model"
)

func TestGetMainKeyboard(t *testing.T) {
	kb := getMainKeyboard()

	require.Len(t, kb.Keyboard, 4)
	assert.True(t, kb.ResizeKeyboard)

	var labels []string
	for _, row := range kb.Keyboard {
		for _, b := range row {
			labels = append(labels, b.Text)
		}
	}
	assert.ElementsMatch(t, []string{btnSend, btnWithdraw, btnOfframp, btnBatch, btnBalance, btnHistory, btnWallets}, labels)
}

func TestGetStepKeyboard_SkipsEmptyRows(t *testing.T) {
	kb := getStepKeyboard([][]string{{"USDC", "USDT"}, {}, {"Cancel"}})

	require.Len(t, kb.Keyboard, 2)
	assert.True(t, kb.OneTimeKeyboard)
	assert.Equal(t, "USDT", kb.Keyboard[0][1].Text)
	assert.Equal(t, "Cancel", kb.Keyboard[1][0].Text)
}

func TestGetHistoryKeyboard(t *testing.T) {
	assert.Nil(t, getHistoryKeyboard(3, false))

	kb := getHistoryKeyboard(3, true)
	require.NotNil(t, kb)
	btn := kb.InlineKeyboard[0][0]
	require.NotNil(t, btn.CallbackData)
	assert.Equal(t, "history_4", *btn.CallbackData)
}

func TestGetWalletsKeyboard_OnlyNonDefault(t *testing.T) {
	assert.Nil(t, getWalletsKeyboard([]model.Wallet{{ID: testWalletID, IsDefault: true}}))

	kb := getWalletsKeyboard([]model.Wallet{
		{ID: testWalletID, Network: "polygon", IsDefault: true},
		{ID: otherWallet, Network: "base"},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	btn := kb.InlineKeyboard[0][0]
	assert.Equal(t, "⭐ Make default: base 9b2f4c1e", btn.Text)
	require.NotNil(t, btn.CallbackData)
	assert.Equal(t, "default_"+otherWallet, *btn.CallbackData)
	assert.LessOrEqual(t, len(*btn.CallbackData), 64)
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := newRateLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(1))
	}
	assert.False(t, rl.Allow(1))

	// у другого пользователя свой лимит
	assert.True(t, rl.Allow(2))
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	rl := newRateLimiter(0)
	assert.Equal(t, 30, rl.burst)
	assert.Equal(t, rate.Every(2*time.Second), rl.limit)
}

func TestRateLimiter_PruneKeepsBusyUsers(t *testing.T) {
	rl := newRateLimiter(5)

	rl.Allow(1)
	rl.limiters[2] = rate.NewLimiter(rl.limit, rl.burst)

	rl.prune()

	_, busy := rl.limiters[1]
	_, idle := rl.limiters[2]
	assert.True(t, busy)
	assert.False(t, idle)
}
