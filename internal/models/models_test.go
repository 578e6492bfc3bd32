package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundCountsFollowSets(t *testing.T) {
	r := &Round{ID: "r1", Roster: []string{"a", "b"}}

	assert.True(t, r.AddConnected("a"))
	assert.False(t, r.AddConnected("a"))
	assert.True(t, r.AddConnected("b"))
	assert.Equal(t, 2, r.ConnectedCount)

	assert.True(t, r.RemoveConnected("a"))
	assert.False(t, r.RemoveConnected("a"))
	assert.Equal(t, 1, r.ConnectedCount)
	assert.Equal(t, []string{"b"}, r.ConnectedUsers)

	assert.True(t, r.AddReady("b"))
	assert.True(t, r.RemoveReady("b"))
	assert.Equal(t, 0, r.ReadyCount)
}

func TestRoundStatusOf(t *testing.T) {
	r := &Round{ID: "r1", Roster: []string{"a", "b", "c", "d"}}
	r.AddConnected("a")
	r.MarkTerminal("b", StatusLeft)
	r.MarkTerminal("c", StatusLost)

	assert.Equal(t, StatusActive, r.StatusOf("a"))
	assert.Equal(t, StatusLeft, r.StatusOf("b"))
	assert.Equal(t, StatusLost, r.StatusOf("c"))
	assert.Equal(t, StatusUnjoined, r.StatusOf("d"))
	assert.True(t, StatusLost.Terminal())
	assert.False(t, StatusActive.Terminal())
}

func TestRoundCloneIsDeep(t *testing.T) {
	r := &Round{ID: "r1", Roster: []string{"a"}}
	r.AddConnected("a")

	c := r.Clone()
	c.RemoveConnected("a")
	c.Roster[0] = "z"

	assert.Equal(t, []string{"a"}, r.ConnectedUsers)
	assert.Equal(t, "a", r.Roster[0])
}

func TestRoundStarted(t *testing.T) {
	now := time.Now()
	r := &Round{StartsAt: now.Add(time.Minute)}
	assert.False(t, r.Started(now))
	assert.True(t, r.Started(now.Add(time.Minute)))
}

func TestUserDebitEyesFloorsAtZero(t *testing.T) {
	u := &User{Eyes: 10}
	assert.Equal(t, int64(10), u.DebitEyes(15))
	assert.Equal(t, int64(0), u.Eyes)
	assert.Equal(t, int64(0), u.DebitEyes(-3))
}

func TestUserApplyScore(t *testing.T) {
	u := &User{Eyes: 50}
	u.ApplyScore(12, 90)

	assert.Equal(t, int64(42), u.Eyes)
	assert.Equal(t, int64(90), u.MonthlySecondsPlayed)
	assert.Equal(t, int64(90), u.YearlySecondsPlayed)

	u.ApplyScore(25, 0)
	assert.Equal(t, int64(42), u.Eyes)
}

func TestUserAddPushToken(t *testing.T) {
	u := &User{}
	assert.True(t, u.AddPushToken("ExponentPushToken[x]"))
	assert.False(t, u.AddPushToken("ExponentPushToken[x]"))
	assert.False(t, u.AddPushToken(""))
	assert.Len(t, u.PushTokens, 1)
}

func TestWalletCreditOncePerReference(t *testing.T) {
	w := NewWallet("u1")

	assert.True(t, w.Credit(500, "ref-1", "funding"))
	assert.False(t, w.Credit(500, "ref-1", "funding"))
	assert.True(t, w.Credit(100, "", "manual"))
	assert.True(t, w.Credit(100, "", "manual"))

	assert.Equal(t, int64(700), w.Balance)
	assert.Len(t, w.Transactions, 3)
	assert.True(t, w.HasCompletedReference("ref-1"))
	assert.Equal(t, TransactionCredit, w.Transactions[0].Type)
}

func TestUserCreditEyePurchaseOnce(t *testing.T) {
	u := &User{Eyes: 2}
	assert.True(t, u.CreditEyePurchase("ref-1", 30))
	assert.False(t, u.CreditEyePurchase("ref-1", 30))
	assert.False(t, u.CreditEyePurchase("", 30))
	assert.False(t, u.CreditEyePurchase("ref-2", 0))
	assert.Equal(t, int64(32), u.Eyes)
}

func TestWalletWithdrawReservesAvailable(t *testing.T) {
	w := NewWallet("u1")
	w.Credit(1000, "fund-1", "funding")

	assert.Nil(t, w.Withdraw(0, "wd-0", "withdrawal"))
	assert.Nil(t, w.Withdraw(1001, "wd-0", "withdrawal"))

	tx := w.Withdraw(600, "wd-1", "withdrawal")
	require.NotNil(t, tx)
	assert.Equal(t, TransactionDebit, tx.Type)
	assert.Equal(t, TransactionPending, tx.Status)
	assert.Equal(t, int64(1000), w.Balance)
	assert.Equal(t, int64(400), w.Available())

	assert.Nil(t, w.Withdraw(500, "wd-2", "withdrawal"), "second withdrawal exceeds what is left")

	w.Transactions[1].TransferCode = "TRF_1"
	got, ok := w.Withdrawal("TRF_1")
	require.True(t, ok)
	assert.Equal(t, "wd-1", got.Reference)
	_, ok = w.Withdrawal("fund-1")
	assert.False(t, ok)
}

func TestLeaderboardPeriod(t *testing.T) {
	u := &User{Eyes: 3, MonthlySecondsPlayed: 10, YearlySecondsPlayed: 20}
	assert.True(t, LeaderboardMonthly.Valid())
	assert.False(t, LeaderboardPeriod("weekly").Valid())
	assert.Equal(t, 10.0, LeaderboardMonthly.Value(u))
	assert.Equal(t, 20.0, LeaderboardYearly.Value(u))
	assert.Equal(t, 3.0, LeaderboardEyes.Value(u))
}
