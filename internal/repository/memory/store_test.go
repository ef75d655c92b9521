package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/attaboy/tower/internal/domain"
	"github.com/attaboy/tower/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func seedPlayer(t *testing.T, s *Store, id int64) {
	t.Helper()
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		return tx.Players().Create(ctx, domain.NewPlayer(id, "p", time.Now()))
	}))
}

func TestInTx_RollbackLeavesNoTrace(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Balances().Apply(ctx, 1, domain.CurrencyGold, 500); err != nil {
			return err
		}
		pid := int64(1)
		if _, err := tx.Transactions().Insert(ctx, domain.PostEntryParams{
			PlayerID: &pid, Currency: domain.CurrencyGold, Amount: 500, Type: domain.TxAdminAdjust,
		}, 500); err != nil {
			return err
		}
		p, _ := tx.Players().Get(ctx, 1)
		p.State = domain.StateInCombat
		if err := tx.Players().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Outbox().Insert(ctx, domain.NewPlayerRegisteredEvent(p)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		bal, _ := tx.Balances().Get(ctx, 1, domain.CurrencyGold)
		assert.Zero(t, bal)
		hist, _ := tx.Transactions().ListByPlayer(ctx, 1, domain.HistoryFilter{})
		assert.Empty(t, hist)
		p, _ := tx.Players().Get(ctx, 1)
		assert.Equal(t, domain.StateIdle, p.State)
		rows, _ := tx.Outbox().FetchUnpublished(ctx, 10)
		assert.Empty(t, rows)
		return nil
	}))
}

func TestInTx_RollbackAfterAppendDoesNotLeakIntoNextCommit(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)
	pid := int64(1)
	insert := func(tx repository.Tx, amount int64) error {
		_, err := tx.Transactions().Insert(ctx, domain.PostEntryParams{
			PlayerID: &pid, Currency: domain.CurrencyGold, Amount: amount, Type: domain.TxAdminAdjust,
		}, amount)
		return err
	}

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error { return insert(tx, 1) }))
	_ = s.InTx(ctx, func(tx repository.Tx) error {
		_ = insert(tx, 99)
		return errors.New("abort")
	})
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error { return insert(tx, 2) }))

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		hist, err := tx.Transactions().ListByPlayer(ctx, 1, domain.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, int64(2), hist[0].Amount)
		assert.Equal(t, int64(1), hist[1].Amount)
		return nil
	}))
}

func TestBalances_ApplyRejectsOverdraft(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)

	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Balances().Apply(ctx, 1, domain.CurrencyGold, -1)
		return err
	})
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, "INSUFFICIENT_FUNDS"))
}

func TestTransactions_ReferenceIsUnique(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)
	pid := int64(1)
	ref := "raid:abc:1"
	params := domain.PostEntryParams{PlayerID: &pid, Currency: domain.CurrencyGold, Amount: 10, Type: domain.TxRaidReward, Reference: &ref}

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Transactions().Insert(ctx, params, 10)
		return err
	}))
	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.Transactions().Insert(ctx, params, 20)
		return err
	})
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		rec, err := tx.Transactions().FindByReference(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(10), rec.Amount)
		return nil
	}))
}

func TestTransactions_SumSinceUsesAbsoluteAmounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore().WithClock(func() time.Time { return now })
	seedPlayer(t, s, 1)
	pid := int64(1)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		for _, amt := range []int64{-100, -50} {
			if _, err := tx.Transactions().Insert(ctx, domain.PostEntryParams{
				PlayerID: &pid, Currency: domain.CurrencyGold, Amount: amt, Type: domain.TxTransferOut,
			}, 0); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		sum, err := tx.Transactions().SumSince(ctx, 1, domain.TxTransferOut, domain.CurrencyGold, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(150), sum)
		sum, err = tx.Transactions().SumSince(ctx, 1, domain.TxTransferOut, domain.CurrencyGold, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, sum)
		return nil
	}))
}

func TestGuilds_UniquenessAndMembership(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)
	seedPlayer(t, s, 2)
	now := time.Now()

	newGuild := func(name, tag string, leader int64) *domain.Guild {
		return &domain.Guild{
			Name: name, Tag: tag, Level: 1, LeaderID: leader,
			Members: map[int64]*domain.GuildMember{leader: {PlayerID: leader, Rank: domain.RankLeader, JoinedAt: now}},
			Bank:    map[string]*domain.BankItem{},
		}
	}

	var first *domain.Guild
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		first = newGuild("Iron Wolves", "IW", 1)
		return tx.Guilds().Create(ctx, first)
	}))
	assert.Equal(t, int64(1), first.ID)

	tests := []struct {
		name     string
		guild    *domain.Guild
		wantCode string
	}{
		{"name differs only by case", newGuild("iron wolves", "XX", 2), "NAME_OR_TAG_TAKEN"},
		{"tag differs only by case", newGuild("Other", "iw", 2), "NAME_OR_TAG_TAKEN"},
		{"leader already in a guild", newGuild("Other", "OT", 1), "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InTx(ctx, func(tx repository.Tx) error {
				return tx.Guilds().Create(ctx, tt.guild)
			})
			assert.True(t, domain.IsCode(err, tt.wantCode), "got %v", err)
		})
	}

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		taken, err := tx.Guilds().NameOrTagTaken(ctx, " IRON WOLVES ", "zz")
		require.NoError(t, err)
		assert.True(t, taken)
		return nil
	}))
}

func TestGuilds_DeleteClearsAffiliation(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)

	var gid int64
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		g := &domain.Guild{
			Name: "Guild", Tag: "GG", Level: 1, LeaderID: 1,
			Members: map[int64]*domain.GuildMember{1: {PlayerID: 1, Rank: domain.RankLeader}},
			Bank:    map[string]*domain.BankItem{},
		}
		if err := tx.Guilds().Create(ctx, g); err != nil {
			return err
		}
		gid = g.ID
		p, _ := tx.Players().Get(ctx, 1)
		p.GuildID = &gid
		return tx.Players().Update(ctx, p)
	}))

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		return tx.Guilds().Delete(ctx, gid)
	}))

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		g, _ := tx.Guilds().Get(ctx, gid)
		assert.Nil(t, g)
		p, _ := tx.Players().Get(ctx, 1)
		assert.Nil(t, p.GuildID)
		return nil
	}))
}

func TestRaids_ArchiveIsIdempotent(t *testing.T) {
	s := NewStore()
	rec := &domain.RaidRecord{
		ID: uuid.New(), BossID: "titan", Status: domain.RaidCompleted,
		MemberIDs: []int64{1, 2}, EndedAt: time.Now(),
		Loot: []domain.LootAward{{ItemID: "titan_heart", PlayerID: 2}},
	}

	for i, want := range []bool{true, false} {
		var inserted bool
		require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
			var err error
			inserted, err = tx.Raids().Archive(ctx, rec)
			return err
		}))
		assert.Equal(t, want, inserted, "attempt %d", i)
	}

	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		list, err := tx.Raids().ListByPlayer(ctx, 2, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "titan_heart", list[0].Loot[0].ItemID)
		none, _ := tx.Raids().ListByPlayer(ctx, 3, 10)
		assert.Empty(t, none)
		return nil
	}))
}

func TestOutbox_MarkPublished(t *testing.T) {
	s := NewStore()
	p := domain.NewPlayer(1, "p", time.Now())
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		return repository.InsertEvents(ctx, tx, domain.NewPlayerRegisteredEvent(p), domain.NewPlayerLeveledUpEvent(p))
	}))

	feed := repository.OutboxFeed{Store: s}
	rows, err := feed.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, string(domain.EventPlayerRegistered), rows[0].EventType)

	require.NoError(t, feed.MarkPublished(ctx, []int64{rows[0].ID}))
	rows, err = feed.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(domain.EventPlayerLeveledUp), rows[0].EventType)
}

func TestPlayers_ResetActiveStates(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)
	seedPlayer(t, s, 2)
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		p, _ := tx.Players().Get(ctx, 2)
		p.State = domain.StateInRaid
		return tx.Players().Update(ctx, p)
	}))

	var n int64
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.Players().ResetActiveStates(ctx)
		return err
	}))
	assert.Equal(t, int64(1), n)
}

func TestReturnedPlayersAreCopies(t *testing.T) {
	s := NewStore()
	seedPlayer(t, s, 1)
	require.NoError(t, s.Read(ctx, func(tx repository.Tx) error {
		p, _ := tx.Players().Get(ctx, 1)
		p.Inventory.Add("health_potion", 3)
		again, _ := tx.Players().Get(ctx, 1)
		assert.Empty(t, again.Inventory)
		return nil
	}))
}
