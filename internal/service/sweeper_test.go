package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
	"github.com/nexusoptimizer/nexus/internal/repository/memory"
)

func TestSweeperPurgesFinishedTickets(t *testing.T) {
	repos := memory.New()
	ctx := context.Background()
	now := time.Now()

	newTicket := func(id string, expiresAt time.Time) *model.ResetTicket {
		return &model.ResetTicket{
			ID:        id,
			AccountID: "acc_sweep",
			TokenHash: "hash-" + id,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
	}

	live := newTicket("tkt_live", now.Add(time.Hour))
	expired := newTicket("tkt_expired", now.Add(-time.Minute))
	used := newTicket("tkt_used", now.Add(time.Hour))

	require.NoError(t, repos.ResetTickets.Create(ctx, live))
	require.NoError(t, repos.ResetTickets.Create(ctx, expired))
	require.NoError(t, repos.ResetTickets.Create(ctx, used))

	consumed, err := repos.ResetTickets.Consume(ctx, used.ID)
	require.NoError(t, err)
	require.True(t, consumed)

	sweeper := NewSweeper(repos.ResetTickets, time.Minute, logger.Nop())
	sweeper.Sweep(ctx)

	_, err = repos.ResetTickets.GetByTokenHash(ctx, live.TokenHash)
	assert.NoError(t, err, "live ticket survives the sweep")

	_, err = repos.ResetTickets.GetByTokenHash(ctx, expired.TokenHash)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repos.ResetTickets.GetByTokenHash(ctx, used.TokenHash)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// A second sweep has nothing left to do.
	sweeper.Sweep(ctx)
	_, err = repos.ResetTickets.GetByTokenHash(ctx, live.TokenHash)
	assert.NoError(t, err)
}

func TestSweeperDefaultInterval(t *testing.T) {
	repos := memory.New()
	sweeper := NewSweeper(repos.ResetTickets, 0, logger.Nop())
	assert.Equal(t, 15*time.Minute, sweeper.interval)
}
