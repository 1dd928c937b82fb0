package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/testing/suite"
)

func TestRedisSessionRepository_GetOrCreate(t *testing.T) {
	ctx, st := suite.New(t)

	repo := NewRedisSessionRepository(st.Storage, time.Hour)

	// Given: a session created once
	created, err := repo.GetOrCreate(ctx, "123")
	require.NoError(t, err)

	_, err = repo.Update(ctx, "123", func(session *entity.Session) error {
		_, err := session.Seat()
		return err
	})
	require.NoError(t, err)

	// When: GetOrCreate is called again
	existing, err := repo.GetOrCreate(ctx, "123")

	// Then: the stored session is kept
	require.NoError(t, err)
	assert.Equal(t, created.ID, existing.ID)
	assert.Equal(t, 1, existing.Occupants())

	ttl, err := st.Storage.TTL(ctx, "session:123").Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

func TestRedisSessionRepository_Get(t *testing.T) {
	t.Run("Get_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		repo := NewRedisSessionRepository(st.Storage, time.Hour)

		// When: Get is called with non-existent ID
		session, err := repo.Get(ctx, "9999999")

		// Then: an ErrSessionNotFound error should be returned
		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Nil(t, session)
	})
}

func TestRedisSessionRepository_Update(t *testing.T) {
	t.Run("Update_RoundTrip", func(t *testing.T) {
		ctx, st := suite.New(t)

		repo := NewRedisSessionRepository(st.Storage, time.Hour)

		_, err := repo.GetOrCreate(ctx, "123")
		require.NoError(t, err)

		// When: X plays the center
		_, err = repo.Update(ctx, "123", func(session *entity.Session) error {
			_, err := session.Place(entity.PlayerX, 4, true)
			return err
		})
		require.NoError(t, err)

		// Then: the board and turn are persisted
		session, err := repo.Get(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, session.Board[4])
		assert.Equal(t, entity.PlayerO, session.Turn)
	})

	t.Run("Update_RejectedMoveIsNotWritten", func(t *testing.T) {
		ctx, st := suite.New(t)

		repo := NewRedisSessionRepository(st.Storage, time.Hour)

		_, err := repo.GetOrCreate(ctx, "123")
		require.NoError(t, err)

		// When: O moves out of turn
		_, err = repo.Update(ctx, "123", func(session *entity.Session) error {
			_, err := session.Place(entity.PlayerO, 4, true)
			return err
		})

		// Then: the error surfaces and the board stays empty
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)

		session, err := repo.Get(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, entity.Board{}, session.Board)
	})

	t.Run("Update_ConcurrentSeats", func(t *testing.T) {
		ctx, st := suite.New(t)

		repo := NewRedisSessionRepository(st.Storage, time.Hour)

		_, err := repo.GetOrCreate(ctx, "race")
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			marks []entity.Mark
		)

		for range 4 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				var mark entity.Mark
				_, err := repo.Update(ctx, "race", func(session *entity.Session) error {
					var seatErr error
					mark, seatErr = session.Seat()
					return seatErr
				})
				if err != nil {
					return
				}

				mu.Lock()
				marks = append(marks, mark)
				mu.Unlock()
			}()
		}

		wg.Wait()

		assert.ElementsMatch(t, []entity.Mark{entity.PlayerX, entity.PlayerO}, marks)
	})
}

func TestRedisSessionRepository_Ping(t *testing.T) {
	ctx, st := suite.New(t)

	repo := NewRedisSessionRepository(st.Storage, 0)

	require.NoError(t, repo.Ping(ctx))
}
