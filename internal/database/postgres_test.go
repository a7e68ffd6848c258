package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pgSeeder writes fixtures straight into the tables the repository only reads.
type pgSeeder struct {
	t    *testing.T
	repo *PgRepository
}

func (s pgSeeder) AddUser(username, name string) User {
	u := User{Username: username, Name: name}
	err := s.repo.conn.QueryRow(
		"INSERT INTO accounts (username, name) VALUES ($1, $2) RETURNING id, created_at",
		username,
		name,
	).Scan(&u.Id, &u.CreatedAt)
	require.NoError(s.t, err)
	return u
}

func (s pgSeeder) AddLetter(ownerId int, heading, message string) Letter {
	l := Letter{OwnerId: ownerId, Heading: heading, Message: message}
	err := s.repo.conn.QueryRow(
		"INSERT INTO letters (owner_id, heading, message) VALUES ($1, $2, $3) RETURNING id, created_at",
		ownerId,
		heading,
		message,
	).Scan(&l.Id, &l.CreatedAt)
	require.NoError(s.t, err)
	return l
}

func TestPgRepository(t *testing.T) {
	dsn := os.Getenv("SANTA_TEST_DSN")
	if dsn == "" {
		t.Skip("SANTA_TEST_DSN not set")
	}

	repo, err := NewPgRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate())
	require.NoError(t, repo.Migrate(), "expected a second migration run to be a no-op")

	reset := func(t *testing.T) {
		_, err := repo.conn.Exec("TRUNCATE draw_results, participants, rooms, letters, accounts RESTART IDENTITY CASCADE")
		require.NoError(t, err)
	}

	testRepository(t, func(t *testing.T) (Repository, seeder) {
		reset(t)
		return repo, pgSeeder{t: t, repo: repo}
	})

	t.Run("deleting a selected letter clears readiness", func(t *testing.T) {
		reset(t)
		ctx := context.Background()
		seed := pgSeeder{t: t, repo: repo}
		alice := seed.AddUser("alice", "Alice")
		letter := seed.AddLetter(alice.Id, "Hi", "From Alice")
		room, err := repo.CreateRoom(ctx, CreateRoomParams{Name: "Office", Secret: "pw", OwnerId: alice.Id})
		require.NoError(t, err)
		require.NoError(t, repo.SelectLetter(ctx, room.Id, alice.Id, letter.Id))
		ready, err := repo.ToggleReady(ctx, room.Id, alice.Id)
		require.NoError(t, err)
		require.True(t, ready)

		_, err = repo.conn.Exec("DELETE FROM letters WHERE id = $1", letter.Id)
		require.NoError(t, err, "expected letter removal to satisfy the ready constraint")

		participants, err := repo.ListParticipants(ctx, room.Id)
		require.NoError(t, err)
		require.Len(t, participants, 1)
		assert.False(t, participants[0].HasLetter())
		assert.False(t, participants[0].IsReady)
	})
}
