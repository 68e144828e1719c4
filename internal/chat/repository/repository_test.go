package repository

import (
	"context"
	"database/sql"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"testing"

	"livechat/internal/chat/model"
	"livechat/pkg/logger"
)

var (
	testDB      *bun.DB
	pgContainer *postgres.PostgresContainer
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	dbName := "livechat"
	dbUser := "livechat"
	dbPassword := "password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}
	pgContainer = postgresContainer

	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		log.Printf("failed to get connection string, %v", err)
	}

	connector := pgdriver.NewConnector(pgdriver.WithDSN(connStr))
	sqlDB := sql.OpenDB(connector)
	testDB = bun.NewDB(sqlDB, pgdialect.New())

	if err := sqlDB.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping db: %v", err)
	}

	tables := []any{
		(*model.Conversation)(nil),
		(*model.Message)(nil),
		(*model.Attachment)(nil),
	}

	for _, t := range tables {
		if _, err := testDB.NewCreateTable().Model(t).IfNotExists().Exec(ctx); err != nil {
			testDB.Close()
			log.Fatalf("failed to create table for %T: %v", t, err)
		}
	}

	code := m.Run()

	testDB.Close()

	os.Exit(code)
}

func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testDB.ExecContext(context.Background(), `TRUNCATE TABLE attachments, messages, conversations RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func newWaiting(t *testing.T, repo *ChatRepository, guestName string) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{
		GuestName:  guestName,
		GuestEmail: guestName + "@example.com",
		Status:     model.StatusWaiting,
	}
	require.NoError(t, repo.CreateConversation(t.Context(), conv))
	return conv
}

func Test_CreateConversation(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})
	conv := newWaiting(t, repo, "guest")

	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.False(t, conv.StartedAt.IsZero(), "started_at should be set by DB")
	assert.Equal(t, model.StatusWaiting, conv.Status)
}

func Test_GetConversation(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})

	t.Run("existing conversation", func(t *testing.T) {
		conv := newWaiting(t, repo, "guest")

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, fetched.ID)
		assert.Equal(t, conv.GuestName, fetched.GuestName)
		assert.True(t, fetched.IsGuest())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetConversation(t.Context(), uuid.New())
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func Test_ListWaiting(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})

	first := newWaiting(t, repo, "first")
	time.Sleep(10 * time.Millisecond)
	second := newWaiting(t, repo, "second")

	// A claimed conversation must leave the waiting queue.
	claimed := newWaiting(t, repo, "claimed")
	ok, err := repo.ClaimConversation(t.Context(), claimed.ID, uuid.New())
	require.NoError(t, err)
	require.True(t, ok)

	waiting, err := repo.ListWaiting(t.Context())
	require.NoError(t, err)
	require.Len(t, waiting, 2)

	// Oldest first, so agents pick up in arrival order.
	assert.Equal(t, first.ID, waiting[0].ID)
	assert.Equal(t, second.ID, waiting[1].ID)
}

func Test_ClaimConversation(t *testing.T) {
	repo := NewChatRepository(testDB, logger.Logger{})

	t.Run("claim moves waiting to active", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		agentID := uuid.New()

		ok, err := repo.ClaimConversation(t.Context(), conv.ID, agentID)
		require.NoError(t, err)
		assert.True(t, ok)

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, fetched.Status)
		require.NotNil(t, fetched.AssignedAgentID)
		assert.Equal(t, agentID, *fetched.AssignedAgentID)
	})

	t.Run("second claim misses", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		winner := uuid.New()
		loser := uuid.New()

		ok, err := repo.ClaimConversation(t.Context(), conv.ID, winner)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.ClaimConversation(t.Context(), conv.ID, loser)
		require.NoError(t, err)
		assert.False(t, ok)

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, winner, *fetched.AssignedAgentID)
	})

	t.Run("unknown conversation misses", func(t *testing.T) {
		ok, err := repo.ClaimConversation(t.Context(), uuid.New(), uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent claims admit exactly one winner", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")

		const agents = 8
		var wg sync.WaitGroup
		wins := make(chan uuid.UUID, agents)

		for i := 0; i < agents; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				agentID := uuid.New()
				ok, err := repo.ClaimConversation(context.Background(), conv.ID, agentID)
				assert.NoError(t, err)
				if ok {
					wins <- agentID
				}
			}()
		}
		wg.Wait()
		close(wins)

		var winners []uuid.UUID
		for id := range wins {
			winners = append(winners, id)
		}
		require.Len(t, winners, 1)

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, winners[0], *fetched.AssignedAgentID)
	})
}

func Test_CloseConversation(t *testing.T) {
	repo := NewChatRepository(testDB, logger.Logger{})

	t.Run("close sets status and timestamp", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")

		closed, err := repo.CloseConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.True(t, closed)

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusClosed, fetched.Status)
		require.NotNil(t, fetched.ClosedAt)
	})

	t.Run("closing twice reports a miss", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")

		closed, err := repo.CloseConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		require.True(t, closed)

		closed, err = repo.CloseConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.False(t, closed)
	})
}

func Test_ExpireStaleWaiting(t *testing.T) {
	repo := NewChatRepository(testDB, logger.Logger{})

	t.Run("only stale waiting conversations expire", func(t *testing.T) {
		defer truncateAll(t)

		stale := newWaiting(t, repo, "stale")
		fresh := newWaiting(t, repo, "fresh")

		// Backdate one conversation past the cutoff.
		_, err := testDB.NewUpdate().
			Model((*model.Conversation)(nil)).
			Set("started_at = ?", time.Now().Add(-48*time.Hour)).
			Where("id = ?", stale.ID).
			Exec(t.Context())
		require.NoError(t, err)

		expired, err := repo.ExpireStaleWaiting(t.Context(), time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, stale.ID, expired[0].ID)
		assert.Equal(t, model.StatusClosed, expired[0].Status)

		fetched, err := repo.GetConversation(t.Context(), fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaiting, fetched.Status)
	})

	t.Run("a claim that lands first survives the sweep", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		_, err := testDB.NewUpdate().
			Model((*model.Conversation)(nil)).
			Set("started_at = ?", time.Now().Add(-48*time.Hour)).
			Where("id = ?", conv.ID).
			Exec(t.Context())
		require.NoError(t, err)

		ok, err := repo.ClaimConversation(t.Context(), conv.ID, uuid.New())
		require.NoError(t, err)
		require.True(t, ok)

		expired, err := repo.ExpireStaleWaiting(t.Context(), time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, expired)

		fetched, err := repo.GetConversation(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, fetched.Status)
	})

	t.Run("nothing stale", func(t *testing.T) {
		defer truncateAll(t)

		newWaiting(t, repo, "fresh")
		expired, err := repo.ExpireStaleWaiting(t.Context(), time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, expired)
	})
}

func Test_CreateMessage(t *testing.T) {
	repo := NewChatRepository(testDB, logger.Logger{})

	t.Run("text message", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		msg := &model.Message{
			ConversationID: conv.ID,
			SenderType:     model.SenderGuest,
			Body:           "hello there",
		}

		require.NoError(t, repo.CreateMessage(t.Context(), msg, nil))
		assert.NotEqual(t, uuid.Nil, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	})

	t.Run("message and attachments are one unit", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		msg := &model.Message{
			ConversationID: conv.ID,
			SenderType:     model.SenderGuest,
			Body:           "see attached",
		}
		atts := []*model.Attachment{
			{FileURL: "/uploads/a.png", FileName: "a.png", FileType: "image/png", FileSize: 512},
			{FileURL: "/uploads/b.pdf", FileName: "b.pdf", FileType: "application/pdf", FileSize: 2048},
		}

		require.NoError(t, repo.CreateMessage(t.Context(), msg, atts))

		for _, a := range atts {
			assert.Equal(t, msg.ID, a.MessageID)
			assert.NotEqual(t, uuid.Nil, a.ID)
		}

		fetched, err := repo.ListAttachments(t.Context(), msg.ID)
		require.NoError(t, err)
		assert.Len(t, fetched, 2)
	})

	t.Run("attachment insert failure rolls the message back", func(t *testing.T) {
		defer truncateAll(t)

		conv := newWaiting(t, repo, "guest")
		msg := &model.Message{
			ConversationID: conv.ID,
			SenderType:     model.SenderGuest,
			Body:           "should not persist",
		}
		// Missing required file_url violates NOT NULL and aborts the tx.
		atts := []*model.Attachment{
			{FileName: "a.png", FileType: "image/png", FileSize: 512},
		}

		err := repo.CreateMessage(t.Context(), msg, atts)
		require.Error(t, err)

		msgs, err := repo.ListMessages(t.Context(), conv.ID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func Test_ListMessages(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})
	conv := newWaiting(t, repo, "guest")

	first := &model.Message{ConversationID: conv.ID, SenderType: model.SenderGuest, Body: "first"}
	require.NoError(t, repo.CreateMessage(t.Context(), first, nil))

	time.Sleep(10 * time.Millisecond)
	second := &model.Message{ConversationID: conv.ID, SenderType: model.SenderAgent, Body: "second"}
	atts := []*model.Attachment{
		{FileURL: "/uploads/x.png", FileName: "x.png", FileType: "image/png", FileSize: 64},
	}
	require.NoError(t, repo.CreateMessage(t.Context(), second, atts))

	msgs, err := repo.ListMessages(t.Context(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
	assert.Empty(t, msgs[0].Attachments)
	require.Len(t, msgs[1].Attachments, 1)
	assert.Equal(t, "x.png", msgs[1].Attachments[0].FileName)
}

func Test_GetMessage(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})
	conv := newWaiting(t, repo, "guest")

	msg := &model.Message{ConversationID: conv.ID, SenderType: model.SenderGuest, Body: "hello"}
	require.NoError(t, repo.CreateMessage(t.Context(), msg, nil))

	fetched, err := repo.GetMessage(t.Context(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Body, fetched.Body)

	_, err = repo.GetMessage(t.Context(), uuid.New())
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func Test_ListActiveForAgent(t *testing.T) {
	t.Cleanup(func() { truncateAll(t) })

	repo := NewChatRepository(testDB, logger.Logger{})
	agentID := uuid.New()
	otherAgent := uuid.New()

	mine := newWaiting(t, repo, "mine")
	ok, err := repo.ClaimConversation(t.Context(), mine.ID, agentID)
	require.NoError(t, err)
	require.True(t, ok)

	theirs := newWaiting(t, repo, "theirs")
	ok, err = repo.ClaimConversation(t.Context(), theirs.ID, otherAgent)
	require.NoError(t, err)
	require.True(t, ok)

	newWaiting(t, repo, "unclaimed")

	active, err := repo.ListActiveForAgent(t.Context(), agentID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, mine.ID, active[0].ID)
}
