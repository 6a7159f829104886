package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&entity.Conversation{}, &entity.Message{}))
	return db
}

func seedConversation(t *testing.T, repo *ConversationRepo, id, userA, userB, propertyId string, lastMessageAt int64) {
	t.Helper()
	err := repo.Create(context.Background(), &entity.Conversation{
		Id:            id,
		Participant1:  userA,
		Participant2:  userB,
		PropertyId:    propertyId,
		Kind:          entity.ConvKindUser,
		PairKey:       entity.PairKey(userA, userB, propertyId),
		LastMessageAt: lastMessageAt,
	})
	require.NoError(t, err)
}

func TestConversationRepoListByUser(t *testing.T) {
	repo := NewConversationRepo(newTestDB(t))
	ctx := context.Background()

	seedConversation(t, repo, "c1", "alice", "bob", "", 100)
	seedConversation(t, repo, "c2", "carol", "alice", "", 300)
	seedConversation(t, repo, "c3", "bob", "carol", "", 200)

	convs, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "c2", convs[0].Id)
	require.Equal(t, "c1", convs[1].Id)

	convs, err = repo.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, "c3", convs[0].Id)

	convs, err = repo.ListByUser(ctx, "dave")
	require.NoError(t, err)
	require.Empty(t, convs)
}

func TestConversationRepoDuplicatePair(t *testing.T) {
	repo := NewConversationRepo(newTestDB(t))
	ctx := context.Background()

	seedConversation(t, repo, "c1", "alice", "bob", "prop-1", 0)

	err := repo.Create(ctx, &entity.Conversation{
		Id:           "c2",
		Participant1: "bob",
		Participant2: "alice",
		Kind:         entity.ConvKindUser,
		PairKey:      entity.PairKey("bob", "alice", "prop-1"),
	})
	require.ErrorIs(t, err, store.ErrDuplicatePair)
}

func TestConversationRepoFindByPairScoping(t *testing.T) {
	repo := NewConversationRepo(newTestDB(t))
	ctx := context.Background()

	seedConversation(t, repo, "c1", "alice", "bob", "prop-1", 100)
	seedConversation(t, repo, "c2", "alice", "bob", "prop-2", 200)

	conv, err := repo.FindByPair(ctx, "bob", "alice", "prop-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "c1", conv.Id)

	conv, err = repo.FindByPair(ctx, "alice", "bob", "")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "c2", conv.Id)

	conv, err = repo.FindByPair(ctx, "alice", "carol", "")
	require.NoError(t, err)
	require.Nil(t, conv)
}
