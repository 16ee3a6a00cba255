package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
)

func startMongo(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestMongoGatewayOwnedCollections(t *testing.T) {
	uri := startMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	g, err := OpenMongo(ctx, uri, "studysync_test", 5)
	require.NoError(t, err)
	defer g.Close(context.Background())
	require.NoError(t, g.EnsureSchema(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	folder := &Folder{Meta: ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now}, Name: "Biology", Theme: "lime", Icon: "Camera"}
	require.NoError(t, g.Folders().Insert(ctx, folder))
	require.Len(t, folder.ID, 24)

	space := &Space{
		Meta:     ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now},
		Type:     content.Flashcards,
		Title:    "Cells",
		FolderID: &folder.ID,
		Content:  &content.FlashcardsContent{Cards: []content.Flashcard{{ID: "c1", Front: "Mitochondria", Back: "Powerhouse", Difficulty: 3}}},
		Tags:     []string{"bio"},
	}
	require.NoError(t, g.Spaces().Insert(ctx, space))

	loaded, err := g.Spaces().FindOwned(ctx, "alice", space.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cells", loaded.Title)
	assert.Equal(t, folder.ID, *loaded.FolderID)
	cards, ok := loaded.Content.(*content.FlashcardsContent)
	require.True(t, ok, "expected flashcards content, got %T", loaded.Content)
	assert.Equal(t, "Mitochondria", cards.Cards[0].Front)
	assert.True(t, loaded.CreatedAt.Equal(now))

	_, err = g.Spaces().FindOwned(ctx, "bob", space.ID)
	assert.ErrorIs(t, err, ownership.ErrNotFoundOrUnauthorized)
	_, err = g.Spaces().FindOwned(ctx, "alice", "not-an-object-id")
	assert.ErrorIs(t, err, ownership.ErrNotFoundOrUnauthorized)

	listed, err := ownership.Collect(g.Spaces().Find(ctx, ownership.Query{OwnerID: "alice", ParentID: &folder.ID, Sort: ownership.SortByUpdated}))
	require.NoError(t, err)
	require.Len(t, listed, 1)

	loaded.Title = "Cell biology"
	require.NoError(t, g.Spaces().ReplaceOwned(ctx, loaded))
	foreign := *loaded
	foreign.OwnerID = "bob"
	assert.ErrorIs(t, g.Spaces().ReplaceOwned(ctx, &foreign), ownership.ErrNotFoundOrUnauthorized)

	topic := &Space{Meta: ownership.Meta{OwnerID: "alice", CreatedAt: now, UpdatedAt: now}, Type: content.Notes, Title: "Loose", FolderID: &folder.ID}
	require.NoError(t, g.Topics().Insert(ctx, topic))

	n, err := g.Topics().UnfileFolder(ctx, "alice", folder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	unfiled := ""
	loose, err := ownership.Collect(g.Topics().Find(ctx, ownership.Query{OwnerID: "alice", ParentID: &unfiled}))
	require.NoError(t, err)
	require.Len(t, loose, 1)
	assert.Nil(t, loose[0].FolderID)

	n, err = g.Spaces().DeleteByFolder(ctx, "alice", folder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.ErrorIs(t, g.Folders().DeleteOwned(ctx, "bob", folder.ID), ownership.ErrNotFoundOrUnauthorized)
	require.NoError(t, g.Folders().DeleteOwned(ctx, "alice", folder.ID))
}

func TestMongoUsersUniqueEmail(t *testing.T) {
	uri := startMongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	g, err := OpenMongo(ctx, uri, "studysync_users_test", 5)
	require.NoError(t, err)
	defer g.Close(context.Background())
	require.NoError(t, g.EnsureSchema(ctx))

	created, err := g.Users().CreateUser(ctx, User{Email: "Ada@Example.com", DisplayName: "Ada", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = g.Users().CreateUser(ctx, User{Email: "ada@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := g.Users().GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}
