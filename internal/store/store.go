// Package store is the persistence gateway. Each backend exposes the owned
// collections folders, spaces and topics plus the users table, and owns one
// pooled client shared by every request.
package store

import (
	"context"
	"errors"

	"github.com/FarisLab/StudySync/internal/ownership"
)

const (
	CollectionFolders = "folders"
	CollectionSpaces  = "spaces"
	CollectionTopics  = "topics"
	CollectionUsers   = "users"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// SpaceCollection is a module collection with the bulk operations a folder
// deletion needs.
type SpaceCollection interface {
	ownership.Collection[*Space]
	DeleteByFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error)
	UnfileFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
}

type Gateway interface {
	Folders() ownership.Collection[*Folder]
	Spaces() SpaceCollection
	Topics() SpaceCollection
	Users() UserStore
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
