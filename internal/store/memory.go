package store

import (
	"context"
	"iter"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/FarisLab/StudySync/internal/ownership"
)

// MemoryGateway keeps every collection in process memory. It backs tests and
// the memory store driver.
type MemoryGateway struct {
	folders *memoryCollection[*Folder]
	spaces  *memorySpaces
	topics  *memorySpaces
	users   *memoryUsers
}

func NewMemoryGateway() *MemoryGateway {
	folderOf := func(s *Space) *string { return s.FolderID }
	return &MemoryGateway{
		folders: newMemoryCollection(CollectionFolders, func(f *Folder) *Folder { c := *f; return &c }, nil, func(f *Folder) string { return f.Name }),
		spaces:  &memorySpaces{newMemoryCollection(CollectionSpaces, (*Space).clone, folderOf, func(s *Space) string { return s.Title })},
		topics:  &memorySpaces{newMemoryCollection(CollectionTopics, (*Space).clone, folderOf, func(s *Space) string { return s.Title })},
		users:   &memoryUsers{byID: map[string]User{}},
	}
}

func (g *MemoryGateway) Folders() ownership.Collection[*Folder] { return g.folders }
func (g *MemoryGateway) Spaces() SpaceCollection                { return g.spaces }
func (g *MemoryGateway) Topics() SpaceCollection                { return g.topics }
func (g *MemoryGateway) Users() UserStore                       { return g.users }

func (g *MemoryGateway) EnsureSchema(context.Context) error { return nil }
func (g *MemoryGateway) Ping(context.Context) error         { return nil }
func (g *MemoryGateway) Close(context.Context) error        { return nil }

type memoryRow[E ownership.Entity] struct {
	seq    int64
	entity E
}

type memoryCollection[E ownership.Entity] struct {
	name     string
	clone    func(E) E
	parentOf func(E) *string
	nameOf   func(E) string

	mu   sync.RWMutex
	seq  int64
	rows map[string]memoryRow[E]
}

func newMemoryCollection[E ownership.Entity](name string, clone func(E) E, parentOf func(E) *string, nameOf func(E) string) *memoryCollection[E] {
	return &memoryCollection[E]{
		name:     name,
		clone:    clone,
		parentOf: parentOf,
		nameOf:   nameOf,
		rows:     map[string]memoryRow[E]{},
	}
}

func (c *memoryCollection[E]) Name() string { return c.name }

func (c *memoryCollection[E]) ExistsOwned(_ context.Context, owner ownership.UserID, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[id]
	return ok && row.entity.Metadata().OwnerID == owner, nil
}

// Find snapshots the matching rows each time the sequence is ranged over.
func (c *memoryCollection[E]) Find(_ context.Context, q ownership.Query) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		rows := c.snapshot(q)
		for _, row := range rows {
			if !yield(row.entity, nil) {
				return
			}
		}
	}
}

func (c *memoryCollection[E]) snapshot(q ownership.Query) []memoryRow[E] {
	c.mu.RLock()
	rows := make([]memoryRow[E], 0, len(c.rows))
	for _, row := range c.rows {
		if row.entity.Metadata().OwnerID != q.OwnerID || !c.parentMatches(row.entity, q.ParentID) {
			continue
		}
		rows = append(rows, memoryRow[E]{seq: row.seq, entity: c.clone(row.entity)})
	}
	c.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch q.Sort {
		case ownership.SortByName:
			if c.nameOf != nil {
				if na, nb := c.nameOf(a.entity), c.nameOf(b.entity); na != nb {
					return na < nb
				}
			}
		case ownership.SortByUpdated:
			ua, ub := a.entity.Metadata().UpdatedAt, b.entity.Metadata().UpdatedAt
			if !ua.Equal(ub) {
				return ua.After(ub)
			}
		}
		return a.seq < b.seq
	})
	return rows
}

func (c *memoryCollection[E]) parentMatches(entity E, parentID *string) bool {
	if parentID == nil || c.parentOf == nil {
		return true
	}
	current := c.parentOf(entity)
	if *parentID == "" {
		return current == nil || *current == ""
	}
	return current != nil && *current == *parentID
}

func (c *memoryCollection[E]) FindOwned(_ context.Context, owner ownership.UserID, id string) (E, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[id]
	if !ok || row.entity.Metadata().OwnerID != owner {
		var zero E
		return zero, ownership.ErrNotFoundOrUnauthorized
	}
	return c.clone(row.entity), nil
}

func (c *memoryCollection[E]) Insert(_ context.Context, entity E) error {
	meta := entity.Metadata()
	if meta.ID == "" {
		meta.ID = bson.NewObjectID().Hex()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rows[meta.ID]; exists {
		return ErrDuplicate
	}
	c.seq++
	c.rows[meta.ID] = memoryRow[E]{seq: c.seq, entity: c.clone(entity)}
	return nil
}

func (c *memoryCollection[E]) ReplaceOwned(_ context.Context, entity E) error {
	meta := entity.Metadata()
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[meta.ID]
	if !ok || row.entity.Metadata().OwnerID != meta.OwnerID {
		return ownership.ErrNotFoundOrUnauthorized
	}
	c.rows[meta.ID] = memoryRow[E]{seq: row.seq, entity: c.clone(entity)}
	return nil
}

func (c *memoryCollection[E]) DeleteOwned(_ context.Context, owner ownership.UserID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok || row.entity.Metadata().OwnerID != owner {
		return ownership.ErrNotFoundOrUnauthorized
	}
	delete(c.rows, id)
	return nil
}

type memorySpaces struct {
	*memoryCollection[*Space]
}

func (c *memorySpaces) DeleteByFolder(_ context.Context, owner ownership.UserID, folderID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for id, row := range c.rows {
		if row.entity.OwnerID == owner && row.entity.FolderID != nil && *row.entity.FolderID == folderID {
			delete(c.rows, id)
			n++
		}
	}
	return n, nil
}

func (c *memorySpaces) UnfileFolder(_ context.Context, owner ownership.UserID, folderID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for id, row := range c.rows {
		if row.entity.OwnerID == owner && row.entity.FolderID != nil && *row.entity.FolderID == folderID {
			row.entity.FolderID = nil
			c.rows[id] = row
			n++
		}
	}
	return n, nil
}

type memoryUsers struct {
	mu   sync.RWMutex
	byID map[string]User
}

func (u *memoryUsers) CreateUser(_ context.Context, user User) (User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.byID {
		if strings.EqualFold(existing.Email, user.Email) {
			return User{}, ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = bson.NewObjectID().Hex()
	}
	u.byID[user.ID] = user
	return user, nil
}

func (u *memoryUsers) GetUserByEmail(_ context.Context, email string) (User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, user := range u.byID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (u *memoryUsers) GetUserByID(_ context.Context, id string) (User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}
