// Package ownership implements the owner-scoped CRUD contract shared by every
// entity handler: authenticate the caller, scope reads to the caller, verify
// ownership before any write, and stamp server-owned fields.
//
// Authorization failures are reported as ErrNotFoundOrUnauthorized whether the
// entity is missing or belongs to someone else, so callers cannot probe for
// the existence of other users' data.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"
)

// UserID identifies the authenticated caller. It is opaque to this package.
type UserID string

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrNotFoundOrUnauthorized = errors.New("not found or unauthorized")
)

// Meta holds the fields the server owns on every entity. Patches never
// change ID, OwnerID or CreatedAt.
type Meta struct {
	ID        string    `json:"id"`
	OwnerID   UserID    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entity is an owned document. Validate must return a *validate.Error for
// bad input so the HTTP layer can report it as a validation failure.
type Entity interface {
	Metadata() *Meta
	Validate() error
}

// Sort selects the ordering of ListOwned results.
type Sort int

const (
	SortInsertion Sort = iota
	SortByName
	SortByUpdated
)

// ParseSort maps a query-string value onto a Sort, falling back to def.
func ParseSort(value string, def Sort) Sort {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "name":
		return SortByName
	case "updated", "updatedat":
		return SortByUpdated
	case "insertion", "created", "createdat":
		return SortInsertion
	default:
		return def
	}
}

// Query scopes a listing. ParentID nil matches any parent; a pointer to ""
// matches entities without a parent.
type Query struct {
	OwnerID  UserID
	ParentID *string
	Sort     Sort
}

// Lookup answers whether an owned entity exists. Parent checks only need this.
type Lookup interface {
	ExistsOwned(ctx context.Context, owner UserID, id string) (bool, error)
}

// Collection is the persistence gateway for one owner-scoped collection.
// FindOwned, ReplaceOwned and DeleteOwned filter on both id and owner and
// return ErrNotFoundOrUnauthorized when nothing matches.
type Collection[E Entity] interface {
	Lookup
	Name() string
	Find(ctx context.Context, q Query) iter.Seq2[E, error]
	FindOwned(ctx context.Context, owner UserID, id string) (E, error)
	Insert(ctx context.Context, entity E) error
	ReplaceOwned(ctx context.Context, entity E) error
	DeleteOwned(ctx context.Context, owner UserID, id string) error
}

// Patch is a partial update. Validate runs before any storage access; Apply
// runs against the loaded entity and may reject changes that depend on it.
type Patch[E Entity] interface {
	Validate() error
	Apply(E) error
}

// ParentRef names the entity a new child must be attached to.
type ParentRef struct {
	Lookup Lookup
	ID     string
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (UserID, error)
}

var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Authenticate resolves the caller. Missing or invalid sessions yield
// ErrUnauthenticated; other failures are returned wrapped.
func Authenticate(r *http.Request, a Authenticator) (UserID, error) {
	userID, err := a.Authenticate(r)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("resolve session: %w", err)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// ListOwned returns the caller's entities. The sequence is lazy and
// restartable: each range issues the query again.
func ListOwned[E Entity](ctx context.Context, c Collection[E], owner UserID, q Query) iter.Seq2[E, error] {
	if owner == "" {
		return func(yield func(E, error) bool) {
			var zero E
			yield(zero, ErrUnauthenticated)
		}
	}
	q.OwnerID = owner
	return c.Find(ctx, q)
}

// Collect drains a sequence, stopping at the first error.
func Collect[E any](seq iter.Seq2[E, error]) ([]E, error) {
	items := []E{}
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// RequireOwnedParent fails with ErrNotFoundOrUnauthorized unless id names an
// entity owned by owner.
func RequireOwnedParent(ctx context.Context, parents Lookup, owner UserID, id string) error {
	if owner == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return ErrNotFoundOrUnauthorized
	}
	ok, err := parents.ExistsOwned(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("lookup parent: %w", err)
	}
	if !ok {
		return ErrNotFoundOrUnauthorized
	}
	return nil
}

// CreateOwned validates entity, verifies the optional parent, stamps owner
// and timestamps, and inserts it. The returned entity carries its new ID.
func CreateOwned[E Entity](ctx context.Context, c Collection[E], owner UserID, entity E, parent *ParentRef) (E, error) {
	var zero E
	if owner == "" {
		return zero, ErrUnauthenticated
	}
	if err := entity.Validate(); err != nil {
		return zero, err
	}
	if parent != nil {
		if err := RequireOwnedParent(ctx, parent.Lookup, owner, parent.ID); err != nil {
			return zero, err
		}
	}

	stamped := now()
	*entity.Metadata() = Meta{OwnerID: owner, CreatedAt: stamped, UpdatedAt: stamped}
	if err := c.Insert(ctx, entity); err != nil {
		return zero, fmt.Errorf("insert %s: %w", c.Name(), err)
	}
	return entity, nil
}

// GetOwned loads one of the caller's entities.
func GetOwned[E Entity](ctx context.Context, c Collection[E], owner UserID, id string) (E, error) {
	var zero E
	if owner == "" {
		return zero, ErrUnauthenticated
	}
	entity, err := c.FindOwned(ctx, owner, id)
	if err != nil {
		return zero, wrapStorage(c.Name(), "find", err)
	}
	return entity, nil
}

// MutateOwned loads the entity through an owner-filtered read, applies patch,
// refreshes UpdatedAt and writes it back with the same filter.
func MutateOwned[E Entity](ctx context.Context, c Collection[E], owner UserID, id string, patch Patch[E]) (E, error) {
	var zero E
	if owner == "" {
		return zero, ErrUnauthenticated
	}
	if err := patch.Validate(); err != nil {
		return zero, err
	}

	entity, err := c.FindOwned(ctx, owner, id)
	if err != nil {
		return zero, wrapStorage(c.Name(), "find", err)
	}
	pinned := *entity.Metadata()
	if err := patch.Apply(entity); err != nil {
		return zero, err
	}

	meta := entity.Metadata()
	meta.ID = pinned.ID
	meta.OwnerID = pinned.OwnerID
	meta.CreatedAt = pinned.CreatedAt
	meta.UpdatedAt = now()
	if err := entity.Validate(); err != nil {
		return zero, err
	}

	if err := c.ReplaceOwned(ctx, entity); err != nil {
		return zero, wrapStorage(c.Name(), "replace", err)
	}
	return entity, nil
}

// DeleteOwned verifies ownership with a filtered read and then deletes.
func DeleteOwned[E Entity](ctx context.Context, c Collection[E], owner UserID, id string) error {
	if owner == "" {
		return ErrUnauthenticated
	}
	if _, err := c.FindOwned(ctx, owner, id); err != nil {
		return wrapStorage(c.Name(), "find", err)
	}
	if err := c.DeleteOwned(ctx, owner, id); err != nil {
		return wrapStorage(c.Name(), "delete", err)
	}
	return nil
}

func wrapStorage(collection, op string, err error) error {
	if errors.Is(err, ErrNotFoundOrUnauthorized) {
		return ErrNotFoundOrUnauthorized
	}
	return fmt.Errorf("%s %s: %w", op, collection, err)
}
