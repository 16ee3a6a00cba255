package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
)

const uniqueViolation = "23505"

// PostgresGateway keeps each collection in its own table. Content and tags
// are JSONB; seq preserves insertion order.
type PostgresGateway struct {
	db      *sql.DB
	folders *pgCollection[*Folder]
	spaces  *pgSpaces
	topics  *pgSpaces
	users   *pgUsers
}

func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{
		db: db,
		folders: &pgCollection[*Folder]{
			db:         db,
			table:      CollectionFolders,
			nameColumn: "name",
			columns:    []string{"name", "theme", "icon"},
			values: func(f *Folder) ([]any, error) {
				return []any{f.Name, f.Theme, f.Icon}, nil
			},
			scanner: func() (*Folder, []any, func() error) {
				f := &Folder{}
				return f, []any{&f.Name, &f.Theme, &f.Icon}, nil
			},
		},
		spaces: &pgSpaces{newPgSpaces(db, CollectionSpaces)},
		topics: &pgSpaces{newPgSpaces(db, CollectionTopics)},
		users:  &pgUsers{db: db},
	}
}

func newPgSpaces(db *sql.DB, table string) *pgCollection[*Space] {
	return &pgCollection[*Space]{
		db:           db,
		table:        table,
		nameColumn:   "title",
		parentColumn: "folder_id",
		columns:      []string{"type", "title", "folder_id", "content", "description", "tags", "search_text"},
		values:       spaceValues,
		scanner:      scanSpace,
	}
}

func spaceValues(s *Space) ([]any, error) {
	var folderID *string
	if s.FolderID != nil && *s.FolderID != "" {
		folderID = s.FolderID
	}
	body := []byte("{}")
	if s.Content != nil {
		raw, err := json.Marshal(s.Content)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
		body = raw
	}
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return []any{string(s.Type), s.Title, folderID, string(body), s.Description, string(rawTags), content.Text(s.Content)}, nil
}

func scanSpace() (*Space, []any, func() error) {
	s := &Space{}
	var (
		kind       string
		folderID   sql.NullString
		rawBody    []byte
		rawTags    []byte
		searchText string
	)
	dest := []any{&kind, &s.Title, &folderID, &rawBody, &s.Description, &rawTags, &searchText}
	finish := func() error {
		s.Type = content.Type(kind)
		if folderID.Valid {
			id := folderID.String
			s.FolderID = &id
		}
		body, err := content.New(s.Type)
		if err != nil {
			return fmt.Errorf("decode space %s: %w", s.ID, err)
		}
		if len(rawBody) > 0 {
			if err := json.Unmarshal(rawBody, body); err != nil {
				return fmt.Errorf("decode space %s content: %w", s.ID, err)
			}
		}
		s.Content = body
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &s.Tags); err != nil {
				return fmt.Errorf("decode space %s tags: %w", s.ID, err)
			}
			if len(s.Tags) == 0 {
				s.Tags = nil
			}
		}
		return nil
	}
	return s, dest, finish
}

func (g *PostgresGateway) DB() *sql.DB { return g.db }

func (g *PostgresGateway) Folders() ownership.Collection[*Folder] { return g.folders }
func (g *PostgresGateway) Spaces() SpaceCollection                { return g.spaces }
func (g *PostgresGateway) Topics() SpaceCollection                { return g.topics }
func (g *PostgresGateway) Users() UserStore                       { return g.users }

func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	return ApplyMigrations(ctx, g.db, Migrations)
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *PostgresGateway) Close(context.Context) error {
	return g.db.Close()
}

// pgCollection maps an entity onto a table whose leading columns are
// id, owner_id, created_at, updated_at followed by columns.
type pgCollection[E ownership.Entity] struct {
	db           *sql.DB
	table        string
	nameColumn   string
	parentColumn string
	columns      []string
	values       func(E) ([]any, error)
	// scanner returns a fresh entity, the scan targets for columns, and an
	// optional hook run after a successful scan.
	scanner func() (E, []any, func() error)
}

func (c *pgCollection[E]) Name() string { return c.table }

func (c *pgCollection[E]) selectList() string {
	return "id, owner_id, created_at, updated_at, " + strings.Join(c.columns, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *pgCollection[E]) scan(row rowScanner) (E, error) {
	entity, dest, finish := c.scanner()
	meta := entity.Metadata()
	var owner string
	targets := append([]any{&meta.ID, &owner, &meta.CreatedAt, &meta.UpdatedAt}, dest...)
	if err := row.Scan(targets...); err != nil {
		var zero E
		return zero, err
	}
	meta.OwnerID = ownership.UserID(owner)
	meta.CreatedAt = meta.CreatedAt.UTC()
	meta.UpdatedAt = meta.UpdatedAt.UTC()
	if finish != nil {
		if err := finish(); err != nil {
			var zero E
			return zero, err
		}
	}
	return entity, nil
}

func (c *pgCollection[E]) ExistsOwned(ctx context.Context, owner ownership.UserID, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1 AND owner_id=$2)`, c.table)
	if err := c.db.QueryRowContext(ctx, query, id, string(owner)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", c.table, err)
	}
	return exists, nil
}

func (c *pgCollection[E]) Find(ctx context.Context, q ownership.Query) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E
		where := "owner_id=$1"
		args := []any{string(q.OwnerID)}
		if c.parentColumn != "" && q.ParentID != nil {
			if *q.ParentID == "" {
				where += fmt.Sprintf(" AND %s IS NULL", c.parentColumn)
			} else {
				where += fmt.Sprintf(" AND %s=$2", c.parentColumn)
				args = append(args, *q.ParentID)
			}
		}
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s`, c.selectList(), c.table, where, c.orderBy(q.Sort))

		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, fmt.Errorf("list %s: %w", c.table, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entity, err := c.scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("scan %s: %w", c.table, err))
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("iterate %s: %w", c.table, err))
		}
	}
}

func (c *pgCollection[E]) orderBy(s ownership.Sort) string {
	switch s {
	case ownership.SortByName:
		return c.nameColumn + " ASC, seq ASC"
	case ownership.SortByUpdated:
		return "updated_at DESC, seq ASC"
	default:
		return "seq ASC"
	}
}

func (c *pgCollection[E]) FindOwned(ctx context.Context, owner ownership.UserID, id string) (E, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1 AND owner_id=$2`, c.selectList(), c.table)
	entity, err := c.scan(c.db.QueryRowContext(ctx, query, id, string(owner)))
	if errors.Is(err, sql.ErrNoRows) {
		var zero E
		return zero, ownership.ErrNotFoundOrUnauthorized
	}
	return entity, err
}

func (c *pgCollection[E]) Insert(ctx context.Context, entity E) error {
	meta := entity.Metadata()
	if meta.ID == "" {
		meta.ID = bson.NewObjectID().Hex()
	}
	values, err := c.values(entity)
	if err != nil {
		return err
	}
	args := append([]any{meta.ID, string(meta.OwnerID), meta.CreatedAt, meta.UpdatedAt}, values...)
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, c.table, c.selectList(), strings.Join(placeholders, ", "))
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (c *pgCollection[E]) ReplaceOwned(ctx context.Context, entity E) error {
	meta := entity.Metadata()
	values, err := c.values(entity)
	if err != nil {
		return err
	}
	sets := []string{"updated_at=$3"}
	args := append([]any{meta.ID, string(meta.OwnerID), meta.UpdatedAt}, values...)
	for i, column := range c.columns {
		sets = append(sets, fmt.Sprintf("%s=$%d", column, i+4))
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id=$1 AND owner_id=$2`, c.table, strings.Join(sets, ", "))
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (c *pgCollection[E]) DeleteOwned(ctx context.Context, owner ownership.UserID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1 AND owner_id=$2`, c.table)
	result, err := c.db.ExecContext(ctx, query, id, string(owner))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ownership.ErrNotFoundOrUnauthorized
	}
	return nil
}

type pgSpaces struct {
	*pgCollection[*Space]
}

func (c *pgSpaces) DeleteByFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id=$1 AND folder_id=$2`, c.table)
	result, err := c.db.ExecContext(ctx, query, string(owner), folderID)
	if err != nil {
		return 0, fmt.Errorf("delete %s in folder: %w", c.table, err)
	}
	return result.RowsAffected()
}

func (c *pgSpaces) UnfileFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET folder_id=NULL WHERE owner_id=$1 AND folder_id=$2`, c.table)
	result, err := c.db.ExecContext(ctx, query, string(owner), folderID)
	if err != nil {
		return 0, fmt.Errorf("unfile %s: %w", c.table, err)
	}
	return result.RowsAffected()
}

type pgUsers struct {
	db *sql.DB
}

func (u *pgUsers) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = bson.NewObjectID().Hex()
	}
	user.Email = strings.ToLower(user.Email)
	_, err := u.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (u *pgUsers) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return u.findOne(ctx, `WHERE email=$1`, strings.ToLower(email))
}

func (u *pgUsers) GetUserByID(ctx context.Context, id string) (User, error) {
	return u.findOne(ctx, `WHERE id=$1`, id)
}

func (u *pgUsers) findOne(ctx context.Context, where string, arg any) (User, error) {
	var user User
	err := u.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at, updated_at
		FROM users `+where, arg).
		Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
