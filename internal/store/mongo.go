package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
)

// MongoGateway stores each entity kind in its own collection. Documents keep
// the owner under userId and folder references as ObjectIDs.
type MongoGateway struct {
	client  *mongo.Client
	db      *mongo.Database
	folders *mongoCollection[*Folder]
	spaces  *mongoSpaces
	topics  *mongoSpaces
	users   *mongoUsers
}

func OpenMongo(ctx context.Context, uri, database string, maxPoolSize uint64) (*MongoGateway, error) {
	opts := options.Client().ApplyURI(uri)
	if maxPoolSize > 0 {
		opts.SetMaxPoolSize(maxPoolSize)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoGateway(client, database), nil
}

func NewMongoGateway(client *mongo.Client, database string) *MongoGateway {
	db := client.Database(database)
	return &MongoGateway{
		client: client,
		db:     db,
		folders: &mongoCollection[*Folder]{
			name:      CollectionFolders,
			coll:      db.Collection(CollectionFolders),
			nameField: "name",
			encode:    encodeFolder,
			decode:    decodeFolder,
		},
		spaces: &mongoSpaces{newMongoSpaces(db, CollectionSpaces)},
		topics: &mongoSpaces{newMongoSpaces(db, CollectionTopics)},
		users:  &mongoUsers{coll: db.Collection(CollectionUsers)},
	}
}

func newMongoSpaces(db *mongo.Database, name string) *mongoCollection[*Space] {
	return &mongoCollection[*Space]{
		name:      name,
		coll:      db.Collection(name),
		nameField: "title",
		hasParent: true,
		encode:    encodeSpace,
		decode:    decodeSpace,
	}
}

func (g *MongoGateway) Folders() ownership.Collection[*Folder] { return g.folders }
func (g *MongoGateway) Spaces() SpaceCollection                { return g.spaces }
func (g *MongoGateway) Topics() SpaceCollection                { return g.topics }
func (g *MongoGateway) Users() UserStore                       { return g.users }

func (g *MongoGateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx, nil)
}

func (g *MongoGateway) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}

// EnsureSchema creates the owner-scoped indexes every list and lookup uses.
func (g *MongoGateway) EnsureSchema(ctx context.Context) error {
	owned := func(extra ...bson.E) mongo.IndexModel {
		keys := bson.D{{Key: "userId", Value: 1}}
		keys = append(keys, extra...)
		return mongo.IndexModel{Keys: keys}
	}
	indexes := map[string][]mongo.IndexModel{
		CollectionFolders: {
			owned(bson.E{Key: "name", Value: 1}),
		},
		CollectionSpaces: {
			owned(bson.E{Key: "folderId", Value: 1}, bson.E{Key: "updatedAt", Value: -1}),
		},
		CollectionTopics: {
			owned(bson.E{Key: "folderId", Value: 1}, bson.E{Key: "updatedAt", Value: -1}),
			owned(bson.E{Key: "updatedAt", Value: -1}),
		},
		CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, models := range indexes {
		if _, err := g.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}

type folderDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	UserID    string        `bson:"userId"`
	Name      string        `bson:"name"`
	Theme     string        `bson:"theme"`
	Icon      string        `bson:"icon"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

type spaceDoc struct {
	ID          bson.ObjectID  `bson:"_id"`
	UserID      string         `bson:"userId"`
	Type        string         `bson:"type"`
	Title       string         `bson:"title"`
	FolderID    *bson.ObjectID `bson:"folderId"`
	Content     bson.Raw       `bson:"content,omitempty"`
	Description string         `bson:"description,omitempty"`
	Tags        []string       `bson:"tags,omitempty"`
	CreatedAt   time.Time      `bson:"createdAt"`
	UpdatedAt   time.Time      `bson:"updatedAt"`
}

func encodeFolder(f *Folder) (any, error) {
	id, err := bson.ObjectIDFromHex(f.ID)
	if err != nil {
		return nil, fmt.Errorf("folder id %q: %w", f.ID, err)
	}
	return folderDoc{
		ID:        id,
		UserID:    string(f.OwnerID),
		Name:      f.Name,
		Theme:     f.Theme,
		Icon:      f.Icon,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

func decodeFolder(raw bson.Raw) (*Folder, error) {
	var doc folderDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode folder: %w", err)
	}
	return &Folder{
		Meta: ownership.Meta{
			ID:        doc.ID.Hex(),
			OwnerID:   ownership.UserID(doc.UserID),
			CreatedAt: doc.CreatedAt.UTC(),
			UpdatedAt: doc.UpdatedAt.UTC(),
		},
		Name:  doc.Name,
		Theme: doc.Theme,
		Icon:  doc.Icon,
	}, nil
}

func encodeSpace(s *Space) (any, error) {
	id, err := bson.ObjectIDFromHex(s.ID)
	if err != nil {
		return nil, fmt.Errorf("space id %q: %w", s.ID, err)
	}
	doc := spaceDoc{
		ID:          id,
		UserID:      string(s.OwnerID),
		Type:        string(s.Type),
		Title:       s.Title,
		Description: s.Description,
		Tags:        s.Tags,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.FolderID != nil && *s.FolderID != "" {
		folderID, err := bson.ObjectIDFromHex(*s.FolderID)
		if err != nil {
			return nil, fmt.Errorf("folder id %q: %w", *s.FolderID, err)
		}
		doc.FolderID = &folderID
	}
	if s.Content != nil {
		raw, err := bson.Marshal(s.Content)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
		doc.Content = raw
	}
	return doc, nil
}

func decodeSpace(raw bson.Raw) (*Space, error) {
	var doc spaceDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode space: %w", err)
	}
	body, err := content.New(content.Type(doc.Type))
	if err != nil {
		return nil, fmt.Errorf("decode space %s: %w", doc.ID.Hex(), err)
	}
	if len(doc.Content) > 0 {
		if err := bson.Unmarshal(doc.Content, body); err != nil {
			return nil, fmt.Errorf("decode space %s content: %w", doc.ID.Hex(), err)
		}
	}
	s := &Space{
		Meta: ownership.Meta{
			ID:        doc.ID.Hex(),
			OwnerID:   ownership.UserID(doc.UserID),
			CreatedAt: doc.CreatedAt.UTC(),
			UpdatedAt: doc.UpdatedAt.UTC(),
		},
		Type:        content.Type(doc.Type),
		Title:       doc.Title,
		Content:     body,
		Description: doc.Description,
		Tags:        doc.Tags,
	}
	if doc.FolderID != nil {
		folderID := doc.FolderID.Hex()
		s.FolderID = &folderID
	}
	return s, nil
}

type mongoCollection[E ownership.Entity] struct {
	name      string
	coll      *mongo.Collection
	nameField string
	hasParent bool
	encode    func(E) (any, error)
	decode    func(bson.Raw) (E, error)
}

func (c *mongoCollection[E]) Name() string { return c.name }

// ownedFilter returns false when id cannot name any document.
func ownedFilter(owner ownership.UserID, id string) (bson.M, bool) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "userId": string(owner)}, true
}

func (c *mongoCollection[E]) ExistsOwned(ctx context.Context, owner ownership.UserID, id string) (bool, error) {
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return false, nil
	}
	n, err := c.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *mongoCollection[E]) Find(ctx context.Context, q ownership.Query) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		var zero E
		filter := bson.M{"userId": string(q.OwnerID)}
		if c.hasParent && q.ParentID != nil {
			if *q.ParentID == "" {
				filter["folderId"] = nil
			} else {
				oid, err := bson.ObjectIDFromHex(*q.ParentID)
				if err != nil {
					return
				}
				filter["folderId"] = oid
			}
		}

		cursor, err := c.coll.Find(ctx, filter, options.Find().SetSort(c.sortFor(q.Sort)))
		if err != nil {
			yield(zero, err)
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			entity, err := c.decode(cursor.Current)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(zero, err)
		}
	}
}

// sortFor breaks ties on _id. ObjectIDs grow with insertion time, so _id
// alone gives insertion order.
func (c *mongoCollection[E]) sortFor(s ownership.Sort) bson.D {
	switch s {
	case ownership.SortByName:
		return bson.D{{Key: c.nameField, Value: 1}, {Key: "_id", Value: 1}}
	case ownership.SortByUpdated:
		return bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "_id", Value: 1}}
	}
}

func (c *mongoCollection[E]) FindOwned(ctx context.Context, owner ownership.UserID, id string) (E, error) {
	var zero E
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return zero, ownership.ErrNotFoundOrUnauthorized
	}
	raw, err := c.coll.FindOne(ctx, filter).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, ownership.ErrNotFoundOrUnauthorized
	}
	if err != nil {
		return zero, err
	}
	return c.decode(raw)
}

func (c *mongoCollection[E]) Insert(ctx context.Context, entity E) error {
	meta := entity.Metadata()
	if meta.ID == "" {
		meta.ID = bson.NewObjectID().Hex()
	}
	doc, err := c.encode(entity)
	if err != nil {
		return err
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (c *mongoCollection[E]) ReplaceOwned(ctx context.Context, entity E) error {
	meta := entity.Metadata()
	filter, ok := ownedFilter(meta.OwnerID, meta.ID)
	if !ok {
		return ownership.ErrNotFoundOrUnauthorized
	}
	doc, err := c.encode(entity)
	if err != nil {
		return err
	}
	result, err := c.coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ownership.ErrNotFoundOrUnauthorized
	}
	return nil
}

func (c *mongoCollection[E]) DeleteOwned(ctx context.Context, owner ownership.UserID, id string) error {
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return ownership.ErrNotFoundOrUnauthorized
	}
	result, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ownership.ErrNotFoundOrUnauthorized
	}
	return nil
}

type mongoSpaces struct {
	*mongoCollection[*Space]
}

func folderFilter(owner ownership.UserID, folderID string) (bson.M, bool) {
	oid, err := bson.ObjectIDFromHex(folderID)
	if err != nil {
		return nil, false
	}
	return bson.M{"userId": string(owner), "folderId": oid}, true
}

func (c *mongoSpaces) DeleteByFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error) {
	filter, ok := folderFilter(owner, folderID)
	if !ok {
		return 0, nil
	}
	result, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete %s in folder: %w", c.name, err)
	}
	return result.DeletedCount, nil
}

func (c *mongoSpaces) UnfileFolder(ctx context.Context, owner ownership.UserID, folderID string) (int64, error) {
	filter, ok := folderFilter(owner, folderID)
	if !ok {
		return 0, nil
	}
	result, err := c.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"folderId": nil}})
	if err != nil {
		return 0, fmt.Errorf("unfile %s: %w", c.name, err)
	}
	return result.ModifiedCount, nil
}

type userDoc struct {
	ID           bson.ObjectID `bson:"_id"`
	Email        string        `bson:"email"`
	DisplayName  string        `bson:"displayName"`
	PasswordHash string        `bson:"passwordHash"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
}

func (d userDoc) user() User {
	return User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		DisplayName:  d.DisplayName,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type mongoUsers struct {
	coll *mongo.Collection
}

func (u *mongoUsers) CreateUser(ctx context.Context, user User) (User, error) {
	doc := userDoc{
		ID:           bson.NewObjectID(),
		Email:        strings.ToLower(user.Email),
		DisplayName:  user.DisplayName,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := u.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.user(), nil
}

func (u *mongoUsers) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return u.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (u *mongoUsers) GetUserByID(ctx context.Context, id string) (User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return u.findOne(ctx, bson.M{"_id": oid})
}

func (u *mongoUsers) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc userDoc
	err := u.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.user(), nil
}
