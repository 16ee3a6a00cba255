package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/FarisLab/StudySync/internal/auth"
	"github.com/FarisLab/StudySync/internal/authpw"
	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/search"
	"github.com/FarisLab/StudySync/internal/session"
	"github.com/FarisLab/StudySync/internal/store"
	"github.com/FarisLab/StudySync/internal/validate"
)

// Deps are the collaborators of a Service. Store and Sessions are required.
// A nil Passwords is built over Store.Users(); a nil Search scans the store.
type Deps struct {
	Store     store.Gateway
	Sessions  *session.Manager
	Passwords *authpw.Service
	Search    *search.Service
	Log       zerolog.Logger
}

type Service struct {
	store     store.Gateway
	sessions  *session.Manager
	passwords *authpw.Service
	search    *search.Service
	log       zerolog.Logger
}

func New(deps Deps) *Service {
	if deps.Passwords == nil {
		deps.Passwords = authpw.NewService(deps.Store.Users())
	}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, search.FallbackFor(deps.Store), deps.Log)
	}
	return &Service{
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: deps.Passwords,
		search:    deps.Search,
		log:       deps.Log,
	}
}

// Module selects one of the two typed-module collections.
type Module struct {
	name           string
	kind           search.Kind
	folderRequired bool
}

var (
	Spaces = Module{name: store.CollectionSpaces, kind: search.KindSpace, folderRequired: true}
	Topics = Module{name: store.CollectionTopics, kind: search.KindTopic}
)

func (m Module) Name() string { return m.name }

func (s *Service) modules(m Module) store.SpaceCollection {
	if m.name == store.CollectionSpaces {
		return s.store.Spaces()
	}
	return s.store.Topics()
}

func (s *Service) Authenticate(r *http.Request) (ownership.UserID, error) {
	return ownership.Authenticate(r, s.sessions)
}

// Ping checks the persistence gateway and the session store.
func (s *Service) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"sessions": s.sessions.Store().Ping(ctx),
	}
}

// Folders

type FolderInput struct {
	Name  string `json:"name"`
	Theme string `json:"theme"`
	Icon  string `json:"icon"`
}

func (s *Service) ListFolders(ctx context.Context, owner ownership.UserID, sort ownership.Sort) ([]*store.Folder, error) {
	return ownership.Collect(ownership.ListOwned(ctx, s.store.Folders(), owner, ownership.Query{Sort: sort}))
}

func (s *Service) CreateFolder(ctx context.Context, owner ownership.UserID, in FolderInput) (*store.Folder, error) {
	folder, err := ownership.CreateOwned(ctx, s.store.Folders(), owner, &store.Folder{
		Name:  in.Name,
		Theme: in.Theme,
		Icon:  in.Icon,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.search.Index(search.FolderRecord(folder))
	return folder, nil
}

func (s *Service) GetFolder(ctx context.Context, owner ownership.UserID, id string) (*store.Folder, error) {
	return ownership.GetOwned(ctx, s.store.Folders(), owner, id)
}

func (s *Service) UpdateFolder(ctx context.Context, owner ownership.UserID, id string, patch FolderPatch) (*store.Folder, error) {
	folder, err := ownership.MutateOwned[*store.Folder](ctx, s.store.Folders(), owner, id, patch)
	if err != nil {
		return nil, err
	}
	s.search.Index(search.FolderRecord(folder))
	return folder, nil
}

// DeleteFolder removes the folder, deletes the spaces filed under it and
// unfiles its topics. Every step is scoped to owner.
func (s *Service) DeleteFolder(ctx context.Context, owner ownership.UserID, id string) error {
	if err := ownership.DeleteOwned(ctx, s.store.Folders(), owner, id); err != nil {
		return err
	}
	s.search.Delete(search.KindFolder, id)

	parent := id
	byFolder := ownership.Query{ParentID: &parent}
	spaces, err := ownership.Collect(ownership.ListOwned[*store.Space](ctx, s.store.Spaces(), owner, byFolder))
	if err != nil {
		return fmt.Errorf("list spaces of folder: %w", err)
	}
	topics, err := ownership.Collect(ownership.ListOwned[*store.Space](ctx, s.store.Topics(), owner, byFolder))
	if err != nil {
		return fmt.Errorf("list topics of folder: %w", err)
	}

	deleted, err := s.store.Spaces().DeleteByFolder(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("delete spaces of folder: %w", err)
	}
	unfiled, err := s.store.Topics().UnfileFolder(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("unfile topics of folder: %w", err)
	}

	ids := make([]string, 0, len(spaces))
	for _, space := range spaces {
		ids = append(ids, space.ID)
	}
	s.search.Delete(search.KindSpace, ids...)
	records := make([]search.Record, 0, len(topics))
	for _, topic := range topics {
		topic.FolderID = nil
		records = append(records, search.ModuleRecord(search.KindTopic, topic))
	}
	s.search.Index(records...)

	s.log.Debug().
		Str("folder_id", id).
		Int64("spaces_deleted", deleted).
		Int64("topics_unfiled", unfiled).
		Msg("folder deleted")
	return nil
}

// Spaces and topics

// ListModules lists the owner's spaces or topics, newest change first by
// default. folderID must name an owned folder; spaces require it.
func (s *Service) ListModules(ctx context.Context, owner ownership.UserID, m Module, folderID *string, sort ownership.Sort) ([]*store.Space, error) {
	if owner == "" {
		return nil, ownership.ErrUnauthenticated
	}
	q := ownership.Query{Sort: sort}
	if folderID != nil {
		id := strings.TrimSpace(*folderID)
		if !validate.ObjectID(id) {
			return nil, validate.Field("folderId", "folderId must be a valid identifier")
		}
		if err := ownership.RequireOwnedParent(ctx, s.store.Folders(), owner, id); err != nil {
			return nil, err
		}
		q.ParentID = &id
	} else if m.folderRequired {
		return nil, validate.Field("folderId", "folderId is a required field")
	}
	return ownership.Collect(ownership.ListOwned[*store.Space](ctx, s.modules(m), owner, q))
}

func (s *Service) CreateModule(ctx context.Context, owner ownership.UserID, m Module, in ModuleInput) (*store.Space, error) {
	if owner == "" {
		return nil, ownership.ErrUnauthenticated
	}
	entity, err := in.build(m)
	if err != nil {
		return nil, err
	}
	var parent *ownership.ParentRef
	if entity.FolderID != nil {
		parent = &ownership.ParentRef{Lookup: s.store.Folders(), ID: *entity.FolderID}
	}
	created, err := ownership.CreateOwned[*store.Space](ctx, s.modules(m), owner, entity, parent)
	if err != nil {
		return nil, err
	}
	s.search.Index(search.ModuleRecord(m.kind, created))
	return created, nil
}

func (s *Service) GetModule(ctx context.Context, owner ownership.UserID, m Module, id string) (*store.Space, error) {
	return ownership.GetOwned[*store.Space](ctx, s.modules(m), owner, id)
}

// UpdateModule applies patch. A new folderId must name an owned folder.
func (s *Service) UpdateModule(ctx context.Context, owner ownership.UserID, m Module, id string, patch ModulePatch) (*store.Space, error) {
	if owner == "" {
		return nil, ownership.ErrUnauthenticated
	}
	patch.folderRequired = m.folderRequired
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if folder := patch.FolderID.id(); folder != nil {
		if err := ownership.RequireOwnedParent(ctx, s.store.Folders(), owner, *folder); err != nil {
			return nil, err
		}
	}
	updated, err := ownership.MutateOwned[*store.Space](ctx, s.modules(m), owner, id, patch)
	if err != nil {
		return nil, err
	}
	s.search.Index(search.ModuleRecord(m.kind, updated))
	return updated, nil
}

func (s *Service) DeleteModule(ctx context.Context, owner ownership.UserID, m Module, id string) error {
	if err := ownership.DeleteOwned[*store.Space](ctx, s.modules(m), owner, id); err != nil {
		return err
	}
	s.search.Delete(m.kind, id)
	return nil
}

// Search

func (s *Service) Search(ctx context.Context, owner ownership.UserID, q search.Query) (search.Response, error) {
	if owner == "" {
		return search.Response{}, ownership.ErrUnauthenticated
	}
	q.OwnerID = string(owner)
	return s.search.Search(ctx, q), nil
}

// Accounts and sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	return s.passwords.SignUp(ctx, req)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (session.Tokens, error) {
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return session.Tokens{}, err
	}
	return s.sessions.Issue(ctx, user.ID, user.DisplayName)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

// Session resolves the caller's access token claims.
func (s *Service) Session(r *http.Request) (auth.Claims, error) {
	return s.sessions.Resolve(r)
}

// Logout revokes refreshToken and, when the request carries a valid access
// token, that token too.
func (s *Service) Logout(r *http.Request, refreshToken string) error {
	var claims *auth.Claims
	if resolved, err := s.sessions.Resolve(r); err == nil {
		claims = &resolved
	} else if !session.IsUnauthenticated(err) {
		return err
	}
	return s.sessions.Logout(r.Context(), refreshToken, claims)
}

// collect folds err into errs. Errors that are not validation errors are
// kept under "body".
func collect(errs *validate.Error, err error) {
	if err == nil {
		return
	}
	var ve *validate.Error
	if errors.As(err, &ve) {
		maps.Copy(errs.Fields, ve.Fields)
		return
	}
	errs.Fields["body"] = err.Error()
}
