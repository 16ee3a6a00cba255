package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/search"
	"github.com/FarisLab/StudySync/internal/validate"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	log        zerolog.Logger
	corsOrigin string
}

func NewHTTPServer(service *Service, log zerolog.Logger, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, log: log, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	// Routes are registered with their full /api path on one router; a
	// PathPrefix subrouter reports method mismatches as not found.
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	// Auth routes (no session required)
	router.HandleFunc("/api/auth/signup", s.handleAuthSignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/signin", s.handleAuthSignIn).Methods(http.MethodPost)
	router.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	router.HandleFunc("/api/session/refresh", s.handleSessionRefresh).Methods(http.MethodPost)
	router.HandleFunc("/api/session/logout", s.handleSessionLogout).Methods(http.MethodPost)

	router.HandleFunc("/api/folders", s.handleListFolders).Methods(http.MethodGet)
	router.HandleFunc("/api/folders", s.handleCreateFolder).Methods(http.MethodPost)
	router.HandleFunc("/api/folders", s.handlePatchFolderByBody).Methods(http.MethodPatch)
	router.HandleFunc("/api/folders", s.handleDeleteFolderByQuery).Methods(http.MethodDelete)
	router.HandleFunc("/api/folders/{id}", s.handleGetFolder).Methods(http.MethodGet)
	router.HandleFunc("/api/folders/{id}", s.handlePatchFolder).Methods(http.MethodPatch)
	router.HandleFunc("/api/folders/{id}", s.handleDeleteFolder).Methods(http.MethodDelete)

	for _, m := range []Module{Spaces, Topics} {
		s.routeModule(router, m)
	}

	router.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)

	return s.withMiddleware(router)
}

func (s *HTTPServer) routeModule(router *mux.Router, m Module) {
	base := "/api/" + m.Name()
	router.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) { s.handleListModules(w, r, m) }).Methods(http.MethodGet)
	router.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) { s.handleCreateModule(w, r, m) }).Methods(http.MethodPost)
	router.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) { s.handleGetModule(w, r, m) }).Methods(http.MethodGet)
	router.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) { s.handlePatchModule(w, r, m) }).Methods(http.MethodPatch)
	router.HandleFunc(base+"/{id}", func(w http.ResponseWriter, r *http.Request) { s.handleDeleteModule(w, r, m) }).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ping(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// Folders

func (s *HTTPServer) handleListFolders(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	sort := ownership.ParseSort(r.URL.Query().Get("sort"), ownership.SortByName)
	folders, err := s.service.ListFolders(r.Context(), owner, sort)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *HTTPServer) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body FolderInput
	if !s.decode(w, r, &body) {
		return
	}
	folder, err := s.service.CreateFolder(r.Context(), owner, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (s *HTTPServer) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	folder, err := s.service.GetFolder(r.Context(), owner, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (s *HTTPServer) handlePatchFolder(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body FolderPatch
	if !s.decode(w, r, &body) {
		return
	}
	s.patchFolder(w, r, owner, id, body)
}

// handlePatchFolderByBody serves PATCH /api/folders with the id in the body.
func (s *HTTPServer) handlePatchFolderByBody(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body struct {
		ID string `json:"id"`
		FolderPatch
	}
	if !s.decode(w, r, &body) {
		return
	}
	id, err := requiredID("id", body.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.patchFolder(w, r, owner, id, body.FolderPatch)
}

func (s *HTTPServer) patchFolder(w http.ResponseWriter, r *http.Request, owner ownership.UserID, id string, patch FolderPatch) {
	if _, err := s.service.UpdateFolder(r.Context(), owner, id, patch); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.deleteFolder(w, r, owner, id)
}

// handleDeleteFolderByQuery serves DELETE /api/folders?id=.
func (s *HTTPServer) handleDeleteFolderByQuery(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, err := requiredID("id", r.URL.Query().Get("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deleteFolder(w, r, owner, id)
}

func (s *HTTPServer) deleteFolder(w http.ResponseWriter, r *http.Request, owner ownership.UserID, id string) {
	if err := s.service.DeleteFolder(r.Context(), owner, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Spaces and topics

func (s *HTTPServer) handleListModules(w http.ResponseWriter, r *http.Request, m Module) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	var folderID *string
	if value := strings.TrimSpace(query.Get("folderId")); value != "" {
		folderID = &value
	}
	sort := ownership.ParseSort(query.Get("sort"), ownership.SortByUpdated)
	items, err := s.service.ListModules(r.Context(), owner, m, folderID, sort)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleCreateModule(w http.ResponseWriter, r *http.Request, m Module) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	var body ModuleInput
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.service.CreateModule(r.Context(), owner, m, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGetModule(w http.ResponseWriter, r *http.Request, m Module) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.service.GetModule(r.Context(), owner, m, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handlePatchModule(w http.ResponseWriter, r *http.Request, m Module) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body ModulePatch
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.service.UpdateModule(r.Context(), owner, m, id, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleDeleteModule(w http.ResponseWriter, r *http.Request, m Module) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteModule(r.Context(), owner, m, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	kind, ok := search.ParseKind(query.Get("type"))
	if !ok {
		s.fail(w, r, validate.Field("type", "type must be one of folder, space or topic"))
		return
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.fail(w, r, validate.Field("limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	resp, err := s.service.Search(r.Context(), owner, search.Query{
		Text:  strings.TrimSpace(query.Get("q")),
		Kind:  kind,
		Limit: limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireSession authenticates the request, writing the error response
// itself when it fails.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (ownership.UserID, bool) {
	owner, err := s.service.Authenticate(r)
	if err != nil {
		s.fail(w, r, err)
		return "", false
	}
	return owner, true
}

// fail writes err using the error contract. Errors outside it are logged
// with the request id and reported as a generic server error.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details, known := mapError(err)
	if !known {
		s.log.Error().
			Err(err).
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeBody(r, target); err != nil {
		s.fail(w, r, err)
		return false
	}
	return true
}

// pathID reads the {id} route variable. Identifiers that cannot exist are
// reported as not found.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if !validate.ObjectID(id) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return "", false
	}
	return id, true
}

func requiredID(field, value string) (string, error) {
	id := strings.TrimSpace(value)
	if id == "" {
		return "", validate.Field(field, field+" is a required field")
	}
	if !validate.ObjectID(id) {
		return "", validate.Field(field, field+" must be a valid identifier")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return errInvalidBody
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
		}
		return errInvalidBody
	}
	return nil
}
