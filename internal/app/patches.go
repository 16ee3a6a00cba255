package app

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/store"
	"github.com/FarisLab/StudySync/internal/validate"
)

// OptionalID distinguishes an absent JSON field from an explicit null.
type OptionalID struct {
	Set   bool
	Value *string
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// id returns the trimmed identifier, or nil for null, blank or absent.
func (o OptionalID) id() *string {
	if !o.Set {
		return nil
	}
	return normalizeID(o.Value)
}

func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func checkID(field string, id *string) error {
	if id != nil && !validate.ObjectID(*id) {
		return validate.Field(field, field+" must be a valid identifier")
	}
	return nil
}

// FolderPatch is a partial folder update. Absent fields are left alone.
type FolderPatch struct {
	Name  *string `json:"name"`
	Theme *string `json:"theme"`
	Icon  *string `json:"icon"`
}

// Validate checks every supplied field, so a bad theme or icon is rejected
// before the folder is read. A blank theme or icon resets to the default.
func (p FolderPatch) Validate() error {
	if p.Name == nil && p.Theme == nil && p.Icon == nil {
		return validate.Field("body", "at least one of name, theme or icon is required")
	}
	errs := &validate.Error{Fields: map[string]string{}}
	if p.Name != nil {
		collect(errs, validate.Var("name", *p.Name, "notblank"))
	}
	if p.Theme != nil {
		if theme := strings.ToLower(strings.TrimSpace(*p.Theme)); theme != "" {
			collect(errs, validate.Var("theme", theme, "folder_theme"))
		}
	}
	if p.Icon != nil {
		if icon := strings.TrimSpace(*p.Icon); icon != "" {
			collect(errs, validate.Var("icon", icon, "folder_icon"))
		}
	}
	if len(errs.Fields) > 0 {
		return errs
	}
	return nil
}

func (p FolderPatch) Apply(f *store.Folder) error {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.Theme != nil {
		f.Theme = *p.Theme
	}
	if p.Icon != nil {
		f.Icon = *p.Icon
	}
	return nil
}

// ModuleInput is the create payload of a space or topic.
type ModuleInput struct {
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	FolderID    *string         `json:"folderId"`
	Content     json.RawMessage `json:"content"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
}

// build decodes the content against the type and validates the result,
// reporting every field problem at once.
func (in ModuleInput) build(m Module) (*store.Space, error) {
	errs := &validate.Error{Fields: map[string]string{}}
	entity := &store.Space{
		Type:        content.Type(in.Type),
		Title:       in.Title,
		FolderID:    normalizeID(in.FolderID),
		Description: in.Description,
		Tags:        in.Tags,
	}
	if kind, err := content.ParseType(in.Type); err == nil {
		entity.Type = kind
		body, err := content.DecodeJSON(kind, in.Content)
		collect(errs, err)
		entity.Content = body
	}
	if m.folderRequired && entity.FolderID == nil {
		errs.Fields["folderId"] = "folderId is a required field"
	}
	collect(errs, entity.Validate())
	if len(errs.Fields) > 0 {
		return nil, errs
	}
	return entity, nil
}

// ModulePatch is a partial space or topic update. The type is fixed at
// creation; content is decoded against it. A null content resets it to the
// empty variant; a null folderId unfiles a topic.
type ModulePatch struct {
	Type        *string         `json:"type"`
	Title       *string         `json:"title"`
	Content     json.RawMessage `json:"content"`
	Description *string         `json:"description"`
	Tags        *[]string       `json:"tags"`
	FolderID    OptionalID      `json:"folderId"`

	folderRequired bool
}

func (p ModulePatch) empty() bool {
	return p.Type == nil && p.Title == nil && p.Content == nil && p.Description == nil && p.Tags == nil && !p.FolderID.Set
}

func (p ModulePatch) Validate() error {
	if p.empty() {
		return validate.Field("body", "at least one field is required")
	}
	errs := &validate.Error{Fields: map[string]string{}}
	if p.Title != nil {
		collect(errs, validate.Var("title", *p.Title, "notblank"))
	}
	if p.Type != nil {
		_, err := content.ParseType(*p.Type)
		collect(errs, err)
	}
	if p.FolderID.Set {
		id := p.FolderID.id()
		if id == nil && p.folderRequired {
			errs.Fields["folderId"] = "folderId is a required field"
		}
		collect(errs, checkID("folderId", id))
	}
	if len(errs.Fields) > 0 {
		return errs
	}
	return nil
}

func (p ModulePatch) Apply(s *store.Space) error {
	if p.Type != nil {
		if kind, _ := content.ParseType(*p.Type); kind != s.Type {
			return validate.Field("type", "type cannot be changed")
		}
	}
	if p.Content != nil {
		body, err := content.DecodeJSON(s.Type, p.Content)
		if err != nil {
			return err
		}
		s.Content = body
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Tags != nil {
		s.Tags = *p.Tags
	}
	if p.FolderID.Set {
		s.FolderID = p.FolderID.id()
	}
	return nil
}
