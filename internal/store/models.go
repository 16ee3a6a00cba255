package store

import (
	"strings"
	"time"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/ownership"
	"github.com/FarisLab/StudySync/internal/validate"
)

const (
	DefaultTheme = "default"
	DefaultIcon  = "Folder"
)

var (
	Themes = []string{DefaultTheme, "lime", "lychee", "mango", "plum", "blueberry", "kiwi", "pitaya", "smoothie", "macaron"}
	Icons  = []string{"Computer Mouse", "Photo Stack", "Camera", "Eraser", "Test Tube", "Trash", DefaultIcon, "Paperplane", "Tray"}
)

func init() {
	validate.RegisterSet("folder_theme", Themes...)
	validate.RegisterSet("folder_icon", Icons...)
}

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Folder struct {
	ownership.Meta
	Name  string `json:"name" validate:"notblank,max=120"`
	Theme string `json:"theme" validate:"folder_theme"`
	Icon  string `json:"icon" validate:"folder_icon"`
}

func (f *Folder) Metadata() *ownership.Meta { return &f.Meta }

// Validate normalizes the folder in place before checking it: the name is
// trimmed, the theme lower-cased, and empty theme or icon get defaults.
func (f *Folder) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Theme = strings.ToLower(strings.TrimSpace(f.Theme))
	if f.Theme == "" {
		f.Theme = DefaultTheme
	}
	f.Icon = strings.TrimSpace(f.Icon)
	if f.Icon == "" {
		f.Icon = DefaultIcon
	}
	return validate.Struct(f)
}

// Space is a typed study module. Topics share this shape; a topic's FolderID
// may be nil, a space's never is once created.
type Space struct {
	ownership.Meta
	Type        content.Type `json:"type"`
	Title       string       `json:"title" validate:"notblank,max=200"`
	FolderID    *string      `json:"folderId"`
	Content     content.Body `json:"content" validate:"-"`
	Description string       `json:"description,omitempty" validate:"max=2000"`
	Tags        []string     `json:"tags,omitempty" validate:"omitempty,max=32,dive,notblank,max=64"`
}

func (s *Space) Metadata() *ownership.Meta { return &s.Meta }

// Validate checks the type discriminator, fills an empty content with the
// zero variant and validates the content against the type.
func (s *Space) Validate() error {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	errs := &validate.Error{Fields: map[string]string{}}

	kind, err := content.ParseType(string(s.Type))
	merge(errs, err)
	if err == nil {
		s.Type = kind
		if s.Content == nil {
			s.Content, _ = content.New(kind)
		}
		if s.Content.Kind() != kind {
			merge(errs, validate.Field("content", "content does not match type "+string(kind)))
		} else {
			merge(errs, content.Validate(s.Content))
		}
	}
	if s.FolderID != nil && !validate.ObjectID(*s.FolderID) {
		merge(errs, validate.Field("folderId", "folderId must be a valid identifier"))
	}
	merge(errs, validate.Struct(s))

	if len(errs.Fields) > 0 {
		return errs
	}
	return nil
}

func (s *Space) clone() *Space {
	out := *s
	if s.FolderID != nil {
		id := *s.FolderID
		out.FolderID = &id
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.Content != nil {
		body, err := content.Clone(s.Content)
		if err == nil {
			out.Content = body
		}
	}
	return &out
}

// merge folds err into errs. Non-validation errors are kept under "body".
func merge(errs *validate.Error, err error) {
	if err == nil {
		return
	}
	ve, ok := err.(*validate.Error)
	if !ok {
		errs.Fields["body"] = err.Error()
		return
	}
	for key, msg := range ve.Fields {
		errs.Fields[key] = msg
	}
}
