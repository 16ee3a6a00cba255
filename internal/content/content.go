// Package content models the type-specific payload of a study space as a
// closed tagged union keyed by Type.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/FarisLab/StudySync/internal/validate"
)

// Type is the discriminator of a space's content.
type Type string

const (
	Notes      Type = "notes"
	Quiz       Type = "quiz"
	Flashcards Type = "flashcards"
	StudyGuide Type = "study-guide"
)

// Types lists every supported module kind.
var Types = []Type{Notes, Quiz, Flashcards, StudyGuide}

// Body is one variant of the union. The unexported method seals it.
type Body interface {
	Kind() Type
	isBody()
}

// ParseType normalizes and checks a module kind.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	if t == "" {
		return "", validate.Field("type", "type is a required field")
	}
	return "", validate.Field("type", fmt.Sprintf("type must be one of %s", joinTypes()))
}

// New returns an empty variant for t, ready to be decoded into by any codec.
func New(t Type) (Body, error) {
	switch t {
	case Notes:
		return &NotesContent{}, nil
	case Quiz:
		return &QuizContent{}, nil
	case Flashcards:
		return &FlashcardsContent{}, nil
	case StudyGuide:
		return &StudyGuideContent{}, nil
	default:
		return nil, validate.Field("type", fmt.Sprintf("type must be one of %s", joinTypes()))
	}
}

// DecodeJSON decodes raw into the variant selected by t and validates it.
// An absent or null payload yields the empty variant.
func DecodeJSON(t Type, raw json.RawMessage) (Body, error) {
	body, err := New(t)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, body); err != nil {
			return nil, validate.Field("content", fmt.Sprintf("content is not a valid %s payload", t))
		}
	}
	if err := Validate(body); err != nil {
		return nil, err
	}
	return body, nil
}

// Validate checks a variant's field constraints and refreshes derived fields.
func Validate(body Body) error {
	if body == nil {
		return validate.Field("content", "content is a required field")
	}
	if n, ok := body.(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := validate.Struct(body); err != nil {
		if ve, ok := err.(*validate.Error); ok {
			prefixed := &validate.Error{Fields: make(map[string]string, len(ve.Fields))}
			for key, msg := range ve.Fields {
				prefixed.Fields["content."+key] = msg
			}
			return prefixed
		}
		return err
	}
	return nil
}

// Text flattens a variant to plain text for search indexing.
func Text(body Body) string {
	var parts []string
	switch b := body.(type) {
	case *NotesContent:
		parts = append(parts, b.Text)
		parts = append(parts, b.Tags...)
	case *QuizContent:
		for _, q := range b.Questions {
			parts = append(parts, q.Question, q.Explanation)
		}
	case *FlashcardsContent:
		for _, c := range b.Cards {
			parts = append(parts, c.Front, c.Back)
		}
	case *StudyGuideContent:
		parts = append(parts, b.Objectives...)
		for _, s := range b.Sections {
			parts = append(parts, s.Title, s.Content)
		}
	}
	return strings.TrimSpace(strings.Join(nonBlank(parts), "\n"))
}

// Answer is a quiz answer; clients send either a string or an option index.
type Answer string

func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = Answer(s)
		return nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		*a = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("answer must be a string or a number")
	}
	*a = Answer(n.String())
	return nil
}

// Index returns the answer as an option index when it is numeric.
func (a Answer) Index() (int, bool) {
	n, err := strconv.Atoi(string(a))
	return n, err == nil
}

func joinTypes() string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func nonBlank(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy of body.
func Clone(body Body) (Body, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s content: %w", body.Kind(), err)
	}
	out, err := New(body.Kind())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", body.Kind(), err)
	}
	return out, nil
}
