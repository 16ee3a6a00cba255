package search

import (
	"strings"

	"github.com/FarisLab/StudySync/internal/content"
	"github.com/FarisLab/StudySync/internal/store"
)

// FolderRecord builds the index record for a folder.
func FolderRecord(f *store.Folder) Record {
	return Record{
		Key:     recordKey(KindFolder, f.ID),
		Kind:    KindFolder,
		ID:      f.ID,
		OwnerID: string(f.OwnerID),
		Title:   f.Name,
	}
}

// ModuleRecord builds the index record for a space or topic.
func ModuleRecord(kind Kind, s *store.Space) Record {
	parts := []string{s.Description}
	if s.Content != nil {
		parts = append(parts, content.Text(s.Content))
	}
	parts = append(parts, s.Tags...)
	rec := Record{
		Key:     recordKey(kind, s.ID),
		Kind:    kind,
		ID:      s.ID,
		OwnerID: string(s.OwnerID),
		Title:   s.Title,
		Body:    strings.TrimSpace(strings.Join(parts, "\n")),
	}
	if s.FolderID != nil {
		rec.FolderID = *s.FolderID
	}
	return rec
}

const snippetWords = 30

// snippet cuts text down to a window of words around the first match of term.
func snippet(text, term string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	start := 0
	if term != "" {
		lower := strings.ToLower(term)
		for i, w := range words {
			if strings.Contains(strings.ToLower(w), lower) {
				start = max(i-snippetWords/3, 0)
				break
			}
		}
	}
	end := min(start+snippetWords, len(words))
	out := strings.Join(words[start:end], " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(words) {
		out += "…"
	}
	return out
}
