package collection

import (
	"fmt"
	"slices"
	"strings"

	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
)

// FolderKeys maps the skills that organize notes into category folders to their collection.
var FolderKeys = map[string]string{
	"speaking": KeySpeakingNotes,
	"writing":  KeyWritingNotes,
}

// FolderKey returns the collection key of a skill that supports folders.
func FolderKey(skill string) (string, error) {
	key, ok := FolderKeys[strings.ToLower(strings.TrimSpace(skill))]
	if !ok {
		return "", fmt.Errorf("skill %q has no folders: use speaking or writing", skill)
	}
	return key, nil
}

// Folder is a category and the number of real notes in it.
type Folder struct {
	Category  string
	NoteCount int
}

// Folders lists the categories of notes in first-seen order.
func Folders(notes []notebook.Note) []Folder {
	var folders []Folder
	index := map[string]int{}
	for _, n := range notes {
		category := n.Category()
		if category == "" {
			continue
		}
		i, ok := index[category]
		if !ok {
			i = len(folders)
			index[category] = i
			folders = append(folders, Folder{Category: category})
		}
		if !n.IsPlaceholder() {
			folders[i].NoteCount++
		}
	}
	return folders
}

// CreateFolder appends a placeholder note so an empty folder survives a reload.
// It is a no-op when the category already exists.
func CreateFolder(notes []notebook.Note, category string, newID func() string, date string) ([]notebook.Note, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("folder name is empty")
	}
	if slices.ContainsFunc(notes, func(n notebook.Note) bool { return n.Category() == category }) {
		return notes, nil
	}

	placeholder := notebook.Note{
		ID:           newID(),
		QuestionType: notebook.QuestionTypeOther,
		KeyPoints:    []string{},
		Date:         date,
		Extra: map[string]any{
			"category":          category,
			"secondaryCategory": notebook.PlaceholderCategory,
			"isPlaceholder":     true,
		},
		SchemaVersion: notebook.CurrentSchemaVersion,
	}
	return append(slices.Clone(notes), placeholder), nil
}

// DeleteFolder removes every note of category, placeholders included, and
// returns the remaining notes and the removed ids.
func DeleteFolder(notes []notebook.Note, category string) ([]notebook.Note, []string) {
	remaining := make([]notebook.Note, 0, len(notes))
	var removed []string
	for _, n := range notes {
		if n.Category() == category {
			removed = append(removed, n.ID)
			continue
		}
		remaining = append(remaining, n)
	}
	return remaining, removed
}
