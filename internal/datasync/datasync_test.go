package datasync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_datasync "github.com/at-ishikawa/ieltsnotes/internal/mocks/datasync"
	mock_notebook "github.com/at-ishikawa/ieltsnotes/internal/mocks/notebook"
	mock_practice "github.com/at-ishikawa/ieltsnotes/internal/mocks/practice"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)

func newTestNormalizer() *notebook.Normalizer {
	var mu sync.Mutex
	seq := 0
	return notebook.NewNormalizer(
		notebook.WithClock(func() time.Time { return fixedNow }),
		notebook.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("note_1714979289123_%09d", seq)
		}),
		notebook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

type mocks struct {
	notes    *mock_notebook.MockNoteRepository
	backups  *mock_notebook.MockBackupRepository
	practice *mock_practice.MockRepository
	audio    *mock_datasync.MockAudioStore
	notifier *mock_datasync.MockNotifier
}

func newMocks(t *testing.T) mocks {
	ctrl := gomock.NewController(t)
	return mocks{
		notes:    mock_notebook.NewMockNoteRepository(ctrl),
		backups:  mock_notebook.NewMockBackupRepository(ctrl),
		practice: mock_practice.NewMockRepository(ctrl),
		audio:    mock_datasync.NewMockAudioStore(ctrl),
		notifier: mock_datasync.NewMockNotifier(ctrl),
	}
}

func normalized(t *testing.T, s string) notebook.Note {
	t.Helper()
	raw, err := notebook.DecodeRaw([]byte(s))
	require.NoError(t, err)
	n, _ := newTestNormalizer().Normalize(raw)
	return n
}

func noteIDs(notes []notebook.Note) []string {
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
	}
	return ids
}

// memoryNotes keeps notes as JSON documents, the way the notes table does.
type memoryNotes struct {
	docs map[string]string
}

func newMemoryNotes() *memoryNotes {
	return &memoryNotes{docs: map[string]string{}}
}

func (r *memoryNotes) sortedIDs() []string {
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *memoryNotes) FindAll(ctx context.Context) ([]notebook.Note, error) {
	notes := []notebook.Note{}
	for _, id := range r.sortedIDs() {
		var n notebook.Note
		if err := json.Unmarshal([]byte(r.docs[id]), &n); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func (r *memoryNotes) FindAllRaw(ctx context.Context) ([]notebook.RawNote, error) {
	raws := []notebook.RawNote{}
	for _, id := range r.sortedIDs() {
		raw, err := notebook.DecodeRaw([]byte(r.docs[id]))
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (r *memoryNotes) FindByID(ctx context.Context, id string) (notebook.Note, error) {
	doc, ok := r.docs[id]
	if !ok {
		return notebook.Note{}, notebook.ErrNoteNotFound
	}
	var n notebook.Note
	err := json.Unmarshal([]byte(doc), &n)
	return n, err
}

func (r *memoryNotes) FindByChapter(ctx context.Context, chapter string) ([]notebook.Note, error) {
	return nil, fmt.Errorf("not supported")
}

func (r *memoryNotes) FindByCategory(ctx context.Context, category string) ([]notebook.Note, error) {
	return nil, fmt.Errorf("not supported")
}

func (r *memoryNotes) Count(ctx context.Context) (int, error) {
	return len(r.docs), nil
}

func (r *memoryNotes) BatchUpsert(ctx context.Context, notes []notebook.Note) error {
	for _, n := range notes {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		r.docs[n.ID] = string(data)
	}
	return nil
}

func (r *memoryNotes) Delete(ctx context.Context, id string) error {
	delete(r.docs, id)
	return nil
}

func (r *memoryNotes) Replace(ctx context.Context, notes []notebook.Note) error {
	r.docs = map[string]string{}
	return r.BatchUpsert(ctx, notes)
}

func (r *memoryNotes) DeleteAll(ctx context.Context) error {
	r.docs = map[string]string{}
	return nil
}

type memoryPractice struct {
	records []practice.Record
}

func (r *memoryPractice) Save(ctx context.Context, record practice.Record) (int64, error) {
	record.ID = int64(len(r.records) + 1)
	r.records = append(r.records, record)
	return record.ID, nil
}

func (r *memoryPractice) Recent(ctx context.Context, limit int) ([]practice.Record, error) {
	return nil, fmt.Errorf("not supported")
}

func (r *memoryPractice) RecentNoteIDs(ctx context.Context, limit int) ([]string, error) {
	return nil, fmt.Errorf("not supported")
}

func (r *memoryPractice) FindAll(ctx context.Context) ([]practice.Record, error) {
	return append([]practice.Record(nil), r.records...), nil
}

func (r *memoryPractice) DeleteAll(ctx context.Context) error {
	r.records = nil
	return nil
}

type memoryAudio struct {
	payloads map[string]string
}

func newMemoryAudio() *memoryAudio {
	return &memoryAudio{payloads: map[string]string{}}
}

func (a *memoryAudio) Put(ctx context.Context, noteID, payload string) (string, error) {
	a.payloads[noteID] = payload
	return noteID + "_audio", nil
}

func (a *memoryAudio) Get(ctx context.Context, noteID string) (string, bool, error) {
	p, ok := a.payloads[noteID]
	return p, ok, nil
}

func (a *memoryAudio) Has(ctx context.Context, noteID string) (bool, error) {
	_, ok := a.payloads[noteID]
	return ok, nil
}

func (a *memoryAudio) Delete(ctx context.Context, noteID string) error {
	delete(a.payloads, noteID)
	return nil
}
