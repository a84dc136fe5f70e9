// Package storage is the single entry point the rest of the application uses
// to read and write notes, practice records and audio.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/at-ishikawa/ieltsnotes/internal/audio"
	"github.com/at-ishikawa/ieltsnotes/internal/collection"
	"github.com/at-ishikawa/ieltsnotes/internal/database"
	"github.com/at-ishikawa/ieltsnotes/internal/datasync"
	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
	"github.com/at-ishikawa/ieltsnotes/internal/notebook"
	"github.com/at-ishikawa/ieltsnotes/internal/practice"
	"github.com/at-ishikawa/ieltsnotes/internal/recovery"
	"github.com/at-ishikawa/ieltsnotes/schemas"
)

// BackupReasonClearAll is the reason of the backup taken by ClearAll.
const BackupReasonClearAll = "clear-all"

// ErrNotInitialized is returned by operations called before Init.
var ErrNotInitialized = errors.New("storage is not initialized")

// Options configures a Manager.
type Options struct {
	NotesPath string
	AudioPath string
	Database  database.Options
	// RecentSessions is the default number of sessions GetRecentPracticeNoteIDs looks at.
	RecentSessions int
	PruneAge       time.Duration
	Normalizer     *notebook.Normalizer
	Notifier       datasync.Notifier
	Prompter       recovery.Prompter
	// Progress receives migration progress lines. It may be nil.
	Progress io.Writer
}

// Opener opens the notes database. It is replaced in tests.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// Manager owns the flat store, the notes database and the audio database.
// Init may be called from any goroutine; the first call opens and migrates
// everything and later callers share its outcome until Close.
type Manager struct {
	flat       flatstore.Store
	audio      *audio.Store
	openNotes  Opener
	normalizer *notebook.Normalizer
	opts       Options
	now        func() time.Time

	initMu   sync.Mutex
	initDone bool
	initErr  error

	mu        sync.RWMutex
	db        *sqlx.DB
	notes     notebook.NoteRepository
	backups   notebook.BackupRepository
	practice  practice.Repository
	migration *datasync.MigrationResult
}

// New returns a manager over flat that opens its databases at the configured paths.
func New(flat flatstore.Store, opts Options) *Manager {
	notesPath := opts.NotesPath
	dbOpts := opts.Database
	return NewWithOpeners(flat, opts, func(ctx context.Context) (*sqlx.DB, error) {
		schema, err := database.LoadSchema("notes", schemas.Migrations, schemas.NotesDir)
		if err != nil {
			return nil, err
		}
		return database.Open(ctx, notesPath, schema, dbOpts)
	}, audio.NewStore(opts.AudioPath, opts.Database))
}

func NewWithOpeners(flat flatstore.Store, opts Options, openNotes Opener, audioStore *audio.Store) *Manager {
	if opts.RecentSessions <= 0 {
		opts.RecentSessions = practice.DefaultRecentSessions
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = notebook.NewNormalizer()
	}
	return &Manager{
		flat:       flat,
		audio:      audioStore,
		openNotes:  openNotes,
		normalizer: normalizer,
		opts:       opts,
		now:        time.Now,
	}
}

// Open opens both databases without migrating anything.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(ctx)
}

func (m *Manager) openLocked(ctx context.Context) error {
	if m.db != nil {
		return nil
	}
	if err := m.audio.Open(ctx); err != nil {
		return err
	}
	db, err := m.openNotes(ctx)
	if err != nil {
		return fmt.Errorf("open notes database: %w", err)
	}
	m.db = db
	m.notes = notebook.NewDBNoteRepository(db)
	m.backups = notebook.NewDBBackupRepository(db)
	m.practice = practice.NewDBRepository(db)
	return nil
}

// Init opens both databases, copies legacy notes when that has not happened
// yet and repairs every stored note. A failed Init is returned to every later
// caller until Close.
func (m *Manager) Init(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initDone {
		return m.initErr
	}
	m.initErr = m.init(ctx)
	m.initDone = true
	return m.initErr
}

func (m *Manager) init(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		return err
	}
	result, err := m.Coordinator().Migrate(ctx, datasync.MigrationOptions{})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.migration = result
	m.mu.Unlock()
	slog.Default().Debug("storage initialized",
		slog.Bool("legacyCopied", result.LegacyCopied),
		slog.Int("repaired", result.Repaired+result.FlatRepaired))
	return nil
}

// Migration returns the result of the migration run by Init, or nil.
func (m *Manager) Migration() *datasync.MigrationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.migration
}

// Close closes both databases. The manager can be initialized again afterwards.
func (m *Manager) Close() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initDone = false
	m.initErr = nil
	m.migration = nil
	var errs []error
	if m.db != nil {
		errs = append(errs, m.db.Close())
		m.db = nil
		m.notes = nil
		m.backups = nil
		m.practice = nil
	}
	errs = append(errs, m.audio.Close())
	return errors.Join(errs...)
}

type repositories struct {
	notes    notebook.NoteRepository
	backups  notebook.BackupRepository
	practice practice.Repository
}

func (m *Manager) repos() (repositories, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return repositories{}, ErrNotInitialized
	}
	return repositories{notes: m.notes, backups: m.backups, practice: m.practice}, nil
}

// Coordinator returns a migration coordinator over the manager's stores.
// It must be called after Open.
func (m *Manager) Coordinator() *datasync.Coordinator {
	r, _ := m.repos()
	return datasync.NewCoordinator(m.flat, r.notes, r.practice, m.audio, m.normalizer, m.opts.Notifier, m.opts.Progress)
}

// Importer returns an importer writing progress to w. It must be called after Open.
func (m *Manager) Importer(w io.Writer) *datasync.Importer {
	r, _ := m.repos()
	return datasync.NewImporter(r.notes, r.backups, m.audio, m.normalizer, w)
}

// Exporter returns an exporter. It must be called after Open.
func (m *Manager) Exporter() *datasync.Exporter {
	r, _ := m.repos()
	return datasync.NewExporter(r.notes, m.audio)
}

// Recovery returns the quota recovery flow over the flat store.
func (m *Manager) Recovery() *recovery.Flow {
	return recovery.NewFlow(m.flat, m.audio, m.opts.Prompter, m.opts.PruneAge)
}

func (m *Manager) Flat() flatstore.Store {
	return m.flat
}

func (m *Manager) Backups() (notebook.BackupRepository, error) {
	r, err := m.repos()
	return r.backups, err
}

func (m *Manager) GetAllNotes(ctx context.Context) ([]notebook.Note, error) {
	r, err := m.repos()
	if err != nil {
		return nil, err
	}
	return r.notes.FindAll(ctx)
}

func (m *Manager) GetNote(ctx context.Context, id string) (notebook.Note, error) {
	r, err := m.repos()
	if err != nil {
		return notebook.Note{}, err
	}
	return r.notes.FindByID(ctx, id)
}

// SaveNote normalizes n, moves inline audio to the audio database and stores
// the note. It returns the stored form.
func (m *Manager) SaveNote(ctx context.Context, n notebook.Note) (notebook.Note, error) {
	saved, err := m.saveNotes(ctx, []notebook.Note{n})
	if err != nil {
		return notebook.Note{}, err
	}
	return saved[0], nil
}

// SaveNotes stores notes in a single transaction.
func (m *Manager) SaveNotes(ctx context.Context, notes []notebook.Note) error {
	_, err := m.saveNotes(ctx, notes)
	return err
}

func (m *Manager) saveNotes(ctx context.Context, notes []notebook.Note) ([]notebook.Note, error) {
	r, err := m.repos()
	if err != nil {
		return nil, err
	}
	saved := make([]notebook.Note, 0, len(notes))
	for _, n := range notes {
		n, _ = m.normalizer.NormalizeNote(n)
		if n.HasInlineAudio() {
			if _, err := m.audio.Put(ctx, n.ID, *n.AudioData); err != nil {
				return nil, fmt.Errorf("audio.Put(%s) > %w", n.ID, err)
			}
			n.SetAudioSentinel()
		}
		saved = append(saved, n)
	}
	if err := r.notes.BatchUpsert(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteNote removes a note and its audio.
func (m *Manager) DeleteNote(ctx context.Context, id string) error {
	r, err := m.repos()
	if err != nil {
		return err
	}
	if err := r.notes.Delete(ctx, id); err != nil {
		return err
	}
	return m.audio.Delete(ctx, id)
}

// ClearAll deletes every note and practice record after taking a backup of the notes.
func (m *Manager) ClearAll(ctx context.Context) (int64, error) {
	r, err := m.repos()
	if err != nil {
		return 0, err
	}
	notes, err := r.notes.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	backupID, err := r.backups.Create(ctx, BackupReasonClearAll, notes)
	if err != nil {
		return 0, fmt.Errorf("backups.Create() > %w", err)
	}
	if err := r.notes.DeleteAll(ctx); err != nil {
		return backupID, err
	}
	if err := r.practice.DeleteAll(ctx); err != nil {
		return backupID, err
	}
	return backupID, nil
}

// SavePracticeRecord records a practice session over noteIDs at the current time.
func (m *Manager) SavePracticeRecord(ctx context.Context, noteIDs []string) (practice.Record, error) {
	r, err := m.repos()
	if err != nil {
		return practice.Record{}, err
	}
	record := practice.Record{Date: notebook.FormatDate(m.now()), NoteIDs: noteIDs}
	if record.NoteIDs == nil {
		record.NoteIDs = []string{}
	}
	record.ID, err = r.practice.Save(ctx, record)
	if err != nil {
		return practice.Record{}, err
	}
	return record, nil
}

func (m *Manager) GetRecentPracticeRecords(ctx context.Context, limit int) ([]practice.Record, error) {
	r, err := m.repos()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.opts.RecentSessions
	}
	return r.practice.Recent(ctx, limit)
}

func (m *Manager) GetAllPracticeRecords(ctx context.Context) ([]practice.Record, error) {
	r, err := m.repos()
	if err != nil {
		return nil, err
	}
	return r.practice.FindAll(ctx)
}

// GetRecentPracticeNoteIDs returns the notes practiced in the latest limit
// sessions. Failures are logged and yield no ids.
func (m *Manager) GetRecentPracticeNoteIDs(ctx context.Context, limit int) []string {
	if limit <= 0 {
		limit = m.opts.RecentSessions
	}
	r, err := m.repos()
	if err != nil {
		slog.Default().Warn("failed to load recent practice", slog.Any("error", err))
		return []string{}
	}
	ids, err := r.practice.RecentNoteIDs(ctx, limit)
	if err != nil {
		slog.Default().Warn("failed to load recent practice", slog.Any("error", err))
		return []string{}
	}
	return ids
}

func (m *Manager) SaveAudio(ctx context.Context, noteID, payload string) (string, error) {
	return m.audio.Put(ctx, noteID, payload)
}

// GetAudio returns the audio of noteID. Failures are logged and reported as no audio.
func (m *Manager) GetAudio(ctx context.Context, noteID string) (string, bool) {
	payload, found, err := m.audio.Get(ctx, noteID)
	if err != nil {
		slog.Default().Warn("failed to load audio", slog.String("noteID", noteID), slog.Any("error", err))
		return "", false
	}
	return payload, found
}

func (m *Manager) DeleteAudio(ctx context.Context, noteID string) error {
	return m.audio.Delete(ctx, noteID)
}

func (m *Manager) HasAudio(ctx context.Context, noteID string) (bool, error) {
	return m.audio.Has(ctx, noteID)
}

// SaveCollection writes notes to a flat store collection, asking the user to
// make room when it does not fit.
func (m *Manager) SaveCollection(ctx context.Context, key string, notes []notebook.Note, pendingID string) error {
	return m.Recovery().Save(ctx, key, notes, pendingID)
}

// LoadCollection reads the notes of a flat store collection.
func (m *Manager) LoadCollection(key string) ([]notebook.Note, error) {
	return collection.New[notebook.Note](m.flat, key).Load()
}

// Info summarizes what is stored where.
type Info struct {
	Flat         collection.Usage
	Notes        int
	Backups      int
	PracticeRuns int
	AudioRecords int
	AudioBytes   int64
	// OrphanAudio lists audio records whose note exists neither in the notes
	// database nor in a flat store collection.
	OrphanAudio []string
}

// StorageInfo measures every store.
func (m *Manager) StorageInfo(ctx context.Context) (Info, error) {
	r, err := m.repos()
	if err != nil {
		return Info{}, err
	}
	var info Info
	if info.Flat, err = collection.EstimateUsage(m.flat); err != nil {
		return Info{}, err
	}
	if info.Notes, err = r.notes.Count(ctx); err != nil {
		return Info{}, err
	}
	backups, err := r.backups.FindAll(ctx)
	if err != nil {
		return Info{}, err
	}
	info.Backups = len(backups)
	records, err := r.practice.FindAll(ctx)
	if err != nil {
		return Info{}, err
	}
	info.PracticeRuns = len(records)
	if info.AudioRecords, info.AudioBytes, err = m.audio.Usage(ctx); err != nil {
		return Info{}, err
	}

	audioIDs, err := m.audio.ListNoteIDs(ctx)
	if err != nil {
		return Info{}, err
	}
	notes, err := r.notes.FindAll(ctx)
	if err != nil {
		return Info{}, err
	}
	known := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		known[n.ID] = struct{}{}
	}
	for _, key := range collection.NoteKeys {
		flatNotes, err := m.LoadCollection(key)
		if err != nil {
			slog.Default().Warn("skip flat collection when looking for orphan audio",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		for _, n := range flatNotes {
			known[n.ID] = struct{}{}
		}
	}
	for _, id := range audioIDs {
		if _, ok := known[id]; !ok {
			info.OrphanAudio = append(info.OrphanAudio, id)
		}
	}
	return info, nil
}
