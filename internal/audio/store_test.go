package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/database"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStoreWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
		return sqlx.NewDb(db, database.DriverName), nil
	})
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, store.Open(context.Background()))
	return store, mock
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "note_1_abc_audio", RecordID("note_1_abc"))
}

func TestStore_Open(t *testing.T) {
	t.Run("concurrent callers share one open", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()
		store := NewStoreWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
			calls.Add(1)
			<-release
			return sqlx.NewDb(db, database.DriverName), nil
		})

		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store.Open(context.Background())
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, int32(1), calls.Load())
		require.NoError(t, store.Open(context.Background()))
		assert.Equal(t, int32(1), calls.Load())
		require.NoError(t, store.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure is remembered until close", func(t *testing.T) {
		var calls atomic.Int32
		store := NewStoreWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
			calls.Add(1)
			return nil, errors.New("disk unavailable")
		})

		err := store.Open(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open audio database: disk unavailable")
		require.Error(t, store.Open(context.Background()))
		assert.Equal(t, int32(1), calls.Load())

		require.NoError(t, store.Close())
		require.Error(t, store.Open(context.Background()))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("operations before open fail", func(t *testing.T) {
		store := NewStoreWithOpener(func(ctx context.Context) (*sqlx.DB, error) {
			return nil, nil
		})
		_, err := store.Put(context.Background(), "note_1", "data")
		assert.ErrorIs(t, err, ErrClosed)
		_, _, err = store.Get(context.Background(), "note_1")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestStore_Put(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantID    string
		wantErr   bool
	}{
		{
			name: "upserts the record",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audio (id, note_id, audio_data, timestamp) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET")).
					WithArgs("note_1_audio", "note_1", "data:audio/mp3;base64,AAAA", int64(1700000000000)).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			wantID: "note_1_audio",
		},
		{
			name: "write error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO audio").WillReturnError(fmt.Errorf("disk full"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			id, err := store.Put(context.Background(), "note_1", "data:audio/mp3;base64,AAAA")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      string
		wantFound bool
		wantErr   bool
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT audio_data FROM audio WHERE id = ?")).
					WithArgs("note_1_audio").
					WillReturnRows(sqlmock.NewRows([]string{"audio_data"}).AddRow("payload"))
			},
			want:      "payload",
			wantFound: true,
		},
		{
			name: "missing is not an error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT audio_data FROM audio WHERE id = ?")).
					WithArgs("note_1_audio").
					WillReturnRows(sqlmock.NewRows([]string{"audio_data"}))
			},
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT audio_data FROM audio").WillReturnError(fmt.Errorf("disk I/O error"))
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			got, found, err := store.Get(context.Background(), "note_1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.wantFound, found)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_DeleteAndHas(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audio WHERE id = ?")).
		WithArgs("note_1_audio").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM audio WHERE id = ?)")).
		WithArgs("note_1_audio").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, store.Delete(context.Background(), "note_1"))
	has, err := store.Has(context.Background(), "note_1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SQLite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "audio.db"), database.Options{})
	require.NoError(t, store.Open(ctx))
	defer store.Close()

	id, err := store.Put(ctx, "note_1", "first")
	require.NoError(t, err)
	assert.Equal(t, "note_1_audio", id)
	_, err = store.Put(ctx, "note_1", "second")
	require.NoError(t, err)
	_, err = store.Put(ctx, "note_2", "other")
	require.NoError(t, err)

	got, found, err := store.Get(ctx, "note_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "second", got)

	ids, err := store.ListNoteIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"note_1", "note_2"}, ids)

	count, size, err := store.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(len("second")+len("other")), size)

	require.NoError(t, store.Delete(ctx, "note_1"))
	require.NoError(t, store.Delete(ctx, "note_1"))
	has, err := store.Has(ctx, "note_1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Clear(ctx))
	_, found, err = store.Get(ctx, "note_2")
	require.NoError(t, err)
	assert.False(t, found)
}
