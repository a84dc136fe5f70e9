package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at-ishikawa/ieltsnotes/internal/database"
)

var recordColumns = []string{"id", "date", "note_ids"}

func newMockRepository(t *testing.T) (*DBRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDBRepository(sqlx.NewDb(db, database.DriverName)), mock
}

func TestDBRepository_Save(t *testing.T) {
	tests := []struct {
		name      string
		record    Record
		setupMock func(mock sqlmock.Sqlmock)
		wantID    int64
		wantErr   bool
	}{
		{
			name:   "note ids are stored as a JSON array",
			record: Record{Date: "2024-01-02T03:04:05.000Z", NoteIDs: []string{"note_1", "note_2"}},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO practice_records (date, note_ids) VALUES (?, ?)")).
					WithArgs("2024-01-02T03:04:05.000Z", `["note_1","note_2"]`).
					WillReturnResult(sqlmock.NewResult(4, 1))
			},
			wantID: 4,
		},
		{
			name:   "nil note ids",
			record: Record{Date: "2024-01-02T03:04:05.000Z"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO practice_records").
					WithArgs("2024-01-02T03:04:05.000Z", "[]").
					WillReturnResult(sqlmock.NewResult(5, 1))
			},
			wantID: 5,
		},
		{
			name:   "insert error",
			record: Record{Date: "2024-01-02T03:04:05.000Z"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO practice_records").WillReturnError(fmt.Errorf("disk full"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			tt.setupMock(mock)

			id, err := repo.Save(context.Background(), tt.record)
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

func TestDBRepository_Recent(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		want      []Record
		wantErr   bool
	}{
		{
			name: "decodes note ids",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, note_ids FROM practice_records ORDER BY date DESC, id DESC LIMIT ?")).
					WithArgs(3).
					WillReturnRows(sqlmock.NewRows(recordColumns).
						AddRow(2, "2024-01-03T00:00:00.000Z", `["note_2"]`).
						AddRow(1, "2024-01-02T00:00:00.000Z", ""))
			},
			want: []Record{
				{ID: 2, Date: "2024-01-03T00:00:00.000Z", NoteIDs: []string{"note_2"}},
				{ID: 1, Date: "2024-01-02T00:00:00.000Z", NoteIDs: []string{}},
			},
		},
		{
			name: "corrupt note ids",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, date, note_ids FROM practice_records").
					WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(1, "2024-01-02T00:00:00.000Z", "{"))
			},
			wantErr: true,
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT id, date, note_ids FROM practice_records").
					WillReturnError(fmt.Errorf("no such table: practice_records"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			tt.setupMock(mock)

			got, err := repo.Recent(context.Background(), 3)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDBRepository_RecentNoteIDs(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("SELECT id, date, note_ids FROM practice_records").
		WithArgs(DefaultRecentSessions).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(3, "2024-01-04T00:00:00.000Z", `["note_3","note_1"]`).
			AddRow(2, "2024-01-03T00:00:00.000Z", `["note_1","note_2"]`).
			AddRow(1, "2024-01-02T00:00:00.000Z", `[]`))

	got, err := repo.RecentNoteIDs(context.Background(), DefaultRecentSessions)
	require.NoError(t, err)
	assert.Equal(t, []string{"note_3", "note_1", "note_2"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRepository_FindAllAndDeleteAll(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, note_ids FROM practice_records ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(1, "2024-01-02T00:00:00.000Z", `["note_1"]`))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM practice_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Record{{ID: 1, Date: "2024-01-02T00:00:00.000Z", NoteIDs: []string{"note_1"}}}, got)
	require.NoError(t, repo.DeleteAll(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_Same(t *testing.T) {
	a := Record{ID: 1, Date: "2024-01-02T00:00:00.000Z", NoteIDs: []string{"note_1"}}
	assert.True(t, a.Same(Record{Date: a.Date, NoteIDs: []string{"note_1"}}))
	assert.False(t, a.Same(Record{Date: a.Date, NoteIDs: []string{"note_2"}}))
	assert.False(t, a.Same(Record{Date: "2024-01-03T00:00:00.000Z", NoteIDs: []string{"note_1"}}))
}

func TestFromLegacy(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		want   Record
		wantOK bool
	}{
		{
			name:   "iso date",
			raw:    map[string]any{"date": "2024-01-02T03:04:05.000Z", "noteIds": []any{"note_1", json.Number("42")}},
			want:   Record{Date: "2024-01-02T03:04:05.000Z", NoteIDs: []string{"note_1", "42"}},
			wantOK: true,
		},
		{
			name:   "epoch millis without note ids",
			raw:    map[string]any{"date": json.Number("1704164645000")},
			want:   Record{Date: "2024-01-02T03:04:05.000Z", NoteIDs: []string{}},
			wantOK: true,
		},
		{
			name: "no date",
			raw:  map[string]any{"noteIds": []any{"note_1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromLegacy(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
