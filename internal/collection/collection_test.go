package collection

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
	mock_flatstore "github.com/at-ishikawa/ieltsnotes/internal/mocks/flatstore"
)

type color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

func TestCollection_Load(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(store *mock_flatstore.MockStore)
		want        []color
		wantCorrupt bool
		wantErr     bool
	}{
		{
			name: "absent key is empty",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return("", false, nil)
			},
			want: []color{},
		},
		{
			name: "stored array",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return(`[{"name":"Travel","hex":"#fff"}]`, true, nil)
			},
			want: []color{{Name: "Travel", Hex: "#fff"}},
		},
		{
			name: "null is empty",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return("null", true, nil)
			},
			want: []color{},
		},
		{
			name: "corrupt value is not silently empty",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return(`[{"name":`, true, nil)
			},
			wantCorrupt: true,
			wantErr:     true,
		},
		{
			name: "wrong shape is corrupt",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return(`{"name":"Travel"}`, true, nil)
			},
			wantCorrupt: true,
			wantErr:     true,
		},
		{
			name: "read error",
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().GetItem("colors").Return("", false, fmt.Errorf("permission denied"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mock_flatstore.NewMockStore(ctrl)
			tt.setup(store)

			got, err := New[color](store, "colors").Load()
			if tt.wantErr {
				require.Error(t, err)
				var corrupt *CorruptError
				assert.Equal(t, tt.wantCorrupt, errors.As(err, &corrupt))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollection_Save(t *testing.T) {
	tests := []struct {
		name       string
		records    []color
		setup      func(store *mock_flatstore.MockStore)
		wantResult WriteResult
	}{
		{
			name:    "single write without html escaping",
			records: []color{{Name: "R&D <lab>", Hex: "#000"}},
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().SetItem("colors", `[{"name":"R&D <lab>","hex":"#000"}]`).Return(nil)
			},
			wantResult: Ok,
		},
		{
			name:    "nil is stored as an empty array",
			records: nil,
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().SetItem("colors", "[]").Return(nil)
			},
			wantResult: Ok,
		},
		{
			name:    "quota",
			records: []color{{Name: "a"}},
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().SetItem("colors", gomock.Any()).
					Return(&flatstore.QuotaError{Key: "colors", Requested: 10, Used: 5, Quota: 10})
			},
			wantResult: QuotaExceeded,
		},
		{
			name:    "other failure",
			records: []color{{Name: "a"}},
			setup: func(store *mock_flatstore.MockStore) {
				store.EXPECT().SetItem("colors", gomock.Any()).Return(fmt.Errorf("read-only file system"))
			},
			wantResult: Failed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mock_flatstore.NewMockStore(ctrl)
			tt.setup(store)

			err := New[color](store, "colors").Save(tt.records)
			assert.Equal(t, tt.wantResult, Classify(err))
		})
	}
}

func TestCollection_RoundTrip(t *testing.T) {
	store := flatstore.NewMemoryStore(0)
	c := New[color](store, KeySpeakingCategoryColors)
	assert.Equal(t, KeySpeakingCategoryColors, c.Key())

	require.NoError(t, c.Save([]color{{Name: "Travel", Hex: "#abc"}}))
	got, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, []color{{Name: "Travel", Hex: "#abc"}}, got)
}

func TestFlag(t *testing.T) {
	store := flatstore.NewMemoryStore(0)

	got, err := Flag(store, KeyMigrated)
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, SetFlag(store, KeyMigrated))
	got, err = Flag(store, KeyMigrated)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, store.SetItem(KeyMigrated, "yes"))
	got, err = Flag(store, KeyMigrated)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestWriteResult_String(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "quota exceeded", QuotaExceeded.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestClassify_Wrapped(t *testing.T) {
	err := fmt.Errorf("save notes: %w", &flatstore.QuotaError{Key: "k"})
	assert.Equal(t, QuotaExceeded, Classify(err))
}

func TestEstimateUsage(t *testing.T) {
	store := flatstore.NewMemoryStore(1000)
	require.NoError(t, store.SetItem("a", "1"))
	require.NoError(t, store.SetItem("bb", "12345"))

	got, err := EstimateUsage(store)
	require.NoError(t, err)
	assert.Equal(t, int64(18), got.UsedBytes)
	assert.Equal(t, int64(1000), got.QuotaBytes)
	assert.InDelta(t, 1.8, got.Percent, 1e-9)
	assert.Equal(t, []KeyUsage{{Key: "bb", Bytes: 14}, {Key: "a", Bytes: 4}}, got.PerKey)
}
