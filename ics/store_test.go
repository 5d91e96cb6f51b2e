package ics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sensepost/fxics/idset"
	"github.com/sensepost/fxics/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

//exerciseStore runs the behaviour every backend shares
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, "inbox")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, "inbox"), ErrNotFound)

	s := sampleState()
	require.NoError(t, store.Save(ctx, "inbox", s))
	require.NoError(t, store.Save(ctx, "sent-items", NewState()))

	back, err := store.Load(ctx, "inbox")
	require.NoError(t, err)
	require.True(t, back.SameCnsets(s))
	require.True(t, back.IdsetGiven.Equal(s.IdsetGiven))

	//saving again replaces the state
	newer := sampleState()
	newer.CnsetSeen.Add(idset.Entry{ReplGUID: replB}, span(8, 9))
	require.NoError(t, store.Save(ctx, "inbox", newer))
	back, err = store.Load(ctx, "inbox")
	require.NoError(t, err)
	require.True(t, back.CnsetSeen.Contains(replB, cnt(9)))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"inbox", "sent-items"}, keys)

	require.NoError(t, store.Delete(ctx, "inbox"))
	_, err = store.Load(ctx, "inbox")
	require.ErrorIs(t, err, ErrNotFound)

	for _, key := range []string{"", "../escape", "a/b", "..", "spaces are bad"} {
		require.ErrorIs(t, store.Save(ctx, key, s), ErrInvalidKey, key)
		_, err := store.Load(ctx, key)
		require.ErrorIs(t, err, ErrInvalidKey, key)
	}

	transient := NewState()
	transient.CnsetRead = idset.FromIDs(idset.MakeID(1, cnt(3)))
	require.ErrorIs(t, store.Save(ctx, "transient", transient), ErrTransientForm)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, store.Save(cancelled, "inbox", s))

	require.NoError(t, store.Close())
}

func TestBoltStore(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "state.db"), "", zaptest.NewLogger(t))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestBoltStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := OpenBolt(path, "sync", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "calendar", sampleState()))
	require.NoError(t, store.Close())

	store, err = OpenBolt(path, "sync", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()
	back, err := store.Load(context.Background(), "calendar")
	require.NoError(t, err)
	require.True(t, back.SameCnsets(sampleState()))
}

func TestFileStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/states", zaptest.NewLogger(t))
	require.NoError(t, err)
	exerciseStore(t, store)

	//the file holds a plain state stream
	require.NoError(t, store.Save(context.Background(), "inbox", sampleState()))
	raw, err := afero.ReadFile(fs, "/states/inbox.fxs")
	require.NoError(t, err)
	direct, err := sampleState().Stream()
	require.NoError(t, err)
	require.Equal(t, direct, raw)

	//files that are not states are ignored
	require.NoError(t, afero.WriteFile(fs, "/states/notes.txt", []byte("x"), 0600))
	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"inbox", "sent-items"}, keys)
}

func TestFileStoreCorruptState(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(fs, "/states", nil)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/states/broken.fxs", []byte{0x3A, 0x40, 0x03}, 0600))
	_, err = store.Load(context.Background(), "broken")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestMinioStoreOffline(t *testing.T) {
	_, err := NewMinioStore("", "key", "secret", false, "b", "", nil)
	require.Error(t, err)

	store, err := NewMinioStore("127.0.0.1:9000", "key", "secret", false, "", "/states/", nil)
	require.NoError(t, err)
	require.Equal(t, "fxics", store.bucket)
	require.Equal(t, "states/inbox.fxs", store.object("inbox"))

	ctx := context.Background()
	require.ErrorIs(t, store.Save(ctx, "../inbox", sampleState()), ErrInvalidKey)
	transient := NewState()
	transient.IdsetGiven = idset.FromIDs(idset.MakeID(1, cnt(3)))
	require.ErrorIs(t, store.Save(ctx, "inbox", transient), ErrTransientForm)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	store, err := NewStore(ctx, utils.StoreConfig{Backend: "file", Path: "/data"}, fs, nil)
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, store)

	store, err = NewStore(ctx, utils.StoreConfig{Path: filepath.Join(t.TempDir(), "x.db")}, fs, nil)
	require.NoError(t, err)
	require.IsType(t, &BoltStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(ctx, utils.StoreConfig{Backend: "redis"}, fs, nil)
	require.ErrorIs(t, err, ErrUnknownBackend)
}
