package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("coverage/insurance/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("coverage/insurance/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("coverage/claim/a"), []byte("x")))

	value, err := db.Get([]byte("coverage/insurance/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	ok, err := db.Has([]byte("coverage/claim/a"))
	require.NoError(t, err)
	require.True(t, ok)

	keys, err := db.Keys([]byte("coverage/insurance/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("coverage/insurance/a"), []byte("coverage/insurance/b")}, keys)

	batch := NewBatch()
	batch.Put([]byte("coverage/insurance/c"), []byte("3"))
	batch.Delete([]byte("coverage/insurance/a"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, db.Write(batch))

	keys, err = db.Keys([]byte("coverage/insurance/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("coverage/insurance/b"), []byte("coverage/insurance/c")}, keys)

	require.NoError(t, db.Delete([]byte("coverage/claim/a")))
	ok, err = db.Has([]byte("coverage/claim/a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), buf))
	buf[0] = 'z'
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), value)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}
