package kvstore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/damacus/iron-explorer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyTheme, "dark"))
	v, ok, err := s.Get(KeyTheme)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, s.Set(KeyTheme, "light"))
	v, _, _ = s.Get(KeyTheme)
	assert.Equal(t, "light", v)

	require.NoError(t, s.Delete(KeyTheme))
	_, ok, err = s.Get(KeyTheme)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete("never-set"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "kv.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyCurrentBucket, "bucket-1"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(KeyCurrentBucket)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bucket-1", v)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSealer_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "secret")

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))
}

func TestSealer_RejectsBadInput(t *testing.T) {
	_, err := NewSealer([]byte("tooshort"))
	assert.Error(t, err)

	sealer, err := NewSealer([]byte(strings.Repeat("k", KeySize)))
	require.NoError(t, err)

	_, err = sealer.Open("!!not-base64!!")
	assert.Error(t, err)

	_, err = sealer.Open("YQ==")
	assert.Error(t, err)

	other, _ := NewSealer([]byte(strings.Repeat("x", KeySize)))
	sealed, _ := other.Seal([]byte("v"))
	_, err = sealer.Open(sealed)
	assert.Error(t, err, "wrong key must not open")
}

func TestSealedStore(t *testing.T) {
	inner := NewMemoryStore()
	sealer, err := NewSealer([]byte(strings.Repeat("k", KeySize)))
	require.NoError(t, err)
	s := NewSealedStore(inner, sealer)

	exerciseStore(t, s)

	require.NoError(t, s.Set(KeyBuckets, `[{"secretAccessKey":"hunter2"}]`))
	raw, ok, _ := inner.Get(KeyBuckets)
	require.True(t, ok)
	assert.NotContains(t, raw, "hunter2")

	require.NoError(t, inner.Set(KeyGroups, "garbage"))
	_, ok, err = s.Get(KeyGroups)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrUnreadable)

	var groups []string
	found, err := GetJSON(s, KeyGroups, &groups)
	assert.True(t, found, "unreadable values are present, not missing")
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()

	var got []string
	ok, err := GetJSON(s, KeyGroups, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(s, KeyGroups, []string{"a", "b"}))
	ok, err = GetJSON(s, KeyGroups, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, s.Set(KeyGroups, "{not json"))
	ok, err = GetJSON(s, KeyGroups, &got)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, closer, err := Open(config.StoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, closer.Close())

	s, closer, err = Open(config.StoreConfig{
		Type:    "sqlite",
		Path:    filepath.Join(t.TempDir(), "kv.db"),
		SealKey: strings.Repeat("k", KeySize),
	})
	require.NoError(t, err)
	assert.IsType(t, &SealedStore{}, s)
	exerciseStore(t, s)
	assert.NoError(t, closer.Close())

	_, _, err = Open(config.StoreConfig{Type: "memory", SealKey: "short"})
	assert.Error(t, err)

	_, _, err = Open(config.StoreConfig{Type: "etcd"})
	assert.Error(t, err)
}
