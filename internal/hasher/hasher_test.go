package hasher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	hash, err := NewSHA256().Hash(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hash)
}

func TestSHA256HashEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	hash, err := NewSHA256().Hash(path)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hash)
}

func TestSHA256HashMissingFile(t *testing.T) {
	_, err := NewSHA256().Hash(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type countingHasher struct {
	calls atomic.Int32
	next  Hasher
}

func (c *countingHasher) Hash(path string) (string, error) {
	c.calls.Add(1)
	return c.next.Hash(path)
}

func TestCachedHasher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	counter := &countingHasher{next: NewSHA256()}
	cached, err := NewCached(counter, 16)
	require.NoError(t, err)

	first, err := cached.Hash(path)
	require.NoError(t, err)
	second, err := cached.Hash(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, counter.calls.Load())

	// new content and a new mtime invalidate the entry
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := cached.Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.EqualValues(t, 2, counter.calls.Load())
}

func TestCachedHasherInvalidSize(t *testing.T) {
	_, err := NewCached(NewSHA256(), 0)
	assert.Error(t, err)
}
