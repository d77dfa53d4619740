// Package hasher computes content digests of files.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Hasher returns a hex encoded digest of a file's content.
type Hasher interface {
	Hash(filePath string) (string, error)
}

// SHA256 hashes the full file content with SHA-256.
type SHA256 struct{}

func NewSHA256() *SHA256 {
	return &SHA256{}
}

func (SHA256) Hash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("read %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cached skips rehashing files whose size and modification time are the same
// as when they were last hashed.
type Cached struct {
	next  Hasher
	cache *lru.Cache[string, string]
}

func NewCached(next Hasher, size int) (*Cached, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Hash(filePath string) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filePath, err)
	}

	key := filePath + "\x00" + strconv.FormatInt(info.Size(), 10) + "\x00" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	if hash, ok := c.cache.Get(key); ok {
		return hash, nil
	}

	hash, err := c.next.Hash(filePath)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, hash)
	return hash, nil
}
