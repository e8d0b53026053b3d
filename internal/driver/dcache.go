package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when DiskPayload format changes.
const diskCacheSchemaVersion uint16 = 1

// Digest keys cache entries by input content.
type Digest [32]byte

// DiskCache persists raw compiler output keyed by input digest, so
// repeated diffs of unchanged inputs skip the capnp invocation entirely.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is the cached record: the encoded CodeGeneratorRequest as
// the compiler produced it. Decoding stays cheap; caching the decoded
// model would pin wire pointers to a message that no longer exists.
type DiskPayload struct {
	Schema uint16
	Raw    []byte
}

// OpenDiskCache initializes and returns a disk cache at the standard
// location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// OpenDiskCacheAt opens a cache rooted at an explicit directory (tests,
// CI sandboxes).
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	hexKey := hex.EncodeToString(key[:])
	// Подкаталог "reqs" — для удобства очистки.
	return filepath.Join(c.dir, "reqs", hexKey+".mp")
}

// Put writes raw compiler output under the given key.
func (c *DiskCache) Put(key Digest, raw []byte) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := msgpack.Marshal(&DiskPayload{Schema: diskCacheSchemaVersion, Raw: raw})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get returns the cached compiler output, or ok=false on miss or version
// mismatch.
func (c *DiskCache) Get(key Digest) (raw []byte, ok bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var payload DiskPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		// Повреждённая запись — просто промах.
		return nil, false, nil
	}
	if payload.Schema != diskCacheSchemaVersion {
		return nil, false, nil
	}
	return payload.Raw, true, nil
}

// InputDigest hashes everything that determines compiler output: the
// compiler configuration, the file names, and the file contents read
// relative to dir.
func InputDigest(opts CompilerOptions, dir string, files []string) (Digest, error) {
	h := sha256.New()
	fmt.Fprintf(h, "capnp-diff/%d\n", diskCacheSchemaVersion)
	fmt.Fprintf(h, "bin=%s\n", opts.binary())
	fmt.Fprintf(h, "nostd=%t\n", opts.NoStandardImport)
	for _, p := range opts.ImportPaths {
		fmt.Fprintf(h, "I=%s\n", p)
	}
	for _, f := range files {
		fmt.Fprintf(h, "file=%s\n", f)
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil {
			return Digest{}, fmt.Errorf("digest %s: %w", f, err)
		}
		fmt.Fprintf(h, "len=%d\n", len(content))
		h.Write(content)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}
