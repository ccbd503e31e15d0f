package hashcache

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/logging"
	"github.com/corediff/corediff/pkg/must"
)

// The on-disk cache format is a small fixed header followed by a flat
// sequence of records, each a length-prefixed instance ID and path followed
// by the fixed-size size, mtime and digest fields. It is intentionally
// simple: there is no
// indexing structure on disk, since the whole file is loaded into the
// in-memory map on Load.
const (
	magic             = "CDHC" // corediff hash cache
	schemaVersion     = 1
	algorithmBlake3   = 1
	headerSize        = 4 + 4 + 1 + 4 // magic + version + algorithm + record count
	recordFixedFields = 8 + 8 + diffcore.DigestSize
)

// Save persists the cache to path using a write-temp-fsync-rename
// sequence, so a concurrent crash or power loss can never leave path
// holding a partially written file, and an explicit fsync guards against
// losing what may be an expensive-to-recompute set of hashes.
func (c *Cache) Save(path string, logger *logging.Logger) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, ".hashcache-*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create temporary cache file: %w", err)
	}
	tempPath := temp.Name()

	if err := c.writeTo(temp); err != nil {
		must.Close(temp, logger)
		must.OSRemove(tempPath, logger)
		return fmt.Errorf("unable to write cache content: %w", err)
	}
	if err := temp.Sync(); err != nil {
		must.Close(temp, logger)
		must.OSRemove(tempPath, logger)
		return fmt.Errorf("unable to sync cache file: %w", err)
	}
	if err := temp.Close(); err != nil {
		must.OSRemove(tempPath, logger)
		return fmt.Errorf("unable to close cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		must.OSRemove(tempPath, logger)
		return fmt.Errorf("unable to rename cache file into place: %w", err)
	}
	return nil
}

func (c *Cache) writeTo(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(schemaVersion)); err != nil {
		return err
	}
	if err := bw.WriteByte(algorithmBlake3); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(c.entries))); err != nil {
		return err
	}

	for k, digest := range c.entries {
		if err := writeString(bw, k.instanceID); err != nil {
			return err
		}
		if err := writeString(bw, k.path); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, k.size); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, k.mtimeSec); err != nil {
			return err
		}
		if _, err := bw.Write(digest[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeString(w *bufio.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Load reads a cache previously written by Save. A missing file is treated
// as an empty cache (the common case on first run), not an error.
func Load(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, diffcore.NewError(diffcore.ErrorKindIO, path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(br, magicBuf); err != nil || string(magicBuf) != magic {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, fmt.Errorf("bad magic"))
	}

	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
	}
	if version != schemaVersion {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, fmt.Errorf("unsupported schema version %d", version))
	}

	algorithm, err := br.ReadByte()
	if err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
	}
	if algorithm != algorithmBlake3 {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, fmt.Errorf("unsupported digest algorithm %d", algorithm))
	}

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
	}

	cache := New()
	for i := uint32(0); i < count; i++ {
		instanceID, err := readString(br)
		if err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
		}
		entryPath, err := readString(br)
		if err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
		}
		var size uint64
		if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
		}
		var mtimeSec int64
		if err := binary.Read(br, binary.LittleEndian, &mtimeSec); err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
		}
		var digest diffcore.Digest
		if _, err := io.ReadFull(br, digest[:]); err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindCorrupted, path, err)
		}
		cache.entries[key{instanceID: instanceID, path: entryPath, size: size, mtimeSec: mtimeSec}] = digest
	}

	return cache, nil
}

// LoadOrEmpty loads the cache at path, logging (rather than failing on) any
// corruption or I/O error and starting from an empty cache in that case,
// per the contract that cache problems are never fatal to a comparison run.
func LoadOrEmpty(path string, logger *logging.Logger) *Cache {
	cache, err := Load(path)
	if err != nil {
		logCacheFailure(logger, "load", err)
		return New()
	}
	return cache
}
