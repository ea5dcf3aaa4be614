// Package cache persists decoded datasets between runs. Each dataset is one
// zstd-compressed JSON file named after it, in a directory namespaced by the
// target binary and engine version.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Store memoizes datasets in a Backend.
type Store struct {
	backend Backend
	logger  zerolog.Logger
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// New returns a store over backend.
func New(backend Backend, logger zerolog.Logger) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cache: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("cache: zstd decoder: %w", err)
	}
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "cache").Logger(),
		enc:     enc,
		dec:     dec,
	}, nil
}

// Open returns a store in root/namespace on fs.
func Open(fs afero.Fs, root, namespace string, logger zerolog.Logger) (*Store, error) {
	return New(NewFSBackend(fs, filepath.Join(root, namespace)), logger)
}

// Close releases the codec state.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func (s *Store) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(raw, nil), nil
}

func (s *Store) decode(data []byte, v any) error {
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Load returns the dataset called name. With refresh set, or when nothing
// is stored yet, compute runs and its result is stored; otherwise the
// stored value is returned and compute is not called. Compute errors are
// returned as is and nothing is stored. A stored entry that cannot be
// decoded is recomputed.
func Load[T any](s *Store, name string, refresh bool, compute func() (T, error)) (T, error) {
	key := name + Ext
	log := s.logger.With().Str("dataset", name).Logger()

	if !refresh {
		v, ok, err := lookup[T](s, key)
		if err != nil {
			return v, err
		}
		if ok {
			log.Debug().Msg("cache hit")
			return v, nil
		}
		log.Debug().Msg("cache miss")
	} else {
		log.Debug().Msg("cache refresh")
	}

	v, err := compute()
	if err != nil {
		return v, err
	}
	data, err := s.encode(v)
	if err != nil {
		return v, fmt.Errorf("cache: encode %s: %w", name, err)
	}
	if err := s.backend.Write(key, data); err != nil {
		return v, err
	}
	log.Debug().Int("bytes", len(data)).Msg("cache stored")
	return v, nil
}

func lookup[T any](s *Store, key string) (T, bool, error) {
	var v T
	has, err := s.backend.Has(key)
	if err != nil || !has {
		return v, false, err
	}
	data, err := s.backend.Read(key)
	if err != nil {
		return v, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	if err := s.decode(data, &v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("corrupt cache entry, recomputing")
		var zero T
		return zero, false, nil
	}
	return v, true, nil
}

// Namespace fingerprints the target binary (path, size, modification time)
// and engine version, so that entries of different binaries or versions are
// never mixed.
func Namespace(fs afero.Fs, binary string, version int) (string, error) {
	abs, err := filepath.Abs(binary)
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	fi, err := fs.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cache: stat %s: %w", binary, err)
	}
	h := xxhash.New()
	h.WriteString(abs)
	h.WriteString("\x00" + strconv.FormatInt(fi.Size(), 10))
	h.WriteString("\x00" + strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	h.WriteString("\x00" + strconv.Itoa(version))
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// DefaultDir is the per-user cache directory for xinfo.
func DefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	return filepath.Join(dir, "xinfo"), nil
}
