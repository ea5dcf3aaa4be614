package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"xinfo/internal/binimg"
	"xinfo/internal/cache"
	"xinfo/internal/catalog"
	"xinfo/internal/config"
	"xinfo/internal/disasm"
	"xinfo/internal/elfx"
	"xinfo/internal/logging"
	"xinfo/internal/xtab"
)

// session is one opened binary and everything decoded from it.
type session struct {
	cfg    config.Config
	logger zerolog.Logger
	img    *binimg.Image
	syms   binimg.SymbolProvider
	arch   disasm.Arch
	cat    *catalog.Catalog

	elf     *elfx.File
	closers []io.Closer
}

func openSession(ctx context.Context, o *options) (*session, error) {
	cfg, logger, err := o.resolve(ctx)
	if err != nil {
		return nil, err
	}

	ef, err := elfx.Open(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Binary, err)
	}
	s := &session{cfg: cfg, logger: logger, elf: ef, syms: ef, closers: []io.Closer{ef}}

	arch, err := disasm.ArchFor(ef.Machine())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.arch = arch
	s.img = binimg.New(ef, logger)
	logger.Debug().Str("binary", cfg.Binary).Int64("size", ef.FileSize()).
		Str("arch", arch.String()).Msg("opened binary")

	var store *cache.Store
	if !o.noCache {
		store, err = openStore(o, cfg, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, store)
	}
	s.cat = catalog.New(xtab.NewDecoder(s.img, logger), store, cfg, logger)
	return s, nil
}

func openStore(o *options, cfg config.Config, logger zerolog.Logger) (*cache.Store, error) {
	dir := cfg.CacheDir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			return nil, err
		}
	}
	ns, err := cache.Namespace(o.fs, cfg.Binary, cfg.Version)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("dir", dir).Str("namespace", ns).Msg("cache")
	return cache.Open(o.fs, dir, ns, logger)
}

// Close releases the cache and the binary, last opened first.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		logging.DeferClose(s.logger, s.closers[i], "close")
	}
}
