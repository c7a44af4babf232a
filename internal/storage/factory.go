package storage

import (
	"github.com/kimhsiao/mdreader/core/internal/config"
	"github.com/kimhsiao/mdreader/core/internal/logging"
)

// NewProvider selects and constructs the storage backend for the given
// configuration. The chosen backend is logged; tests treat that log line as
// the selection contract.
//
// The native filesystem backend is attempted only on desktop with the
// explicit opt-in flag and is announced with a warning first. When it is
// unavailable the selection falls back to SQLite. Init is the caller's
// responsibility and its failure is never swallowed here.
func NewProvider(cfg config.Config) (Provider, error) {
	if cfg.Platform == config.PlatformDesktop && cfg.NativeStorage {
		logging.Warn("native filesystem storage is experimental",
			map[string]interface{}{"data_dir": cfg.DataDir})

		p, err := NewFileProvider(cfg.DataDir)
		if err == nil {
			logging.Info("storage provider selected",
				map[string]interface{}{"provider": ProviderFilesystem})
			return p, nil
		}

		logging.Warn("native filesystem storage unavailable, using sqlite",
			map[string]interface{}{"error": err.Error()})
	}

	p, err := NewSQLiteProvider(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	logging.Info("storage provider selected",
		map[string]interface{}{"provider": ProviderSQLite})
	return p, nil
}
