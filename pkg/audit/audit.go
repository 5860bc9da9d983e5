package audit

import (
	"fmt"

	"sentinel-hq/aegis/pkg/config"
)

// New builds the recorder selected by cfg. A disabled config returns a
// nil recorder, which records nothing.
func New(cfg config.AuditConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var storage Storage
	switch cfg.Backend {
	case config.AuditBackendMemory:
		storage = NewMemoryStorage(0)
	case config.AuditBackendSQLite:
		s, err := NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		storage = s
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}

	return NewRecorder(storage, cfg.BufferSize, cfg.RetentionDays, cfg.PruneSchedule), nil
}
