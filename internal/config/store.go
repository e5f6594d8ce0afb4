package config

import (
	"os"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
	"gopkg.in/yaml.v3"
)

// fileStore keeps the local configuration mirror as a YAML document.
type fileStore struct {
	path string
}

// NewStore returns a Store backed by the YAML file at path.
func NewStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Load() (*Device, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadConfig, err)
	}

	cfg := &Device{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errFactory.Wrap(ErrMalformedDocument, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes through a temporary file and renames it into place, so a
// crash mid-write never leaves a truncated document behind.
func (s *fileStore) Save(cfg *Device) error {
	errFactory := errors.New()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errFactory.Wrap(ErrSaveFailed, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errFactory.Wrap(ErrSaveFailed, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Debug().Err(removeErr).Msg("Failed to clean up temporary config file")
		}
		return errFactory.Wrap(ErrSaveFailed, err)
	}

	return nil
}
