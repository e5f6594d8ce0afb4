package config

import (
	"context"
	"time"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
)

// Resolver decides which configuration the process runs with: the
// authority's document when the authority answers, the local mirror
// otherwise.
type Resolver struct {
	store     Store
	authority Authority
	timeout   time.Duration
}

// NewResolver builds a Resolver from the agent settings. An empty
// server URL disables the authority entirely.
func NewResolver(settings *Settings) *Resolver {
	r := &Resolver{
		store:   NewStore(settings.LocalConfigPath),
		timeout: settings.Timeout(),
	}
	if settings.ServerURL != "" {
		r.authority = NewAuthority(settings.ServerURL, settings.DeviceID, settings.Timeout())
	}

	return r
}

// NewResolverWith wires a Resolver from explicit parts.
func NewResolverWith(store Store, authority Authority, timeout time.Duration) *Resolver {
	return &Resolver{store: store, authority: authority, timeout: timeout}
}

// Resolve runs the startup/reload decision sequence. A central answer
// strictly overrides whatever the local mirror holds; a central failure
// falls back to the mirror and pushes it upstream so the authority
// learns about this device.
func (r *Resolver) Resolve(ctx context.Context) (*Device, Source, error) {
	errFactory := errors.New()

	if r.authority != nil {
		cfg, err := r.authority.Fetch(ctx)
		if err == nil {
			if saveErr := r.store.Save(cfg); saveErr != nil {
				logger.Warn().Err(saveErr).Msg("Failed to mirror central config locally")
			}
			logger.Info().Str("device_type", cfg.DeviceType).Msg("Loaded config from central server")
			return cfg, SourceCentral, nil
		}
		logger.Warn().Err(err).Msg("Central config unavailable, falling back to local")
	}

	cfg, err := r.store.Load()
	if err != nil {
		return nil, "", errFactory.Wrap(ErrNoLocalFallback, err)
	}

	logger.Info().Str("device_type", cfg.DeviceType).Msg("Loaded config from local file")
	r.syncToAuthority(cfg)

	return cfg, SourceLocal, nil
}

// PersistAndSync saves the configuration locally and pushes it to the
// authority in the background. The local save failing is an error; the
// push is best effort.
func (r *Resolver) PersistAndSync(cfg *Device) error {
	if err := r.store.Save(cfg); err != nil {
		return err
	}
	r.syncToAuthority(cfg)

	return nil
}

func (r *Resolver) syncToAuthority(cfg *Device) {
	if r.authority == nil {
		return
	}

	snapshot := cfg.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.authority.Push(ctx, snapshot); err != nil {
			logger.Debug().Err(err).Msg("Config sync to central server failed")
			return
		}
		logger.Debug().Msg("Config synced to central server")
	}()
}
