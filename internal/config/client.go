package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edgewatt/powerexporter/internal/errors"
)

// httpAuthority is the HTTP client for the configuration authority.
type httpAuthority struct {
	baseURL  string
	deviceID string
	client   *http.Client
}

// NewAuthority returns an Authority for the central configuration
// service at baseURL. Every request is bounded by timeout.
func NewAuthority(baseURL, deviceID string, timeout time.Duration) Authority {
	return &httpAuthority{
		baseURL:  baseURL,
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
	}
}

func (a *httpAuthority) configURL() string {
	return fmt.Sprintf("%s/config/%s", a.baseURL, a.deviceID)
}

func (a *httpAuthority) Fetch(ctx context.Context) (*Device, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.configURL(), nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrAuthorityUnreachable, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrAuthorityUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errFactory.WithData(ErrAuthorityRejected, resp.Status)
	}

	cfg := &Device{}
	if err := json.NewDecoder(resp.Body).Decode(cfg); err != nil {
		return nil, errFactory.Wrap(ErrMalformedDocument, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (a *httpAuthority) Push(ctx context.Context, cfg *Device) error {
	errFactory := errors.New()

	body, err := json.Marshal(cfg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.configURL(), bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrAuthorityUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrAuthorityUnreachable, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if resp.StatusCode/100 != 2 {
		return errFactory.WithData(ErrAuthorityRejected, resp.Status)
	}

	return nil
}
