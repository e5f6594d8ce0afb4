package collector

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
)

// tegraCollector samples a Jetson board by running tegrastats once per
// cycle and parsing the first line it prints. The metric set is
// whatever the board reports, so names are discovered at runtime.
type tegraCollector struct {
	parse func(string) map[string]float64
	run   func(ctx context.Context) (string, error)

	mu    sync.Mutex
	names []string
}

func newTegraCollector(parse func(string) map[string]float64) *tegraCollector {
	return &tegraCollector{
		parse: parse,
		run:   runTegrastats,
	}
}

func (c *tegraCollector) MetricNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.names))
	copy(names, c.names)

	return names
}

func (c *tegraCollector) Collect(ctx context.Context) (map[string]float64, error) {
	line, err := c.run(ctx)
	if err != nil {
		return nil, err
	}

	samples := c.parse(line)

	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()

	return samples, nil
}

func (c *tegraCollector) Close() error {
	return nil
}

// runTegrastats starts tegrastats, reads one report line and kills the
// process again. tegrastats needs root on most L4T releases, so a
// non-root process runs it through sudo.
func runTegrastats(ctx context.Context) (string, error) {
	errFactory := errors.New()

	name := "tegrastats"
	args := []string{"--interval", "100"}
	if os.Geteuid() != 0 {
		name = "sudo"
		args = append([]string{"tegrastats"}, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errFactory.Wrap(ErrCommandFailed, err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", errFactory.Wrap(ErrToolNotFound, err)
		}
		return "", errFactory.Wrap(ErrCommandFailed, err)
	}
	defer func() {
		if err := cmd.Process.Kill(); err != nil {
			logger.Debug().Err(err).Msg("Failed to kill tegrastats")
		}
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		if ctx.Err() != nil {
			return "", errFactory.Wrap(ErrCommandFailed, ctx.Err())
		}
		if err := scanner.Err(); err != nil {
			return "", errFactory.Wrap(ErrCommandFailed, err)
		}
		return "", errFactory.New(ErrEmptyOutput)
	}

	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return "", errFactory.New(ErrEmptyOutput)
	}

	return line, nil
}
