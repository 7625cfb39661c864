package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.TrashDir) == "" {
		return errors.New("paths.trash_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if err := ensureLoopback("daemon.listen", c.Daemon.Listen); err != nil {
		return err
	}
	if c.Daemon.APIBind != "" {
		if err := ensureLoopback("daemon.api_bind", c.Daemon.APIBind); err != nil {
			return err
		}
	}
	if c.Daemon.ReadTimeout < 0 {
		return errors.New("daemon.read_timeout must not be negative")
	}
	if c.Daemon.MaxRequestBytes <= 0 {
		return errors.New("daemon.max_request_bytes must be positive")
	}
	if _, err := cron.ParseStandard(c.Daemon.SweepSchedule); err != nil {
		return fmt.Errorf("daemon.sweep_schedule %q: %w", c.Daemon.SweepSchedule, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

// ensureLoopback rejects addresses reachable from outside the host; binding to
// loopback is the only access control the wire protocol has.
func ensureLoopback(field, address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, address, err)
	}
	if strings.TrimSpace(port) == "" {
		return fmt.Errorf("%s %q: port is required", field, address)
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%s %q: host must be a loopback address", field, address)
	}
	return nil
}
