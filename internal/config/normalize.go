package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("TRASHCAN_TRASH_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.TrashDir = value
	}
	if strings.TrimSpace(c.Paths.TrashDir) == "" {
		c.Paths.TrashDir = defaultTrashDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.TrashDir, err = ExpandPath(strings.TrimSpace(c.Paths.TrashDir)); err != nil {
		return fmt.Errorf("paths.trash_dir: %w", err)
	}
	if c.Paths.LogDir, err = ExpandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	c.Daemon.Listen = strings.TrimSpace(c.Daemon.Listen)
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = defaultListen
	}
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if value := strings.TrimSpace(os.Getenv("TRASHCAN_API_TOKEN")); value != "" {
		c.Daemon.APIToken = value
	}
	c.Daemon.APIToken = strings.TrimSpace(c.Daemon.APIToken)
	c.Daemon.SweepSchedule = strings.TrimSpace(c.Daemon.SweepSchedule)
	if c.Daemon.SweepSchedule == "" {
		c.Daemon.SweepSchedule = defaultSweepSchedule
	}
	if c.Daemon.MaxRequestBytes == 0 {
		c.Daemon.MaxRequestBytes = defaultMaxRequestBytes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
