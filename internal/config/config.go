// Package config provides configuration management for the archiver.
// It defines the tunables of the crawl pipeline and their default values.
package config

import (
	"time"
)

// Config holds the archiver configuration.
type Config struct {
	// What to archive
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`             // URL prefix filter for the capture index
	CDXEndpoint string `mapstructure:"cdx_endpoint" yaml:"cdx_endpoint"` // CDX index API endpoint
	CDXPageSize int    `mapstructure:"cdx_page_size" yaml:"cdx_page_size"`

	// Worker counts
	CDXWorkers   int `mapstructure:"cdx_workers" yaml:"cdx_workers"`     // index paginators
	FetchWorkers int `mapstructure:"fetch_workers" yaml:"fetch_workers"` // capture downloaders
	ParseWorkers int `mapstructure:"parse_workers" yaml:"parse_workers"` // extraction workers

	// Flow control
	QueueLength int           `mapstructure:"queue_length" yaml:"queue_length"` // admission semaphore size
	MaxRetry    int           `mapstructure:"max_retry" yaml:"max_retry"`       // per-capture attempt budget
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`     // write batch flush threshold
	IndexPace   time.Duration `mapstructure:"index_pace" yaml:"index_pace"`     // minimum spacing of index queries

	// HTTP behaviour
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Cooldown        time.Duration `mapstructure:"cooldown" yaml:"cooldown"`   // initial backoff after throttling
	MaxSleep        time.Duration `mapstructure:"max_sleep" yaml:"max_sleep"` // backoff ceiling
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	RetryNotFound   bool          `mapstructure:"retry_not_found" yaml:"retry_not_found"`   // retry non-throttling non-2xx (404 etc.)
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"` // alias 3xx captures to their target
	StatsInterval   time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`     // progress report period

	// Storage
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	ArchiveRoot  string `mapstructure:"archive_root" yaml:"archive_root"` // downloaded tree for offline reparse
}

// Default returns a configuration with default values. The defaults
// mirror what the Wayback Machine tolerates in practice: few index
// paginators, many fetch workers (most requests end as 404 or 302), and
// an aggressive cooldown once 429s start.
func Default() *Config {
	return &Config{
		Prefix:          "http://stackoverflow.com/questions/",
		CDXEndpoint:     "http://web.archive.org/cdx/search/cdx",
		CDXPageSize:     5000,
		CDXWorkers:      2,
		FetchWorkers:    16,
		ParseWorkers:    5,
		QueueLength:     1000,
		MaxRetry:        5,
		BatchSize:       10000,
		IndexPace:       time.Second,
		ConnectTimeout:  6500 * time.Millisecond,
		RequestTimeout:  10 * time.Second,
		Cooldown:        15 * time.Second,
		MaxSleep:        120 * time.Second,
		UserAgent:       "Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1; SV1)",
		RetryNotFound:   true,
		FollowRedirects: false,
		StatsInterval:   10 * time.Second,
		DatabasePath:    "questions.db",
		ArchiveRoot:     "web.archive.org/web",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Prefix == "" {
		return ErrEmptyPrefix
	}
	if c.CDXWorkers <= 0 || c.FetchWorkers <= 0 || c.ParseWorkers <= 0 {
		return ErrInvalidWorkers
	}
	if c.QueueLength <= 0 {
		return ErrInvalidQueueLength
	}
	if c.MaxRetry <= 0 {
		return ErrInvalidMaxRetry
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.RequestTimeout <= 0 || c.ConnectTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.DatabasePath == "" {
		return ErrEmptyDatabasePath
	}
	return nil
}
