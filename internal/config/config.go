// Package config loads gdc-maf-tool settings. Defaults are overridden by an
// optional YAML file, then by GDC_MAF_* environment variables. Command line
// flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/me/gdcmaf/pkg/gdc"
)

// Config holds every setting of a collection run.
type Config struct {
	API struct {
		URL             string        `yaml:"url" envconfig:"GDC_MAF_API_URL"`
		PageSize        int           `yaml:"page_size" envconfig:"GDC_MAF_PAGE_SIZE"`
		Timeout         time.Duration `yaml:"timeout" envconfig:"GDC_MAF_API_TIMEOUT"`
		DownloadTimeout time.Duration `yaml:"download_timeout" envconfig:"GDC_MAF_DOWNLOAD_TIMEOUT"`
		MaxRetries      int           `yaml:"max_retries" envconfig:"GDC_MAF_MAX_RETRIES"`
		RetryDelay      time.Duration `yaml:"retry_delay" envconfig:"GDC_MAF_RETRY_DELAY"`
	} `yaml:"api"`

	Download struct {
		Concurrency int  `yaml:"concurrency" envconfig:"GDC_MAF_CONCURRENCY"`
		ProbeAccess bool `yaml:"probe_access" envconfig:"GDC_MAF_PROBE_ACCESS"`
	} `yaml:"download"`

	Output struct {
		Path          string `yaml:"path" envconfig:"GDC_MAF_OUTPUT"`
		FailureReport string `yaml:"failure_report" envconfig:"GDC_MAF_FAILURE_REPORT"`
	} `yaml:"output"`

	S3 struct {
		Region    string `yaml:"region" envconfig:"GDC_MAF_S3_REGION"`
		Endpoint  string `yaml:"endpoint" envconfig:"GDC_MAF_S3_ENDPOINT"`
		PathStyle bool   `yaml:"path_style" envconfig:"GDC_MAF_S3_PATH_STYLE"`
	} `yaml:"s3"`

	Log struct {
		Level  string `yaml:"level" envconfig:"GDC_MAF_LOG_LEVEL"`
		Format string `yaml:"format" envconfig:"GDC_MAF_LOG_FORMAT"`
	} `yaml:"log"`

	History struct {
		DBPath string `yaml:"db_path" envconfig:"GDC_MAF_HISTORY_DB"`
	} `yaml:"history"`

	Metrics struct {
		File string `yaml:"file" envconfig:"GDC_MAF_METRICS_FILE"`
	} `yaml:"metrics"`

	Tracing struct {
		Endpoint    string `yaml:"endpoint" envconfig:"GDC_MAF_OTLP_ENDPOINT"`
		ServiceName string `yaml:"service_name" envconfig:"GDC_MAF_SERVICE_NAME"`
		Environment string `yaml:"environment" envconfig:"GDC_MAF_ENVIRONMENT"`
	} `yaml:"tracing"`

	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout" envconfig:"GDC_MAF_TIMEOUT"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	api := gdc.DefaultConfig()
	c.API.URL = api.APIURL
	c.API.PageSize = api.PageSize
	c.API.Timeout = api.Timeout
	c.API.DownloadTimeout = api.DownloadTimeout
	c.API.MaxRetries = api.MaxRetries
	c.API.RetryDelay = api.RetryDelay
	c.Download.Concurrency = 4
	c.Output.Path = "outfile.maf.gz"
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Tracing.ServiceName = "gdc-maf-tool"
	c.Tracing.Environment = "production"
	return c
}

// Load returns Default overridden by the YAML file at path, when path is not
// empty, and by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.API.URL == "" {
		errs = append(errs, errors.New("api.url is required"))
	}
	if c.API.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("api.max_retries must not be negative, got %d", c.API.MaxRetries))
	}
	if c.Download.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("download.concurrency must be positive, got %d", c.Download.Concurrency))
	}
	if c.Output.Path == "" {
		errs = append(errs, errors.New("output.path is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// GDC returns the API client configuration.
func (c Config) GDC() gdc.Config {
	return gdc.Config{
		APIURL:          c.API.URL,
		PageSize:        c.API.PageSize,
		Timeout:         c.API.Timeout,
		DownloadTimeout: c.API.DownloadTimeout,
		MaxRetries:      c.API.MaxRetries,
		RetryDelay:      c.API.RetryDelay,
	}
}
