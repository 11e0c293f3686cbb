// Package gdc provides a Go client for the NCI Genomic Data Commons (GDC)
// REST API: the files metadata endpoint and the data download endpoint.
package gdc

import "time"

// DefaultAPIURL is the production GDC API.
const DefaultAPIURL = "https://api.gdc.cancer.gov"

// Default client settings.
const (
	DefaultPageSize        = 5000
	DefaultTimeout         = 60 * time.Second
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 1 * time.Second
)

// TokenHeader carries the GDC user token for controlled access data.
const TokenHeader = "X-Auth-Token"

// Config holds all configuration for the GDC API client.
type Config struct {
	// APIURL is the base URL of the GDC API, without a trailing slash.
	APIURL string

	// PageSize is the number of hits requested per files query page.
	PageSize int

	// Timeout bounds each metadata request.
	Timeout time.Duration

	// DownloadTimeout bounds each file download.
	DownloadTimeout time.Duration

	// MaxRetries is the number of retries after a transient failure.
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff applied).
	RetryDelay time.Duration
}

// DefaultConfig returns a Config for the production API.
func DefaultConfig() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		PageSize:        DefaultPageSize,
		Timeout:         DefaultTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
	}
}

// WithAPIURL returns a copy of the config pointed at another API base URL.
func (c Config) WithAPIURL(url string) Config {
	c.APIURL = url
	return c
}

// WithRetries returns a copy of the config with the specified retry settings.
func (c Config) WithRetries(maxRetries int, retryDelay time.Duration) Config {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
	return c
}
