package types

import (
	"errors"
	"net/url"
	"time"

	"go.uber.org/multierr"
)

// Config holds the client settings loaded from config.yaml, the environment
// and flags.
type Config struct {
	APIURL          string        `json:"api_url" yaml:"api_url"`
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout"`
	DataDir         string        `json:"data_dir" yaml:"data_dir,omitempty"`
	LogLevel        string        `json:"log_level" yaml:"log_level"`
	Output          string        `json:"output" yaml:"output"`
}

// Output modes.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Defaults applied when a key is absent from every source.
const (
	DefaultAPIURL          = "http://localhost:8080"
	DefaultRefreshInterval = 10 * time.Minute
	DefaultLogLevel        = "warn"
)

// Config validation errors.
var (
	ErrAPIURLEmpty            = errors.New("api_url must not be empty")
	ErrAPIURLInvalid          = errors.New("api_url must be an absolute http or https URL")
	ErrRefreshIntervalInvalid = errors.New("refresh_interval must be positive")
	ErrRequestTimeoutInvalid  = errors.New("request_timeout must not be negative")
	ErrOutputUnknown          = errors.New("unknown output mode")
	ErrLogLevelUnknown        = errors.New("unknown log level")
)

var knownLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		RefreshInterval: DefaultRefreshInterval,
		LogLevel:        DefaultLogLevel,
		Output:          OutputText,
	}
}

// Validate checks that the Config is well-formed. Every problem is reported;
// use errors.Is against the sentinels above to test for a specific one.
func (c Config) Validate() error {
	var err error
	switch {
	case c.APIURL == "":
		err = multierr.Append(err, ErrAPIURLEmpty)
	default:
		u, perr := url.Parse(c.APIURL)
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			err = multierr.Append(err, ErrAPIURLInvalid)
		}
	}
	if c.RefreshInterval <= 0 {
		err = multierr.Append(err, ErrRefreshIntervalInvalid)
	}
	if c.RequestTimeout < 0 {
		err = multierr.Append(err, ErrRequestTimeoutInvalid)
	}
	if c.Output != "" && c.Output != OutputText && c.Output != OutputJSON {
		err = multierr.Append(err, ErrOutputUnknown)
	}
	if c.LogLevel != "" && !knownLogLevels[c.LogLevel] {
		err = multierr.Append(err, ErrLogLevelUnknown)
	}
	return err
}
