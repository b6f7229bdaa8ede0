package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/capture/internal/logging"
	"github.com/mesh-intelligence/capture/internal/paths"
	"github.com/mesh-intelligence/capture/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CAPTURE"

	cfgKeyAPIURL          = "api_url"
	cfgKeyRefreshInterval = "refresh_interval"
	cfgKeyRequestTimeout  = "request_timeout"
	cfgKeyDataDir         = "data_dir"
	cfgKeyLogLevel        = "log_level"
	cfgKeyOutput          = "output"
)

// configKeys lists the keys accepted by "config set".
var configKeys = []string{
	cfgKeyAPIURL,
	cfgKeyRefreshInterval,
	cfgKeyRequestTimeout,
	cfgKeyDataDir,
	cfgKeyLogLevel,
	cfgKeyOutput,
}

// envKeys are bound to CAPTURE_<KEY>. data_dir is resolved separately so
// that config.yaml takes precedence over CAPTURE_DATA_DIR.
var envKeys = []string{
	cfgKeyAPIURL,
	cfgKeyRefreshInterval,
	cfgKeyRequestTimeout,
	cfgKeyLogLevel,
	cfgKeyOutput,
}

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# Capture CLI configuration

# Backend root URL
api_url: http://localhost:8080

# How often the session token is refreshed
refresh_interval: 10m

# Per-request timeout (0 disables)
# request_timeout: 30s

# Data directory for the local state database (optional; overridable by --data-dir)
# data_dir:

# debug, info, warn or error
log_level: warn

# text or json (optional; falls back to the stored preference)
# output: text
`

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default file on first run. Environment variables
// CAPTURE_<KEY> override the file.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := newViper()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// newViper returns a Viper with the built-in defaults.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(cfgKeyAPIURL, types.DefaultAPIURL)
	v.SetDefault(cfgKeyRefreshInterval, types.DefaultRefreshInterval)
	v.SetDefault(cfgKeyRequestTimeout, time.Duration(0))
	v.SetDefault(cfgKeyLogLevel, types.DefaultLogLevel)
	return v
}

// ensureDefaultConfigFile creates a default config.yaml if missing.
func ensureDefaultConfigFile(configDir string) error {
	path := paths.ConfigFile(configDir)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// configFrom builds a Config from v.
func configFrom(v *viper.Viper) types.Config {
	return types.Config{
		APIURL:          strings.TrimSpace(v.GetString(cfgKeyAPIURL)),
		RefreshInterval: v.GetDuration(cfgKeyRefreshInterval),
		RequestTimeout:  v.GetDuration(cfgKeyRequestTimeout),
		DataDir:         v.GetString(cfgKeyDataDir),
		LogLevel:        strings.ToLower(v.GetString(cfgKeyLogLevel)),
		Output:          strings.ToLower(v.GetString(cfgKeyOutput)),
	}
}

// setup resolves directories, loads and validates the config, and builds
// the logger. It runs before every subcommand except version.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	dir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(dir)
	if err != nil {
		return sysError(err)
	}
	if f := cmd.Flags().Lookup("api-url"); f != nil {
		if err := v.BindPFlag(cfgKeyAPIURL, f); err != nil {
			return sysError(err)
		}
	}

	cfg := configFrom(v)
	if err := cfg.Validate(); err != nil {
		return userError(fmt.Errorf("invalid config %s: %w", paths.ConfigFile(dir), err))
	}

	level := cfg.LogLevel
	if a.flags.verbose {
		level = "debug"
	}
	log, err := logging.New(level, cmd.ErrOrStderr())
	if err != nil {
		return userError(err)
	}

	a.v = v
	a.configDir = dir
	a.cfg = cfg
	a.log = log
	log.Debugw("config loaded", "dir", dir, "api_url", cfg.APIURL)
	return nil
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := a.dataDir()
			if err != nil {
				return sysError(err)
			}
			cfg := a.cfg
			cfg.DataDir = dataDir
			if a.jsonOut() {
				return printJSON(stdout(cmd), cfg)
			}
			out, err := yaml.Marshal(struct {
				APIURL          string `yaml:"api_url"`
				RefreshInterval string `yaml:"refresh_interval"`
				RequestTimeout  string `yaml:"request_timeout"`
				DataDir         string `yaml:"data_dir"`
				LogLevel        string `yaml:"log_level"`
				Output          string `yaml:"output,omitempty"`
			}{
				cfg.APIURL, cfg.RefreshInterval.String(), cfg.RequestTimeout.String(),
				cfg.DataDir, cfg.LogLevel, cfg.Output,
			})
			if err != nil {
				return sysError(fmt.Errorf("marshal config: %w", err))
			}
			_, err = stdout(cmd).Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(stdout(cmd), paths.ConfigFile(a.configDir))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in config.yaml",
		Long:  "Set writes a key to config.yaml.\n\nKeys: " + strings.Join(configKeys, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setConfigValue(a.configDir, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}

// setConfigValue validates key=value against the current file and writes
// the updated file.
func setConfigValue(configDir, key, value string) error {
	known := false
	for _, k := range configKeys {
		if k == key {
			known = true
		}
	}
	if !known {
		return userError(fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(configKeys, ", ")))
	}

	path := paths.ConfigFile(configDir)
	values := map[string]any{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return sysError(fmt.Errorf("read config: %w", err))
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return userError(fmt.Errorf("parse config: %w", err))
	}
	values[key] = value

	v := newViper()
	for k, val := range values {
		v.Set(k, val)
	}
	if err := configFrom(v).Validate(); err != nil {
		return userError(fmt.Errorf("%s=%s: %w", key, value, err))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var doc yaml.Node
	doc.Kind = yaml.MappingNode
	for _, k := range keys {
		var kn, vn yaml.Node
		if err := kn.Encode(k); err != nil {
			return sysError(err)
		}
		if err := vn.Encode(values[k]); err != nil {
			return sysError(err)
		}
		doc.Content = append(doc.Content, &kn, &vn)
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return sysError(fmt.Errorf("marshal config: %w", err))
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}
	return nil
}
