package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lachlan2k/external-dns-hostsblock-webhook/hostsfile"
)

const envPrefix = "HOSTSBLOCK"

const (
	backendDisk      = "disk"
	backendConfigMap = "configmap"
)

type Config struct {
	HostsFile          string   `mapstructure:"hosts-file"`
	Backend            string   `mapstructure:"backend"`
	ConfigMapNamespace string   `mapstructure:"configmap-namespace"`
	ConfigMapName      string   `mapstructure:"configmap-name"`
	ConfigMapKey       string   `mapstructure:"configmap-key"`
	BeginMarker        string   `mapstructure:"begin-marker"`
	EndMarker          string   `mapstructure:"end-marker"`
	Listen             string   `mapstructure:"listen"`
	HealthListen       string   `mapstructure:"health-listen"`
	TTL                int64    `mapstructure:"ttl"`
	DomainFilter       []string `mapstructure:"domain-filter"`
	LogLevel           string   `mapstructure:"log-level"`
	LogFormat          string   `mapstructure:"log-format"`
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Optional config file (yaml, toml or json)")
	fs.String("hosts-file", "", "Path to the hosts file to update")
	fs.String("backend", backendDisk, "Backend to persist hostsfile, options: disk, configmap")
	fs.String("configmap-namespace", "default", "Namespace for the configmap backend")
	fs.String("configmap-name", "external-dns-hostsfile", "Name of the configmap to use for the configmap backend")
	fs.String("configmap-key", defaultConfigMapHostsfileKey, "Data key holding the hosts file in the configmap")
	fs.String("begin-marker", hostsfile.DefaultMarkers.Begin, "Comment line opening the managed block")
	fs.String("end-marker", hostsfile.DefaultMarkers.End, "Comment line closing the managed block")
	fs.String("listen", ":8888", "Address of the webhook API")
	fs.String("health-listen", ":8080", "Address of the health and webhook API for probes")
	fs.Int64("ttl", 10, "TTL reported for every record")
	fs.StringSlice("domain-filter", nil, "Limit the provider to these domains")
	fs.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.String("log-format", "console", "Log format: console or json")
}

// loadConfig merges flags, HOSTSBLOCK_* environment variables and the
// optional config file, in that order of precedence.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "binding flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Backend {
	case backendDisk:
		if c.HostsFile == "" {
			return errors.New("you must provide a path to the hosts file when using the disk backend")
		}
	case backendConfigMap:
		if c.ConfigMapNamespace == "" || c.ConfigMapName == "" {
			return errors.New("you must provide a namespace and name for the configmap when using the configmap backend")
		}
	default:
		return errors.Errorf("unknown backend %s, supported backends are: disk, configmap", c.Backend)
	}

	if c.BeginMarker == "" || c.EndMarker == "" {
		return errors.New("block markers must not be empty")
	}
	if c.BeginMarker == c.EndMarker {
		return errors.New("begin and end markers must differ")
	}
	for _, m := range []string{c.BeginMarker, c.EndMarker} {
		if !strings.HasPrefix(strings.TrimSpace(m), "#") {
			return errors.Errorf("marker %q is not a comment line", m)
		}
		if strings.ContainsAny(m, "\r\n") {
			return errors.Errorf("marker %q spans several lines", m)
		}
	}
	return nil
}

func (c *Config) Markers() hostsfile.Markers {
	return hostsfile.Markers{Begin: c.BeginMarker, End: c.EndMarker}
}

// Persister returns the configured backend. With mustExist set, reading a
// hosts file or ConfigMap that does not exist fails instead of starting empty.
func (c *Config) Persister(mustExist bool) (hostsfile.Persister, error) {
	if c.Backend == backendConfigMap {
		p, err := NewConfigMapHostsfilePersister(c.ConfigMapNamespace, c.ConfigMapName, c.ConfigMapKey)
		if err != nil {
			return nil, err
		}
		p.mustExist = mustExist
		return p, nil
	}
	p := NewOnDiskHostsfilePersister(c.HostsFile)
	p.mustExist = mustExist
	return p, nil
}
