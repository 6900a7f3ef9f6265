// Package config resolves pcapconv settings from defaults, an optional config
// file, PCAPCONV_* environment variables and explicit command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "PCAPCONV"

type Sort struct {
	Prot string `mapstructure:"prot"`
	Eth  string `mapstructure:"eth"`
	HP   string `mapstructure:"hp"`
	TCP  string `mapstructure:"tcp"`
}

type Config struct {
	Pcap     string `mapstructure:"pcap"`
	Report   string `mapstructure:"report"`
	Format   string `mapstructure:"format"`
	Sort     Sort   `mapstructure:"sort"`
	Filter   string `mapstructure:"filter"`
	List     string `mapstructure:"list"`
	Plot     string `mapstructure:"plot"`
	OutDir   string `mapstructure:"out-dir"`
	TraceCSV string `mapstructure:"trace-csv"`
	Reader   string `mapstructure:"reader"`
	Buffer   int    `mapstructure:"buffer"`
	LogLevel string `mapstructure:"log-level"`
	Quiet    bool   `mapstructure:"quiet"`
}

var defaults = map[string]any{
	"pcap":      "",
	"report":    "all",
	"format":    "text",
	"sort.prot": "id",
	"sort.eth":  "id",
	"sort.hp":   "id",
	"sort.tcp":  "id",
	"filter":    "",
	"list":      "",
	"plot":      "",
	"out-dir":   ".",
	"trace-csv": "",
	"reader":    "pcap",
	"buffer":    1024,
	"log-level": "info",
	"quiet":     false,
}

// Keys lists every recognised setting.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	return keys
}

// Load builds the configuration. file may be empty. overrides holds values
// of flags the user set explicitly, keyed by setting name.
func Load(file string, overrides map[string]string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	for k, val := range overrides {
		if _, ok := defaults[k]; !ok {
			return nil, fmt.Errorf("unknown setting %q", k)
		}
		v.Set(k, val)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q, want one of %s", name, value, strings.Join(allowed, ", "))
}

// Validate checks the enumerated settings and lower-cases them.
func (c *Config) Validate() error {
	c.Report = strings.ToLower(c.Report)
	c.Format = strings.ToLower(c.Format)
	c.Reader = strings.ToLower(c.Reader)

	if c.Pcap == "" {
		return fmt.Errorf("please provide at least one PCAP file using --pcap or -p")
	}
	if err := oneOf("report", c.Report, "prot", "eth", "hp", "tcp", "all"); err != nil {
		return err
	}
	if err := oneOf("format", c.Format, "text", "csv", "both"); err != nil {
		return err
	}
	if err := oneOf("reader", c.Reader, "pcap", "go"); err != nil {
		return err
	}
	if c.Buffer <= 0 {
		return fmt.Errorf("invalid buffer %d, must be positive", c.Buffer)
	}
	return nil
}
