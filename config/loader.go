package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "MEDIABUS"

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type BusConfig struct {
	MailboxSize int `mapstructure:"mailbox_size"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"` // e.g., 0.0.0.0:9090
}

type ConsulConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// EventConfig names an event exported to the network.
type EventConfig struct {
	Publisher string `mapstructure:"publisher"`
	Event     string `mapstructure:"event"`
}

// ImportConfig forwards a remote event to a relay member named To, which
// re-broadcasts it as (To, Event) on the local bus.
type ImportConfig struct {
	Publisher string `mapstructure:"publisher"`
	Event     string `mapstructure:"event"`
	To        string `mapstructure:"to"`
}

type ZMQConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Endpoints are used when consul is disabled.
	Endpoints []string       `mapstructure:"endpoints"`
	Export    []EventConfig  `mapstructure:"export"`
	Import    []ImportConfig `mapstructure:"import"`
}

type AddrBookConfig struct {
	Size int `mapstructure:"size"`
}

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Bus      BusConfig      `mapstructure:"bus"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Consul   ConsulConfig   `mapstructure:"consul"`
	ZMQ      ZMQConfig      `mapstructure:"zmq"`
	AddrBook AddrBookConfig `mapstructure:"addr_book"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("bus.mailbox_size", 64)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "0.0.0.0:9090")
	v.SetDefault("consul.enabled", false)
	v.SetDefault("consul.address", "127.0.0.1:8500")
	v.SetDefault("zmq.host", "127.0.0.1")
	v.SetDefault("zmq.port", 5555)
	v.SetDefault("addr_book.size", 256)
}

// Load reads a YAML file. Scalar keys that have a default or appear in the
// file can be overridden from the environment, e.g. MEDIABUS_BUS_MAILBOX_SIZE.
// The zmq.endpoints, zmq.export and zmq.import lists come from the file only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal defaults: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Bus.MailboxSize < 0 {
		return fmt.Errorf("bus.mailbox_size must be >= 0, got %d", c.Bus.MailboxSize)
	}
	if c.AddrBook.Size <= 0 {
		return fmt.Errorf("addr_book.size must be > 0, got %d", c.AddrBook.Size)
	}
	if len(c.ZMQ.Export) > 0 && (c.ZMQ.Port <= 0 || c.ZMQ.Port > 65535) {
		return fmt.Errorf("zmq.port out of range: %d", c.ZMQ.Port)
	}
	for i, e := range c.ZMQ.Export {
		if e.Publisher == "" || e.Event == "" {
			return fmt.Errorf("zmq.export[%d]: publisher and event are required", i)
		}
	}
	relays := make(map[string]int, len(c.ZMQ.Import))
	for i, imp := range c.ZMQ.Import {
		if imp.Publisher == "" || imp.Event == "" || imp.To == "" {
			return fmt.Errorf("zmq.import[%d]: publisher, event and to are required", i)
		}
		// Each import gets its own relay member named by to.
		if j, ok := relays[imp.To]; ok {
			return fmt.Errorf("zmq.import[%d]: to %q already used by zmq.import[%d]", i, imp.To, j)
		}
		relays[imp.To] = i
	}
	if len(c.ZMQ.Import) > 0 && !c.Consul.Enabled && len(c.ZMQ.Endpoints) == 0 {
		return fmt.Errorf("zmq.import needs consul.enabled or zmq.endpoints")
	}
	return nil
}
