// Package config loads the exchange configuration from a YAML file
// (default: configs/exchange.yaml) with EXCHANGE_* environment overrides.
// The file carries the two startup artefacts — the stock list and the
// investor roster — plus transport and queue tuning.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Listen    ListenConfig  `mapstructure:"listen"`
	Engine    EngineConfig  `mapstructure:"engine"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Stocks    []Stock       `mapstructure:"stocks"`
	Investors []Investor    `mapstructure:"investors"`
}

type ListenConfig struct {
	OrderEntry string `mapstructure:"order_entry"`
	MarketData string `mapstructure:"market_data"`
}

// EngineConfig bounds the queues between transports and the portal writer.
// Overflowing a session or subscriber queue drops that client; the writer
// never stalls on a slow consumer.
type EngineConfig struct {
	CommandQueue    int `mapstructure:"command_queue"`
	SessionQueue    int `mapstructure:"session_queue"`
	SubscriberQueue int `mapstructure:"subscriber_queue"`
	Workers         int `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Stock struct {
	Ticker string `mapstructure:"ticker"`
	Name   string `mapstructure:"name"`
}

type Investor struct {
	ID        uint64           `mapstructure:"id"`
	Password  string           `mapstructure:"password"`
	Cash      float64          `mapstructure:"cash"`
	Positions map[string]int64 `mapstructure:"positions"`
}

// Load reads the config file at path, applying defaults and environment
// overrides (EXCHANGE_LOGGING_LEVEL and friends).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("listen.order_entry", ":9001")
	v.SetDefault("listen.market_data", ":9002")
	v.SetDefault("engine.command_queue", 1024)
	v.SetDefault("engine.session_queue", 256)
	v.SetDefault("engine.subscriber_queue", 1024)
	v.SetDefault("engine.workers", 64)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Viper lowercases map keys; restore the stock list's ticker spelling.
	spelling := make(map[string]string, len(cfg.Stocks))
	for _, s := range cfg.Stocks {
		spelling[strings.ToLower(s.Ticker)] = s.Ticker
	}
	for _, inv := range cfg.Investors {
		for ticker, qty := range inv.Positions {
			if t, ok := spelling[ticker]; ok && t != ticker {
				delete(inv.Positions, ticker)
				inv.Positions[t] = qty
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Stocks) == 0 {
		return fmt.Errorf("config: no stocks listed")
	}
	tickers := make(map[string]struct{}, len(c.Stocks))
	for _, s := range c.Stocks {
		if s.Ticker == "" || len(s.Ticker) > 8 {
			return fmt.Errorf("config: bad ticker %q (1-8 ASCII characters)", s.Ticker)
		}
		for i := 0; i < len(s.Ticker); i++ {
			if s.Ticker[i] > 0x7f {
				return fmt.Errorf("config: bad ticker %q (1-8 ASCII characters)", s.Ticker)
			}
		}
		if _, dup := tickers[s.Ticker]; dup {
			return fmt.Errorf("config: duplicate ticker %q", s.Ticker)
		}
		tickers[s.Ticker] = struct{}{}
	}

	ids := make(map[uint64]struct{}, len(c.Investors))
	for _, inv := range c.Investors {
		if _, dup := ids[inv.ID]; dup {
			return fmt.Errorf("config: duplicate investor id %d", inv.ID)
		}
		ids[inv.ID] = struct{}{}
		if inv.Cash < 0 {
			return fmt.Errorf("config: investor %d has negative cash", inv.ID)
		}
		for ticker, qty := range inv.Positions {
			if _, ok := tickers[ticker]; !ok {
				return fmt.Errorf("config: investor %d holds unknown ticker %q", inv.ID, ticker)
			}
			if qty < 0 {
				return fmt.Errorf("config: investor %d has negative position in %q", inv.ID, ticker)
			}
		}
	}

	if c.Engine.CommandQueue <= 0 || c.Engine.SessionQueue <= 0 || c.Engine.SubscriberQueue <= 0 {
		return fmt.Errorf("config: queue sizes must be positive")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	return nil
}
