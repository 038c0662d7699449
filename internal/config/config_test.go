package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
listen:
  order_entry: ":19001"
stocks:
  - ticker: AAPL
    name: Apple Inc.
  - ticker: MSFT
    name: Microsoft Corporation
investors:
  - id: 1
    password: alice-secret
    cash: 1000000
    positions:
      AAPL: 100
  - id: 2
    password: bob-secret
    cash: 500
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, ":19001", cfg.Listen.OrderEntry)
	assert.Equal(t, ":9002", cfg.Listen.MarketData, "defaults fill unset fields")
	assert.Equal(t, 1024, cfg.Engine.CommandQueue)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Len(t, cfg.Stocks, 2)
	assert.Equal(t, "AAPL", cfg.Stocks[0].Ticker)

	require.Len(t, cfg.Investors, 2)
	assert.Equal(t, uint64(1), cfg.Investors[0].ID)
	assert.Equal(t, int64(100), cfg.Investors[0].Positions["AAPL"])
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EXCHANGE_LOGGING_LEVEL", "debug")
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no stocks", `
investors:
  - id: 1
    password: x
    cash: 1
`},
		{"duplicate ticker", `
stocks:
  - ticker: AAPL
  - ticker: AAPL
`},
		{"ticker too long", `
stocks:
  - ticker: TOOLONGTICKER
`},
		{"duplicate investor", `
stocks:
  - ticker: AAPL
investors:
  - id: 1
    password: x
    cash: 1
  - id: 1
    password: y
    cash: 1
`},
		{"negative cash", `
stocks:
  - ticker: AAPL
investors:
  - id: 1
    password: x
    cash: -5
`},
		{"position in unknown ticker", `
stocks:
  - ticker: AAPL
investors:
  - id: 1
    password: x
    cash: 1
    positions:
      MSFT: 5
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
