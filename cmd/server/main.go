package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"github.com/Miloris/stock-exchange-simulation/internal/config"
	exchangenet "github.com/Miloris/stock-exchange-simulation/internal/net"
	"github.com/Miloris/stock-exchange-simulation/internal/portal"
	"github.com/Miloris/stock-exchange-simulation/internal/registry"
)

func main() {
	configPath := flag.String("config", "configs/exchange.yaml", "Path to the exchange config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	stocks := make([]registry.Stock, 0, len(cfg.Stocks))
	for _, s := range cfg.Stocks {
		stocks = append(stocks, registry.Stock{Ticker: s.Ticker, Name: s.Name})
	}
	roster := make([]registry.Seed, 0, len(cfg.Investors))
	for _, inv := range cfg.Investors {
		roster = append(roster, registry.Seed{
			ID:        inv.ID,
			Password:  inv.Password,
			Cash:      decimal.NewFromFloat(inv.Cash),
			Positions: inv.Positions,
		})
	}

	p := portal.New(
		registry.NewStockRegistry(stocks),
		registry.NewAccountRegistry(roster),
		cfg.Engine.CommandQueue,
	)
	entry := exchangenet.NewServer(cfg.Listen.OrderEntry, p, cfg.Engine.Workers, cfg.Engine.SessionQueue)
	md := exchangenet.NewMarketDataServer(cfg.Listen.MarketData, p, cfg.Engine.SubscriberQueue)

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error { return p.Run(t) })
	t.Go(func() error { return entry.Run(ctx) })
	t.Go(func() error { return md.Run(ctx) })

	log.Info().
		Int("stocks", len(cfg.Stocks)).
		Int("investors", len(cfg.Investors)).
		Msg("exchange running")

	<-ctx.Done()
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("exchange exited with error")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
