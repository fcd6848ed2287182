package main

import (
	"context"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/ai"
	"paper-trading-bot/internal/api"
	"paper-trading-bot/internal/auth"
	"paper-trading-bot/internal/bot"
	"paper-trading-bot/internal/broker"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/monitor"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/rules"
	"paper-trading-bot/internal/secrets"
	"paper-trading-bot/internal/signal"
	"paper-trading-bot/internal/state"
	"paper-trading-bot/internal/tradelog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)

	ctx := context.Background()
	eventBus := events.NewEventBus()

	secretResolver, err := secrets.NewResolver(cfg.VaultConfig, logger)
	if err != nil {
		log.Fatalf("Failed to initialize secret resolver: %v", err)
	}

	paperBroker := broker.NewPaperBroker(cfg.BotConfig.PaperBalance, cfg.BotConfig.FeePercent, logger)

	var source market.DataSource
	if cfg.MarketConfig.MockMode {
		source = market.NewMockSource(50000, cfg.MarketConfig.KlineLimit, time.Now().UnixNano())
		logger.Warn("market mock mode enabled, using simulated candles")
	} else {
		source = market.NewRESTSource(cfg.MarketConfig.BaseURL, cfg.MarketConfig.KlineLimit)
	}

	registry := signal.NewDefaultRegistry(cfg.SignalConfig.ADXTrendThreshold)
	generator, err := signal.NewGenerator(signal.Config{
		MinConfluence:   cfg.SignalConfig.MinConfluence,
		LongConditions:  cfg.SignalConfig.LongConditions,
		ShortConditions: cfg.SignalConfig.ShortConditions,
		UseRegimeFilter: cfg.SignalConfig.UseRegimeFilter,
	}, registry, logger)
	if err != nil {
		log.Fatalf("Failed to build signal generator: %v", err)
	}

	riskManager := risk.NewManager(risk.Config{
		RiskPercent:               cfg.RiskConfig.RiskPercent,
		MaxPositionSize:           cfg.RiskConfig.MaxPositionSize,
		DailyLossLimit:            cfg.RiskConfig.DailyLossLimit,
		StopMode:                  cfg.RiskConfig.StopMode,
		StopLossPercent:           cfg.RiskConfig.StopLossPercent,
		TakeProfitPercent:         cfg.RiskConfig.TakeProfitPercent,
		ATRMultiplierSL:           cfg.RiskConfig.ATRMultiplierSL,
		ATRMultiplierTP:           cfg.RiskConfig.ATRMultiplierTP,
		PricePrecision:            cfg.RiskConfig.PricePrecision,
		UseTrailingStop:           cfg.RiskConfig.UseTrailingStop,
		TrailingStopPercent:       cfg.RiskConfig.TrailingStopPercent,
		TrailingATRMultiplier:     cfg.RiskConfig.TrailingATRMultiplier,
		TrailingActivationPercent: cfg.RiskConfig.TrailingActivationPercent,
	}, logger)

	positionMonitor := monitor.NewMonitor(riskManager, cfg.RiskConfig.TrailingActivationPercent, eventBus, logger)

	store, err := state.NewStore(cfg.StateConfig, cfg.RedisConfig, logger)
	if err != nil {
		log.Fatalf("Failed to initialize position store: %v", err)
	}

	var trades tradelog.Recorder
	var pgTrades *tradelog.PostgresRecorder
	if cfg.TradeLogConfig.Backend == "postgres" {
		pgTrades, err = tradelog.NewPostgresRecorder(ctx, cfg.TradeLogConfig.DatabaseURL, logger)
		if err != nil {
			log.Fatalf("Failed to connect trade log database: %v", err)
		}
		trades = pgTrades
	} else {
		trades = tradelog.NewMemoryRecorder(1000)
	}

	var scorer *rules.Scorer
	if cfg.RulesConfig.Enabled {
		ruleCfg, err := rules.LoadRuleConfig(cfg.RulesConfig.StrategyFile, cfg.RulesConfig.IndicatorsFile)
		if err != nil {
			log.Fatalf("Failed to load rule configuration: %v", err)
		}
		ruleEngine := rules.NewEngine(cfg.RulesConfig.CacheSize, logger)
		scorer, err = rules.NewScorer(ruleCfg, ruleEngine, logger)
		if err != nil {
			log.Fatalf("Failed to compile entry rules: %v", err)
		}
		logger.Info("rule gate enabled", "rules", scorer.Describe())
	}

	var validator ai.Validator
	if cfg.AIConfig.Enabled {
		apiKey := cfg.AIConfig.APIKey
		if apiKey == "" {
			apiKey, err = secretResolver.AIAPIKey(ctx)
			if err != nil {
				log.Fatalf("Failed to resolve AI API key: %v", err)
			}
		}
		validator = ai.NewLLMValidator(cfg.AIConfig, apiKey, logger)
		logger.Info("ai validation enabled", "provider", cfg.AIConfig.Provider, "model", cfg.AIConfig.Model)
	}

	engine, err := bot.NewEngine(cfg, bot.Deps{
		Broker:     paperBroker,
		Source:     source,
		Indicators: market.NewDefaultIndicators(market.DefaultIndicatorConfig()),
		Signals:    generator,
		Risk:       riskManager,
		Monitor:    positionMonitor,
		Validator:  validator,
		Scorer:     scorer,
		Store:      store,
		Trades:     trades,
		Bus:        eventBus,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()
	if !cfg.MarketConfig.MockMode {
		stream := market.NewTickStream(cfg.MarketConfig.StreamURL, cfg.BotConfig.Symbol, func(t market.Tick) {
			paperBroker.SetMarkPrice(t.Symbol, t.Price)
			engine.OnTick(t)
		}, logger)
		go stream.Run(streamCtx)
	}

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		authService := auth.NewService(cfg.AuthConfig, logger)
		server = api.NewServer(cfg.ServerConfig, engine, trades, authService, eventBus, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("api shutdown failed", "error", err)
		}
	}
	cancelStream()

	if err := engine.Stop(shutdownCtx, false); err != nil && err != bot.ErrNotRunning {
		logger.Error("engine stop failed", "error", err)
	}
	if pgTrades != nil {
		pgTrades.Shutdown()
	}
	logger.Info("shutdown complete")
}
