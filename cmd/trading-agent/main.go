package main

import (
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"futures-trader/internal/agent"
	"futures-trader/internal/broker"
	"futures-trader/internal/config"
	"futures-trader/internal/db"
	"futures-trader/internal/events"
	"futures-trader/internal/execution"
	"futures-trader/internal/feed"
	"futures-trader/internal/market"
	"futures-trader/internal/performance"
	"futures-trader/internal/risk"
	"futures-trader/internal/scheduler"
	"futures-trader/internal/strategy"
	"futures-trader/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %s", err)
	}

	log := newLogger(cfg.Logging)
	log.Info("Starting futures trading agent...")

	// --- 1. Core state and event bus ---
	bus := events.NewBus()
	st := market.NewState(market.Config{
		Intervals:         cfg.Market.Intervals,
		BarCapacity:       cfg.Market.BarCapacity,
		TickBuffer:        cfg.Market.TickBuffer,
		ProfileResolution: cfg.Market.ProfileResolution,
		ValueAreaFraction: cfg.Market.ValueAreaFraction,
	})
	accounts := broker.NewAccountCache(cfg.Risk.MarginPerContract)

	// --- 2. Broker and execution ---
	orderBroker, err := broker.NewAMQPBroker(cfg.AMQP.URL, cfg.AMQP.OrdersPerSecond, log)
	if err != nil {
		log.Fatalf("Failed to initialize order broker: %s", err)
	}
	defer orderBroker.Close()

	exec := execution.NewEngine(execution.Config{
		TickSize:           cfg.Contract.TickSize,
		TickValue:          cfg.Contract.TickValue,
		DefaultStopTicks:   cfg.Strategy.StopLossTicks,
		DefaultTargetTicks: cfg.Strategy.TakeProfitTicks,
		LastPrice:          st.LastPrice,
	}, orderBroker, bus, log)

	monitor := performance.NewMonitor()
	exec.AddRecorder(monitor)

	if cfg.Database.DSN != "" {
		tradeLog, err := db.NewTradeLog(cfg.Database.DSN, log)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %s", err)
		}
		defer tradeLog.Close()
		exec.AddRecorder(tradeLog)
		log.Info("Trade persistence enabled.")
	} else {
		log.Info("No database DSN configured, trades kept in memory only.")
	}

	// --- 3. Strategies, risk and scheduling ---
	manager := strategy.NewManager(strategy.ManagerConfig{
		Cooldown:       cfg.Strategy.Cooldown(),
		MinConfidence:  cfg.Strategy.MinConfidence,
		TrendThreshold: cfg.Strategy.TrendThreshold,
		Trending:       cfg.Strategy.Trending,
		Ranging:        cfg.Strategy.Ranging,
	}, log,
		strategy.NewICT(strategy.ICTConfig{
			ContractID:      cfg.Contract.ID,
			StopLossTicks:   cfg.Strategy.StopLossTicks,
			TakeProfitTicks: cfg.Strategy.TakeProfitTicks,
		}),
		strategy.NewDelta(strategy.DeltaConfig{
			ContractID:      cfg.Contract.ID,
			RatioThreshold:  cfg.Strategy.TrendThreshold,
			StopLossTicks:   cfg.Strategy.StopLossTicks,
			TakeProfitTicks: cfg.Strategy.TakeProfitTicks,
		}),
		strategy.NewMentalist(strategy.MentalistConfig{
			ContractID:      cfg.Contract.ID,
			StopLossTicks:   cfg.Strategy.StopLossTicks,
			TakeProfitTicks: cfg.Strategy.TakeProfitTicks,
		}),
	)

	riskEngine := risk.NewEngine(risk.Config{InitialMaxDailyLoss: cfg.Risk.MaxDailyLoss}, accounts, bus, log)
	sched := scheduler.New(scheduler.Config{MaxPendingPerContract: cfg.Scheduler.MaxPendingPerContract}, exec, bus, log)
	sched.Start()
	defer sched.Stop()

	// --- 4. Market data feed ---
	consumer, err := feed.NewConsumer(cfg.AMQP.URL, cfg.Contract.ID, st, accounts, exec, log)
	if err != nil {
		log.Fatalf("Failed to initialize feed consumer: %s", err)
	}
	defer consumer.Close()
	if err := consumer.StartConsumers(); err != nil {
		log.Fatalf("Failed to start feed consumers: %s", err)
	}
	log.Info("Feed consumers started.")

	// Seed the performance baseline once the account feed delivers equity.
	go func() {
		for {
			if equity, ok := accounts.Equity(); ok {
				monitor.SetInitialEquity(equity)
				return
			}
			time.Sleep(time.Second)
		}
	}()

	// --- 5. Agent loops ---
	tradingAgent, err := agent.New(cfg, st, manager, riskEngine, exec, sched, accounts, monitor, bus, log)
	if err != nil {
		log.Fatalf("Failed to build agent: %s", err)
	}
	tradingAgent.Start()
	defer tradingAgent.Stop()

	// --- 6. Dashboard WebSocket ---
	hub := websocket.NewHub(log)
	go hub.Run()
	go hub.StreamEvents(bus)
	http.HandleFunc("/ws", hub.ServeWs)
	go func() {
		log.Infof("WebSocket server listening on %s", cfg.Server.Addr)
		if err := http.ListenAndServe(cfg.Server.Addr, nil); err != nil {
			log.Fatalf("WebSocket server error: %s", err)
		}
	}()

	// --- 7. Wait for shutdown signal ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received. Closing connections and exiting.")
}

// newLogger builds the logrus instance: stdout plus a rotating file sink.
func newLogger(cfg config.Logging) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}))
	}
	return log
}
