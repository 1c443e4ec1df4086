package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync"

	"github.com/cppla/winsome/config"
	"github.com/cppla/winsome/controllers"
	"github.com/cppla/winsome/notify"
	"github.com/cppla/winsome/persistence"
	"github.com/cppla/winsome/rewards"
	"github.com/cppla/winsome/routes"
	"github.com/cppla/winsome/server"
	"github.com/cppla/winsome/utils"
	"github.com/cppla/winsome/workers"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Sync()

	if err := run(cfg); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
		utils.Sync()
		os.Exit(1)
	}
}

func run(cfg config.AppConfig) error {
	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	kv := utils.RedisKV()
	app := controllers.NewApp(controllers.Options{
		Multicast: controllers.MulticastInfo{Address: cfg.MulticastAddress, Port: cfg.MulticastPort},
		Rates:     utils.NewRandomOrgRate(cfg.ExchangeRateURL, cfg.ExchangeTimeout(), kv, cfg.ExchangeCacheTTL()),
		Tokens:    utils.NewTokenBlacklist(kv),
		JWTSecret: cfg.JWTSecret,
	})

	stores := persistence.Stores{Users: app.Users, Graph: app.Graph, Content: app.Content}
	skipped, err := persistence.Load(cfg.PersistencePath, stores)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		utils.Sugar.Warnf("snapshot keys skipped: %v", skipped)
	}

	engineOpts := rewards.Options{
		Interval:         cfg.RewardRate(),
		AuthorPercentage: cfg.AuthorRewardPercentage,
	}
	broadcaster, err := notify.NewBroadcaster(cfg.MulticastAddress, cfg.MulticastPort, cfg.MulticastTTL, true)
	if err != nil {
		utils.Sugar.Warnf("reward broadcast disabled: %v", err)
	} else {
		defer broadcaster.Close()
		engineOpts.Notifier = broadcaster
	}
	if cfg.LedgerEnabled() {
		db, err := config.InitDatabase(cfg)
		if err != nil {
			return err
		}
		ledger := rewards.NewGormLedger(db)
		if err := ledger.Migrate(); err != nil {
			return err
		}
		engineOpts.Ledger = ledger
	}
	engine := rewards.NewEngine(app.Content, app.Users, engineOpts)

	pool := workers.New(workers.Options{
		CoreWorkers: cfg.PoolCoreWorkers,
		MaxWorkers:  cfg.PoolMaxWorkers,
		KeepAlive:   cfg.PoolKeepAlive(),
		QueueSize:   cfg.PoolQueueSize,
		Policy:      workers.RetryPolicy{Attempts: cfg.RepeatPolicyTimes, Wait: cfg.RepeatPolicyWait()},
	})
	stream := server.New(server.Options{
		Addr:         cfg.TCPAddr(),
		WriteTimeout: cfg.WriteTimeout(),
		DrainTimeout: cfg.ShutdownTimeout(),
		OnClose:      func(c *server.Conn) { app.Disconnect(c) },
	}, routes.NewOpRouter(app), pool)
	if _, err := stream.Listen(); err != nil {
		return err
	}

	httpSrv := utils.NewServer(cfg.ServerAddress+":"+cfg.HTTPPort, routes.SetupRouter(cfg, app, utils.Logger),
		utils.DEFAULT_READ_TIMEOUT, utils.DEFAULT_WRITE_TIMEOUT)
	if _, err := httpSrv.Listen(); err != nil {
		return err
	}

	// background loops outlive ctx so the final snapshot sees every completed operation
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(bgCtx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		persistence.Autosave(bgCtx, cfg.PersistencePath, stores, cfg.AutoSaveRate())
	}()
	go func() {
		err := httpSrv.Serve(ctx)
		stop()
		errs <- err
	}()

	utils.Sugar.Infof("winsome started tcp=%s http=%s:%s", cfg.TCPAddr(), cfg.ServerAddress, cfg.HTTPPort)
	streamErr := stream.Serve(ctx)
	stop()
	httpErr := <-errs

	app.Notify.CloseAll()
	stopBackground()
	wg.Wait()
	utils.Sugar.Info("winsome stopped")
	return errors.Join(streamErr, httpErr)
}
