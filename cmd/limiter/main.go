package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/zeroexport2mqtt/internal/adapter/actor"
	"github.com/berfenger/zeroexport2mqtt/internal/config"
	"github.com/berfenger/zeroexport2mqtt/internal/core/actor"
	"github.com/berfenger/zeroexport2mqtt/internal/core/domain"
	"github.com/berfenger/zeroexport2mqtt/internal/metrics"
	"github.com/berfenger/zeroexport2mqtt/internal/server"
	"github.com/berfenger/zeroexport2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, logger *zap.Logger) {
	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn("Server forced to shutdown with error", zap.Error(err))
	}
	logger.Info("Server exiting")
}

func main() {
	os.Exit(run())
}

func run() int {

	// load and print config
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		slog.Error("config errors", "error", err)
		return 1
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("zeroexport2mqtt starting", zap.String("version", versioninfo.Short()),
		zap.Int("max_power", cfg.Inverter.MaxPower), zap.Int("default_power", cfg.Inverter.DefaultPower))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	m := metrics.NewLimiterMetrics(prometheus.DefaultRegisterer)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(cfg, mqttActorProvider(cfg, logger), m, logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return 1
	}

	// runs on every exit path from here on
	defer func() {
		restoreDefaultLimit(root, pid, cfg, logger)
		logger.Info("Terminated")
		if err := root.StopFuture(pid).Wait(); err != nil {
			logger.Warn("master actor did not stop cleanly", zap.Error(err))
		}
		as.Shutdown()
	}()

	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if cfg.Port != 0 {
		apiServer := server.NewServer(*cfg, root, pid, prometheus.DefaultGatherer)
		serverErr := make(chan error, 1)
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-serverErr:
			logger.Error("http server error", zap.Error(err))
			exitCode = 1
		}
		gracefulShutdown(apiServer, logger)
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	return exitCode
}

func restoreDefaultLimit(root *pactor.RootContext, master *pactor.PID, cfg *config.Config, logger *zap.Logger) {
	res, err := root.RequestFuture(master, domain.RestoreDefaultLimitRequest{}, cfg.Limiter.PublishTimeout()+time.Second).Result()
	if err != nil {
		logger.Error("could not restore default limit", zap.Error(err))
		return
	}
	resp, ok := res.(domain.RestoreDefaultLimitResponse)
	if !ok {
		logger.Error("could not restore default limit", zap.String("response", "unexpected"))
		return
	}
	if resp.HasResponseError() {
		logger.Error("could not restore default limit", zap.Error(resp.GetResponseError()))
		return
	}
	logger.Info("default limit restored", zap.Int("limit", resp.Limit), zap.Bool("published", resp.Published))
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(subscriptions *adactor.Subscriptions) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, subscriptions, logger)
	}
}
