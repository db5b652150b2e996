package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	mealgin "github.com/PaulFidika/mealkit/adapters/gin"
	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/cache"
	"github.com/PaulFidika/mealkit/config"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/jobs"
	jwtkit "github.com/PaulFidika/mealkit/jwt"
	"github.com/PaulFidika/mealkit/ratelimit"
	memorylimiter "github.com/PaulFidika/mealkit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/mealkit/ratelimit/redis"
	"github.com/PaulFidika/mealkit/servicepoint"
	memorystore "github.com/PaulFidika/mealkit/storage/memory"
	pgstore "github.com/PaulFidika/mealkit/storage/postgres"
	redisstore "github.com/PaulFidika/mealkit/storage/redis"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the attendance API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.FromContext(cmd.Context()))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := cfg.Logger()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := pgstore.NewStore(pool, cfg.DatabaseSchema)

	var (
		c       cache.Cache
		limiter ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		c = redisstore.NewCache(rdb, "")
		limiter = redislimiter.New(rdb, cfg.RateLimits)
	} else {
		log.Warn("no redis configured; cache and rate limits are per process")
		c = memorystore.NewCache(time.Minute)
		ml := memorylimiter.New(cfg.RateLimits)
		sweeper := jobs.NewFlushScheduler(jobs.FlushFunc(func(context.Context) error {
			ml.Sweep()
			return nil
		}), "@every 5m", log)
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
		limiter = ml
	}

	master, err := cfg.MasterSecret()
	if err != nil {
		return err
	}
	secrets, err := beacon.NewDerivedSecrets(master)
	if err != nil {
		return err
	}

	points := servicepoint.NewCachedDirectory(store, c, cfg.CacheTTL, log)
	if cfg.CacheFlushSchedule != "" {
		flusher := jobs.NewFlushScheduler(points, cfg.CacheFlushSchedule, log)
		if err := flusher.Start(); err != nil {
			return err
		}
		defer flusher.Stop()
	}

	queue, err := jobs.NewClient(pool, jobs.NewWorkers(jobs.LogNotifier{Log: log}, points), cfg.QueueWorkers)
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}
	if cfg.QueueWorkers > 0 {
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.WithError(err).Warn("job queue stop")
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := core.NewService(core.Config{
		ScanTimeout:         cfg.ScanTimeout,
		TrustBeaconGeometry: cfg.TrustBeaconGeometry,
	}, core.Deps{
		Points:  points,
		Secrets: secrets,
		Credentials: credential.NewRegistry(store, c,
			credential.WithChallengeTTL(cfg.ChallengeTTL), credential.WithLogger(log)),
		Entitlements: store,
		Ledger:       store,
		Incidents:    jobs.NewRiverSink(queue),
		Log:          log,
		Metrics:      reg,
	})
	if err != nil {
		return err
	}

	verifier, err := loadVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	mealgin.Register(r, svc, verifier, mealgin.Options{Limiter: limiter, Log: log})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadVerifier(ctx context.Context, cfg *config.Config) (*jwtkit.Verifier, error) {
	var (
		keys jwtkit.KeySet
		err  error
	)
	if cfg.JWTKeysPath != "" {
		keys, err = jwtkit.LoadPublicKeys(cfg.JWTKeysPath)
	} else {
		keys, err = jwtkit.FetchJWKS(ctx, cfg.JWKSURL)
	}
	if err != nil {
		return nil, fmt.Errorf("load token keys: %w", err)
	}
	return jwtkit.NewVerifier(keys, cfg.JWTIssuer, cfg.JWTAudience), nil
}

func requestLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"took_ms": time.Since(began).Milliseconds(),
		}).Debug("request")
	}
}
