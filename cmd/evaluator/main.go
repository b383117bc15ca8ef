// Command evaluator claims pending submissions, evaluates them against their
// problem configuration and persists the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/criyle/go-evaluator/cmd/evaluator/config"
	"github.com/criyle/go-evaluator/cmd/evaluator/rest"
	"github.com/criyle/go-evaluator/cmd/evaluator/version"
	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/judger"
	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/notify"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/runner"
	"github.com/criyle/go-evaluator/store"
	"github.com/criyle/go-evaluator/worker"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var logger *zap.Logger

func main() {
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}
	warnIfNotLinux()

	st, stCleanUp := newStore(conf)
	notifier, nCleanUp := newNotifier(conf)
	pool := envexec.NewPool(conf.RunnerSlots)
	if conf.EnableMetrics {
		initPoolMetrics(pool)
	}
	work := newWorker(conf, st, notifier, pool)
	work.Start()
	logger.Info("Worker started",
		zap.Int("concurrency", conf.Concurrency),
		zap.Int("runnerSlots", conf.RunnerSlots),
		zap.String("problemDir", conf.ProblemDir))

	servers := []initFunc{
		cleanUpWorker(work),
		closeOnExit("Store", stCleanUp),
		closeOnExit("Notifier", nCleanUp),
		initHTTPServer(conf, st, work),
		initMonitorHTTPServer(conf),
	}

	// Gracefully shutdown, with signal / HTTP server / Monitor HTTP server
	sig := make(chan os.Signal, 1+len(servers))

	stops := []stopFunc{}
	for _, s := range servers {
		start, stop := s()
		if start != nil {
			go func() {
				start()
				sig <- os.Interrupt
			}()
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Shutting Down...")

	ctx, cancel := context.WithTimeout(context.TODO(), 30*time.Second)
	defer cancel()

	// the worker drains first so results are persisted before the store closes
	if err := stops[0](ctx); err != nil {
		logger.Warn("Worker shutdown", zap.Error(err))
	}
	var eg errgroup.Group
	for _, s := range stops[1:] {
		eg.Go(func() error {
			return s(ctx)
		})
	}
	logger.Info("Shutdown Finished", zap.Error(eg.Wait()))
}

func warnIfNotLinux() {
	if runtime.GOOS != "linux" {
		logger.Warn("Platform is not primarily supported", zap.String("GOOS", runtime.GOOS))
		logger.Warn("Memory limits are only polled from /proc on Linux")
	}
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func cleanUpWorker(work worker.Worker) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			err := work.Shutdown(ctx)
			logger.Info("Worker shutdown")
			return err
		}
	}
}

func closeOnExit(name string, f stopFunc) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if f == nil {
			return nil, nil
		}
		return nil, func(ctx context.Context) error {
			err := f(ctx)
			logger.Info(name + " closed")
			return err
		}
	}
}

func initHTTPServer(conf *config.Config, st store.Store, work worker.Worker) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		r := initHTTPMux(conf, st, work)
		srv := http.Server{
			Addr:    conf.HTTPAddr,
			Handler: r,
		}

		return func() {
				lis, err := net.Listen("tcp", conf.HTTPAddr)
				if err != nil {
					logger.Error("Http server listen failed", zap.Error(err))
					return
				}
				logger.Info("Starting http server", zap.String("addr", conf.HTTPAddr))
				if err := srv.Serve(lis); errors.Is(err, http.ErrServerClosed) {
					logger.Info("Http server stopped", zap.Error(err))
				} else {
					logger.Error("Http server stopped", zap.Error(err))
				}
			}, func(ctx context.Context) error {
				logger.Info("Http server shutting down")
				return srv.Shutdown(ctx)
			}
	}
}

func initMonitorHTTPServer(conf *config.Config) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		mr := initMonitorHTTPMux(conf)
		if mr == nil {
			return nil, nil
		}
		msrv := http.Server{
			Addr:    conf.MonitorAddr,
			Handler: mr,
		}
		return func() {
				lis, err := net.Listen("tcp", conf.MonitorAddr)
				if err != nil {
					logger.Error("Monitoring http listen failed", zap.Error(err))
					return
				}
				logger.Info("Starting monitoring http server", zap.String("addr", conf.MonitorAddr))
				logger.Info("Monitoring http server stopped", zap.Error(msrv.Serve(lis)))
			}, func(ctx context.Context) error {
				logger.Info("Monitoring http server shutdown")
				return msrv.Shutdown(ctx)
			}
	}
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !conf.EnableDebug {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}

func initHTTPMux(conf *config.Config, st store.Store, work worker.Worker) http.Handler {
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	if conf.EnableMetrics {
		initGinMetrics(r)
	}

	r.GET("/version", generateHandleVersion())

	if conf.AuthToken != "" {
		r.Use(tokenAuth(conf.AuthToken))
		logger.Info("Attach token auth")
	}

	rest.New(st, work, logger).Register(r)
	return r
}

func initMonitorHTTPMux(conf *config.Config) http.Handler {
	if !conf.EnableMetrics && !conf.EnableDebug {
		return nil
	}
	mux := http.NewServeMux()
	if conf.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if conf.EnableDebug {
		initDebugRoute(mux)
	}
	return mux
}

func initDebugRoute(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewWithConfig(ginprometheus.Config{
		Subsystem:          "gin",
		DisableBodyReading: true,
	})
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	r.Use(p.HandlerFunc())
}

func tokenAuth(token string) gin.HandlerFunc {
	const bearer = "Bearer "
	return func(c *gin.Context) {
		reqToken := c.GetHeader("Authorization")
		if strings.HasPrefix(reqToken, bearer) && reqToken[len(bearer):] == token {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func newStore(conf *config.Config) (store.Store, stopFunc) {
	opt := store.Options{LeaseDuration: conf.LeaseDuration}
	switch conf.Store {
	case "memory":
		logger.Warn("Using in-memory store, submissions are lost on exit")
		return store.NewMemoryStore(opt), nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := store.NewMongoStore(ctx, store.MongoConfig{
			URI:        conf.MongoURI,
			Database:   conf.MongoDatabase,
			Collection: conf.MongoCollection,
			Options:    opt,
		})
		if err != nil {
			logger.Fatal("Connect store failed", zap.Error(err))
		}
		logger.Info("Connected to mongodb", zap.String("database", conf.MongoDatabase), zap.String("collection", conf.MongoCollection))
		return s, s.Close
	default:
		logger.Fatal("Unknown store", zap.String("store", conf.Store))
		return nil, nil
	}
}

func newNotifier(conf *config.Config) (notify.Notifier, stopFunc) {
	n := notify.Multi{notify.NewLogger(logger)}
	if conf.NATSURL == "" {
		return n, nil
	}
	nc, err := notify.ConnectNATS(conf.NATSURL, logger)
	if err != nil {
		logger.Fatal("Connect nats failed", zap.Error(err))
	}
	n = append(n, notify.NewNATS(nc, conf.NATSSubject))
	return n, func(context.Context) error {
		return nc.Drain()
	}
}

func newWorker(conf *config.Config, st store.Store, notifier notify.Notifier, pool *envexec.Pool) worker.Worker {
	languages, err := language.LoadTable(conf.LanguageConf)
	if err != nil {
		logger.Fatal("Load language config failed", zap.Error(err))
	}
	if conf.WorkDir != "" {
		if err := os.MkdirAll(conf.WorkDir, 0o755); err != nil {
			logger.Fatal("Create work dir failed", zap.Error(err))
		}
	}
	r := runner.New(runner.Config{
		Sandbox:          pool,
		Languages:        languages,
		WorkDir:          conf.WorkDir,
		OutputLimit:      *conf.OutputLimit,
		ExtraMemoryLimit: *conf.ExtraMemoryLimit,
		TickInterval:     conf.TimeLimitCheckerInterval,
		Logger:           logger.Named("runner"),
	})
	j := judger.New(judger.Config{
		Executor:        r,
		Problems:        problem.NewDirProvider(conf.ProblemDir),
		Store:           st,
		CaseParallelism: conf.CaseParallelism,
		ShortCircuit:    conf.ShortCircuit,
		Logger:          logger.Named("judger"),
	})
	var observer func(*judger.Report)
	if conf.EnableMetrics {
		observer = reportObserve
	}
	return worker.New(worker.Config{
		Store:         st,
		Judger:        j,
		Notifier:      notifier,
		Concurrency:   conf.Concurrency,
		PollInterval:  conf.PollInterval,
		MaxAttempts:   conf.MaxAttempts,
		RetryBackoff:  conf.RetryBackoff,
		LeaseDuration: conf.LeaseDuration,
		Logger:        logger.Named("worker"),
		Observer:      observer,
	})
}

func generateHandleVersion() func(*gin.Context) {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"buildVersion": version.Version,
			"goVersion":    runtime.Version(),
			"platform":     runtime.GOARCH,
			"os":           runtime.GOOS,
			"languages":    language.Supported(),
		})
	}
}
