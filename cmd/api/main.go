package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"inventra.io/internal/audit"
	"inventra.io/internal/auth"
	"inventra.io/internal/config"
	"inventra.io/internal/httpapi"
	"inventra.io/internal/obs"
	"inventra.io/internal/store/memory"
	"inventra.io/internal/store/pg"
	redisstore "inventra.io/internal/store/redis"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := obs.SetupLogger(cfg.Environment, cfg.LogLevel, os.Stdout)

	if err := obs.InitSentry(cfg.SentryDSN, cfg.Environment, version); err != nil {
		logger.Warn("sentry disabled", "error", err)
	}
	defer obs.FlushSentry()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	logger := obs.Logger()

	var (
		users auth.UserStore
		sink  audit.Sink
		probe httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		users, sink, probe = store, store, httpapi.ReadyProbe{DB: store.DB()}
	} else {
		logger.Warn("INVENTRA_PG_DSN not set, using in-memory store")
		users, sink = memory.NewStore(), memory.NewAuditLog()
	}

	var used auth.UsedTokenSet
	if cfg.RedisURL != "" {
		client, err := redisstore.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		used = redisstore.NewUsedTokens(client, redisstore.DefaultKeyPrefix)
	} else {
		used = memory.NewUsedTokens(0)
	}

	pool := auth.NewPool(cfg.HashWorkers)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Close(closeCtx)
	}()

	hasher, err := auth.NewHasher(cfg.Hash, pool)
	if err != nil {
		return err
	}
	params := hasher.Params()
	logger.Info("password hashing",
		"memory_kib", params.Memory,
		"iterations", params.Iterations,
		"parallelism", params.Parallelism,
		"workers", pool.Size(),
	)
	tokens, err := auth.NewTokenService(cfg.Tokens)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users, hasher, tokens,
		auth.WithAuditRecorder(audit.NewRecorder(sink)),
		auth.WithUsedTokenSet(used),
	)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, svc, users, cfg.BootstrapAdmin); err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Options{
		Auth:         svc,
		Ready:        probe,
		Version:      version,
		Production:   cfg.Production(),
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
		TrustProxy:   cfg.TrustProxy,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(probe, 10*time.Second)
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPCAddr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			logger.Info("grpc health listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		health.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// bootstrapAdmin creates the configured admin account on first start.
func bootstrapAdmin(ctx context.Context, svc *auth.Service, users auth.UserStore, admin config.BootstrapAdmin) error {
	if admin.Email == "" {
		return nil
	}
	exists, err := users.EmailExists(ctx, auth.NormalizeIdentifier(admin.Email))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	u, err := svc.Register(ctx, auth.NewUser{
		Email:    admin.Email,
		Username: admin.Username,
		Password: admin.Password,
		Role:     auth.RoleAdmin,
	}, "", auth.ClientInfo{})
	if err != nil {
		return err
	}
	obs.Logger().Info("bootstrap admin created", "user_id", u.ID, "email", u.Email)
	return nil
}
