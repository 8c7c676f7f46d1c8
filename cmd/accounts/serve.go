package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/config"
	"nrkgo.com/accounts/internal/httpapi"
	"nrkgo.com/accounts/internal/mail"
	"nrkgo.com/accounts/internal/obs"
	"nrkgo.com/accounts/internal/store/memory"
	"nrkgo.com/accounts/internal/store/pg"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func openStore(cfg *config.Config) (accounts.Store, httpapi.ReadyProbe, func(), error) {
	if cfg.Store == "memory" {
		return memory.New(), httpapi.ReadyProbe{}, func() {}, nil
	}
	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, fmt.Errorf("open db: %w", err)
	}
	return store, httpapi.ReadyProbe{DB: store.DB()}, func() { _ = store.Close() }, nil
}

func newMailer(cfg *config.Config, l *zap.Logger) (accounts.Mailer, error) {
	if cfg.Mail.Mode == "log" {
		return mail.NewLogSender(l.Named("mail")), nil
	}
	return mail.NewSMTPSender(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := obs.Logger()
	obs.Init()

	store, probe, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sender, err := newMailer(cfg, log)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	dispatcher := mail.NewDispatcher(sender, cfg.Mail.Workers, cfg.Mail.QueueSize, log.Named("mail"))
	templates, err := mail.NewTemplates(cfg.Links.BaseURL, cfg.Links.Product)
	if err != nil {
		return err
	}

	svc, err := accounts.New(store,
		accounts.WithMailer(dispatcher),
		accounts.WithTemplates(templates),
		accounts.WithLogger(log),
		accounts.WithSessionTTL(cfg.Session.TTL),
		accounts.WithRevokeSessionsOnReset(cfg.Security.RevokeSessionsOnReset),
	)
	if err != nil {
		return err
	}
	if err := svc.EnsureSystemRoles(ctx); err != nil {
		return fmt.Errorf("seed system roles: %w", err)
	}

	api := httpapi.New(svc, probe, httpapi.Options{
		Version:        obs.Version,
		BaseURL:        cfg.Links.BaseURL,
		CookieName:     cfg.Session.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
		RateBurst:      cfg.RateLimit.Burst,
		RatePerSecond:  cfg.RateLimit.PerSecond,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewGRPCHealth(probe)
	grpcSrv := httpapi.NewGRPCServer(health, log.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listener started", zap.String("address", httpSrv.Addr), zap.String("version", obs.Version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc listener started", zap.String("address", lis.Addr().String()))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		if derr := dispatcher.Close(shutdownCtx); derr != nil {
			log.Warn("mail queue not drained", zap.Error(derr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
