package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/archive"
	"github.com/maulvi-zm/trackure/internal/auth"
	"github.com/maulvi-zm/trackure/internal/config"
	"github.com/maulvi-zm/trackure/internal/httpapi"
	"github.com/maulvi-zm/trackure/internal/obs"
	"github.com/maulvi-zm/trackure/internal/routeguard"
	"github.com/maulvi-zm/trackure/internal/store/memory"
	"github.com/maulvi-zm/trackure/internal/store/pg"
	"github.com/maulvi-zm/trackure/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what the services need from a store.
type backend interface {
	auth.RoleStore
	auth.UserStore
	activity.Store
}

func main() {
	log := obs.Logger()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("trackure-api stopped")
	}
	log.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	store, ready, closeStore, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	roles, err := auth.NewService(store)
	if err != nil {
		return err
	}
	verifier, devTokens, err := buildVerifier(cfg)
	if err != nil {
		return err
	}
	policy, err := loadPolicy(cfg.RoutePolicyFile)
	if err != nil {
		return err
	}
	query := activity.NewQuery(store)
	feed := stream.New()

	api, err := httpapi.New(httpapi.Deps{
		Roles:       roles,
		Users:       store,
		Verifier:    verifier,
		DevTokens:   devTokens,
		DevTokenTTL: cfg.DevAuth.TokenTTL,
		Activity:    activity.NewLogger(store, activity.WithPublisher(feed)),
		Query:       query,
		Routes:      policy,
		Feed:        feed,
		Ready:       ready,
		Version:     version,
	}, httpapi.Options{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return err
	}

	if cfg.Archive.Enabled() {
		scheduler, err := startArchive(ctx, cfg.Archive, query)
		if err != nil {
			return err
		}
		defer scheduler.Shutdown()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("starting trackure-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (backend, httpapi.ReadyProbe, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured; using the in-memory store")
		mem := memory.New()
		roles := mem.SeedBuiltinRoles()
		if email := cfg.DevAuth.BootstrapEmail; email != "" {
			if err := bootstrapSuperAdmin(ctx, mem, roles[auth.RoleSuperAdmin], email); err != nil {
				return nil, httpapi.ReadyProbe{}, nil, err
			}
			log.WithField("email", email).Info("bootstrapped super admin")
		}
		return mem, httpapi.ReadyProbe{}, func() {}, nil
	}
	store, err := pg.Open(cfg.Database.DSN, pg.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, httpapi.ReadyProbe{}, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		log.WithError(err).Warn("database not reachable yet")
	}
	return store, httpapi.ReadyProbe{DB: store.DB()}, func() { _ = store.Close() }, nil
}

// bootstrapSuperAdmin gives a fresh in-memory deployment one user who can
// sign in with a dev token and administer roles.
func bootstrapSuperAdmin(ctx context.Context, mem *memory.Store, role auth.Role, email string) error {
	u := mem.AddUser(email)
	org := mem.AddOrganization("Default")
	if err := mem.AssignRole(ctx, auth.Assignment{UserID: u.ID, OrganizationID: org.ID, RoleID: role.ID}); err != nil {
		return err
	}
	return mem.SetActiveOrganization(ctx, u.ID, org.ID)
}

func buildVerifier(cfg *config.Config) (auth.Verifier, *auth.SecretVerifier, error) {
	var (
		chain     auth.ChainVerifier
		devTokens *auth.SecretVerifier
	)
	if cfg.Entra.Enabled() {
		var jwksURL, issuer string
		if cfg.Entra.TenantID != "" {
			jwksURL, issuer = auth.EntraEndpoints(cfg.Entra.TenantID)
		}
		if cfg.Entra.JWKSURL != "" {
			jwksURL = cfg.Entra.JWKSURL
		}
		if cfg.Entra.Issuer != "" {
			issuer = cfg.Entra.Issuer
		}
		v, err := auth.NewJWKSVerifier(jwksURL, issuer, cfg.Entra.ClientID, cfg.Entra.JWKSTTL)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, v)
	}
	if cfg.DevAuth.Secret != "" {
		v, err := auth.NewSecretVerifier(cfg.DevAuth.Secret)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, v)
		devTokens = v
	}
	if len(chain) == 0 {
		return nil, nil, errors.New("no token verifier configured")
	}
	return chain, devTokens, nil
}

func loadPolicy(file string) (*routeguard.Policy, error) {
	if file == "" {
		return routeguard.Default()
	}
	return routeguard.LoadFile(file)
}

func startArchive(ctx context.Context, cfg config.ArchiveConfig, query *activity.Query) (*archive.Scheduler, error) {
	uploader, err := archive.NewS3Uploader(ctx, archive.S3Config{
		Endpoint:     cfg.Endpoint,
		Region:       cfg.Region,
		Bucket:       cfg.Bucket,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
		CreateBucket: cfg.CreateBucket,
	})
	if err != nil {
		return nil, err
	}
	archiver, err := archive.NewArchiver(query, uploader, archive.WithPrefix(cfg.Prefix))
	if err != nil {
		return nil, err
	}
	scheduler := archive.NewScheduler()
	if _, err := scheduler.Schedule(cfg.Schedule, archiver, cfg.RunTimeout); err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}
