package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/session"
	sessionrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-user")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("load config: %v", err)
	}
	if cfg.SessionSecretGenerated {
		sugar.Warn("SESSION_SECRET is empty; using a random per-process secret, sessions will not survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sqlx.DB
	if cfg.NeedsDatabase() {
		db, err = database.Open(ctx, database.ConfigFromEnv())
		if err != nil {
			sugar.Fatalf("db open: %v", err)
		}
		defer db.Close()
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	users, sessions := buildStores(cfg, db, sugar)
	codec := credential.New(cfg.PasswordSalt, cfg.Argon2)
	tokens := session.NewTokenCodec(cfg.SessionSecret, cfg.SessionIssuer)

	mgr := auth.NewManager(users, sessions, tokens, codec, ids, sugar, auth.Options{IdempotentLogout: cfg.IdempotentLogout})
	svc := user.NewService(users, codec, ids, cfg.AdminDefaultPassword, sugar)
	userHandler := user.NewHandler(mgr, svc, user.CookieConfig{Name: cfg.CookieName, Secure: cfg.CookieSecure}, sugar)

	handler := router.RegisterRoutes(sugar, router.Deps{
		Users:       userHandler,
		Guard:       auth.NewGuard(mgr, cfg.CookieName, sugar),
		CORSOrigins: cfg.CORSOrigins,
	})

	go session.RunPurger(ctx, sessions, clockwork.NewRealClock(), cfg.SessionPurgeInterval, sugar)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop",
		"addr", cfg.HTTPAddr, "storage", cfg.Storage, "session_store", cfg.SessionStore)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// buildStores picks the user repository and session store named in cfg.
func buildStores(cfg config.Config, db *sqlx.DB, logger *zap.SugaredLogger) (userrepo.Repository, session.Store) {
	var users userrepo.Repository
	if cfg.Storage == config.StoragePostgres {
		users = userrepo.NewUserRepo(db)
	} else {
		logger.Warn("STORAGE=memory; users are kept in process memory")
		users = userrepo.NewMemoryRepo()
	}

	var sessions session.Store
	if cfg.SessionStore == config.StoragePostgres {
		sessions = sessionrepo.NewSessionRepo(db, cfg.SessionTTL)
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL, nil)
	}
	return users, sessions
}
