package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"logingate/config"
	"logingate/controller/auth"
	"logingate/controller/static"
	"logingate/middleware"
	"logingate/model"
	"logingate/services"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Site        *static.Site
	Assessor    services.Assessor
	Credentials services.CredentialStore
	Recorder    services.LoginRecorder
	Policy      model.DecisionPolicy
	LoginAction string
	Logger      *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(d.Logger))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Api is running!"})
	})

	static.StaticController(router, d.Site)
	auth.LoginController(router, &auth.LoginHandler{
		Assessor:    d.Assessor,
		Credentials: d.Credentials,
		Recorder:    d.Recorder,
		Policy:      d.Policy,
		Action:      d.LoginAction,
		Logger:      d.Logger,
	})

	return router
}

// CredentialStore builds the store selected by CREDENTIAL_STORE.
func CredentialStore(cfg config.CredentialConfig, logger *slog.Logger) (services.CredentialStore, error) {
	switch cfg.Driver {
	case "mysql":
		db, err := services.OpenMySQL(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return services.NewGormCredentialStore(db), nil
	default:
		var (
			store *services.MemoryCredentialStore
			err   error
		)
		if cfg.DevSeed {
			logger.Warn("no LOGIN_USERS configured, using development credentials")
			store, err = services.NewMemoryCredentialStoreFromPlain(map[string]string{"test": "password"})
		} else {
			store, err = services.NewMemoryCredentialStore(cfg.Users)
		}
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// StartServer wires every dependency and serves until SIGINT/SIGTERM.
func StartServer(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	site, err := static.NewSite(cfg.Static.Dir, cfg.Static.IndexFile, logger)
	if err != nil {
		return err
	}

	assessor, err := services.NewAssessor(ctx, cfg.Recaptcha, logger)
	if err != nil {
		return err
	}
	if closer, ok := assessor.(io.Closer); ok {
		defer closer.Close()
	}

	credentials, err := CredentialStore(cfg.Credentials, logger)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	if closer, ok := credentials.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close credential store", "error", err)
			}
		}()
	}

	recorder, closeRecorder, err := services.NewLoginRecorder(ctx, cfg.Audit, logger)
	if err != nil {
		return fmt.Errorf("login audit: %w", err)
	}
	defer closeRecorder()

	router := NewRouter(Deps{
		Site:        site,
		Assessor:    assessor,
		Credentials: credentials,
		Recorder:    recorder,
		Policy:      model.DecisionPolicy{MinScore: cfg.Recaptcha.MinScore},
		LoginAction: cfg.Recaptcha.LoginAction,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Recaptcha.Timeout + 10*time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", server.Addr, "transport", cfg.Recaptcha.Transport)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-done:
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
