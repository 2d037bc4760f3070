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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/damacus/iron-explorer/internal/batch"
	"github.com/damacus/iron-explorer/internal/config"
	"github.com/damacus/iron-explorer/internal/explorer"
	"github.com/damacus/iron-explorer/internal/handlers"
	"github.com/damacus/iron-explorer/internal/kvstore"
	"github.com/damacus/iron-explorer/internal/logger"
	customMiddleware "github.com/damacus/iron-explorer/internal/middleware"
	"github.com/damacus/iron-explorer/internal/services"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "iron-explorer",
	Short:        "Browse S3-compatible buckets",
	SilenceUsage: true,
}

// deps are the long-lived services behind the HTTP server.
type deps struct {
	factory   services.StorageFactory
	workspace *explorer.Workspace
	log       *logger.Logger
}

// openDeps loads the config and opens local state. The caller must call
// the returned close function.
func openDeps() (*config.Config, deps, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, deps{}, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})

	store, closer, err := kvstore.Open(cfg.Store)
	if err != nil {
		return nil, deps{}, nil, fmt.Errorf("opening store: %w", err)
	}
	factory := services.NewFactory(cfg.Storage.DefaultProvider)
	d := deps{
		factory:   factory,
		workspace: explorer.New(store, factory, cfg.Storage, log),
		log:       log,
	}
	closeFn := func() {
		if err := closer.Close(); err != nil {
			log.ErrorWith("failed to close store", err, nil)
		}
	}
	return cfg, d, closeFn, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, d, closeFn, err := openDeps()
		if err != nil {
			return err
		}
		defer closeFn()

		e := newServer(cfg, d)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			d.log.InfoWith("server starting", map[string]interface{}{"address": cfg.Server.Address})
			if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		d.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}

func newServer(cfg *config.Config, d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	filesHandler := handlers.NewFilesHandler(d.factory, batch.NewCoordinator(cfg.Storage.Concurrency, d.log), cfg.Env, cfg.Storage, d.log)
	workspaceHandler := handlers.NewWorkspaceHandler(d.workspace, d.log)

	// Middleware
	e.Use(customMiddleware.RequestLogger(d.log))
	e.Use(middleware.Recover())
	e.Use(customMiddleware.SecurityHeaders())

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api")

	// Credential probes carry their own headers
	api.POST("/files/test-connection", filesHandler.TestConnection)
	api.GET("/files/env-credentials", filesHandler.EnvCredentials)

	// Relay: credentials travel with every request
	files := api.Group("/files", customMiddleware.RelayCredentials(cfg.Env))
	files.GET("", filesHandler.ListFiles)
	files.POST("", filesHandler.UploadFile)
	files.PUT("", filesHandler.UploadFile)
	files.DELETE("", filesHandler.DeleteFile)
	files.GET("/download", filesHandler.DownloadFile)
	files.GET("/metadata", filesHandler.FileMetadata)
	files.GET("/presigned", filesHandler.PresignedDownload)
	files.POST("/presigned", filesHandler.PresignedUpload)
	files.POST("/batch", filesHandler.Batch)

	// Workspace: buckets stored on the server
	ws := api.Group("/workspace", customMiddleware.CSRF(cfg.Server.SecureCookies))
	ws.GET("/csrf", workspaceHandler.CSRFToken)

	ws.GET("/buckets", workspaceHandler.ListBuckets)
	ws.POST("/buckets", workspaceHandler.Connect)
	ws.PATCH("/buckets/:id", workspaceHandler.UpdateBucket)
	ws.DELETE("/buckets/:id", workspaceHandler.EjectBucket)
	ws.POST("/buckets/:id/select", workspaceHandler.SelectBucket)
	ws.POST("/buckets/:id/duplicate", workspaceHandler.DuplicateBucket)
	ws.POST("/groups", workspaceHandler.CreateGroup)
	ws.PUT("/groups/:id", workspaceHandler.UpdateGroup)
	ws.DELETE("/groups/:id", workspaceHandler.DeleteGroup)
	ws.GET("/export", workspaceHandler.Export)
	ws.POST("/import", workspaceHandler.Import)

	// Browsing
	ws.GET("/view", workspaceHandler.View)
	ws.POST("/refresh", workspaceHandler.Refresh)
	ws.POST("/navigate", workspaceHandler.Navigate)
	ws.POST("/open", workspaceHandler.Open)
	ws.POST("/up", workspaceHandler.Up)
	ws.POST("/back", workspaceHandler.Back)
	ws.POST("/forward", workspaceHandler.Forward)
	ws.GET("/folders", workspaceHandler.FolderList)
	ws.GET("/tree", workspaceHandler.Tree)

	ws.GET("/selection", workspaceHandler.Selection)
	ws.PUT("/selection", workspaceHandler.Select)
	ws.POST("/selection/toggle", workspaceHandler.ToggleSelection)
	ws.DELETE("/selection", workspaceHandler.ClearSelection)

	ws.GET("/clipboard", workspaceHandler.Clipboard)
	ws.POST("/clipboard/copy", workspaceHandler.Copy)
	ws.POST("/clipboard/cut", workspaceHandler.Cut)
	ws.POST("/clipboard/paste", workspaceHandler.Paste)
	ws.DELETE("/clipboard", workspaceHandler.ClearClipboard)

	// Mutations
	ws.POST("/delete", workspaceHandler.Delete)
	ws.POST("/rename", workspaceHandler.Rename)
	ws.POST("/folders", workspaceHandler.CreateFolder)

	// Transfers
	ws.POST("/uploads", workspaceHandler.Upload)
	ws.GET("/uploads", workspaceHandler.Transfers)
	ws.DELETE("/uploads", workspaceHandler.ClearTransfers)
	ws.DELETE("/uploads/:id", workspaceHandler.CancelTransfer)
	ws.GET("/download", workspaceHandler.Download)
	ws.POST("/share", workspaceHandler.Share)

	ws.GET("/theme", workspaceHandler.Theme)
	ws.PUT("/theme", workspaceHandler.SetTheme)
	ws.POST("/theme/toggle", workspaceHandler.ToggleTheme)

	return e
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "config file")
	rootCmd.AddCommand(serveCmd)
}
