package main

import (
	"bitwise74/docstring-api/app"
	"bitwise74/docstring-api/config"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *config.SeedAdmin {
		seedAdmin(ctx)
		return
	}

	router, err := app.NewRouter(ctx)
	if err != nil {
		panic(err)
	}
	defer sentry.Flush(2 * time.Second)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("host.port")),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Failed to shut down cleanly", zap.Error(err))
		}
	}()

	zap.L().Info("Server starting", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}

	zap.L().Info("Server stopped")
}

func seedAdmin(ctx context.Context) {
	d, err := app.NewDeps()
	if err != nil {
		panic(err)
	}

	admin, err := d.Accounts.SeedAdmin(ctx, viper.GetString("admin.email"), viper.GetString("admin.password"))
	if err != nil {
		panic(err)
	}

	fmt.Printf("Admin ready: %s (%s)\n", *admin.Email, admin.ID)
}
