package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/policy-qa/internal/app/server"
)

// shutdownTimeout はサーバ停止時に処理中リクエストを待つ最大時間
const shutdownTimeout = 10 * time.Second

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if p := cmd.Int("port"); p > 0 {
		port = int(p)
	}

	srv := server.New(
		appCtx.Composer,
		appCtx.Overrides,
		appCtx.Documents,
		appCtx.Settings,
		server.WithAllowedOrigins(appCtx.Config.Server.AllowedOrigins),
		server.WithServerLogger(appCtx.Logger()),
	)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバを起動します", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	slog.Info("HTTPサーバを停止します")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバの停止に失敗: %w", err)
	}

	slog.Info("HTTPサーバを停止しました")
	return nil
}
