package api

import (
	"context"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"market_feed/internal/modules/api/service"
	"market_feed/internal/modules/config"
)

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, app *fiber.App, h *service.Handlers, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				return errors.Wrapf(err, "listen %s", cfg.HTTP.Addr)
			}
			go func() {
				if err := app.Listener(ln); err != nil {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// websocket-соединения сервер не ждёт, их закрывает Handlers
			err := app.ShutdownWithContext(ctx)
			h.Close()
			return err
		},
	})
}

// Module: HTTP-витрина: пробы, REST по рынку и /ws.
func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(
			service.NewState,
			service.NewHandlers,
			service.NewApp,
		),
		fx.Invoke(RunHTTP),
	)
}
