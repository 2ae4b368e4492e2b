package paypal

import (
	"github.com/astraops/paygate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("paypal.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Client {
		return NewClient(Config{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			Mode:         cfg.PayPalMode,
		}, log)
	}),
)
