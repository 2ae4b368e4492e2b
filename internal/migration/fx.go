package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/astraops/paygate/internal/billing/domain"
	"github.com/astraops/paygate/internal/config"
)

// Module applies the schema at startup. Postgres uses the versioned
// embedded migrations; the sqlite and mysql dev targets fall back to
// gorm's auto migration of the same models.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return conn.AutoMigrate(
			&domain.Customer{},
			&domain.Subscription{},
			&domain.EventRecord{},
		)
	}),
)
