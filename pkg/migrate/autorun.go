package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev
// with TABLESIDE_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.Features.AutoMigrate {
		return nil
	}
	if cfg.DB.Driver != "" && cfg.DB.Driver != "postgres" {
		logg.Warn(ctx, "auto-migrate skipped: goose migrations target postgres")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	migrator, err := NewMigrator(sqlDB, source, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "running embedded migrations (dev auto-run)")
	return migrator.Up(ctx)
}
