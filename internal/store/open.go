package store

import (
	"context"
	"fmt"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// Supported values of STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Options selects and configures a Repo backend.
type Options struct {
	Driver      string
	Path        string // sqlite, bolt
	DatabaseURL string // postgres
}

// Open returns the Repo backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Repo, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.Path)
	case DriverBolt:
		return OpenBolt(opts.Path)
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for postgres", domain.ErrConfig)
		}
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrConfig, opts.Driver)
	}
}
