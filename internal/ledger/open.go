package ledger

import (
	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/errors"
)

// OpenStore builds the configured store backend. The settings are assumed
// validated; an unknown type still errors rather than panics.
func OpenStore(cfg *conf.LedgerSettings) (Store, error) {
	switch cfg.Type {
	case "file":
		return NewFileStore(cfg.Path), nil
	case "remote":
		return NewRemoteStore(cfg.URL, nil), nil
	case "sqlite":
		return NewGormStore(cfg.Path)
	default:
		return nil, errors.Newf("unknown ledger store type %q", cfg.Type).
			Component("ledger").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
