package sink

import (
	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/model"
)

// Open creates every enabled sink. On failure the sinks opened so far are
// closed.
func Open(cfg config.SinksConfig) ([]model.Writer, error) {
	var writers []model.Writer
	fail := func(err error) ([]model.Writer, error) {
		for _, w := range writers {
			w.Close()
		}
		return nil, err
	}

	if cfg.Text.Enabled {
		w, err := NewTextWriter(cfg.Text.Path, cfg.Text.Header)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if cfg.ClickHouse.Enabled {
		w, err := NewClickHouseWriter(cfg.ClickHouse)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	if cfg.NATS.Enabled {
		w, err := NewNATSWriter(cfg.NATS)
		if err != nil {
			return fail(err)
		}
		writers = append(writers, w)
	}
	return writers, nil
}
