package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/events"
	"github.com/energizer-project/rconsole/internal/metrics"
	"github.com/energizer-project/rconsole/internal/session"
	"github.com/energizer-project/rconsole/internal/telemetry"
)

// services wires the session to the event bus, metrics, history store and
// MQTT telemetry.
type services struct {
	bus     *events.EventBus
	metrics *metrics.Metrics
	history *db.HistoryDatabase
	session *session.Session

	cancel context.CancelFunc
	done   chan struct{}
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	rt := &services{
		bus:     events.NewEventBus(),
		metrics: metrics.New(),
		done:    make(chan struct{}),
	}

	if h := cfg.GetHistory(); h.Enabled {
		history, err := db.NewHistoryDatabase(h.Path, h.MaxEntries)
		if err != nil {
			rt.bus.Stop()
			return nil, err
		}
		history.Subscribe(rt.bus)
		rt.history = history
	}

	ctx, rt.cancel = context.WithCancel(ctx)
	if m := cfg.GetMQTT(); m.Enabled {
		handler, err := telemetry.NewMQTTHandler(m, rt.bus)
		if err != nil {
			close(rt.done)
			rt.Close()
			return nil, err
		}
		go func() {
			defer close(rt.done)
			if err := handler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry disabled")
			}
		}()
	} else {
		close(rt.done)
	}

	opts := session.OptionsFromConfig(cfg)
	opts.Bus = rt.bus
	opts.Metrics = rt.metrics
	rt.session = session.New(opts)
	return rt, nil
}

// Close closes the session, drains the event bus and closes the history
// store, in that order, so the final events are still recorded.
func (rt *services) Close() error {
	var errs []error
	if rt.session != nil {
		errs = append(errs, rt.session.Close())
	}
	rt.cancel()
	<-rt.done
	rt.bus.Stop()
	if rt.history != nil {
		errs = append(errs, rt.history.Close())
	}
	return errors.Join(errs...)
}
