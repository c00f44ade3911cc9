// ABOUTME: NATS relay that bridges local storage events between processes sharing an origin
// ABOUTME: Forwards local writes to a subject and republishes foreign writes on the local bus

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/2389/spinwheel/internal/dedupe"
)

const (
	// DefaultSubject is the subject prefix storage events are relayed on.
	DefaultSubject = "spinwheel.storage"

	dedupeTTL  = 5 * time.Minute
	dedupeSize = 10000
)

// RelayConfig configures a NATSRelay.
type RelayConfig struct {
	URL           string
	Subject       string
	Origin        string
	ReconnectWait time.Duration
}

// subject returns the full subject for cfg: <prefix>.<origin>.
func (cfg RelayConfig) subject() string {
	prefix := cfg.Subject
	if prefix == "" {
		prefix = DefaultSubject
	}
	return prefix + "." + cfg.Origin
}

// publisher is the part of *nats.Conn the relay writes through.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSRelay mirrors storage events between a local Broadcaster and a NATS
// subject. Event IDs already seen are dropped in both directions so an event
// crosses any process boundary at most once.
type NATSRelay struct {
	bus     *Broadcaster
	out     publisher
	subject string
	seen    *dedupe.Cache
	logger  *slog.Logger

	conn *nats.Conn
	sub  *nats.Subscription

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRelay(bus *Broadcaster, out publisher, subject string, logger *slog.Logger) *NATSRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSRelay{
		bus:     bus,
		out:     out,
		subject: subject,
		seen:    dedupe.New(dedupeTTL, dedupeSize),
		logger:  logger.With("component", "nats_relay", "subject", subject),
	}
}

// NewNATSRelay connects to cfg.URL and starts relaying events for cfg.Origin.
// Call Close to stop.
func NewNATSRelay(ctx context.Context, bus *Broadcaster, cfg RelayConfig, logger *slog.Logger) (*NATSRelay, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Origin == "" {
		return nil, errors.New("origin is required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats_relay")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("spinwheel"),
		nats.NoEcho(),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("nats error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	r := newRelay(bus, nc, cfg.subject(), logger)
	r.conn = nc

	sub, err := nc.Subscribe(r.subject, func(msg *nats.Msg) {
		r.handleInbound(msg.Data)
	})
	if err != nil {
		nc.Close()
		r.seen.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.subject, err)
	}
	r.sub = sub

	r.start(ctx)
	r.logger.Info("nats relay started", "url", cfg.URL)
	return r, nil
}

// start begins forwarding local events until ctx is done or Close is called.
func (r *NATSRelay) start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	events, _ := r.bus.Subscribe(ctx, AllKeys, "")

	r.wg.Go(func() {
		for ev := range events {
			r.forward(ev)
		}
	})
}

func (r *NATSRelay) forward(ev StorageEvent) {
	if r.seen.CheckAndMark(ev.ID) {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("encoding storage event", "error", err, "event_id", ev.ID)
		return
	}
	if err := r.out.Publish(r.subject, data); err != nil {
		r.logger.Warn("publishing storage event", "error", err, "event_id", ev.ID, "key", ev.Key)
		return
	}
	r.logger.Debug("forwarded storage event", "event_id", ev.ID, "key", ev.Key)
}

func (r *NATSRelay) handleInbound(data []byte) {
	var ev StorageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		r.logger.Warn("discarding malformed storage event", "error", err)
		return
	}
	if ev.ID == "" || ev.Key == "" {
		r.logger.Warn("discarding storage event without id or key")
		return
	}
	if r.seen.CheckAndMark(ev.ID) {
		return
	}
	r.logger.Debug("received storage event", "event_id", ev.ID, "key", ev.Key, "source", ev.Source)
	r.bus.Publish(ev)
}

// Close stops forwarding, drains the subscription, and closes the connection.
func (r *NATSRelay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	var errs []error
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("unsubscribing: %w", err))
		}
	}
	if r.conn != nil {
		r.conn.Close()
	}
	r.seen.Close()
	return errors.Join(errs...)
}
