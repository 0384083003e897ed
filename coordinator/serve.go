package coordinator

import (
	"context"
	"encoding/json"
	"expvar"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/tenuki-go/tenuki/config"
	"github.com/tenuki-go/tenuki/selfplay"
)

var (
	FetchesServed    = expvar.NewInt("fetchesServed")
	FlushesAccepted  = expvar.NewInt("flushesAccepted")
	HeartbeatsServed = expvar.NewInt("heartbeatsServed")
)

// fetchMsg is the worker's request-subject payload.
type fetchMsg struct {
	Identity string `json:"identity"`
}

// Server wires a Coordinator into NATS request/reply subjects and a
// periodic staleness scan.
type Server struct {
	coord *Coordinator
	cfg   *config.Config
	nc    *nats.Conn
	subs  []*nats.Subscription
}

func NewServer(coord *Coordinator, cfg *config.Config, nc *nats.Conn) *Server {
	return &Server{coord: coord, cfg: cfg, nc: nc}
}

// Start subscribes the three protocol subjects and registers the
// promotion publisher. Replies are produced inline in the NATS
// callback; every handler is quick and lock-bounded.
func (s *Server) Start() error {
	s.coord.OnPromote(func(ver int64) {
		data, err := json.Marshal(selfplay.VersionMsg{ModelVer: ver})
		if err != nil {
			return
		}
		if err := s.nc.Publish(s.cfg.VersionSubject, data); err != nil {
			log.Error().Err(err).Msg("version publish failed")
		}
	})

	sub, err := s.nc.Subscribe(s.cfg.RequestSubject, func(m *nats.Msg) {
		var fm fetchMsg
		if err := json.Unmarshal(m.Data, &fm); err != nil {
			log.Warn().Err(err).Msg("bad fetch payload")
			return
		}
		req := s.coord.HandleFetch(fm.Identity)
		data, err := json.Marshal(req)
		if err != nil {
			log.Error().Err(err).Msg("fetch reply marshal failed")
			return
		}
		if err := m.Respond(data); err != nil {
			log.Error().Err(err).Msg("fetch reply failed")
		}
		FetchesServed.Add(1)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(s.cfg.FlushSubject, func(m *nats.Msg) {
		if err := s.coord.HandleFlush(context.Background(), m.Data); err != nil {
			log.Warn().Err(err).Msg("flush rejected")
			return
		}
		FlushesAccepted.Add(1)
		// The ack body is unused by workers; replying at all is the ack.
		if err := m.Respond([]byte(`{"status":"ok"}`)); err != nil {
			log.Error().Err(err).Msg("flush ack failed")
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(s.cfg.HeartbeatSubject, func(m *nats.Msg) {
		directive := s.coord.HandleHeartbeat(m.Data)
		data, err := json.Marshal(directive)
		if err != nil {
			log.Error().Err(err).Msg("heartbeat reply marshal failed")
			return
		}
		if err := m.Respond(data); err != nil {
			log.Error().Err(err).Msg("heartbeat reply failed")
		}
		HeartbeatsServed.Add(1)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	if err := s.nc.Flush(); err != nil {
		return err
	}
	log.Info().Str("request", s.cfg.RequestSubject).
		Str("flush", s.cfg.FlushSubject).
		Str("heartbeat", s.cfg.HeartbeatSubject).
		Msg("coordinator serving")
	return nil
}

// Run starts the subscriptions and blocks until ctx ends, scanning for
// stale clients once per StaleAfter interval.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()

	interval := s.cfg.StaleAfter
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.coord.ScanStale()
		}
	}
}

// Stop drains the subscriptions.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			log.Warn().Err(err).Msg("subscription drain failed")
		}
	}
	s.subs = nil
}
