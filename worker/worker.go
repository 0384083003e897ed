// Package worker is the selfplay client process: it polls the
// coordinator for work assignments, fans games out over local game
// goroutines, accumulates finished games in a record store, and
// periodically flushes them as JSON batches while reporting per-thread
// checkpoints for liveness decisions.
package worker

import (
	"context"
	"encoding/json"
	"expvar"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/sink"
)

var (
	GamesPlayed    *expvar.Int
	RecordsFlushed *expvar.Int
)

func init() {
	GamesPlayed = expvar.NewInt("gamesPlayed")
	RecordsFlushed = expvar.NewInt("recordsFlushed")
}

// FetchMsg is what a worker sends when asking for an assignment.
type FetchMsg struct {
	Identity string `json:"identity"`
}

// Worker runs the selfplay client loops.
type Worker struct {
	cfg    *Config
	tr     Transport
	player GamePlayer
	store  *selfplay.Store
	files  *sink.FileSink

	mu       sync.Mutex
	cur      selfplay.SeqRequest
	cancels  map[int]context.CancelFunc
	flushSeq int64
}

// New creates a worker. The file sink is created eagerly so a bad
// flush directory fails at startup, not at the first flush.
func New(cfg *Config, tr Transport, player GamePlayer) (*Worker, error) {
	files, err := sink.NewFileSink(cfg.FlushDir, cfg.Compress)
	if err != nil {
		return nil, err
	}
	return &Worker{
		cfg:     cfg,
		tr:      tr,
		player:  player,
		store:   selfplay.NewStore(cfg.Identity),
		files:   files,
		cur:     selfplay.NewSeqRequest(),
		cancels: make(map[int]context.CancelFunc),
	}, nil
}

// Store exposes the record store, mainly to tests and local tooling.
func (w *Worker) Store() *selfplay.Store {
	return w.store
}

// Run starts the assignment poller, the game goroutines, the flusher,
// and the heartbeat loop, and blocks until ctx is canceled or one of
// them fails. A final best-effort flush runs on the way out so a
// graceful shutdown does not strand finished games in memory.
func (w *Worker) Run(ctx context.Context) error {
	// Fetch the first assignment before starting game threads, so the
	// thread count can honor the server's budget.
	w.pollOnce()
	threads := w.cfg.resolveThreads(w.currentRequest().Request.Control.NumGameThreads)

	log.Info().
		Str("identity", w.cfg.Identity).
		Int("game-threads", threads).
		Dur("poll-interval", w.cfg.PollInterval).
		Dur("flush-interval", w.cfg.FlushInterval).
		Msg("starting selfplay worker")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pollLoop(ctx) })
	g.Go(func() error { return w.flushLoop(ctx) })
	g.Go(func() error { return w.heartbeatLoop(ctx) })
	for t := 0; t < threads; t++ {
		t := t
		g.Go(func() error { return w.gameLoop(ctx, t) })
	}

	err := g.Wait()
	if flushErr := w.flush(); flushErr != nil {
		log.Warn().Err(flushErr).Msg("final flush failed")
	}
	return err
}

// pollLoop keeps the current assignment fresh.
func (w *Worker) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Worker) pollOnce() {
	payload, _ := json.Marshal(FetchMsg{Identity: w.cfg.Identity})
	data, err := w.tr.Request(w.cfg.RequestSubject, payload, w.cfg.RequestTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("assignment fetch failed")
		return
	}
	sr, err := selfplay.DecodeSeqRequest(data)
	if err != nil {
		log.Warn().Err(err).Msg("bad assignment payload")
		return
	}
	w.applyRequest(sr)
}

// applyRequest installs a newly fetched assignment unless it is stale.
func (w *Worker) applyRequest(sr selfplay.SeqRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sr.StaleAgainst(w.cur.Seq) {
		return
	}
	log.Info().Int64("seq", sr.Seq).Str("request", sr.Request.String()).
		Msg("new assignment")
	w.cur = sr
}

func (w *Worker) currentRequest() selfplay.SeqRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// gameLoop is one game thread: play, record, checkpoint, repeat.
func (w *Worker) gameLoop(ctx context.Context, threadID int) error {
	gameSeq := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sr := w.currentRequest()
		req := sr.Request
		if req.Assignment.IsWaiting() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		w.checkpoint(threadID, gameSeq, 0, req.Assignment)
		gameCtx, cancel := context.WithCancel(ctx)
		w.setCancel(threadID, cancel)
		res, err := w.player.PlayGame(gameCtx, req, threadID, gameSeq, func(moveIdx int) {
			w.checkpoint(threadID, gameSeq, moveIdx, req.Assignment)
		})
		w.setCancel(threadID, nil)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The game was abandoned by a directive; the next loop
			// iteration picks up the new assignment.
			log.Debug().Err(err).Int("thread", threadID).Msg("game abandoned")
			continue
		}

		w.store.AddRecord(selfplay.Record{
			Request:   req,
			Result:    *res,
			Timestamp: uint64(time.Now().Unix()),
			ThreadID:  uint64(threadID),
			Seq:       gameSeq,
			Priority:  1,
		})
		gameSeq++
		w.checkpoint(threadID, gameSeq, 0, req.Assignment)
		GamesPlayed.Add(1)
	}
}

func (w *Worker) checkpoint(threadID, gameSeq, moveIdx int, a selfplay.Assignment) {
	w.store.UpdateThreadState(selfplay.ThreadState{
		ThreadID: threadID,
		Seq:      gameSeq,
		MoveIdx:  moveIdx,
		Black:    a.BlackVer,
		White:    a.WhiteVer,
	})
}

func (w *Worker) setCancel(threadID int, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel == nil {
		delete(w.cancels, threadID)
	} else {
		w.cancels[threadID] = cancel
	}
}

// flushLoop flushes on the interval, or early when the store grows
// past the memory-derived bound.
func (w *Worker) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	limit := w.cfg.flushAtRecords()
	check := time.NewTicker(time.Second)
	defer check.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-check.C:
			if w.store.Len() < limit {
				continue
			}
		}
		if err := w.flush(); err != nil {
			log.Error().Err(err).Msg("flush failed; keeping records buffered")
		}
	}
}

// flush drains the store, writes the drained batch to a local file,
// and hands it to the coordinator. The drain is a single atomic swap,
// so games finished while the file write and ack round trip are in
// flight stay in the store for the next flush. On any failure the
// drained records are requeued. The local batch file is written before
// the ack round trip, so even a crash mid-flush leaves the games on
// disk.
func (w *Worker) flush() error {
	records, states := w.store.Drain()
	if len(records) == 0 {
		return nil
	}
	w.mu.Lock()
	seq := w.flushSeq
	w.flushSeq++
	w.mu.Unlock()

	batch := selfplay.NewStore(w.cfg.Identity)
	for _, ts := range states {
		batch.UpdateThreadState(ts)
	}
	for _, r := range records {
		batch.AddRecord(r)
	}

	data, err := batch.EncodeJSON()
	if err != nil {
		w.store.Requeue(records)
		return err
	}

	if _, err := w.files.WriteStore(batch, seq); err != nil {
		w.store.Requeue(records)
		return err
	}

	err = retry.Do(
		func() error {
			_, err := w.tr.Request(w.cfg.FlushSubject, data, w.cfg.RequestTimeout)
			return err
		},
		retry.Attempts(5),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Uint("attempt", n).Err(err).Msg("flush not acknowledged, retrying")
		}),
	)
	if err != nil {
		w.store.Requeue(records)
		return err
	}
	RecordsFlushed.Add(int64(len(records)))
	log.Info().Int("records", len(records)).Int64("flush-seq", seq).Msg("flushed records")
	return nil
}

// heartbeatLoop reports thread checkpoints and applies whatever
// directive comes back.
func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hb := selfplay.NewStore(w.cfg.Identity)
			for _, ts := range w.store.ThreadStates() {
				hb.UpdateThreadState(ts)
			}
			data, err := hb.EncodeJSON()
			if err != nil {
				return err
			}
			reply, err := w.tr.Request(w.cfg.HeartbeatSubject, data, w.cfg.RequestTimeout)
			if err != nil {
				log.Warn().Err(err).Msg("heartbeat failed")
				continue
			}
			var directive selfplay.Restart
			if err := json.Unmarshal(reply, &directive); err != nil {
				log.Warn().Err(err).Msg("bad heartbeat reply")
				continue
			}
			w.applyDirective(directive)
		}
	}
}

// applyDirective acts on a coordinator directive. Everything here is
// cooperative: games are canceled via their context (the player
// observes it between moves) or simply left to finish.
func (w *Worker) applyDirective(d selfplay.Restart) {
	if d.Action == selfplay.RestartNoOp {
		return
	}
	log.Info().Str("action", d.Action.String()).Int("game-idx", d.GameIdx).
		Msg("applying directive")
	w.mu.Lock()
	defer w.mu.Unlock()
	switch d.Action {
	case selfplay.RestartOnlyWait:
		// No model ready; stop starting new games until a fresh
		// assignment arrives.
		w.cur.Request.Assignment.SetWaiting()
	case selfplay.RestartUpdateRequestOnly:
		// Force the next poll to re-apply whatever the coordinator
		// sends, even with an already-seen sequence.
		w.cur.Seq = -1
	case selfplay.RestartUpdateModel:
		// Abandon the targeted in-flight game; its thread re-reads the
		// assignment on the next iteration.
		w.cur.Seq = -1
		if cancel, ok := w.cancels[d.GameIdx]; ok {
			cancel()
		}
	case selfplay.RestartUpdateModelAsync:
		// Let the current game finish under its original assignment;
		// the swap lands on the next game.
		w.cur.Seq = -1
	}
}
