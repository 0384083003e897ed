package worker

import (
	"context"
	"fmt"
	"time"

	"lukechampine.com/frand"

	"github.com/tenuki-go/tenuki/board"
	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/sgf"
)

// GamePlayer is the pluggable game-engine boundary. The real search
// engine lives outside this repo; anything that can turn a work
// request into a finished game result plugs in here. Implementations
// observe ctx between moves (the cooperative-cancellation point) and
// call progress with the move index as play advances so the worker can
// checkpoint it.
type GamePlayer interface {
	PlayGame(ctx context.Context, req selfplay.Request, threadID, gameSeq int,
		progress func(moveIdx int)) (*selfplay.Result, error)
}

// SimulatedPlayer drives the pipeline without a search engine: it
// fabricates plausible games, honoring the resign thresholds,
// never-resign sampling, and trace recording a real engine would.
// Useful for load tests and for exercising the whole flush path.
type SimulatedPlayer struct {
	Geometry board.Geometry
	// MoveDelay stretches games out in time; zero plays instantly.
	MoveDelay time.Duration
	// RecordTraces controls whether policy/value traces are attached.
	RecordTraces bool
}

func NewSimulatedPlayer() *SimulatedPlayer {
	return &SimulatedPlayer{Geometry: board.Default, RecordTraces: true}
}

func (p *SimulatedPlayer) PlayGame(ctx context.Context, req selfplay.Request, threadID, gameSeq int,
	progress func(moveIdx int)) (*selfplay.Result, error) {

	g := p.Geometry
	ctrl := req.Control
	assign := req.Assignment

	blackVer, whiteVer := assign.BlackVer, assign.WhiteVer
	if assign.IsSelfplay() {
		whiteVer = blackVer
	}
	if ctrl.PlayerSwap {
		blackVer, whiteVer = whiteVer, blackVer
	}

	res := &selfplay.Result{
		BlackNeverResign: frand.Float64() < float64(ctrl.NeverResignProb),
		WhiteNeverResign: frand.Float64() < float64(ctrl.NeverResignProb),
		UsingModels:      usingModels(blackVer, whiteVer),
	}

	// The predetermined outcome the fake game drifts toward.
	blackWins := frand.Intn(2) == 0
	targetLen := g.NumPoints()/2 + frand.Intn(g.NumPoints()/2)

	var moves []sgf.Move
	var resigned sgf.Color
	resignEnd := false
	for i := 0; i < targetLen; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if p.MoveDelay > 0 {
			timer := time.NewTimer(p.MoveDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		color := sgf.Black
		if i%2 == 1 {
			color = sgf.White
		}
		pt := frand.Intn(g.NumPoints())
		moves = append(moves, sgf.Move{Color: color, Point: pt})

		// A crude value estimate sliding toward the winner as the game
		// progresses, from black's perspective.
		v := float32(float64(i) / float64(targetLen))
		if !blackWins {
			v = -v
		}
		if p.RecordTraces {
			pv := selfplay.NewPolicyVector()
			if len(pv) > pt {
				pv[pt] = 255
			}
			res.Policies = append(res.Policies, pv)
			res.Values = append(res.Values, v)
		}
		progress(i)

		// Resignation check for the losing side.
		thres := ctrl.BlackResignThreshold
		never := res.BlackNeverResign
		if blackWins {
			thres = ctrl.WhiteResignThreshold
			never = res.WhiteNeverResign
		}
		if thres > 0 && !never && absf(v) > thres && i > targetLen/2 {
			if blackWins {
				resigned = sgf.White
			} else {
				resigned = sgf.Black
			}
			resignEnd = true
			break
		}
	}

	res.NumMoves = len(moves)
	res.Reward = 1
	if !blackWins {
		res.Reward = -1
	}

	var result string
	switch {
	case resignEnd && resigned == sgf.Black:
		result = "W+R"
	case resignEnd && resigned == sgf.White:
		result = "B+R"
	case blackWins:
		result = "B+T"
	default:
		result = "W+T"
	}
	res.MoveLog = sgf.Write(sgf.Meta{
		BoardSize: g.Size,
		Komi:      7.5,
		Result:    result,
		Black:     fmt.Sprintf("model-%d", blackVer),
		White:     fmt.Sprintf("model-%d", whiteVer),
	}, moves)
	return res, nil
}

func usingModels(blackVer, whiteVer int64) []int64 {
	if blackVer == whiteVer {
		return []int64{blackVer}
	}
	return []int64{blackVer, whiteVer}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
