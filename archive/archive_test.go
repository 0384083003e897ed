package archive

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/tenuki-go/tenuki/mcts"
	"github.com/tenuki-go/tenuki/selfplay"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func testRecord(blackVer int64, reward float32, moves int) selfplay.Record {
	return selfplay.Record{
		Request: selfplay.Request{
			Assignment: selfplay.Assignment{
				BlackVer:   blackVer,
				WhiteVer:   selfplay.UnsetVersion,
				SearchOpts: mcts.DefaultOptions(),
			},
			Control: selfplay.DefaultClientControl(),
		},
		Result: selfplay.Result{
			NumMoves: moves,
			Reward:   reward,
			MoveLog:  "(;GM[1]FF[4];B[dd])",
		},
		Timestamp: 1700000000,
		Priority:  1,
	}
}

func TestIndexAndSummaries(t *testing.T) {
	is := is.New(t)
	a := openTestArchive(t)
	ctx := context.Background()

	batch := []selfplay.Record{
		testRecord(40, 1, 180),
		testRecord(40, -1, 220),
		testRecord(41, 1, 200),
	}
	is.NoErr(a.IndexBatch(ctx, "worker-a", "batch-worker-a-0.json", batch))

	n, err := a.GameCount(ctx)
	is.NoErr(err)
	is.Equal(n, 3)

	sums, err := a.ModelSummaries(ctx)
	is.NoErr(err)
	is.Equal(len(sums), 2)
	is.Equal(sums[0].BlackVer, int64(40))
	is.Equal(sums[0].Games, 2)
	is.Equal(sums[0].MeanReward, 0.0)
	is.Equal(sums[0].MeanMoves, 200.0)

	rewards, err := a.Rewards(ctx)
	is.NoErr(err)
	is.Equal(rewards, []float64{1, -1, 1})
}

func TestCheckpoints(t *testing.T) {
	is := is.New(t)
	a := openTestArchive(t)
	ctx := context.Background()
	now := time.Now()

	states := map[int]selfplay.ThreadState{
		0: {ThreadID: 0, Seq: 3, MoveIdx: 50, Black: 40, White: -1},
		1: {ThreadID: 1, Seq: 2, MoveIdx: 10, Black: 40, White: -1},
	}
	is.NoErr(a.UpdateCheckpoints(ctx, "worker-a", states, now.Add(-time.Hour)))

	// Upsert replaces the old row for a thread.
	states[0] = selfplay.ThreadState{ThreadID: 0, Seq: 4, MoveIdx: 5, Black: 41, White: -1}
	is.NoErr(a.UpdateCheckpoints(ctx, "worker-a",
		map[int]selfplay.ThreadState{0: states[0]}, now))

	recent, err := a.RecentCheckpoints(ctx, now.Add(-time.Minute))
	is.NoErr(err)
	is.Equal(len(recent), 1)
	is.Equal(recent[0].State, states[0])

	all, err := a.RecentCheckpoints(ctx, now.Add(-2*time.Hour))
	is.NoErr(err)
	is.Equal(len(all), 2)
}
