package keyspace

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidWorkers = errors.New("keyspace: worker count must be positive")

// Shard is a contiguous index range [Start, End) owned by one worker.
type Shard struct {
	Worker int
	Start  *big.Int
	End    *big.Int
}

// Size is End - Start.
func (s Shard) Size() *big.Int {
	return new(big.Int).Sub(s.End, s.Start)
}

// Advance returns the shard with its start moved forward by offset,
// clamped to End. Used to resume a partially processed shard.
func (s Shard) Advance(offset *big.Int) Shard {
	start := new(big.Int).Add(s.Start, offset)
	if start.Cmp(s.End) > 0 {
		start.Set(s.End)
	}
	return Shard{Worker: s.Worker, Start: start, End: new(big.Int).Set(s.End)}
}

func (s Shard) String() string {
	return fmt.Sprintf("shard %d [%s, %s)", s.Worker, s.Start, s.End)
}

// Partition splits [0, total) into workers shards of total/workers indices
// each. The last shard absorbs the remainder.
func Partition(total *big.Int, workers int) ([]Shard, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if total.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative total %s", ErrInvalidRange, total)
	}

	w := big.NewInt(int64(workers))
	chunk := new(big.Int).Quo(total, w)

	shards := make([]Shard, workers)
	for i := 0; i < workers; i++ {
		start := new(big.Int).Mul(chunk, big.NewInt(int64(i)))
		end := new(big.Int).Add(start, chunk)
		if i == workers-1 {
			end.Set(total)
		}
		shards[i] = Shard{Worker: i, Start: start, End: end}
	}
	return shards, nil
}

// ListShard is a contiguous slice [Start, End) of an explicit candidate list.
type ListShard struct {
	Worker int
	Start  int
	End    int
}

// PartitionList splits a list of n entries into contiguous slices of
// ceil(n/workers). Workers left without entries get no shard.
func PartitionList(n, workers int) ([]ListShard, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if n <= 0 {
		return nil, nil
	}

	chunk := (n + workers - 1) / workers
	var shards []ListShard
	for i := 0; i < workers; i++ {
		start := i * chunk
		if start >= n {
			break
		}
		end := min(start+chunk, n)
		shards = append(shards, ListShard{Worker: i, Start: start, End: end})
	}
	return shards, nil
}
