package hub

import "sync"

// DefaultShardCount is the number of serial per-fid merge queues a
// Hub runs when Options.ShardCount is left at zero (§5 "a pool of
// worker tasks, each owning a disjoint shard of fids"): N long-lived
// goroutines, each draining its own fid-sharded queue, giving strict
// per-fid ordering rather than just a bound on concurrency.
const DefaultShardCount = 16

// shard is one single-goroutine serial queue. Every task submitted for
// the same fid lands on the same shard and therefore never runs
// concurrently with another task for that fid.
type shard struct {
	tasks chan func()
}

// shardPool fans fid-keyed work out across a fixed number of shards.
// Cross-fid operations (a cascade reaching into several CRDT stores
// for one fid) still run entirely on one shard, so they never
// interleave with another operation on the same fid — the "coarser
// lock" §5 calls for falls out of submitting the whole operation as
// a single task rather than needing an explicit mutex.
type shardPool struct {
	shards []*shard
	wg     sync.WaitGroup
}

func newShardPool(n int) *shardPool {
	p := &shardPool{shards: make([]*shard, n)}
	for i := range p.shards {
		s := &shard{tasks: make(chan func(), 256)}
		p.shards[i] = s
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range s.tasks {
				task()
			}
		}()
	}
	return p
}

func (p *shardPool) shardFor(fid uint64) *shard {
	return p.shards[fid%uint64(len(p.shards))]
}

// Do submits task to fid's shard and blocks until it runs, returning
// whatever error it produced.
func (p *shardPool) Do(fid uint64, task func() error) error {
	done := make(chan error, 1)
	p.shardFor(fid).tasks <- func() { done <- task() }
	return <-done
}

// Stop closes every shard's queue and waits for its goroutine to
// drain what's already enqueued.
func (p *shardPool) Stop() {
	for _, s := range p.shards {
		close(s.tasks)
	}
	p.wg.Wait()
}
