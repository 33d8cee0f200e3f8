// Package worker implements mining, peer syncing, and block sharing for
// the blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/state"
)

// peerSyncInterval represents the interval of asking peers for a longer
// chain than the local one.
const peerSyncInterval = time.Minute

// maxBlockShareRequests represents the max number of pending block share
// requests that can be outstanding before share requests are dropped.
const maxBlockShareRequests = 100

// =============================================================================

// shareRequest is a block waiting to be sent to peers.
type shareRequest struct {
	block   database.Block
	exclude string
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan bool
	blockSharing chan shareRequest
	evHandler    state.EventHandler
}

// Config allows the intervals of the worker to be changed.
type Config struct {
	SyncInterval time.Duration
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes. Mining starts right away.
func Run(st *state.State, evHandler state.EventHandler, cfgs ...Config) *Worker {
	interval := peerSyncInterval
	for _, cfg := range cfgs {
		if cfg.SyncInterval > 0 {
			interval = cfg.SyncInterval
		}
	}

	w := Worker{
		state:        st,
		ticker:       time.NewTicker(interval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		blockSharing: make(chan shareRequest, maxBlockShareRequests),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareBlockOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	w.SignalStartMining()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareBlock queues the block to be sent to every known peer except the
// excluded host. If maxBlockShareRequests signals exist in the channel, the
// block won't be shared.
func (w *Worker) SignalShareBlock(block database.Block, exclude string) {
	select {
	case w.blockSharing <- shareRequest{block: block, exclude: exclude}:
		w.evHandler("worker: SignalShareBlock: share blk[%d] signaled", block.Header.Index)
	default:
		w.evHandler("worker: SignalShareBlock: queue full, blk[%d] won't be shared.", block.Header.Index)
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
