// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"net/http"
	"sync"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/mempool"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/peer"
	"golang.org/x/time/rate"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer syncing, and block sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareBlock(block database.Block, exclude string)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	OwnerAddress string          // Recipient of the coinbase of every mined block.
	Host         string          // Private host peers use to reach this node.
	Genesis      genesis.Genesis // Genesis block and consensus settings.
	Difficulty   string          // Overrides the genesis difficulty when set.
	KnownPeers   *peer.PeerSet
	PeerTimeout  time.Duration // Bounded time for a single peer call, retries included.
	SyncInterval time.Duration // Minimum time between two periodic syncs with the same peer.
	EvHandler    EventHandler
}

// State manages the blockchain database.
type State struct {
	ownerAddress string
	host         string
	difficulty   string
	reward       uint64
	evHandler    EventHandler
	mu           sync.Mutex

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	client      *http.Client
	peerTimeout time.Duration
	syncLimits  *limiters

	Worker Worker
}

// New constructs a new blockchain for data management. The chain starts
// with the genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	difficulty := cfg.Genesis.Difficulty
	if cfg.Difficulty != "" {
		difficulty = cfg.Difficulty
	}

	peerTimeout := cfg.PeerTimeout
	if peerTimeout == 0 {
		peerTimeout = 5 * time.Second
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	// The genesis block is never mined, it is installed as configured.
	genesisBlock, err := cfg.Genesis.Block()
	if err != nil {
		return nil, err
	}

	db := database.New()
	if err := db.Append(genesisBlock); err != nil {
		return nil, err
	}

	state := State{
		ownerAddress: cfg.OwnerAddress,
		host:         cfg.Host,
		difficulty:   difficulty,
		reward:       cfg.Genesis.Reward(),
		evHandler:    ev,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool.New(),
		db:         db,

		client:      &http.Client{},
		peerTimeout: peerTimeout,
		syncLimits:  newLimiters(rate.Every(cfg.SyncInterval)),
	}

	ev("state: New: genesis: blk[%d]: prevBlk[%s]: difficulty[%s]", genesisBlock.Header.Index, genesisBlock.Header.PreviousHash, difficulty)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// limiters maintains a rate limiter per peer host.
type limiters struct {
	mu    sync.Mutex
	every rate.Limit
	set   map[string]*rate.Limiter
}

func newLimiters(every rate.Limit) *limiters {
	return &limiters{
		every: every,
		set:   make(map[string]*rate.Limiter),
	}
}

// limiter returns the limiter of the host, creating it on first use.
func (l *limiters) limiter(host string) *rate.Limiter {
	lim, exists := l.set[host]
	if !exists {
		lim = rate.NewLimiter(l.every, 1)
		l.set[host] = lim
	}

	return lim
}

// due reports if an operation against the host can run now. Nothing is
// spent until spend is called.
func (l *limiters) due(host string) bool {
	if l.every == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.limiter(host).Tokens() >= 1
}

// spend records a completed operation against the host.
func (l *limiters) spend(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiter(host).Allow()
}
