package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/peer"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// stubWorker records the signals the state sends to the worker.
type stubWorker struct {
	mu      sync.Mutex
	cancels int
	shared  []string
}

func (w *stubWorker) Shutdown()         {}
func (w *stubWorker) SignalStartMining() {}

func (w *stubWorker) SignalCancelMining() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancels++
}

func (w *stubWorker) SignalShareBlock(block database.Block, exclude string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shared = append(w.shared, exclude)
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:         time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		PreviousHash: "Evstratiev",
		Proof:        "05082002",
		Difficulty:   "a",
		MiningReward: 5,
	}
}

func newState(t *testing.T, host string) (*state.State, *stubWorker) {
	t.Helper()

	st, err := state.New(state.Config{
		OwnerAddress: "owner-" + host,
		Host:         host,
		Genesis:      testGenesis(),
		KnownPeers:   peer.NewPeerSet(),
		PeerTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	w := stubWorker{}
	st.Worker = &w

	return st, &w
}

func mine(t *testing.T, st *state.State, blocks int) {
	t.Helper()

	for range blocks {
		if _, err := st.MineNewBlock(t.Context()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
	}
}

// serveChain exposes the gossip query endpoints of the state.
func serveChain(st *state.State, hits *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gossip/chain/length", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(state.ChainLength{Status: state.StatusOK, Length: st.QueryChainLength()})
	})

	mux.HandleFunc("GET /gossip/chain/full", func(w http.ResponseWriter, r *http.Request) {
		chain := st.QueryChain()
		data := make([]database.BlockData, len(chain))
		for i, block := range chain {
			data[i] = database.NewBlockData(block)
		}
		json.NewEncoder(w).Encode(state.FullChain{Status: state.StatusOK, Chain: data})
	})

	return httptest.NewServer(mux)
}

// =============================================================================

func TestMineNewBlock(t *testing.T) {
	t.Log("Given the need to mine the mempool into a new block.")
	{
		st, _ := newState(t, "localhost:9080")

		tx := database.NewTransaction("alice", "bob", database.OneCoin)
		st.SubmitTransaction(tx)

		block, err := st.MineNewBlock(t.Context())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		trans := block.Values()
		if len(trans) != 2 || trans[0] != database.NewCoinbase("owner-localhost:9080", 5*database.OneCoin) || trans[1] != tx {
			t.Fatalf("\t%s\tShould put the coinbase in front of the mempool: %v", failed, trans)
		}
		t.Logf("\t%s\tShould put the coinbase in front of the mempool.", success)

		if st.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould consume the mempool: %d", failed, st.QueryMempoolLength())
		}
		t.Logf("\t%s\tShould consume the mempool.", success)

		if st.QueryChainLength() != 3 || st.RetrieveLatestBlock().Header.Proof != block.Header.Proof {
			t.Fatalf("\t%s\tShould append the block: %d", failed, st.QueryChainLength())
		}
		t.Logf("\t%s\tShould append the block.", success)

		genesisBlock, _ := st.QueryBlockByIndex(1)
		if err := block.ValidateBlock(genesisBlock, "a", func(string, ...any) {}); err != nil {
			t.Fatalf("\t%s\tShould produce a block peers accept: %v", failed, err)
		}
		t.Logf("\t%s\tShould produce a block peers accept.", success)
	}
}

func TestMineNewBlockCancel(t *testing.T) {
	t.Log("Given the need to abandon mining when another block wins.")
	{
		st, err := state.New(state.Config{
			OwnerAddress: "owner",
			Genesis:      testGenesis(),
			Difficulty:   "xyz",
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}

		tx := database.NewTransaction("alice", "bob", 1)
		st.SubmitTransaction(tx)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := st.MineNewBlock(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("\t%s\tShould stop with the context error: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop with the context error.", success)

		pool := st.RetrieveMempool()
		if len(pool) != 1 || pool[0] != tx {
			t.Fatalf("\t%s\tShould take the coinbase back out of the mempool: %v", failed, pool)
		}
		t.Logf("\t%s\tShould take the coinbase back out of the mempool.", success)

		if st.QueryChainLength() != 2 {
			t.Fatalf("\t%s\tShould leave the chain alone: %d", failed, st.QueryChainLength())
		}
		t.Logf("\t%s\tShould leave the chain alone.", success)
	}
}

func TestProcessProposedBlock(t *testing.T) {
	t.Log("Given the need to accept blocks mined by peers.")
	{
		miner, _ := newState(t, "localhost:9180")
		local, w := newState(t, "localhost:9080")

		tx := database.NewTransaction("alice", "bob", 7)
		miner.SubmitTransaction(tx)
		local.SubmitTransaction(tx)
		local.SubmitTransaction(database.NewTransaction("carol", "dave", 1))

		block, err := miner.MineNewBlock(t.Context())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}

		if err := local.ProcessProposedBlock("localhost:9180", block); err != nil {
			t.Fatalf("\t%s\tShould accept the block: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the block.", success)

		if local.QueryChainLength() != 3 {
			t.Fatalf("\t%s\tShould append the block: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould append the block.", success)

		pool := local.RetrieveMempool()
		if len(pool) != 1 || pool[0].Sender != "carol" {
			t.Fatalf("\t%s\tShould remove the block transactions from the mempool: %v", failed, pool)
		}
		t.Logf("\t%s\tShould remove the block transactions from the mempool.", success)

		if w.cancels != 1 || len(w.shared) != 1 || w.shared[0] != "localhost:9180" {
			t.Fatalf("\t%s\tShould cancel mining and share with everyone but the sender: %d %v", failed, w.cancels, w.shared)
		}
		t.Logf("\t%s\tShould cancel mining and share with everyone but the sender.", success)

		peers := local.RetrieveKnownPeers()
		if len(peers) != 1 || peers[0].Host != "localhost:9180" {
			t.Fatalf("\t%s\tShould remember the sender: %v", failed, peers)
		}
		t.Logf("\t%s\tShould remember the sender.", success)

		if err := local.ProcessProposedBlock("localhost:9180", block); !errors.Is(err, database.ErrPreviousHashMismatch) {
			t.Fatalf("\t%s\tShould ignore a block that does not extend the chain: %v", failed, err)
		}
		if local.QueryChainLength() != 3 || w.cancels != 1 {
			t.Fatalf("\t%s\tShould leave the chain alone: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould ignore a block that does not extend the chain.", success)
	}
}

func TestProcessProposedBlockInvalid(t *testing.T) {
	t.Log("Given the need to reject invalid blocks.")
	{
		miner, _ := newState(t, "localhost:9180")
		local, _ := newState(t, "localhost:9080")

		block, err := miner.MineNewBlock(t.Context())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}

		noProof := block
		noProof.Header.Proof = ""
		if err := local.ProcessProposedBlock("", noProof); !errors.Is(err, database.ErrProofMissingOrWrongDifficulty) {
			t.Fatalf("\t%s\tShould reject a block without proof: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block without proof.", success)

		forged := block
		forged.Header.Proof = "forged" + "a"
		if err := local.ProcessProposedBlock("", forged); !errors.Is(err, database.ErrProofHashMismatch) {
			t.Fatalf("\t%s\tShould reject a proof that does not match the header: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a proof that does not match the header.", success)

		if local.QueryChainLength() != 2 {
			t.Fatalf("\t%s\tShould leave the chain alone: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould leave the chain alone.", success)
	}
}

func TestNetSyncWithPeer(t *testing.T) {
	t.Log("Given the need to catch up with a peer that has a longer chain.")
	{
		remote, _ := newState(t, "remote")
		mine(t, remote, 4)

		var hits atomic.Int32
		srv := serveChain(remote, &hits)
		defer srv.Close()

		local, w := newState(t, "localhost:9080")
		mine(t, local, 2)

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); err != nil {
			t.Fatalf("\t%s\tShould be able to sync: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to sync.", success)

		if local.QueryChainLength() != 6 || local.RetrieveLatestBlock().Header.Proof != remote.RetrieveLatestBlock().Header.Proof {
			t.Fatalf("\t%s\tShould adopt the longer chain: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould adopt the longer chain.", success)

		for i := uint64(1); i < 6; i++ {
			if _, err := local.QueryBlockByIndex(i); err != nil {
				t.Fatalf("\t%s\tShould be able to read block %d: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould be able to read every block.", success)

		if w.cancels != 1 {
			t.Fatalf("\t%s\tShould cancel mining: %d", failed, w.cancels)
		}
		t.Logf("\t%s\tShould cancel mining.", success)

		mine(t, local, 1)
		if local.QueryChainLength() != 7 {
			t.Fatalf("\t%s\tShould keep mining on top of the new chain: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould keep mining on top of the new chain.", success)
	}
}

func TestNetSyncWithShorterPeer(t *testing.T) {
	t.Log("Given the need to ignore peers that are not ahead.")
	{
		remote, _ := newState(t, "remote")
		mine(t, remote, 2)

		var hits atomic.Int32
		srv := serveChain(remote, &hits)
		defer srv.Close()

		local, _ := newState(t, "localhost:9080")
		mine(t, local, 2)
		latest := local.RetrieveLatestBlock()

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); err != nil {
			t.Fatalf("\t%s\tShould be able to query the peer: %v", failed, err)
		}

		if local.RetrieveLatestBlock().Header.Proof != latest.Header.Proof {
			t.Fatalf("\t%s\tShould keep the local chain for an equal length.", failed)
		}
		t.Logf("\t%s\tShould keep the local chain for an equal length.", success)
	}
}

func newLimitedState(t *testing.T, host string) (*state.State, *stubWorker) {
	t.Helper()

	st, err := state.New(state.Config{
		OwnerAddress: "owner-" + host,
		Host:         host,
		Genesis:      testGenesis(),
		KnownPeers:   peer.NewPeerSet(),
		PeerTimeout:  500 * time.Millisecond,
		SyncInterval: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	w := stubWorker{}
	st.Worker = &w

	return st, &w
}

func TestNetSyncWithGrowingPeer(t *testing.T) {
	t.Log("Given the need to catch up with a peer that grew since the last sync.")
	{
		remote, _ := newState(t, "remote")

		var hits atomic.Int32
		srv := serveChain(remote, &hits)
		defer srv.Close()

		local, w := newLimitedState(t, "localhost:9080")

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); err != nil {
			t.Fatalf("\t%s\tShould be able to sync with an equal peer: %v", failed, err)
		}
		if local.QueryChainLength() != 2 || w.cancels != 0 {
			t.Fatalf("\t%s\tShould keep the chain and the search for an equal peer: %d %d", failed, local.QueryChainLength(), w.cancels)
		}
		t.Logf("\t%s\tShould keep the chain and the search for an equal peer.", success)

		mine(t, remote, 3)

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); err != nil {
			t.Fatalf("\t%s\tShould be able to sync again: %v", failed, err)
		}
		if hits.Load() != 2 {
			t.Fatalf("\t%s\tShould ask the peer for its length again: %d", failed, hits.Load())
		}
		if local.QueryChainLength() != 5 {
			t.Fatalf("\t%s\tShould adopt the longer chain right away: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould adopt the longer chain right away.", success)
	}
}

func TestNetSyncWithPeerLimited(t *testing.T) {
	t.Log("Given the need to limit periodic syncs with the same peer.")
	{
		remote, _ := newState(t, "remote")
		mine(t, remote, 1)

		var hits atomic.Int32
		srv := serveChain(remote, &hits)
		defer srv.Close()

		local, _ := newLimitedState(t, "localhost:9080")

		down := peer.New("127.0.0.1:1")
		for i := range 2 {
			ran, err := local.NetSyncWithPeerLimited(down)
			if !ran || err == nil {
				t.Fatalf("\t%s\tShould retry a failed sync, attempt %d: %t %v", failed, i, ran, err)
			}
		}
		t.Logf("\t%s\tShould not count failed syncs against the peer.", success)

		ran, err := local.NetSyncWithPeerLimited(peer.New(srv.URL))
		if !ran || err != nil || local.QueryChainLength() != 3 {
			t.Fatalf("\t%s\tShould sync the first time: %t %v %d", failed, ran, err, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould sync the first time.", success)

		ran, err = local.NetSyncWithPeerLimited(peer.New(srv.URL))
		if ran || err != nil || hits.Load() != 1 {
			t.Fatalf("\t%s\tShould skip a peer synced recently: %t %v %d", failed, ran, err, hits.Load())
		}
		t.Logf("\t%s\tShould skip a peer synced recently.", success)
	}
}

func TestNetSyncWithLocalGrowth(t *testing.T) {
	t.Log("Given the need to keep the local chain when it grew during a sync.")
	{
		remote, _ := newState(t, "remote")
		mine(t, remote, 1)

		local, w := newState(t, "localhost:9080")

		var mineFailures atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /gossip/chain/length", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(state.ChainLength{Status: state.StatusOK, Length: remote.QueryChainLength()})
		})
		mux.HandleFunc("GET /gossip/chain/full", func(w http.ResponseWriter, r *http.Request) {

			// The local node mines past the peer before the chain arrives.
			for range 2 {
				if _, err := local.MineNewBlock(context.Background()); err != nil {
					mineFailures.Add(1)
				}
			}

			chain := remote.QueryChain()
			data := make([]database.BlockData, len(chain))
			for i, block := range chain {
				data[i] = database.NewBlockData(block)
			}
			json.NewEncoder(w).Encode(state.FullChain{Status: state.StatusOK, Chain: data})
		})

		srv := httptest.NewServer(mux)
		defer srv.Close()

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); err != nil {
			t.Fatalf("\t%s\tShould be able to sync: %v", failed, err)
		}
		if n := mineFailures.Load(); n != 0 {
			t.Fatalf("\t%s\tShould be able to mine during the sync: %d failures", failed, n)
		}

		if local.QueryChainLength() != 4 {
			t.Fatalf("\t%s\tShould keep the longer local chain: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould keep the longer local chain.", success)

		if w.cancels != 0 {
			t.Fatalf("\t%s\tShould not cancel mining when nothing was replaced: %d", failed, w.cancels)
		}
		t.Logf("\t%s\tShould not cancel mining when nothing was replaced.", success)
	}
}

func TestNetSyncWithInvalidPeer(t *testing.T) {
	t.Log("Given the need to refuse chains with invalid proofs.")
	{
		remote, err := state.New(state.Config{Genesis: testGenesis(), Difficulty: "b"})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		remote.Worker = &stubWorker{}
		mine(t, remote, 3)

		var hits atomic.Int32
		srv := serveChain(remote, &hits)
		defer srv.Close()

		local, _ := newState(t, "localhost:9080")

		if err := local.NetSyncWithPeer(peer.New(srv.URL)); !errors.Is(err, state.ErrInvalidChain) {
			t.Fatalf("\t%s\tShould refuse the chain: %v", failed, err)
		}
		if local.QueryChainLength() != 2 {
			t.Fatalf("\t%s\tShould leave the chain alone: %d", failed, local.QueryChainLength())
		}
		t.Logf("\t%s\tShould refuse the chain and leave the local chain alone.", success)
	}
}

func TestNetSendBlockToPeers(t *testing.T) {
	t.Log("Given the need to propagate blocks to peers.")
	{
		remote, _ := newState(t, "remote")
		mine(t, remote, 3)

		var lengthHits atomic.Int32
		var received atomic.Int32
		var gotPeer atomic.Value

		mux := http.NewServeMux()
		mux.HandleFunc("POST /gossip/new_block", func(w http.ResponseWriter, r *http.Request) {
			received.Add(1)

			var req state.GossipBlock
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				json.NewEncoder(w).Encode(state.GossipResponse{Status: state.StatusRejected})
				return
			}
			gotPeer.Store(req.Peer)

			json.NewEncoder(w).Encode(state.GossipResponse{
				Status:  state.StatusRejected,
				Message: "Block is ignored!",
				Reason:  "The block does not correspond to a current chain!",
			})
		})
		mux.HandleFunc("GET /gossip/chain/length", func(w http.ResponseWriter, r *http.Request) {
			lengthHits.Add(1)
			json.NewEncoder(w).Encode(state.ChainLength{Status: state.StatusOK, Length: remote.QueryChainLength()})
		})
		mux.HandleFunc("GET /gossip/chain/full", func(w http.ResponseWriter, r *http.Request) {
			chain := remote.QueryChain()
			data := make([]database.BlockData, len(chain))
			for i, block := range chain {
				data[i] = database.NewBlockData(block)
			}
			json.NewEncoder(w).Encode(state.FullChain{Status: state.StatusOK, Chain: data})
		})

		srv := httptest.NewServer(mux)
		defer srv.Close()

		local, _ := newState(t, "localhost:9080")
		local.AddKnownPeer(peer.New(srv.URL))
		local.AddKnownPeer(peer.New("127.0.0.1:1"))

		block, err := local.MineNewBlock(t.Context())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}

		local.NetSendBlockToPeers(block, "")

		if received.Load() != 1 || gotPeer.Load() != "localhost:9080" {
			t.Fatalf("\t%s\tShould send the block with this node as the sender: %d %v", failed, received.Load(), gotPeer.Load())
		}
		t.Logf("\t%s\tShould send the block with this node as the sender.", success)

		if lengthHits.Load() != 1 || local.QueryChainLength() != 5 {
			t.Fatalf("\t%s\tShould sync with a peer that rejects the block: %d %d", failed, lengthHits.Load(), local.QueryChainLength())
		}
		t.Logf("\t%s\tShould sync with a peer that rejects the block.", success)

		local.NetSendBlockToPeers(block, srv.URL)
		if received.Load() != 1 {
			t.Fatalf("\t%s\tShould not send the block back to the excluded peer.", failed)
		}
		t.Logf("\t%s\tShould not send the block back to the excluded peer.", success)
	}
}

func TestQueryMerkleProof(t *testing.T) {
	t.Log("Given the need to prove a transaction is part of a block.")
	{
		st, _ := newState(t, "localhost:9080")

		for i := range 4 {
			st.SubmitTransaction(database.NewTransaction("alice", "bob", uint64(i+1)))
		}
		mine(t, st, 1)

		for position := range 5 {
			tx, proof, order, root, err := st.QueryMerkleProof(2, position)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to get the proof for position %d: %v", failed, position, err)
			}

			ok, err := state.VerifyMerkleProof(tx, proof, order, root)
			if err != nil || !ok {
				t.Fatalf("\t%s\tShould verify the proof for position %d: %v", failed, position, err)
			}
		}
		t.Logf("\t%s\tShould verify the proof of every transaction.", success)

		if _, _, _, _, err := st.QueryMerkleProof(9, 0); !errors.Is(err, database.ErrIndexOutOfRange) {
			t.Fatalf("\t%s\tShould fail for a missing block: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail for a missing block.", success)
	}
}
