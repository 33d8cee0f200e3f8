package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/peer"
)

// Set of errors returned when talking to peers.
var (
	ErrPeerUnreachable = errors.New("peer is unreachable")
	ErrPeerProtocol    = errors.New("peer response does not follow the protocol")
	ErrInvalidChain    = errors.New("peer chain has a block with an invalid proof")
)

// StatusOK and StatusRejected are the status values carried in the body of
// every gossip response.
const (
	StatusOK       = http.StatusOK
	StatusRejected = http.StatusBadRequest
)

// GossipBlock is the payload sent to peers when a block is propagated.
type GossipBlock struct {
	Peer  string             `json:"peer"`
	Block database.BlockData `json:"block"`
}

// GossipResponse is the answer to a propagated block.
type GossipResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ChainLength is the answer to a chain length query.
type ChainLength struct {
	Status int    `json:"status"`
	Length uint64 `json:"length"`
}

// FullChain is the answer to a full chain query.
type FullChain struct {
	Status int                  `json:"status"`
	Chain  []database.BlockData `json:"chain"`
}

// =============================================================================

// NetSendBlockToPeers sends the block to all known peers except the excluded
// host. Every peer is tried independently. A peer that does not accept the
// block is asked for its chain since it may be ahead of this node.
func (s *State) NetSendBlockToPeers(block database.Block, exclude string) {
	s.evHandler("state: NetSendBlockToPeers: started: blk[%d]", block.Header.Index)
	defer s.evHandler("state: NetSendBlockToPeers: completed: blk[%d]", block.Header.Index)

	payload := GossipBlock{
		Peer:  s.host,
		Block: database.NewBlockData(block),
	}

	for _, pr := range s.knownPeers.Copy(s.host, exclude) {
		var resp GossipResponse
		if err := s.send(http.MethodPost, pr.URL()+"/gossip/new_block", payload, &resp); err != nil {
			s.evHandler("state: NetSendBlockToPeers: %s: WARNING: %s", pr.Host, err)
			continue
		}

		if resp.Status != StatusOK {
			s.evHandler("state: NetSendBlockToPeers: %s: not accepted: status[%d]: %s: %s", pr.Host, resp.Status, resp.Message, resp.Reason)
			if err := s.NetSyncWithPeer(pr); err != nil {
				s.evHandler("state: NetSendBlockToPeers: %s: sync: WARNING: %s", pr.Host, err)
			}
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}
}

// NetSyncWithPeer replaces the local chain with the chain of the peer when
// the peer chain is strictly longer. The first block of the peer chain is
// taken as its genesis. Every other block must carry a proof ending with the
// local difficulty. Nothing changes locally when any step fails.
func (s *State) NetSyncWithPeer(pr peer.Peer) error {
	s.evHandler("state: NetSyncWithPeer: started: %s", pr.Host)
	defer s.evHandler("state: NetSyncWithPeer: completed: %s", pr.Host)

	length, err := s.NetRequestChainLength(pr)
	if err != nil {
		return err
	}

	if local := s.db.Length(); length <= local {
		s.evHandler("state: NetSyncWithPeer: %s: not longer: length[%d]: local[%d]", pr.Host, length, local)
		return nil
	}

	blocks, err := s.NetRequestChain(pr)
	if err != nil {
		return err
	}

	// TODO: Compare the peer genesis with the local genesis once every node
	// loads the same genesis file.
	for _, block := range blocks[1:] {
		if !database.IsProofSolved(s.difficulty, block.Header.Proof) {
			return fmt.Errorf("%w: blk[%d]: proof[%s]", ErrInvalidChain, block.Header.Index, block.Header.Proof)
		}
	}

	replaced, err := s.replaceChain(blocks)
	if err != nil {
		return err
	}

	// Whatever is being mined no longer extends the chain.
	if replaced && s.Worker != nil {
		s.Worker.SignalCancelMining()
	}

	return nil
}

// NetSyncWithPeerLimited runs NetSyncWithPeer unless the last successful
// limited sync with the peer happened less than SyncInterval ago. It reports
// if the sync ran. Failed syncs do not count against the peer.
func (s *State) NetSyncWithPeerLimited(pr peer.Peer) (bool, error) {
	if !s.syncLimits.due(pr.Host) {
		s.evHandler("state: NetSyncWithPeerLimited: %s: skipped: synced recently", pr.Host)
		return false, nil
	}

	if err := s.NetSyncWithPeer(pr); err != nil {
		return true, err
	}

	s.syncLimits.spend(pr.Host)

	return true, nil
}

// replaceChain installs the blocks when they still form a longer chain than
// the local one. It reports if the chain was replaced.
func (s *State) replaceChain(blocks []database.Block) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := blocks[len(blocks)-1]
	if local := s.db.Length(); latest.Header.Index+1 <= local {
		s.evHandler("state: replaceChain: not longer: length[%d]: local[%d]", latest.Header.Index+1, local)
		return false, nil
	}

	if err := s.db.ReplaceWith(blocks); err != nil {
		return false, err
	}

	s.evHandler("state: replaceChain: replaced: latest blk[%d]: proof[%s]", latest.Header.Index, latest.Header.Proof)

	s.blockEvent(latest)

	return true, nil
}

// NetRequestChainLength asks the peer for the index its next block will have.
func (s *State) NetRequestChainLength(pr peer.Peer) (uint64, error) {
	var resp ChainLength
	if err := s.send(http.MethodGet, pr.URL()+"/gossip/chain/length", nil, &resp); err != nil {
		return 0, err
	}

	if resp.Status != StatusOK {
		return 0, fmt.Errorf("%w: %s: status[%d]", ErrPeerProtocol, pr.Host, resp.Status)
	}

	return resp.Length, nil
}

// NetRequestChain asks the peer for its full chain ordered from genesis.
func (s *State) NetRequestChain(pr peer.Peer) ([]database.Block, error) {
	var resp FullChain
	if err := s.send(http.MethodGet, pr.URL()+"/gossip/chain/full", nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status != StatusOK {
		return nil, fmt.Errorf("%w: %s: status[%d]", ErrPeerProtocol, pr.Host, resp.Status)
	}

	if len(resp.Chain) == 0 {
		return nil, fmt.Errorf("%w: %s: empty chain", ErrPeerProtocol, pr.Host)
	}

	blocks := make([]database.Block, len(resp.Chain))
	for i, blockData := range resp.Chain {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: blk[%d]: %w", ErrPeerProtocol, pr.Host, blockData.Header.Index, err)
		}
		blocks[i] = block
	}

	s.evHandler("state: NetRequestChain: %s: found blocks[%d]", pr.Host, len(blocks))

	return blocks, nil
}

// =============================================================================

// send is a helper function to send an HTTP request to a node. Transport
// failures are retried with an exponential backoff for at most the peer
// timeout.
func (s *State) send(method string, url string, dataSend any, dataRecv any) error {
	var data []byte
	if dataSend != nil {
		var err error
		if data, err = json.Marshal(dataSend); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.peerTimeout)
	defer cancel()

	bk := backoff.WithContext(newExponentialBackoff(s.peerTimeout), ctx)
	resp, err := backoff.RetryWithData(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		return resp, nil
	}, bk)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("%w: %s: status %d: %s", ErrPeerProtocol, url, resp.StatusCode, msg)
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPeerProtocol, url, err)
		}
	}

	return nil
}

func newExponentialBackoff(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(time.Millisecond*100),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
