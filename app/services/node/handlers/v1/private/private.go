// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/ledgerlabs/gossipchain/business/sys/metrics"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/state"
	"github.com/ledgerlabs/gossipchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Health reports the node is up.
func (h Handlers) Health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Status int    `json:"status"`
		Health string `json:"health"`
	}{
		Status: state.StatusOK,
		Health: "ok",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. The outcome is
// carried in the status of the body, the HTTP status is always 200.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into the gossip payload.
	var req state.GossipBlock
	if err := web.Decode(r, &req); err != nil {
		h.Log.Infow("propose block", "traceid", v.TraceID, "ERROR", err)
		metrics.AddBlockRejected("decode")
		return web.Respond(ctx, w, state.GossipResponse{Status: state.StatusRejected}, http.StatusOK)
	}

	// Convert the block data into a block. This action will create a merkle
	// tree for the set of transactions required for blockchain operations.
	block, err := database.ToBlock(req.Block)
	if err != nil {
		h.Log.Infow("propose block", "traceid", v.TraceID, "ERROR", err)
		metrics.AddBlockRejected("decode")
		return web.Respond(ctx, w, state.GossipResponse{Status: state.StatusRejected}, http.StatusOK)
	}

	h.Log.Infow("propose block", "traceid", v.TraceID, "peer", req.Peer, "index", block.Header.Index, "proof", block.Header.Proof)

	// Ask the state package to validate the proposed block. If the block
	// passes validation, it will be added to the blockchain database.
	if err := h.State.ProcessProposedBlock(req.Peer, block); err != nil {
		resp, label := rejection(err)
		h.Log.Infow("propose block", "traceid", v.TraceID, "status", "rejected", "reason", resp.Reason, "ERROR", err)
		metrics.AddBlockRejected(label)
		return web.Respond(ctx, w, resp, http.StatusOK)
	}

	metrics.AddBlockAccepted()

	return web.Respond(ctx, w, state.GossipResponse{Status: state.StatusOK}, http.StatusOK)
}

// ChainLength returns the index the next block of this node will have.
func (h Handlers) ChainLength(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := state.ChainLength{
		Status: state.StatusOK,
		Length: h.State.QueryChainLength(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// FullChain returns every block of the chain ordered from genesis.
func (h Handlers) FullChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.QueryChain()

	chain := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		chain[i] = database.NewBlockData(block)
	}

	resp := state.FullChain{
		Status: state.StatusOK,
		Chain:  chain,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// rejection maps a validation failure to the response peers expect and a
// bounded metric label.
func rejection(err error) (state.GossipResponse, string) {
	switch {
	case errors.Is(err, database.ErrPreviousHashMismatch):
		return state.GossipResponse{
			Status:  state.StatusRejected,
			Message: "Block is ignored!",
			Reason:  "The block does not correspond to a current chain!",
		}, "previous_hash"

	case errors.Is(err, database.ErrProofMissingOrWrongDifficulty):
		return state.GossipResponse{
			Status:  state.StatusRejected,
			Message: "Block is invalid!",
			Reason:  "Proof of work is invalid!",
		}, "proof_difficulty"

	case errors.Is(err, database.ErrProofHashMismatch):
		return state.GossipResponse{
			Status:  state.StatusRejected,
			Message: "Block is invalid!",
			Reason:  "Proof of work doesn't match!",
		}, "proof_hash"

	case errors.Is(err, database.ErrBlockOutOfOrder):
		return state.GossipResponse{
			Status:  state.StatusRejected,
			Message: "Block is ignored!",
			Reason:  "The block index does not follow the current chain!",
		}, "index"
	}

	return state.GossipResponse{
		Status:  state.StatusRejected,
		Message: "Block is invalid!",
		Reason:  err.Error(),
	}, "other"
}
