// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ledgerlabs/gossipchain/business/sys/validate"
	"github.com/ledgerlabs/gossipchain/business/web/errs"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/database"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/state"
	"github.com/ledgerlabs/gossipchain/foundation/events"
	"github.com/ledgerlabs/gossipchain/foundation/nameservice"
	"github.com/ledgerlabs/gossipchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of client endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// The upgrade took over the connection.
	web.SetStatusCode(ctx, http.StatusSwitchingProtocols)

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submitTx
	if err := web.Decode(r, &req); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tran := database.NewTransaction(req.Sender, req.Recipient, database.FloatToCoin(req.Amount))
	if tran.Amount == 0 {
		return errs.NewTrusted(errors.New("amount is below the smallest unit"), http.StatusBadRequest)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "sender", tran.Sender, "recipient", tran.Recipient, "amount", tran.Amount)

	n := h.State.SubmitTransaction(tran)

	resp := struct {
		Status  string `json:"status"`
		Mempool int    `json:"mempool"`
	}{
		Status:  "transaction added to mempool",
		Mempool: n,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Peers returns the peers known to this node.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	peers := h.State.RetrieveKnownPeers()

	hosts := make([]string, len(peers))
	for i, pr := range peers {
		hosts[i] = pr.Host
	}

	return web.Respond(ctx, w, hosts, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = tx{
			Sender:        tran.Sender,
			SenderName:    h.NS.Lookup(tran.Sender),
			Recipient:     tran.Recipient,
			RecipientName: h.NS.Lookup(tran.Recipient),
			Amount:        tran.Amount,
			Coins:         float64(tran.Amount) / database.OneCoin,
		}
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Blocks returns every block of the chain ordered from genesis.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.QueryChain()

	data := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		data[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, data, http.StatusOK)
}

// BlockByIndex returns the block with the specified index.
func (h Handlers) BlockByIndex(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block index: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.QueryBlockByIndex(index)
	if err != nil {
		return blockError(err)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// MerkleProof returns the proof the transaction at the specified position
// is part of the block with the specified index.
func (h Handlers) MerkleProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block index: %w", err), http.StatusBadRequest)
	}

	position, err := strconv.Atoi(web.Param(r, "position"))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid position: %w", err), http.StatusBadRequest)
	}

	tran, proof, order, root, err := h.State.QueryMerkleProof(index, position)
	if err != nil {
		return blockError(err)
	}

	verified, err := state.VerifyMerkleProof(tran, proof, order, root)
	if err != nil {
		return err
	}

	resp := merkleProof{
		Index:       index,
		Position:    position,
		Transaction: tran,
		MerkleRoot:  root,
		Proof:       proof,
		Order:       order,
		Verified:    verified,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// blockError maps chain lookup failures to client errors.
func blockError(err error) error {
	switch {
	case errors.Is(err, database.ErrEmptyChain):
		return errs.NewTrusted(err, http.StatusNotFound)
	case errors.Is(err, database.ErrIndexOutOfRange):
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return errs.NewTrusted(err, http.StatusBadRequest)
}
