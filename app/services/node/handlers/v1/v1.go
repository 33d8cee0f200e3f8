// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ledgerlabs/gossipchain/app/services/node/handlers/v1/private"
	"github.com/ledgerlabs/gossipchain/app/services/node/handlers/v1/public"
	"github.com/ledgerlabs/gossipchain/foundation/blockchain/state"
	"github.com/ledgerlabs/gossipchain/foundation/events"
	"github.com/ledgerlabs/gossipchain/foundation/nameservice"
	"github.com/ledgerlabs/gossipchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/peers/list", pbl.Peers)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/:index", pbl.BlockByIndex)
	app.Handle(http.MethodGet, version, "/blocks/:index/proof/:position", pbl.MerkleProof)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
}

// PrivateRoutes binds all the node to node routes. These routes carry no
// version prefix.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, "", "/api/health", prv.Health)
	app.Handle(http.MethodPost, "", "/gossip/new_block", prv.ProposeBlock)
	app.Handle(http.MethodGet, "", "/gossip/chain/length", prv.ChainLength)
	app.Handle(http.MethodGet, "", "/gossip/chain/full", prv.FullChain)
}
