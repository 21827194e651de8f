// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/arthachain/ledger/app/services/node/handlers/v1/nodegrp"
	"github.com/arthachain/ledger/foundation/blockchain/state"
	"github.com/arthachain/ledger/foundation/events"
	"github.com/arthachain/ledger/foundation/nameservice"
	"github.com/arthachain/ledger/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Net   nodegrp.Network
	NS    *nameservice.NameService
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	ngh := nodegrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Net:   cfg.Net,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", ngh.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", ngh.Genesis)
	app.Handle(http.MethodGet, version, "/status", ngh.Status)
	app.Handle(http.MethodGet, version, "/accounts/list", ngh.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/balance/:address", ngh.Balance)
	app.Handle(http.MethodGet, version, "/blocks/list", ngh.Blocks)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", ngh.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", ngh.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/peers/list", ngh.Peers)
	app.Handle(http.MethodPost, version, "/sync", ngh.Sync)
	app.Handle(http.MethodPost, version, "/mining/signal", ngh.SignalMining)
}
