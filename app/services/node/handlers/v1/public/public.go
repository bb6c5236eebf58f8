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
	"go.uber.org/zap"

	"github.com/pocketcoin/node/business/web/errs"
	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/state"
	"github.com/pocketcoin/node/foundation/events"
	"github.com/pocketcoin/node/foundation/nameservice"
	"github.com/pocketcoin/node/foundation/web"
)

// defaultTransactions is how many transactions an account query returns
// when the caller doesn't ask for a number.
const defaultTransactions = 10

// Handlers manages the set of public node endpoints.
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

// SubmitTransaction hands a signed wallet transaction to the node.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ntx newTx
	if err := web.Decode(r, &ntx); err != nil {
		if errs.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	tx, err := ntx.toTx()
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", tx, "hash", tx.Hash())

	if err := h.State.SubmitTransaction(ctx, tx); err != nil {
		switch {
		case errors.Is(err, state.ErrDuplicateTransaction):
			return errs.NewTrusted(err, http.StatusConflict)
		case errors.Is(err, state.ErrInvalidTransaction):
			return errs.NewTrusted(err, http.StatusBadRequest)
		case errors.Is(err, state.ErrShutdown):
			return errs.NewTrusted(err, http.StatusServiceUnavailable)
		}
		return fmt.Errorf("submit: %w", err)
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}{
		Status: "transaction added to mempool",
		Hash:   tx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the consensus parameters of the node.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.QueryMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Balances returns the confirmed balances for all accounts or for the
// account named in the path.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var bals []database.Balance

	switch account := web.Param(r, "account"); account {
	case "":
		bals = h.State.QueryBalances()

	default:
		accountID, err := h.NS.Resolve(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		bals = []database.Balance{
			{AccountID: accountID, Balance: h.State.QueryBalance(accountID)},
		}
	}

	resp := balances{
		LatestBlock: h.State.QueryLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Balances:    make([]balance, len(bals)),
	}

	for i, bal := range bals {
		resp.Balances[i] = balance{
			Account: bal.AccountID,
			Name:    h.NS.Lookup(bal.AccountID),
			Balance: bal.Balance,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Blocks returns the retained blocks, oldest first.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlocks := h.State.QueryBlocks()

	blocks := make([]block, len(dbBlocks))
	for i, b := range dbBlocks {
		trans := make([]tx, len(b.Trans))
		for j, tran := range b.Trans {
			trans[j] = h.toTx(tran)
		}

		blocks[i] = block{
			Index:        b.Index,
			Hash:         b.Hash(),
			PreviousHash: b.PrevBlockHash,
			TimeStamp:    b.TimeStamp,
			Nonce:        b.Nonce,
			Trans:        trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Transactions returns the latest confirmed transactions involving the
// account, newest first. The optional n query parameter limits the count.
func (h Handlers) Transactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := h.NS.Resolve(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	n := defaultTransactions
	if q := r.URL.Query().Get("n"); q != "" {
		n, err = strconv.Atoi(q)
		if err != nil || n <= 0 {
			return errs.NewTrusted(fmt.Errorf("invalid n %q", q), http.StatusBadRequest)
		}
	}

	dbTrans := h.State.QueryTransactions(accountID, n)

	trans := make([]tx, len(dbTrans))
	for i, tran := range dbTrans {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.Tx) tx {
	rec := database.NewTxRecord(tran)

	t := tx{
		Hash:      tran.Hash(),
		Type:      tran.Type,
		To:        tran.ToID,
		ToName:    h.NS.Lookup(tran.ToID),
		Amount:    tran.Amount,
		Fee:       tran.Fee,
		TimeStamp: tran.TimeStamp,
		Signature: rec.Signature,
	}

	if tran.Type == database.TxStandard {
		t.From = tran.FromID
		t.FromName = h.NS.Lookup(tran.FromID)
	}

	return t
}
