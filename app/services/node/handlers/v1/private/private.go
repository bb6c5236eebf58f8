// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pocketcoin/node/business/web/errs"
	"github.com/pocketcoin/node/foundation/blockchain/state"
	"github.com/pocketcoin/node/foundation/web"
)

// maxPayload caps the size of a ledger or mempool pushed by a peer.
const maxPayload = 32 << 20

// fromHeader names the peer pushing a ledger or mempool.
const fromHeader = "X-Node-Identity"

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Status(), http.StatusOK)
}

// Ledger returns the wire form of the node's ledger.
func (h Handlers) Ledger(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryLedgerRecord(), http.StatusOK)
}

// Mempool returns the wire form of the node's mempool.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryMempoolRecords(), http.StatusOK)
}

// ReceiveLedger accepts a ledger pushed by a peer. It's replayed and
// reconciled in the background the same way as one read from gossip.
func (h Handlers) ReceiveLedger(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, payload, err := readPush(r)
	if err != nil {
		return err
	}

	h.Log.Infow("receive ledger", "traceid", web.GetTraceID(ctx), "from", from, "bytes", len(payload))
	go h.State.ReceiveLedger(from, payload)

	return accepted(ctx, w)
}

// ReceiveMempool accepts a mempool pushed by a peer.
func (h Handlers) ReceiveMempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, payload, err := readPush(r)
	if err != nil {
		return err
	}

	h.Log.Infow("receive mempool", "traceid", web.GetTraceID(ctx), "from", from, "bytes", len(payload))
	go h.State.ReceiveMempool(from, payload)

	return accepted(ctx, w)
}

// =============================================================================

func readPush(r *http.Request) (string, []byte, error) {
	from := r.Header.Get(fromHeader)
	if from == "" {
		from = r.RemoteAddr
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil {
		return "", nil, errs.NewTrusted(fmt.Errorf("reading payload: %w", err), http.StatusBadRequest)
	}

	if len(payload) > maxPayload {
		return "", nil, errs.NewTrusted(fmt.Errorf("payload larger than %d bytes", maxPayload), http.StatusRequestEntityTooLarge)
	}

	return from, payload, nil
}

func accepted(ctx context.Context, w http.ResponseWriter) error {
	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}
