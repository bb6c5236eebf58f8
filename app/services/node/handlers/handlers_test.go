package handlers_test

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pocketcoin/node/app/services/node/handlers"
	"github.com/pocketcoin/node/business/web/errs"
	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/gossip/memory"
	"github.com/pocketcoin/node/foundation/blockchain/peer"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
	"github.com/pocketcoin/node/foundation/blockchain/state"
	strgmem "github.com/pocketcoin/node/foundation/blockchain/storage/memory"
	"github.com/pocketcoin/node/foundation/events"
	"github.com/pocketcoin/node/foundation/nameservice"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const reward = 1000

type testNode struct {
	public  http.Handler
	private http.Handler
	state   *state.State
}

// newTestNode starts a node that doesn't mine, holding a ledger where the
// account named "kennedy" mined the first two blocks.
func newTestNode(t *testing.T) (*testNode, *signatureKey) {
	gen := genesis.Default()
	gen.InitialTarget = fmt.Sprintf("%064x", database.MaxTarget)
	gen.MaxChainLength = 10
	gen.RetargetInterval = 5
	gen.InitialReward = reward

	dir := t.TempDir()
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}
	if err := signature.SaveKey(filepath.Join(dir, "kennedy"+nameservice.KeyExtension), pk); err != nil {
		t.Fatalf("\t%s\tShould be able to save a key: %s", failed, err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the name service: %s", failed, err)
	}

	accountID := database.PrivateKeyToAccountID(pk)

	l, err := database.New(gen)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a ledger: %s", failed, err)
	}
	for range 2 {
		b := l.BlockTemplate()
		b.TimeStamp = l.LatestBlock().TimeStamp + 1000
		b.Trans = append(b.Trans, database.NewCoinbaseTx(accountID, l.BlockReward(b.Index)))
		for database.HashToInt(b.Hash()).Cmp(l.Target()) > 0 {
			b.Nonce++
		}
		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to add block %d: %s", failed, b.Index, err)
		}
	}

	strg := strgmem.New()
	if err := strg.Save(l.State()); err != nil {
		t.Fatalf("\t%s\tShould be able to save the ledger: %s", failed, err)
	}

	st, err := state.New(state.Config{
		Identity:      "node-a",
		Beneficiary:   accountID,
		Genesis:       gen,
		Storage:       strg,
		Directory:     memory.New(),
		KnownPeers:    peer.NewPeerSet(),
		DisableMining: true,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the node: %s", failed, err)
	}
	st.Run()
	t.Cleanup(func() { st.Shutdown() })

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		State:    st,
		NS:       ns,
		Evts:     events.New(),
		Origins:  []string{"*"},
	}

	tn := testNode{
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		state:   st,
	}

	return &tn, &signatureKey{pk: pk, accountID: accountID}
}

type signatureKey struct {
	pk        *ecdsa.PrivateKey
	accountID database.AccountID
}

func do(t *testing.T, h http.Handler, method string, path string, body []byte) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// =============================================================================

func Test_Public(t *testing.T) {
	t.Log("Given the need to serve wallets on the public API.")
	{
		tn, key := newTestNode(t)

		w := do(t, tn.public, http.MethodGet, "/v1/genesis", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould serve the genesis parameters: %d", failed, w.Code)
		}
		var gen genesis.Genesis
		if err := json.Unmarshal(w.Body.Bytes(), &gen); err != nil || gen.InitialReward != reward {
			t.Fatalf("\t%s\tShould serve the genesis parameters: %v", failed, err)
		}
		t.Logf("\t%s\tShould serve the genesis parameters.", success)

		w = do(t, tn.public, http.MethodGet, "/v1/balances/kennedy", nil)
		var bals struct {
			Balances []struct {
				Account string `json:"account"`
				Name    string `json:"name"`
				Balance int64  `json:"balance"`
			} `json:"balances"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &bals); err != nil {
			t.Fatalf("\t%s\tShould decode the balances: %s", failed, err)
		}
		if len(bals.Balances) != 1 || bals.Balances[0].Balance != 2*reward || bals.Balances[0].Account != string(key.accountID) {
			t.Fatalf("\t%s\tShould resolve the name and report the balance: %s", failed, w.Body.String())
		}
		t.Logf("\t%s\tShould resolve the name and report the balance.", success)

		w = do(t, tn.public, http.MethodGet, "/v1/blocks/list", nil)
		var blocks []json.RawMessage
		if err := json.Unmarshal(w.Body.Bytes(), &blocks); err != nil || len(blocks) != 3 {
			t.Fatalf("\t%s\tShould list the genesis and mined blocks: %s", failed, w.Body.String())
		}
		t.Logf("\t%s\tShould list the genesis and mined blocks.", success)

		w = do(t, tn.public, http.MethodGet, "/v1/transactions/kennedy?n=abc", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("\t%s\tShould refuse a bad transaction count: %d", failed, w.Code)
		}
		t.Logf("\t%s\tShould refuse a bad transaction count.", success)
	}
}

func Test_SubmitTransaction(t *testing.T) {
	t.Log("Given the need to accept signed transactions from wallets.")
	{
		tn, key := newTestNode(t)

		pk, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
		}
		to := database.PrivateKeyToAccountID(pk)

		tx, err := database.NewTx(key.accountID, to, 300, 5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build a transaction: %s", failed, err)
		}
		tx, err = tx.Sign(key.pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign a transaction: %s", failed, err)
		}

		good, _ := json.Marshal(database.NewTxRecord(tx))

		unsigned := database.NewTxRecord(tx)
		unsigned.Signature = nil
		missing, _ := json.Marshal(unsigned)

		forged := database.NewTxRecord(tx)
		forged.Amount = 900
		bad, _ := json.Marshal(forged)

		tt := []struct {
			name   string
			body   []byte
			status int
		}{
			{name: "valid", body: good, status: http.StatusOK},
			{name: "duplicate", body: good, status: http.StatusConflict},
			{name: "unsigned", body: missing, status: http.StatusBadRequest},
			{name: "forged", body: bad, status: http.StatusBadRequest},
			{name: "garbage", body: []byte(`{"from":`), status: http.StatusBadRequest},
		}

		for _, tst := range tt {
			f := func(t *testing.T) {
				w := do(t, tn.public, http.MethodPost, "/v1/tx/submit", tst.body)
				if w.Code != tst.status {
					t.Fatalf("\t%s\tShould receive %d: got %d: %s", failed, tst.status, w.Code, w.Body.String())
				}
				t.Logf("\t%s\tShould receive %d.", success, tst.status)

				if w.Code != http.StatusOK {
					var er errs.Response
					if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Error == "" {
						t.Fatalf("\t%s\tShould explain the refusal: %s", failed, w.Body.String())
					}
					t.Logf("\t%s\tShould explain the refusal.", success)
				}
			}
			t.Run(tst.name, f)
		}

		w := do(t, tn.public, http.MethodGet, "/v1/tx/uncommitted/list", nil)
		var pending []struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil || len(pending) != 1 || pending[0].Hash != tx.Hash() {
			t.Fatalf("\t%s\tShould list the accepted transaction as uncommitted: %s", failed, w.Body.String())
		}
		t.Logf("\t%s\tShould list the accepted transaction as uncommitted.", success)
	}
}

func Test_Private(t *testing.T) {
	t.Log("Given the need to serve other nodes on the private API.")
	{
		tn, _ := newTestNode(t)

		w := do(t, tn.private, http.MethodGet, "/v1/node/status", nil)
		var status peer.Status
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("\t%s\tShould decode the status: %s", failed, err)
		}
		if status.Identity != "node-a" || status.Length != 3 {
			t.Fatalf("\t%s\tShould report the node's identity and length: %+v", failed, status)
		}
		t.Logf("\t%s\tShould report the node's identity and length.", success)

		w = do(t, tn.private, http.MethodGet, "/v1/node/ledger", nil)
		ls, err := database.DecodeLedger(w.Body.Bytes())
		if err != nil {
			t.Fatalf("\t%s\tShould serve a ledger record: %s", failed, err)
		}
		if _, err := database.ValidateFullChain(tn.state.Genesis(), ls); err != nil {
			t.Fatalf("\t%s\tShould serve a ledger that replays: %s", failed, err)
		}
		t.Logf("\t%s\tShould serve a ledger that replays.", success)

		w = do(t, tn.private, http.MethodPost, "/v1/node/mempool", []byte(`not json`))
		if w.Code != http.StatusAccepted {
			t.Fatalf("\t%s\tShould accept a pushed mempool for processing: %d", failed, w.Code)
		}
		t.Logf("\t%s\tShould accept a pushed mempool for processing.", success)

		time.Sleep(100 * time.Millisecond)
		if tn.state.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould drop a mempool that doesn't decode.", failed)
		}
		t.Logf("\t%s\tShould drop a mempool that doesn't decode.", success)
	}
}
