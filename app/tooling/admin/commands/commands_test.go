package commands_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pocketcoin/node/app/tooling/admin/commands"
	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
	"github.com/pocketcoin/node/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Commands(t *testing.T) {
	t.Log("Given the need to report on a saved ledger.")
	{
		gen := genesis.Default()
		gen.InitialTarget = fmt.Sprintf("%064x", database.MaxTarget)
		gen.MaxChainLength = 10
		gen.RetargetInterval = 5
		gen.InitialReward = 1000

		pk, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
		}
		accountID := database.PrivateKeyToAccountID(pk)

		l, err := database.New(gen)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a ledger: %s", failed, err)
		}

		b := l.BlockTemplate()
		b.TimeStamp = l.LatestBlock().TimeStamp + 1000
		b.Trans = append(b.Trans, database.NewCoinbaseTx(accountID, l.BlockReward(b.Index)))
		for database.HashToInt(b.Hash()).Cmp(l.Target()) > 0 {
			b.Nonce++
		}
		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to add a block: %s", failed, err)
		}

		strg := memory.New()
		if err := strg.Save(l.State()); err != nil {
			t.Fatalf("\t%s\tShould be able to save the ledger: %s", failed, err)
		}

		var out bytes.Buffer
		if err := commands.Balances(&out, string(accountID), gen, strg); err != nil {
			t.Fatalf("\t%s\tShould be able to show a balance: %s", failed, err)
		}
		if !strings.Contains(out.String(), "Balance: 1000") {
			t.Fatalf("\t%s\tShould show the mined reward: %s", failed, out.String())
		}
		t.Logf("\t%s\tShould show the mined reward.", success)

		out.Reset()
		if err := commands.Transactions(&out, string(accountID), gen, strg); err != nil {
			t.Fatalf("\t%s\tShould be able to list transactions: %s", failed, err)
		}
		if strings.Count(out.String(), "Hash:") != 1 {
			t.Fatalf("\t%s\tShould list the coinbase: %s", failed, out.String())
		}
		t.Logf("\t%s\tShould list the coinbase.", success)

		out.Reset()
		if err := commands.Chain(&out, gen, strg); err != nil {
			t.Fatalf("\t%s\tShould be able to summarize the chain: %s", failed, err)
		}
		if strings.Count(out.String(), "Block:") != 2 {
			t.Fatalf("\t%s\tShould summarize the genesis and mined block: %s", failed, out.String())
		}
		t.Logf("\t%s\tShould summarize the genesis and mined block.", success)

		if err := commands.Transactions(&out, "", gen, strg); err == nil {
			t.Fatalf("\t%s\tShould require an account for transactions.", failed)
		}
		t.Logf("\t%s\tShould require an account for transactions.", success)
	}
}
