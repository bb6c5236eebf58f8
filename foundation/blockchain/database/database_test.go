package database_test

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/genesis"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const reward = 1000

// =============================================================================

func testGenesis(target *big.Int) genesis.Genesis {
	gen := genesis.Default()
	gen.InitialTarget = fmt.Sprintf("%064x", target)
	gen.MaxChainLength = 10
	gen.RetargetInterval = 5
	gen.InitialReward = reward
	gen.HalvingInterval = 1000
	return gen
}

func newLedger(t *testing.T, gen genesis.Genesis) *database.Ledger {
	l, err := database.New(gen)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a ledger: %s", failed, err)
	}
	return l
}

func newAccount(t *testing.T) (*ecdsa.PrivateKey, database.AccountID) {
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}
	return pk, database.PrivateKeyToAccountID(pk)
}

func signedTx(t *testing.T, pk *ecdsa.PrivateKey, to database.AccountID, amount uint64, fee uint64) database.Tx {
	tx, err := database.NewTx(database.PrivateKeyToAccountID(pk), to, amount, fee)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
	}

	tx, err = tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign a transaction: %s", failed, err)
	}

	return tx
}

// seal builds the next block with the timestamp and transactions and
// searches nonces until the hash is under the ledger's target.
func seal(l *database.Ledger, ts int64, txs ...database.Tx) database.Block {
	b := l.BlockTemplate()
	b.TimeStamp = ts
	b.Trans = append(b.Trans, txs...)

	target := l.Target()
	for database.HashToInt(b.Hash()).Cmp(target) > 0 {
		b.Nonce++
	}

	return b
}

// extend mines n blocks paying the reward to the miner spaced by step
// milliseconds.
func extend(t *testing.T, l *database.Ledger, miner database.AccountID, n int, step int64) {
	for range n {
		tip := l.LatestBlock()
		cb := database.NewCoinbaseTx(miner, l.BlockReward(tip.Index+1))
		b := seal(l, tip.TimeStamp+step, cb)

		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to add block %d: %s", failed, b.Index, err)
		}
	}
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a chain from the genesis.")
	{
		gen := testGenesis(database.MaxTarget)
		l := newLedger(t, gen)

		if l.Length() != 1 || l.LatestBlock().Index != 0 {
			t.Fatalf("\t%s\tShould hold only the genesis block.", failed)
		}
		t.Logf("\t%s\tShould hold only the genesis block.", success)

		if l.LatestBlock().PrevBlockHash != "0" || l.LatestBlock().TimeStamp != gen.TimeStamp {
			t.Fatalf("\t%s\tShould build the genesis block from the genesis file.", failed)
		}
		t.Logf("\t%s\tShould build the genesis block from the genesis file.", success)

		other := newLedger(t, gen)
		if other.LatestBlockHash() != l.LatestBlockHash() {
			t.Fatalf("\t%s\tShould produce the same genesis hash every time.", failed)
		}
		t.Logf("\t%s\tShould produce the same genesis hash every time.", success)
	}
}

func Test_ValidToInsert(t *testing.T) {
	gen := testGenesis(database.MaxTarget)
	_, miner := newAccount(t)

	type table struct {
		name  string
		block func(l *database.Ledger) database.Block
		valid bool
	}

	tt := []table{
		{
			name: "good",
			block: func(l *database.Ledger) database.Block {
				return seal(l, l.LatestBlock().TimeStamp+1000, database.NewCoinbaseTx(miner, reward))
			},
			valid: true,
		},
		{
			name: "empty",
			block: func(l *database.Ledger) database.Block {
				return seal(l, l.LatestBlock().TimeStamp+1000)
			},
			valid: true,
		},
		{
			name: "skipped index",
			block: func(l *database.Ledger) database.Block {
				b := seal(l, l.LatestBlock().TimeStamp+1000)
				b.Index++
				return b
			},
		},
		{
			name: "older than parent",
			block: func(l *database.Ledger) database.Block {
				return seal(l, l.LatestBlock().TimeStamp-1)
			},
		},
		{
			name: "from the future",
			block: func(l *database.Ledger) database.Block {
				return seal(l, time.Now().Add(time.Minute).UnixMilli())
			},
		},
		{
			name: "wrong parent",
			block: func(l *database.Ledger) database.Block {
				b := seal(l, l.LatestBlock().TimeStamp+1000)
				b.PrevBlockHash = signature.Hash("other")
				return b
			},
		},
		{
			name: "coinbase overpays",
			block: func(l *database.Ledger) database.Block {
				return seal(l, l.LatestBlock().TimeStamp+1000, database.NewCoinbaseTx(miner, reward+1))
			},
		},
		{
			name: "two coinbases",
			block: func(l *database.Ledger) database.Block {
				cb := database.NewCoinbaseTx(miner, reward)
				return seal(l, l.LatestBlock().TimeStamp+1000, cb, cb)
			},
		},
	}

	t.Log("Given the need to validate blocks before they extend the chain.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				l := newLedger(t, gen)
				b := tst.block(l)

				if got := l.ValidToInsert(b); got != tst.valid {
					t.Fatalf("\t%s\tTest %d:\tShould get valid=%v, got %v: %v", failed, testID, tst.valid, got, l.Validate(b))
				}
				t.Logf("\t%s\tTest %d:\tShould get valid=%v.", success, testID, tst.valid)

				err := l.AddBlock(b)
				if tst.valid && err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to add the block: %s", failed, testID, err)
				}
				if !tst.valid && !errors.Is(err, database.ErrInvalidBlock) {
					t.Fatalf("\t%s\tTest %d:\tShould get ErrInvalidBlock, got %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould handle AddBlock.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_ProofOfWork(t *testing.T) {
	t.Log("Given the need to reject blocks above the target.")
	{
		gen := testGenesis(new(big.Int).Rsh(database.MaxTarget, 8))
		l := newLedger(t, gen)

		b := l.BlockTemplate()
		b.TimeStamp = l.LatestBlock().TimeStamp + 1000
		for database.HashToInt(b.Hash()).Cmp(l.Target()) <= 0 {
			b.Nonce++
		}

		if l.ValidToInsert(b) {
			t.Fatalf("\t%s\tShould reject a block whose hash is above the target.", failed)
		}
		t.Logf("\t%s\tShould reject a block whose hash is above the target.", success)

		b = seal(l, b.TimeStamp)
		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould accept the block once solved: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept the block once solved.", success)
	}
}

func Test_Transactions(t *testing.T) {
	t.Log("Given the need to account for transfers between accounts.")
	{
		gen := testGenesis(database.MaxTarget)
		l := newLedger(t, gen)

		pkA, accA := newAccount(t)
		_, accB := newAccount(t)
		_, accM := newAccount(t)

		extend(t, l, accA, 1, 1000)
		if bal := l.ConfirmedBalance(accA); bal != reward {
			t.Fatalf("\t%s\tShould credit the coinbase: %d", failed, bal)
		}
		t.Logf("\t%s\tShould credit the coinbase.", success)

		tx := signedTx(t, pkA, accB, 600, 10)
		if !l.IsValidTransaction(tx) {
			t.Fatalf("\t%s\tShould accept an affordable transaction.", failed)
		}
		t.Logf("\t%s\tShould accept an affordable transaction.", success)

		over := signedTx(t, pkA, accB, 995, 10)
		if l.IsValidTransaction(over) {
			t.Fatalf("\t%s\tShould reject an overdraft.", failed)
		}
		t.Logf("\t%s\tShould reject an overdraft.", success)

		cb := database.NewCoinbaseTx(accM, reward+tx.Fee)
		b := seal(l, l.LatestBlock().TimeStamp+1000, tx, cb)
		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould be able to add the block: %s", failed, err)
		}

		exp := map[database.AccountID]int64{
			accA: reward - 610,
			accB: 600,
			accM: reward + 10,
		}
		for acc, bal := range exp {
			if got := l.ConfirmedBalance(acc); got != bal {
				t.Fatalf("\t%s\tShould have balance %d for %s, got %d", failed, bal, acc, got)
			}
		}
		t.Logf("\t%s\tShould move funds and pay the fee to the miner.", success)

		if !l.HasTransactionHash(tx.Hash()) || l.IsValidTransaction(tx) {
			t.Fatalf("\t%s\tShould not accept a confirmed transaction again.", failed)
		}
		t.Logf("\t%s\tShould not accept a confirmed transaction again.", success)

		replay := seal(l, l.LatestBlock().TimeStamp+1000, tx)
		if l.ValidToInsert(replay) {
			t.Fatalf("\t%s\tShould reject a block replaying a confirmed transaction.", failed)
		}
		t.Logf("\t%s\tShould reject a block replaying a confirmed transaction.", success)

		latest := l.LatestTransactions(accA, 5)
		if len(latest) != 2 || latest[0].Hash() != tx.Hash() || latest[1].Type != database.TxCoinbase {
			t.Fatalf("\t%s\tShould list the latest transactions newest first: %v", failed, latest)
		}
		t.Logf("\t%s\tShould list the latest transactions newest first.", success)
	}
}

func Test_InBlockBalances(t *testing.T) {
	t.Log("Given the need to spend funds in order within a block.")
	{
		gen := testGenesis(database.MaxTarget)

		pkA, accA := newAccount(t)
		pkB, accB := newAccount(t)
		_, accC := newAccount(t)

		l := newLedger(t, gen)
		extend(t, l, accA, 1, 1000)

		tx1 := signedTx(t, pkA, accC, 600, 0)
		tx2 := signedTx(t, pkA, accC, 600, 0)

		b := seal(l, l.LatestBlock().TimeStamp+1000, tx1, tx2)
		if l.ValidToInsert(b) {
			t.Fatalf("\t%s\tShould reject transactions that overdraw together.", failed)
		}
		t.Logf("\t%s\tShould reject transactions that overdraw together.", success)

		pay := signedTx(t, pkA, accB, 500, 0)
		spend := signedTx(t, pkB, accC, 400, 0)

		b = seal(l, l.LatestBlock().TimeStamp+1000, spend, pay)
		err := l.Validate(b)
		if err == nil {
			t.Fatalf("\t%s\tShould reject spending funds received later in the block.", failed)
		}
		if !strings.Contains(err.Error(), "insufficient funds") {
			t.Fatalf("\t%s\tShould reject spending funds received later in the block for lack of funds: %s", failed, err)
		}
		t.Logf("\t%s\tShould reject spending funds received later in the block.", success)

		b = seal(l, l.LatestBlock().TimeStamp+1000, pay, spend)
		if err := l.AddBlock(b); err != nil {
			t.Fatalf("\t%s\tShould spend funds received earlier in the block: %s", failed, err)
		}
		t.Logf("\t%s\tShould spend funds received earlier in the block.", success)

		dup := signedTx(t, pkA, accC, 10, 0)
		b = seal(l, l.LatestBlock().TimeStamp+1000, dup, dup)
		if l.ValidToInsert(b) {
			t.Fatalf("\t%s\tShould reject a transaction repeated in the block.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction repeated in the block.", success)
	}
}

func Test_Retarget(t *testing.T) {
	start := new(big.Int).Lsh(big.NewInt(1), 255)

	type table struct {
		name string
		step int64
		exp  *big.Int
	}

	tt := []table{
		{"slow blocks clamp up", 120_000, new(big.Int).Lsh(big.NewInt(5), 253)},
		{"fast blocks clamp down", 1, new(big.Int).Lsh(big.NewInt(3), 253)},
		{"on schedule", 75_000, new(big.Int).Set(start)},
	}

	t.Log("Given the need to adjust the target every retarget interval.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				gen := testGenesis(start)
				l := newLedger(t, gen)
				_, miner := newAccount(t)

				extend(t, l, miner, 4, tst.step)
				if l.Target().Cmp(start) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould keep the target before the boundary.", failed, testID)
				}

				extend(t, l, miner, 1, tst.step)
				if l.Target().Cmp(tst.exp) != 0 {
					t.Logf("\t%s\tTest %d:\tgot: %x", failed, testID, l.Target())
					t.Logf("\t%s\tTest %d:\texp: %x", failed, testID, tst.exp)
					t.Fatalf("\t%s\tTest %d:\tShould retarget at the boundary.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould retarget at the boundary.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_RetargetBounds(t *testing.T) {
	t.Log("Given the need to bound every target change.")
	{
		current := new(big.Int).Lsh(big.NewInt(7), 200)
		for _, actual := range []int64{-5, 0, 1, 1000, 300_000, 10_000_000} {
			next := database.Retarget(current, actual, 300_000, 0.25)

			diff := new(big.Int).Sub(next, current)
			diff.Abs(diff)

			limit := new(big.Int).Quo(current, big.NewInt(4))
			if diff.Cmp(limit) > 0 {
				t.Fatalf("\t%s\tShould move at most a quarter for %d ms, moved %x", failed, actual, diff)
			}
		}
		t.Logf("\t%s\tShould move at most a quarter.", success)

		next := database.Retarget(database.MaxTarget, 10_000_000, 300_000, 0.25)
		if next.Cmp(database.MaxTarget) != 0 {
			t.Fatalf("\t%s\tShould never exceed the maximum hash value.", failed)
		}
		t.Logf("\t%s\tShould never exceed the maximum hash value.", success)
	}
}

func Test_Prune(t *testing.T) {
	t.Log("Given the need to bound the retained chain.")
	{
		gen := testGenesis(database.MaxTarget)
		l := newLedger(t, gen)

		pkA, accA := newAccount(t)
		_, accB := newAccount(t)

		extend(t, l, accA, 2, 1000)

		tx := signedTx(t, pkA, accB, 300, 0)
		if err := l.AddBlock(seal(l, l.LatestBlock().TimeStamp+1000, tx)); err != nil {
			t.Fatalf("\t%s\tShould be able to add the transfer: %s", failed, err)
		}

		extend(t, l, accA, 10, 1000)

		blocks := l.Blocks()
		if len(blocks) != gen.MaxChainLength {
			t.Fatalf("\t%s\tShould retain %d blocks, got %d", failed, gen.MaxChainLength, len(blocks))
		}
		t.Logf("\t%s\tShould retain %d blocks.", success, gen.MaxChainLength)

		snap := l.Snapshot()
		if blocks[0].Index != snap.Height+1 || blocks[0].PrevBlockHash != snap.LastBlockHash {
			t.Fatalf("\t%s\tShould link the front block to the snapshot.", failed)
		}
		t.Logf("\t%s\tShould link the front block to the snapshot.", success)

		if l.Length() != 14 {
			t.Fatalf("\t%s\tShould count pruned blocks in the length, got %d", failed, l.Length())
		}
		t.Logf("\t%s\tShould count pruned blocks in the length.", success)

		if snap.Balances[accA] != 2*reward-300 || snap.Balances[accB] != 300 {
			t.Fatalf("\t%s\tShould fold pruned transactions into the snapshot: %v", failed, snap.Balances)
		}
		t.Logf("\t%s\tShould fold pruned transactions into the snapshot.", success)

		if l.ConfirmedBalance(accA) != 12*reward-300 || l.ConfirmedBalance(accB) != 300 {
			t.Fatalf("\t%s\tShould keep confirmed balances across pruning.", failed)
		}
		t.Logf("\t%s\tShould keep confirmed balances across pruning.", success)

		if l.HasTransactionHash(tx.Hash()) {
			t.Fatalf("\t%s\tShould forget pruned transaction hashes.", failed)
		}
		t.Logf("\t%s\tShould forget pruned transaction hashes.", success)
	}
}

func Test_ValidateFullChain(t *testing.T) {
	t.Log("Given the need to verify a chain received from a peer.")
	{
		gen := testGenesis(database.MaxTarget)
		_, miner := newAccount(t)

		for _, n := range []int{3, 25} {
			l := newLedger(t, gen)
			extend(t, l, miner, n, 1)

			data, err := l.Encode()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to encode the ledger: %s", failed, err)
			}

			ls, err := database.DecodeLedger(data)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to decode the ledger: %s", failed, err)
			}

			replayed, err := database.ValidateFullChain(gen, ls)
			if err != nil {
				t.Fatalf("\t%s\tShould replay a chain of %d blocks: %s", failed, n, err)
			}

			if replayed.LatestBlockHash() != l.LatestBlockHash() || replayed.Target().Cmp(l.Target()) != 0 {
				t.Fatalf("\t%s\tShould reach the same tip and target for %d blocks.", failed, n)
			}

			if replayed.ConfirmedBalance(miner) != l.ConfirmedBalance(miner) {
				t.Fatalf("\t%s\tShould reach the same balances for %d blocks.", failed, n)
			}
			t.Logf("\t%s\tShould replay a chain of %d blocks.", success, n)
		}

		l := newLedger(t, gen)
		extend(t, l, miner, 3, 1000)

		ls := l.State()
		ls.Blocks[2].Trans[0].Amount++
		if _, err := database.ValidateFullChain(gen, ls); err == nil {
			t.Fatalf("\t%s\tShould reject a tampered chain.", failed)
		}
		t.Logf("\t%s\tShould reject a tampered chain.", success)

		other := gen
		other.TimeStamp++
		if _, err := database.ValidateFullChain(other, l.State()); err == nil {
			t.Fatalf("\t%s\tShould reject a chain from another genesis.", failed)
		}
		t.Logf("\t%s\tShould reject a chain from another genesis.", success)
	}
}

func Test_TotalWork(t *testing.T) {
	t.Log("Given the need to choose the chain with the most work.")
	{
		_, miner := newAccount(t)

		long := newLedger(t, testGenesis(database.MaxTarget))
		extend(t, long, miner, 5, 1000)

		heavy := newLedger(t, testGenesis(new(big.Int).Rsh(database.MaxTarget, 16)))
		extend(t, heavy, miner, 3, 1000)

		if heavy.TotalWork().Cmp(long.TotalWork()) <= 0 {
			t.Fatalf("\t%s\tShould favor fewer harder blocks over more easy blocks.", failed)
		}
		t.Logf("\t%s\tShould favor fewer harder blocks over more easy blocks.", success)
	}
}
