package state

import (
	"github.com/pocketcoin/node/foundation/blockchain/database"
	"github.com/pocketcoin/node/foundation/blockchain/peer"
)

// QueryBalance returns the confirmed balance of the account.
func (s *State) QueryBalance(accountID database.AccountID) int64 {
	return s.View().Ledger.ConfirmedBalance(accountID)
}

// QueryBalances returns the confirmed balance of every account holding
// funds.
func (s *State) QueryBalances() []database.Balance {
	return s.View().Ledger.Balances()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return len(s.View().Mempool)
}

// QueryMempool returns the pending transactions in arrival order.
func (s *State) QueryMempool() []database.Tx {
	return s.View().Mempool
}

// QueryLatestBlock returns the tip of the chain.
func (s *State) QueryLatestBlock() database.Block {
	return s.View().Ledger.LatestBlock()
}

// QueryBlocks returns the retained blocks, oldest first.
func (s *State) QueryBlocks() []database.Block {
	return s.View().Ledger.Blocks()
}

// QueryTransactions returns up to n confirmed transactions involving the
// account, newest first.
func (s *State) QueryTransactions(accountID database.AccountID, n int) []database.Tx {
	return s.View().Ledger.LatestTransactions(accountID, n)
}

// QueryLedgerRecord returns the wire form of the ledger.
func (s *State) QueryLedgerRecord() database.LedgerRecord {
	return database.NewLedgerRecord(s.View().Ledger.State())
}

// QueryMempoolRecords returns the wire form of the mempool.
func (s *State) QueryMempoolRecords() []database.TxRecord {
	txs := s.View().Mempool

	recs := make([]database.TxRecord, len(txs))
	for i, tx := range txs {
		recs[i] = database.NewTxRecord(tx)
	}
	return recs
}

// KnownPeers returns the peers this node has discovered.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.identity)
}

// Status summarizes this node for its peers and operators.
func (s *State) Status() peer.Status {
	v := s.View()
	tip := v.Ledger.LatestBlock()

	return peer.Status{
		Identity:        s.identity,
		LatestBlockHash: v.Ledger.LatestBlockHash(),
		LatestBlock:     tip.Index,
		Length:          v.Ledger.Length(),
		TotalWork:       v.Ledger.TotalWork().String(),
		Mempool:         len(v.Mempool),
		KnownPeers:      s.KnownPeers(),
	}
}
