package database

import (
	"math/big"
)

// MaxTarget is the largest possible hash value, 2^256 - 1.
var MaxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// recomputeTarget returns the target in force after the current tip. The
// target only moves on retarget boundaries.
func (l *Ledger) recomputeTarget() *big.Int {
	current := l.targets[len(l.targets)-1]

	tip := l.LatestBlock()
	interval := l.genesis.RetargetInterval
	if tip.Index < interval || tip.Index%interval != 0 {
		return current
	}

	start, exists := l.timeStampAt(tip.Index - interval + 1)
	if !exists {
		return current
	}

	return Retarget(current, tip.TimeStamp-start, l.genesis.ExpectedRetargetMillis(), l.genesis.MaxTargetChange)
}

// timeStampAt returns the timestamp of the block at the index from the
// retained chain or the pruned history.
func (l *Ledger) timeStampAt(index uint64) (int64, bool) {
	front := l.chain[0].Index
	if index >= front {
		i := index - front
		if i >= uint64(len(l.chain)) {
			return 0, false
		}
		return l.chain[i].TimeStamp, true
	}

	ts := l.snapshot.TimeStamps
	back := l.snapshot.Height - index
	if index > l.snapshot.Height || back >= uint64(len(ts)) {
		return 0, false
	}

	return ts[uint64(len(ts))-1-back], true
}

// Retarget scales the target by how long the interval actually took against
// how long it was expected to take. The move is clamped to the max change
// fraction either way and the result stays within [1, MaxTarget].
func Retarget(current *big.Int, actualMillis int64, expectedMillis int64, maxChange float64) *big.Int {
	if actualMillis < 0 {
		actualMillis = 0
	}

	next := new(big.Int).Mul(current, big.NewInt(actualMillis))
	next.Quo(next, big.NewInt(expectedMillis))

	change := new(big.Rat).SetFloat64(maxChange)
	one := big.NewRat(1, 1)

	upper := scale(current, new(big.Rat).Add(one, change), false)
	lower := scale(current, new(big.Rat).Sub(one, change), true)

	switch {
	case next.Cmp(upper) > 0:
		next = upper
	case next.Cmp(lower) < 0:
		next = lower
	}

	switch {
	case next.Cmp(MaxTarget) > 0:
		next = new(big.Int).Set(MaxTarget)
	case next.Sign() <= 0:
		next = big.NewInt(1)
	}

	return next
}

// scale multiplies the value by the ratio rounding down, or up when ceil
// is set.
func scale(v *big.Int, r *big.Rat, ceil bool) *big.Int {
	num := new(big.Int).Mul(v, r.Num())
	q, m := new(big.Int).QuoRem(num, r.Denom(), new(big.Int))
	if ceil && m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
