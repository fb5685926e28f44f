// Package domain holds the records shared between the ledger runtime and
// the storage backends.
package domain

import "time"

// PriceAccountRecord is a persisted snapshot of a price account's raw
// bytes. The data blob follows the fixed layout in internal/oracle; its
// length distinguishes legacy from extended accounts.
type PriceAccountRecord struct {
	Pubkey    string // base58 account address
	Owner     string // base58 owner program id
	Symbol    string // feed symbol, e.g. SOL/USD
	Lamports  uint64
	Data      []byte
	UpdatedAt time.Time
}

// BucketAggregate is one finalized time machine bucket, exported for
// analytics. Corresponds to the bucket_aggregates table in ClickHouse.
type BucketAggregate struct {
	AccountPubkey string  // base58 price account address
	StartTime     int64   // window start, unix seconds
	Granularity   int64   // window width, seconds
	AvgPrice      float64 // time-weighted average price (raw, pre-exponent)
	AvgConf       float64 // mean confidence interval
	Count         uint32  // observations aggregated
	Exponent      int32   // price exponent of the feed
}
