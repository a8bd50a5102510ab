package enums

import "fmt"

// LedgerBucket names a sub-balance within a wallet account. Every ledger
// entry credits or debits exactly one bucket; an account's balance per bucket
// is the signed sum of its entries in that bucket.
type LedgerBucket string

const (
	LedgerBucketAvailable   LedgerBucket = "available"
	LedgerBucketPending     LedgerBucket = "pending"
	LedgerBucketFrozen      LedgerBucket = "frozen"
	LedgerBucketEscrowHeld  LedgerBucket = "escrow_held"
	LedgerBucketPlatformFee LedgerBucket = "platform_fee"
)

var validLedgerBuckets = []LedgerBucket{
	LedgerBucketAvailable,
	LedgerBucketPending,
	LedgerBucketFrozen,
	LedgerBucketEscrowHeld,
	LedgerBucketPlatformFee,
}

// LedgerBuckets returns every bucket in canonical order.
func LedgerBuckets() []LedgerBucket {
	buckets := make([]LedgerBucket, len(validLedgerBuckets))
	copy(buckets, validLedgerBuckets)
	return buckets
}

// String implements fmt.Stringer.
func (b LedgerBucket) String() string {
	return string(b)
}

// IsValid reports whether the value is a known LedgerBucket.
func (b LedgerBucket) IsValid() bool {
	for _, candidate := range validLedgerBuckets {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseLedgerBucket converts raw input into a LedgerBucket.
func ParseLedgerBucket(value string) (LedgerBucket, error) {
	for _, candidate := range validLedgerBuckets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger bucket %q", value)
}
