package txbuilder

// DefaultFeePerKB is the default relay fee rate: 1 DOGE per kilobyte.
const DefaultFeePerKB uint64 = 100_000_000

// DustThresholdKoinu is the smallest change output worth creating; anything
// below it is left to the miners.
const DustThresholdKoinu uint64 = 100_000

// Canonical size estimates in bytes for the three HTLC transaction kinds.
const (
	FundingTxSize = 250
	ClaimTxSize   = 300
	RefundTxSize  = 250
)

// EstimateFee computes ceil(sizeBytes * feePerKB / 1000) koinu.
func EstimateFee(sizeBytes int, feePerKB uint64) uint64 {
	if feePerKB == 0 {
		feePerKB = DefaultFeePerKB
	}
	return (uint64(sizeBytes)*feePerKB + 999) / 1000
}
