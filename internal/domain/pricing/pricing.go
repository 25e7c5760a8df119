// Package pricing holds the per-token constants the buy-amount computation
// depends on. spec.md §9 flags the original source's hard-coded 10^8
// multiplier as an open question; this package resolves it by making the
// scale an explicit, validated per-token constant instead.
package pricing

import "fmt"

// MinimalUnitScale maps a sell token to the number of minimal units per
// whole unit (e.g. satoshis per STX-denominated unit in this domain).
var MinimalUnitScale = map[string]int64{
	"STX": 100_000_000,
}

// ScaleFor returns the minimal-unit scale for token, or an error if the
// token has no registered scale — callers must reject Advertisement
// creation for unknown tokens rather than silently assuming 10^8.
func ScaleFor(token string) (int64, error) {
	scale, ok := MinimalUnitScale[token]
	if !ok {
		return 0, fmt.Errorf("pricing: no minimal-unit scale registered for token %q", token)
	}
	return scale, nil
}

// Mode distinguishes fixed-price from dynamic (market-offset) advertisements.
type Mode string

const (
	ModeFixed   Mode = "fixed"
	ModeDynamic Mode = "dynamic"
)

// DynamicToleranceBasisPoints is the 0.3% tolerance below the computed
// target price that spec.md §4.7 step 4 allows (S2 in spec.md §8).
const DynamicToleranceBasisPoints = 30 // 30bps = 0.3%, expressed over 10_000

// TargetPrice computes the dynamic-pricing target: market price offset by
// offsetBasisPoints (may be negative), e.g. +315 => +3.15%.
func TargetPrice(marketCents int64, offsetBasisPoints int64) int64 {
	return marketCents * (10_000 + offsetBasisPoints) / 10_000
}

// MinAcceptablePrice applies the 0.3% tolerance below target, truncating
// per spec.md S2 ("min_allowed = target × 0.997 (truncated)").
func MinAcceptablePrice(target int64) int64 {
	return target * (10_000 - DynamicToleranceBasisPoints) / 10_000
}

// AmountForPayValue computes the crypto amount reserved for a fiat pay_value
// at the given validated price, per spec.md §4.7 step 5:
// amount = pay_value × scale / price.
func AmountForPayValue(payValueCents int64, validatedPriceCents int64, scale int64) int64 {
	return payValueCents * scale / validatedPriceCents
}

// FormatCents renders an integer cent amount as "N.NN", the format the PIX
// bank client's `valor` field and spec.md's format_cents helper use.
func FormatCents(cents int64) string {
	neg := ""
	if cents < 0 {
		neg = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", neg, cents/100, cents%100)
}
