package types

import "strings"

// keySep joins the key parts. None of the parts may contain it.
const keySep = ":"

// InstrumentKey builds the canonical subscription key for an instrument from
// its pair symbol, token address, and chain ID. The admission controller and
// the feed treat the result as an opaque string; only the UI layer ever needs
// the parts back.
func InstrumentKey(pair, token, chain string) string {
	return pair + keySep + token + keySep + chain
}

// SplitInstrumentKey splits a key produced by InstrumentKey back into its
// parts. ok is false when key does not have exactly three segments.
func SplitInstrumentKey(key string) (pair, token, chain string, ok bool) {
	parts := strings.Split(key, keySep)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
