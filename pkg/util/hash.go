package util

// HashU64 is a xorshift mix used for shard selection. Cheap and stateless.
func HashU64(val uint64) uint64 {
	val ^= val << 13
	val ^= val >> 7
	val ^= val << 17
	return val
}

func HashIndex64(val, mask uint64) uint64 {
	return HashU64(val) & mask
}
