package util

import (
	"fmt"
	"strconv"
)

// SnowflakeString renders a Discord snowflake ID in the decimal form the
// API and the database expect.
func SnowflakeString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseSnowflake parses a decimal snowflake ID received from the gateway.
func ParseSnowflake(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse snowflake %q: %w", s, err)
	}
	return id, nil
}
