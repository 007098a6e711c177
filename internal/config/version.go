package config

import (
	"strconv"
	"strings"
)

// Version is the application semantic version.
const Version = "1.4.0"

// SchemaVersion encodes a semantic version as major*100 + minor*10 + patch.
// The persistent store opens with this number; bumping the application
// version forces the store to discard and rebuild its contents.
func SchemaVersion(version string) int {
	parts := strings.SplitN(strings.TrimPrefix(version, "v"), ".", 3)
	nums := [3]int{}
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		nums[i] = n
	}
	return nums[0]*100 + nums[1]*10 + nums[2]
}
