package featureflags

import (
	"os"
	"strings"
)

// PublicListing gates the legacy unauthenticated GET /licenses behavior.
// Off by default: the listing then requires authentication and is scoped to
// the caller's tenant.
const PublicListing = "public_listing"

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
