package config

import (
	"os"
	"strings"
)

// UseSoftDeletes decides how full-sync reconciliation retires local rows that
// disappeared from the remote set: soft-delete (deactivate + deleted_at) when
// enabled, hard delete otherwise.
//
// Set via env:
// - WINMAX4_USE_SOFT_DELETES=true
func UseSoftDeletes() bool {
	return envFlag("WINMAX4_USE_SOFT_DELETES", true)
}

// MultiTenancyEnabled gates the license_id dimension. When disabled, a sync
// request carrying an explicit license filter is rejected before any network
// call.
//
// Set via env:
// - WINMAX4_USE_LICENSE=true
func MultiTenancyEnabled() bool {
	return envFlag("WINMAX4_USE_LICENSE", false)
}

func envFlag(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
