// Package version holds build-time version information for the casebot binary.
// The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/casebot-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/casebot-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/casebot-go/internal/version.BuildDate=2026-01-01"
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String returns the one-line version banner printed by `casebot version`
// and sent as the User-Agent suffix to generation backends.
func String() string {
	return fmt.Sprintf("casebot %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// UserAgent returns the HTTP User-Agent used for outbound backend calls.
func UserAgent() string {
	return "casebot/" + Version
}
