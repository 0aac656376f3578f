// Sieve is a request-bin service: it hands out short-lived capture URLs,
// records every HTTP request sent to them and lets callers inspect,
// export and replay what was captured.
//
// Usage:
//
//	# Start the server with defaults (sqlite store, in-memory rate limits)
//	sieve run
//
//	# Start with a configuration file
//	sieve run --config /etc/sieve/config.yaml
//
//	# Delete expired bins once and exit
//	sieve sweep
//
//	# Print bin statistics as JSON
//	sieve stats --output json
package main

import (
	"os"

	"requestbin-hq/sieve/pkg/cli"
)

func main() {
	os.Exit(cli.ExitCode(Execute()))
}
