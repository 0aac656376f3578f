// Package cli holds helpers shared by the sieve subcommands: typed command
// errors with exit codes, text and JSON result printing, and signal-aware
// contexts.
//
//	ctx, stop := cli.SetupSignalHandler(context.Background())
//	defer stop()
package cli
