// Aegis is a guarded reverse proxy between untrusted clients and an LLM
// inference backend.
//
// It admits requests under per-model concurrency limits, scans prompts and
// responses through an analyzer pipeline, caches scan verdicts locally or
// in Redis, and relays streamed output under rolling window scans that cut
// the stream the moment a violation appears.
//
// Usage:
//
//	# Start with default configuration
//	aegis run
//
//	# Start with a custom configuration file
//	aegis run --config /etc/aegis/config.yaml
//
//	# Validate configuration without starting
//	aegis validate
//
//	# Show version information
//	aegis version
package main

func main() {
	Execute()
}
