// Package remote holds the pure parts of remote command execution: the
// structured command description, the transient/terminal error classifier,
// the backoff schedule and the stderr post-processing rules.
//
// The imperative shell (internal/shell/remote) drives the retry state
// machine with these values; nothing here touches the network.
package remote
