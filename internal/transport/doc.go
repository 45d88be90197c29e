// Package transport owns the exchange primitive that moves frames across the
// physical channel.
//
// Ownership boundary:
// - exchange modes (receive, async reply, return after tx)
// - length-prefixed stream framing
// - channel bring-up (tcp listener, in-memory pipe)
//
// Any failure that leaves the channel unusable is reported as ErrReset; the
// supervisor reacts by closing the channel and bringing it up again.
package transport
