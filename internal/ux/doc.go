// Package ux owns the user-facing side of the device: the idle screen,
// confirmation prompts, and the event queue that carries user decisions back
// to the supervisor goroutine.
//
// Callbacks are posted from any goroutine and run only on the goroutine that
// drains Queue.Events, so handlers never observe concurrent mutation of the
// application context.
package ux
