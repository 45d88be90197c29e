// Package dispatch owns frame validation and opcode routing.
//
// Ownership boundary:
// - opcode table (Registry)
// - structural checks on CLA/INS before any handler runs
// - handler invocation and failure classification
//
// Dispatch does not retry and does not reply on behalf of a handler. Every
// rejection ends the current cycle without a response.
package dispatch
