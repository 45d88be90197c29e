// Package apdu owns the command frame contract.
//
// Ownership boundary:
// - fixed header offsets and the accepted class byte
// - P1/P2/Lc parameter parsing for handler payloads
// - status words and response encoding
//
// A frame is CLA | INS | payload. The gate only inspects CLA and INS; the
// payload belongs to the handler selected by INS.
package apdu
