// Package protocol defines the JSON messages exchanged between the hub, its agents,
// viewers and control clients.
//
// Agent and viewer traffic is tagged by a "type" field; commands sent to agents and
// control requests sent to the hub are tagged by a "command" field. Result frames
// produced by a benchmark carry arbitrary application fields and are forwarded
// without validation.
package protocol
