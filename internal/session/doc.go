// Package session runs one workflow resolution as a state machine.
//
// A Processor owns a single session from creation to its terminal state:
//
//	Idle -> Resolving(0) -> ... -> Resolving(n-1) -> Finalizing -> Completed
//	                    \                                      \-> Failed
//	                     \-> Failed
//
// Every step is appended to a journal before the state advances, so the
// journal alone is enough to reconstruct the outcome. Recoverable input
// errors are retried inside the resolver and never change the state.
//
// A Processor runs once. Completed and Failed are terminal and a second
// Run returns ErrSessionTerminal.
package session
