// Package lockout tracks login attempts per identity and decides whether an
// identity is locked out.
//
// The window is sliding: every check recomputes the failure count from the
// raw attempt timestamps, so a lock lifts continuously as old failures age
// past the window instead of at a fixed retry time. State lives in process
// memory behind one mutex and is never persisted.
package lockout
