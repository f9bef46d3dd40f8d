// Package logging builds the zap logger used by authcore binaries.
//
// Production output is JSON with ISO8601 timestamps on stdout. When a log
// file is configured, the same records are also written to a rotating file
// (size and daily rotation, a bounded number of retained files) which serves
// as the authentication log.
package logging
