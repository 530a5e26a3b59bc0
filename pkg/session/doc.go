// Package session records in-progress syncs inside an account directory.
//
// A marker is written when an account sync starts and removed when it ends.
// It is the cross-process guard for an account: a marker whose process is
// still running makes a second sync of that account fail. Finding a marker
// of a dead process means the previous run crashed or was killed; the
// orchestrator reports it before cleaning up the leftovers of that run.
package session
