// Package memory provides an in-process member store.
//
// All maps sit behind one mutex so the email and token indexes always
// agree with the primary map. Records are cloned on the way in and out;
// callers never share memory with the store.
//
// It is meant for tests and dry runs. Nothing survives a restart.
package memory
