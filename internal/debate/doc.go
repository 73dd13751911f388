// Package debate owns debate sessions and the people taking part in them.
//
// The Registry is the only writer of session state. Every mutation of a single
// session runs under that session's lock, so admission (capacity check plus
// insert) is one atomic step and unrelated sessions never contend.
package debate
