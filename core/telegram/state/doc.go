// Package state holds the persisted conversation record and the store contract
// used by the dispatcher. It is domain-agnostic so it can be reused across bots.
package state
