// Package envelope holds the types shared by every layer of Courier: the
// Envelope itself, its stored form with a store-assigned sequence, the
// (timestamp, sequence) Cursor, query specs and results, limits and the
// validation rules applied before anything reaches storage.
package envelope
