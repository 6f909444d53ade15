// Package id issues 128-bit sortable identifiers for live subscriptions.
//
// An ID is 16 bytes big-endian: [8 bytes unix ms][8 bytes sequence], so
// byte order is issue order. IDs from one Generator strictly increase even
// when the wall clock steps backwards; the generator then keeps issuing from
// the last millisecond it saw.
//
//	g := id.NewGenerator()
//	sid := g.Next()
//	sid.String() // 32 hex chars
//	sid.Time()   // issue time, ms precision
package id
