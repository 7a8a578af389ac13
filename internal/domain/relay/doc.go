// Package relay contains the OrderRelay bounded context.
//
// An OrderRelay forwards one customer order, imported from a channel or placed
// internally, from the seller to the supplier that fulfils it, and tracks the
// supplier's progress:
//
//	CREATED -> DISPATCHED -> ACKNOWLEDGED -> FULFILLED
//	DISPATCHED | ACKNOWLEDGED -> FAILED
//	CREATED | DISPATCHED -> CANCELLED
//	CREATED -> FAILED (dispatch retry budget exhausted)
//	FAILED -> CREATED (operator reset)
//
// A relay is unique per (tenant, channel code, external order id).
package relay
