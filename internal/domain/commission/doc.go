// Package commission contains the Commission bounded context.
//
// A Commission is the amount owed to a referring partner for one conversion.
// It is computed once per conversion id under a CommissionPolicy, held for the
// policy's dispute window, and then confirmed by the hold-expiry sweep:
//
//	PENDING -> CONFIRMED   (sweep, after HoldUntil, order not voided)
//	PENDING | CONFIRMED -> CANCELLED   (order cancelled or refunded)
//	CONFIRMED -> PAID      (only when its settlement batch is paid)
//
// Commissions are never deleted.
package commission
