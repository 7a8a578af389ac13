// Package settlement contains the SettlementBatch bounded context.
//
// A batch collects the CONFIRMED commissions of one payee for one period and
// drives them through payment confirmation. Legal transitions:
//
//	OPEN -> CLOSED -> PROCESSING -> PAID
//	PROCESSING -> FAILED -> PROCESSING
//	OPEN | CLOSED -> CANCELLED
//
// Settlement contexts are partitioned by SettlementType: a PARTNER batch only
// ever sees commissions attributed to that partner, a SELLER batch those sold
// by that seller, a SUPPLIER batch those fulfilled by that supplier.
package settlement
