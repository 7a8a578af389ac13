// Package channel contains the Channel bounded context.
// A channel is an external storefront where a seller lists products and receives orders.
//
// Key concepts:
//   - Connector: port implemented once per channel (Taobao, Shopify, in-memory sandbox)
//   - Registry: resolves a channel code to its connector without switching on channel type
//   - Account: a seller's credentials on one channel plus the order import watermark
//   - ListingLink: a product published (or to be published) on a channel account
//   - ExternalOrder: immutable order snapshot returned by ImportOrders
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) live in infrastructure/connector
package channel
