// Package webhooks authenticates and dispatches Kick webhook deliveries.
//
// Each delivery moves through received -> verifying -> verified ->
// dispatched, or ends in rejected. Rejected deliveries never reach
// subscribers. When a DeliveryLedger is configured, a verified delivery whose
// message id was already claimed ends in duplicate instead of dispatched.
package webhooks
