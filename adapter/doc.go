// Package adapter turns measurement interests into context broker
// updates.
//
// A producer names each sample {prefix}/{device-id}/{path...}/{value}. The
// Handler decodes the name, acknowledges the interest and hands the broker
// write to a worker. The Supervisor keeps a forwarder session open and
// reconnects when no interest arrived for the stall timeout.
package adapter
