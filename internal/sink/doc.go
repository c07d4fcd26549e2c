// Package sink holds the destinations pushed rows are delivered to: an
// in-process Hub for streaming clients, and NATS and AMQP publishers.
package sink
