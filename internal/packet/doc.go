// Package packet defines the captured-event record model shared by the
// decoder, the table store and every output surface, along with the column
// vocabulary of the packets table.
package packet
