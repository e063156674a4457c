// Package builder assembles a resolved event number into one composite
// event.
//
// Packets are written into a size-checked scratch buffer using the flat
// packet encoding: little-endian 32-bit words, a 6-word event header and one
// record per packet (5-word header, payload padded to a word boundary).
// The scratch capacity is fixed; running out of room is an
// EncodingOverflowError for that event only.
package builder
