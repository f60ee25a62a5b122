// Package normalisers provides implementations of the Normaliser interface
// for various file formats. Each normaliser knows how to extract plain text
// from the extensions it claims.
//
// Normalisers are registered with the ingest service at startup; the
// registry picks one by file extension.
package normalisers
