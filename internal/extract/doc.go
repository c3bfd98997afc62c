// Package extract holds the pure field extractors shared by the provider parsers:
// amounts, dates and times, card suffixes and reference numbers. Every function
// works on normalized text and performs no I/O.
package extract
