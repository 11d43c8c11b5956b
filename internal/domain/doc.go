// Package domain models Chicago Transit Authority (CTA) rail station records
// and the simplified per-station view materialized by this service.
//
// # Data Source
//
// Station records originate from the CTA "L" stops dataset. An upstream
// connector publishes one flat JSON record per stop and direction to the
// source topic. Several stops share a parent station, so many records map to
// the same station_id.
//
// # Line Membership
//
// The source carries line membership as independent booleans (red, blue,
// green). The transform collapses them into a single [Line] by checking red,
// then blue, then green, each true flag overwriting the previous one:
//
//	red=true  blue=true  green=false  ->  "blue"
//	red=true  blue=true  green=true   ->  "green"
//	all false                         ->  null
//
// This ordering is kept as observed upstream. Records with several flags set
// are expected to be rare.
//
// # Table Encoding
//
// The materialized table and its changelog are keyed by station_id. Keys are
// encoded as the decimal station id and values as TransformedStation JSON.
// An empty value is a tombstone. See [EncodeKey] and [EncodeValue].
package domain
