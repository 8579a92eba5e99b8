// Package schema parses raw tabular input and infers a column schema,
// sensitivity flags and full-table statistics from it.
//
// Inference is a pure function of the input bytes: the same bytes always
// produce the same schema, stats and content hash.
package schema
