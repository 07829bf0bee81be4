// Package questdb is the single entry point to the store's HTTP SQL
// endpoint (GET /exec).
//
// Parameter substitution happens client-side: a one-pass renderer replaces
// $1..$N placeholders with escaped literals before transmission. Transport
// errors propagate unchanged; retries are a policy of the caller.
package questdb

import _ "embed"

//go:embed schema.sql
var schemaSQL string
