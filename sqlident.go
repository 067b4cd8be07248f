// Copyright (c) 2026 Neomantra Corp

package xlparq

import "strings"

// QuoteIdent double-quotes a SQL identifier, doubling any embedded quote
// character as the analytic engine's identifier-escaping rules require.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLStringLiteral escapes s for use as a single-quoted SQL string literal,
// doubling any embedded single quote.
func SQLStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
