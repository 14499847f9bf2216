package match

import "strings"

var clauseUnescaper = strings.NewReplacer(
	`\n`, "\n",
	`\"`, `"`,
	`“`, `"`,
	`”`, `"`,
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// NormalizeClause undoes escaping the model sometimes leaves in the clause,
// straightens curly quotes and collapses whitespace.
func NormalizeClause(clause string) string {
	return collapseSpace(clauseUnescaper.Replace(clause))
}

// normalizeForProbe is the fuzzy comparison form: lowercase, collapsed whitespace.
func normalizeForProbe(text string) string {
	return collapseSpace(strings.ToLower(text))
}

// collapseSpace replaces every run of Unicode whitespace (including the
// vertical tabs used for soft line breaks) with one space and trims.
func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
