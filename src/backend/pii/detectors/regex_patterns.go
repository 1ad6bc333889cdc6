package pii

// Pattern-class rules. EmailPattern and IPv4Pattern are also used by the
// rewriter, independently of any detector.
const (
	EmailPattern = `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,7}\b`
	IPv4Pattern  = `\b(?:\d{1,3}\.){3}\d{1,3}\b`
)

// PIIPatterns defines the default regex patterns for the regex detector
var PIIPatterns = map[string]string{
	"EMAIL": EmailPattern,
	"IPV4":  IPv4Pattern,
	// ISO dates and US-style numeric dates
	"DATE": `\b(?:(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12][0-9]|3[01])|(?:0?[1-9]|1[0-2])[-/](?:0?[1-9]|[12][0-9]|3[01])[-/](?:19|20)\d{2})\b`,
}
