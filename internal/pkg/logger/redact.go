package logger

import "strings"

// RedactEmail masks a recipient address so it can appear in log lines:
// "jane.roe@corp.io" becomes "ja***@corp.io". Local parts of two chars or
// fewer are masked entirely. Anything that does not look like an address
// is replaced wholesale.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
