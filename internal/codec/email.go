package codec

import "strings"

// ExtractEmailParts splits an email address into ordered parts: the
// local part first, then each domain label. "user@gmail.com" yields
// ["user", "gmail", "com"]. The circuit captures these pieces
// separately, so the contract side needs the same decomposition.
func ExtractEmailParts(email string) []string {
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return strings.Split(email, ".")
	}

	parts := []string{local}

	return append(parts, strings.Split(domain, ".")...)
}

// VerifyEmailParts reconstructs an email from its parts and checks it
// equals the original string. This binds a circuit's piecewise
// captures back to the whole address.
func VerifyEmailParts(parts []string, original string) bool {
	if len(parts) == 0 {
		return original == ""
	}

	rebuilt := parts[0]
	if len(parts) > 1 {
		rebuilt += "@" + strings.Join(parts[1:], ".")
	}

	if !strings.Contains(original, "@") {
		rebuilt = strings.Join(parts, ".")
	}

	return rebuilt == original
}
