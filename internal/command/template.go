package command

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Placeholder markers accepted in templates. Each template holds
// exactly one, validated by type on match.
const (
	placeholderAddress = "{address}"
	placeholderString  = "{string}"
)

// Template is a fixed command grammar: literal tokens plus exactly one
// typed placeholder. Matching is exact-token with no backtracking;
// any mismatch yields no match rather than a best-effort guess.
type Template struct {
	tokens      []string // tokens are the space-separated template tokens
	placeholder int      // placeholder is the index of the placeholder token, -1 if none
}

// NewTemplate parses a template pattern like "Claim name for address {address}".
// Patterns with zero or multiple placeholders yield a template that
// never matches.
func NewTemplate(pattern string) Template {
	tokens := strings.Fields(pattern)
	placeholder := -1

	for i, tok := range tokens {
		if tok != placeholderAddress && tok != placeholderString {
			continue
		}

		if placeholder != -1 {
			return Template{placeholder: -1} // multiple placeholders: fail closed
		}

		placeholder = i
	}

	return Template{tokens: tokens, placeholder: placeholder}
}

// Match checks a command string against the template and extracts the
// placeholder value. Tokens must be separated by exactly one space:
// doubled spaces, leading or trailing spaces and tab separators all
// yield no match, as do literal mismatches, extra or missing tokens
// and malformed placeholder values.
func (t Template) Match(command string) (string, bool) {
	if t.placeholder < 0 || len(t.tokens) == 0 {
		return "", false
	}

	words := strings.Split(command, " ")
	if len(words) != len(t.tokens) {
		return "", false
	}

	param := ""

	for i, tok := range t.tokens {
		if i == t.placeholder {
			param = words[i]
			continue
		}

		if words[i] != tok {
			return "", false
		}
	}

	if !t.validParam(param) {
		return "", false
	}

	return param, true
}

// validParam type-checks the extracted placeholder value.
func (t Template) validParam(param string) bool {
	switch t.tokens[t.placeholder] {
	case placeholderAddress:
		return common.IsHexAddress(param)
	case placeholderString:
		return param != ""
	default:
		return false
	}
}

// Variant templates. Each variant accepts exactly one grammar.
var (
	templateProveAndClaim = NewTemplate("Claim name for address {address}")
	templateClaimHandle   = NewTemplate("Claim handle for address {address}")
	templateLinkEmail     = NewTemplate("Set email record to {string}")
	templateLinkHandle    = NewTemplate("Set handle record to {string}")
	templateLinkXHandle   = NewTemplate("Link X handle {string}")
)

// TemplateFor returns the template accepted by a variant.
func TemplateFor(kind Kind) Template {
	switch kind {
	case KindProveAndClaim:
		return templateProveAndClaim
	case KindClaimHandle:
		return templateClaimHandle
	case KindLinkEmail:
		return templateLinkEmail
	case KindLinkHandle:
		return templateLinkHandle
	case KindLinkXHandle:
		return templateLinkXHandle
	default:
		return Template{placeholder: -1}
	}
}
