package command

import "testing"

// TestTemplateMatchAddress verifies exact-token matching with an
// address placeholder.
func TestTemplateMatchAddress(t *testing.T) {
	tpl := NewTemplate("Claim name for address {address}")

	param, ok := tpl.Match("Claim name for address 0x1111111111111111111111111111111111111111")
	if !ok {
		t.Fatal("expected match")
	}

	if param != "0x1111111111111111111111111111111111111111" {
		t.Errorf("wrong param: %q", param)
	}
}

// TestTemplateMatchString verifies the string placeholder.
func TestTemplateMatchString(t *testing.T) {
	tpl := NewTemplate("Link X handle {string}")

	param, ok := tpl.Match("Link X handle alice_dev")
	if !ok {
		t.Fatal("expected match")
	}

	if param != "alice_dev" {
		t.Errorf("wrong param: %q", param)
	}
}

// TestTemplateFailClosed verifies every malformed input yields no match.
func TestTemplateFailClosed(t *testing.T) {
	tpl := NewTemplate("Claim name for address {address}")

	cases := []string{
		"",
		"Claim name for address",                                            // missing placeholder
		"Claim name for address 0x1 extra",                                   // extra token
		"Grab name for address 0x1111111111111111111111111111111111111111",   // literal mismatch
		"Claim name for address not-an-address",                              // malformed address
		"Claim name for address 0x11111111111111111111111111111111111111",    // short hex
		"claim name for address 0x1111111111111111111111111111111111111111",  // case-sensitive literal
		"Claim  name for address 0x1111111111111111111111111111111111111111", // doubled space
		" Claim name for address 0x1111111111111111111111111111111111111111", // leading space
		"Claim name for address 0x1111111111111111111111111111111111111111 ", // trailing space
		"Claim\tname for address 0x1111111111111111111111111111111111111111", // tab separator
	}

	for _, c := range cases {
		if _, ok := tpl.Match(c); ok {
			t.Errorf("expected no match for %q", c)
		}
	}
}

// TestTemplateMultiplePlaceholders verifies an invalid pattern never matches.
func TestTemplateMultiplePlaceholders(t *testing.T) {
	tpl := NewTemplate("Link {string} to {address}")

	if _, ok := tpl.Match("Link a to 0x1111111111111111111111111111111111111111"); ok {
		t.Error("template with two placeholders must never match")
	}
}

// TestTemplateForCoversVariants verifies every variant has a grammar.
func TestTemplateForCoversVariants(t *testing.T) {
	kinds := []Kind{KindProveAndClaim, KindClaimHandle, KindLinkEmail, KindLinkHandle, KindLinkXHandle}

	for _, k := range kinds {
		tpl := TemplateFor(k)
		if tpl.placeholder < 0 {
			t.Errorf("variant %s has no usable template", k)
		}
	}

	if tpl := TemplateFor(Kind(99)); tpl.placeholder >= 0 {
		t.Error("unknown variant should have no template")
	}
}
