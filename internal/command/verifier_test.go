package command

import (
	"errors"
	"math/big"
	"testing"
)

// stubBackend is a proof backend with a scripted result.
type stubBackend struct {
	result bool
	calls  int
}

func (s *stubBackend) Verify(proof []byte, fields []*big.Int) bool {
	s.calls++
	return s.result
}

// stubKeys is a key checker with a scripted result.
type stubKeys struct {
	result bool
	calls  int
}

func (s *stubKeys) IsKeyHashValid(domainHash, keyHash [32]byte) bool {
	s.calls++
	return s.result
}

// newTestVerifier builds a verifier with scripted capabilities.
func newTestVerifier(t *testing.T, kind Kind, subject SubjectKind, backend *stubBackend, keys *stubKeys) *Verifier {
	t.Helper()

	layout := BoundedLayout
	if kind == KindProveAndClaim || kind == KindLinkXHandle {
		layout = Fixed60Layout
	}

	return NewVerifier(Config{
		Kind:    kind,
		Layout:  layout,
		Subject: subject,
		Backend: backend,
		Keys:    keys,
	})
}

// encodeTestCommand builds fields for a verifier and encodes them.
func encodeTestCommand(t *testing.T, v *Verifier, inputs *PublicInputs) *Command {
	t.Helper()

	fields, err := v.cfg.Layout.Encode(inputs)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}

	cmd, err := v.Encode([]byte("proof"), fields)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}

	return cmd
}

// claimInputs builds public inputs accepted by ProveAndClaim.
func claimInputs() *PublicInputs {
	in := sampleInputs()
	in.Command = "Claim name for address 0x2222222222222222222222222222222222222222"
	return in
}

// TestEncodeProveAndClaim verifies the full encode path for an email claim.
func TestEncodeProveAndClaim(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	cmd := encodeTestCommand(t, v, claimInputs())

	if cmd.Kind != KindProveAndClaim {
		t.Errorf("wrong kind: %v", cmd.Kind)
	}

	if cmd.Param != "0x2222222222222222222222222222222222222222" {
		t.Errorf("wrong param: %q", cmd.Param)
	}

	if cmd.Inputs.Subject != "u@g.com" {
		t.Errorf("wrong subject: %q", cmd.Inputs.Subject)
	}
}

// TestEncodeRejectsWrongShape verifies a handle subject is rejected by
// an email variant and vice versa.
func TestEncodeRejectsWrongShape(t *testing.T) {
	emailV := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	in := claimInputs()
	in.Subject = "justahandle"

	fields, err := emailV.cfg.Layout.Encode(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}

	if _, err := emailV.Encode(nil, fields); err == nil {
		t.Error("email variant should reject a bare handle subject")
	}

	handleV := newTestVerifier(t, KindClaimHandle, SubjectHandle, &stubBackend{result: true}, &stubKeys{result: true})

	in = claimInputs()
	in.Command = "Claim handle for address 0x2222222222222222222222222222222222222222"

	fields, err = handleV.cfg.Layout.Encode(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}

	if _, err := handleV.Encode(nil, fields); err == nil {
		t.Error("handle variant should reject an email subject")
	}
}

// TestEncodeRejectsTemplateMismatch verifies a foreign command string
// is a hard error.
func TestEncodeRejectsTemplateMismatch(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	in := claimInputs()
	in.Command = "Link X handle alice"

	fields, err := v.cfg.Layout.Encode(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}

	if _, err := v.Encode(nil, fields); err == nil {
		t.Error("expected template mismatch error")
	}
}

// TestVerifyHappyPath verifies all checks pass with valid capabilities.
func TestVerifyHappyPath(t *testing.T) {
	backend := &stubBackend{result: true}
	keys := &stubKeys{result: true}
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, backend, keys)

	cmd := encodeTestCommand(t, v, claimInputs())

	if !v.Verify(cmd) {
		t.Fatal("expected command to verify")
	}

	if keys.calls != 1 || backend.calls != 1 {
		t.Errorf("expected each capability called once, got keys=%d backend=%d", keys.calls, backend.calls)
	}
}

// TestVerifyShortCircuitsOnKeyFailure verifies the cheap DKIM check
// runs before the expensive proof check.
func TestVerifyShortCircuitsOnKeyFailure(t *testing.T) {
	backend := &stubBackend{result: true}
	keys := &stubKeys{result: false}
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, backend, keys)

	cmd := encodeTestCommand(t, v, claimInputs())

	if v.Verify(cmd) {
		t.Fatal("expected verification failure")
	}

	if backend.calls != 0 {
		t.Error("proof backend should not run after key failure")
	}
}

// TestVerifyFailsOnProofFailure verifies a bad proof yields false, not an error.
func TestVerifyFailsOnProofFailure(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: false}, &stubKeys{result: true})

	cmd := encodeTestCommand(t, v, claimInputs())

	if v.Verify(cmd) {
		t.Error("expected verification failure for bad proof")
	}
}

// TestCheckNamesFailingStage verifies each business check reports its
// own error so callers can tell an unanchored key from a bad proof.
func TestCheckNamesFailingStage(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: false})

	cmd := encodeTestCommand(t, v, claimInputs())

	if err := v.Check(cmd); !errors.Is(err, ErrInvalidDomainKey) {
		t.Errorf("expected ErrInvalidDomainKey, got %v", err)
	}

	v = newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: false}, &stubKeys{result: true})

	cmd = encodeTestCommand(t, v, claimInputs())

	if err := v.Check(cmd); !errors.Is(err, ErrUnverifiedProof) {
		t.Errorf("expected ErrUnverifiedProof, got %v", err)
	}

	v = newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	cmd = encodeTestCommand(t, v, claimInputs())
	cmd.Inputs.Command = "Link X handle alice"

	if err := v.Check(cmd); !errors.Is(err, ErrTemplateMismatch) {
		t.Errorf("expected ErrTemplateMismatch, got %v", err)
	}
}

// TestVerifyRejectsForeignCommand verifies kind and shape are rechecked.
func TestVerifyRejectsForeignCommand(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	cmd := encodeTestCommand(t, v, claimInputs())
	cmd.Kind = KindClaimHandle

	if v.Verify(cmd) {
		t.Error("verifier should reject a command of another kind")
	}

	if v.Verify(nil) {
		t.Error("verifier should reject nil")
	}
}

// TestCommandNode verifies the node derives from the subject.
func TestCommandNode(t *testing.T) {
	v := newTestVerifier(t, KindProveAndClaim, SubjectEmail, &stubBackend{result: true}, &stubKeys{result: true})

	cmd := encodeTestCommand(t, v, claimInputs())

	if cmd.Node() == ([32]byte{}) {
		t.Error("node should not be zero for a non-empty subject")
	}
}
