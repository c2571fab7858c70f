package command

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"MailNames/internal/codec"
)

var (
	// ErrTemplateMismatch is returned when a command string does not
	// match the variant's grammar.
	ErrTemplateMismatch = errors.New("command does not match template")

	// ErrInvalidDomainKey is returned when the command's public-key
	// hash is not anchored for its domain.
	ErrInvalidDomainKey = errors.New("domain key not in trust registry")

	// ErrUnverifiedProof is returned when the proof backend rejects
	// the proof.
	ErrUnverifiedProof = errors.New("proof verification failed")
)

// SubjectKind selects which identity shape feeds the node computation.
type SubjectKind uint8

const (
	// SubjectEmail requires an email-shaped subject.
	SubjectEmail SubjectKind = iota + 1

	// SubjectHandle requires a bare handle subject.
	SubjectHandle
)

// Backend is the external proof-verification capability.
type Backend interface {
	// Verify checks a zero-knowledge proof against its public inputs.
	Verify(proof []byte, fields []*big.Int) bool
}

// KeyChecker is the external domain-key validity capability.
type KeyChecker interface {
	// IsKeyHashValid checks a (domain hash, public-key hash) pair
	// against the DKIM trust registry.
	IsKeyHashValid(domainHash, keyHash [32]byte) bool
}

// Config selects a variant's behavior. Variants differ only in these
// parameters, never in control flow.
type Config struct {
	Kind    Kind        // Kind is the command variant
	Layout  Layout      // Layout is the field layout for this variant
	Subject SubjectKind // Subject is the required identity shape
	Backend Backend     // Backend is the proof-system backend
	Keys    KeyChecker  // Keys is the DKIM validity registry
}

// Verifier is a stateless encoder/validator for one command variant.
type Verifier struct {
	cfg      Config
	template Template
}

// NewVerifier creates a verifier for the given variant configuration.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg, template: TemplateFor(cfg.Kind)}
}

// Kind returns the variant this verifier handles.
func (v *Verifier) Kind() Kind {
	return v.cfg.Kind
}

// Encode decodes raw proof data into a self-contained Command. Fails
// hard on malformed field counts or lengths, a subject of the wrong
// shape, or a command string outside the variant's grammar.
func (v *Verifier) Encode(proof []byte, fields []*big.Int) (*Command, error) {
	inputs, err := v.cfg.Layout.Decode(fields)
	if err != nil {
		return nil, fmt.Errorf("decode public inputs:\n%w", err)
	}

	if err := v.checkSubject(inputs.Subject); err != nil {
		return nil, err
	}

	param, ok := v.template.Match(inputs.Command)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateMismatch, inputs.Command)
	}

	return &Command{
		Kind:   v.cfg.Kind,
		Inputs: *inputs,
		Param:  param,
		Proof:  &RawProof{Bytes: proof, Fields: fields},
	}, nil
}

// Check re-runs the business checks on an encoded command without
// mutating any state. Order is fixed: domain-key validity (cheap),
// then the proof check, then the template match, short-circuiting on
// the first failure. The returned error names the failing stage.
func (v *Verifier) Check(cmd *Command) error {
	if cmd == nil || cmd.Proof == nil || cmd.Kind != v.cfg.Kind {
		return fmt.Errorf("command does not belong to variant %s", v.cfg.Kind)
	}

	if len(cmd.Proof.Fields) != v.cfg.Layout.TotalSlots() {
		return fmt.Errorf("field count %d does not fit the variant layout", len(cmd.Proof.Fields))
	}

	domainHash := crypto.Keccak256Hash([]byte(cmd.Inputs.Domain))
	if !v.cfg.Keys.IsKeyHashValid(domainHash, cmd.Inputs.KeyHash) {
		return fmt.Errorf("%w: %s", ErrInvalidDomainKey, cmd.Inputs.Domain)
	}

	if !v.cfg.Backend.Verify(cmd.Proof.Bytes, cmd.Proof.Fields) {
		return ErrUnverifiedProof
	}

	if _, ok := v.template.Match(cmd.Inputs.Command); !ok {
		return fmt.Errorf("%w: %q", ErrTemplateMismatch, cmd.Inputs.Command)
	}

	return nil
}

// Verify reports whether a command passes Check. Read paths keep the
// boolean form; the entrypoint uses Check to surface the failing
// stage.
func (v *Verifier) Verify(cmd *Command) bool {
	return v.Check(cmd) == nil
}

// checkSubject enforces the variant's identity shape and, for emails,
// binds the piecewise parts back to the whole address.
func (v *Verifier) checkSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("empty subject")
	}

	switch v.cfg.Subject {
	case SubjectEmail:
		if !strings.Contains(subject, "@") {
			return fmt.Errorf("subject %q is not email-shaped", subject)
		}

		parts := codec.ExtractEmailParts(subject)
		if !codec.VerifyEmailParts(parts, subject) {
			return fmt.Errorf("email parts do not reconstruct %q", subject)
		}

	case SubjectHandle:
		if strings.ContainsAny(subject, "@ ") {
			return fmt.Errorf("subject %q is not a bare handle", subject)
		}

	default:
		return fmt.Errorf("unknown subject kind: %d", v.cfg.Subject)
	}

	return nil
}
