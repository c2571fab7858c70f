package api

import (
	"fmt"

	"MailNames/internal/codec"
	"MailNames/internal/command"
	"MailNames/internal/types"
)

const (
	// maxInputSlots caps the public-input array at the widest field
	// layout. Anything larger cannot decode under any variant.
	maxInputSlots = 168

	// maxProofSize bounds the opaque proof blob.
	maxProofSize = 64 * 1024
)

// validateEnvelope checks a claim envelope's shape before the
// entrypoint spends cycles on field decoding and proof verification.
func validateEnvelope(data []byte) (retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("malformed envelope data")
		}
	}()

	if len(data) < 8 {
		return fmt.Errorf("envelope data too short")
	}

	envelope := types.GetRootAsClaimEnvelope(data, 0)

	kind := command.Kind(envelope.Variant())
	if kind < command.KindProveAndClaim || kind > command.KindLinkXHandle {
		return fmt.Errorf("unknown variant: %d", envelope.Variant())
	}

	if envelope.ProofLength() == 0 {
		return fmt.Errorf("empty proof")
	}

	if envelope.ProofLength() > maxProofSize {
		return fmt.Errorf("proof too large: %d bytes", envelope.ProofLength())
	}

	return validateInputs(envelope)
}

// validateInputs checks the public-input array's framing.
func validateInputs(envelope *types.ClaimEnvelope) error {
	size := envelope.InputsLength()

	if size == 0 {
		return fmt.Errorf("empty public inputs")
	}

	if size%codec.ElementSize != 0 {
		return fmt.Errorf("inputs length %d is not a multiple of %d", size, codec.ElementSize)
	}

	if size/codec.ElementSize > maxInputSlots {
		return fmt.Errorf("too many input slots: %d (max %d)", size/codec.ElementSize, maxInputSlots)
	}

	return nil
}
