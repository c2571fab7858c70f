package registry

import (
	"errors"

	flatbuffers "github.com/google/flatbuffers/go"

	"MailNames/internal/command"
	"MailNames/internal/types"
)

// ErrBadEnvelope is returned when a claim envelope cannot be parsed.
var ErrBadEnvelope = errors.New("malformed claim envelope")

// MarshalEnvelope serializes a claim submission to its FlatBuffers
// wire form. Used by provers and the HTTP client.
func MarshalEnvelope(kind command.Kind, proof, inputs []byte) []byte {
	builder := flatbuffers.NewBuilder(1024)

	proofOffset := builder.CreateByteVector(proof)
	inputsOffset := builder.CreateByteVector(inputs)

	types.ClaimEnvelopeStart(builder)
	types.ClaimEnvelopeAddVariant(builder, byte(kind))
	types.ClaimEnvelopeAddProof(builder, proofOffset)
	types.ClaimEnvelopeAddInputs(builder, inputsOffset)
	envelopeOffset := types.ClaimEnvelopeEnd(builder)

	builder.Finish(envelopeOffset)

	return builder.FinishedBytes()
}

// decodeEnvelope parses a claim envelope. FlatBuffers accessors panic
// on truncated buffers, so parsing is guarded.
func decodeEnvelope(raw []byte) (kind command.Kind, proof, inputs []byte, err error) {
	if len(raw) < flatbuffers.SizeUOffsetT {
		return 0, nil, nil, ErrBadEnvelope
	}

	defer func() {
		if r := recover(); r != nil {
			kind, proof, inputs = 0, nil, nil
			err = ErrBadEnvelope
		}
	}()

	envelope := types.GetRootAsClaimEnvelope(raw, 0)

	return command.Kind(envelope.Variant()), envelope.ProofBytes(), envelope.InputsBytes(), nil
}
