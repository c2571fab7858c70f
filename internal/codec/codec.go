// Package codec packs structured public inputs into flat arrays of
// field elements and back. The proof system's public interface is a
// fixed-arity array of numeric field elements over the BN254 scalar
// field, so byte strings and 256-bit hashes need an explicit encoding.
package codec

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	// ElementSize is the serialized size of one field element in bytes.
	ElementSize = 32

	// splitHashSlots is the number of slots a 256-bit hash occupies.
	// The BN254 scalar modulus is below 2^254, so a 256-bit value
	// cannot live in a single element and is split into two 128-bit
	// halves instead.
	splitHashSlots = 2

	// KeyChunkSize is the number of key bytes packed per slot.
	// 31 bytes always fit below the field modulus.
	KeyChunkSize = 31
)

// modulus is the BN254 scalar field modulus.
var modulus = fr.Modulus()

// halfBound is 2^128, the exclusive bound for split-hash halves.
var halfBound = new(big.Int).Lsh(big.NewInt(1), 128)

// InField reports whether v is a canonical field element: non-nil,
// non-negative and strictly below the modulus.
func InField(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(modulus) < 0
}

// ElementsFromBytes decodes a flat byte buffer into field elements.
// The buffer holds 32-byte big-endian elements back to back; a length
// that is not a multiple of 32 or an element outside the field is a
// decode error.
func ElementsFromBytes(data []byte) ([]*big.Int, error) {
	if len(data)%ElementSize != 0 {
		return nil, fmt.Errorf("invalid input length: %d is not a multiple of %d", len(data), ElementSize)
	}

	elems := make([]*big.Int, len(data)/ElementSize)

	for i := range elems {
		v := new(big.Int).SetBytes(data[i*ElementSize : (i+1)*ElementSize])
		if !InField(v) {
			return nil, fmt.Errorf("element %d out of field range", i)
		}

		elems[i] = v
	}

	return elems, nil
}

// ElementsToBytes encodes field elements as a flat 32-byte big-endian buffer.
func ElementsToBytes(elems []*big.Int) []byte {
	out := make([]byte, len(elems)*ElementSize)

	for i, e := range elems {
		e.FillBytes(out[i*ElementSize : (i+1)*ElementSize])
	}

	return out
}

// PackBoundedBytes packs input into exactly numSlots field elements.
// Slot i holds byte i for i < len(input), intermediate slots are zero,
// and the final slot holds the byte length. The final slot is always
// reserved for the length, so packing rejects len(input) >= numSlots;
// len(input) == numSlots-1 fills every data slot and is legal.
func PackBoundedBytes(input []byte, numSlots int) ([]*big.Int, error) {
	if numSlots < 1 {
		return nil, fmt.Errorf("invalid slot count: %d", numSlots)
	}

	if len(input) >= numSlots {
		return nil, fmt.Errorf("input too long: %d bytes for %d slots", len(input), numSlots)
	}

	fields := make([]*big.Int, numSlots)

	for i := range fields {
		fields[i] = new(big.Int)
	}

	for i, b := range input {
		fields[i].SetUint64(uint64(b))
	}

	fields[numSlots-1].SetUint64(uint64(len(input)))

	return fields, nil
}

// UnpackBoundedBytes reconstructs the byte string packed by
// PackBoundedBytes: the final slot gives the length, the leading slots
// give the bytes.
func UnpackBoundedBytes(fields []*big.Int) ([]byte, error) {
	if len(fields) < 1 {
		return nil, fmt.Errorf("no slots")
	}

	lengthSlot := fields[len(fields)-1]
	if !lengthSlot.IsUint64() {
		return nil, fmt.Errorf("invalid length slot")
	}

	length := lengthSlot.Uint64()
	if length > uint64(len(fields)-1) {
		return nil, fmt.Errorf("declared length %d exceeds %d data slots", length, len(fields)-1)
	}

	out := make([]byte, length)

	for i := range out {
		slot := fields[i]
		if !slot.IsUint64() || slot.Uint64() > 0xFF {
			return nil, fmt.Errorf("slot %d is not a byte", i)
		}

		out[i] = byte(slot.Uint64())
	}

	return out, nil
}

// PackChunkedBytes packs input into exactly numSlots field elements
// using KeyChunkSize-byte aligned chunks: the leading numSlots-1 slots
// hold right-zero-padded chunks, the final slot holds the byte length.
// Rejects input longer than the chunk capacity.
func PackChunkedBytes(input []byte, numSlots int) ([]*big.Int, error) {
	if numSlots < 2 {
		return nil, fmt.Errorf("invalid slot count: %d", numSlots)
	}

	if len(input) > (numSlots-1)*KeyChunkSize {
		return nil, fmt.Errorf("input too long: %d bytes for %d chunk slots", len(input), numSlots-1)
	}

	fields := make([]*big.Int, numSlots)

	for i := 0; i < numSlots-1; i++ {
		chunk := make([]byte, KeyChunkSize)

		if start := i * KeyChunkSize; start < len(input) {
			copy(chunk, input[start:min(start+KeyChunkSize, len(input))])
		}

		fields[i] = new(big.Int).SetBytes(chunk)
	}

	fields[numSlots-1] = new(big.Int).SetUint64(uint64(len(input)))

	return fields, nil
}

// UnpackChunkedBytes reconstructs the byte string packed by
// PackChunkedBytes: the final slot gives the length, the leading slots
// give the aligned chunks.
func UnpackChunkedBytes(fields []*big.Int) ([]byte, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("need at least 2 slots, got %d", len(fields))
	}

	lengthSlot := fields[len(fields)-1]
	if !lengthSlot.IsUint64() {
		return nil, fmt.Errorf("invalid length slot")
	}

	length := lengthSlot.Uint64()
	if length > uint64((len(fields)-1)*KeyChunkSize) {
		return nil, fmt.Errorf("declared length %d exceeds %d chunk slots", length, len(fields)-1)
	}

	buf := make([]byte, (len(fields)-1)*KeyChunkSize)

	for i := 0; i < len(fields)-1; i++ {
		slot := fields[i]
		if slot == nil || slot.Sign() < 0 || slot.BitLen() > KeyChunkSize*8 {
			return nil, fmt.Errorf("slot %d is not a %d-byte chunk", i, KeyChunkSize)
		}

		slot.FillBytes(buf[i*KeyChunkSize : (i+1)*KeyChunkSize])
	}

	return buf[:length], nil
}

// PackSplitHash256 splits a 256-bit hash into two field elements:
// the high 128 bits followed by the low 128 bits.
func PackSplitHash256(h [32]byte) []*big.Int {
	hi := new(big.Int).SetBytes(h[:16])
	lo := new(big.Int).SetBytes(h[16:])

	return []*big.Int{hi, lo}
}

// UnpackSplitHash256 reassembles a 256-bit hash from exactly two
// 128-bit halves. Any other slot count or an oversized half is a
// decode error.
func UnpackSplitHash256(fields []*big.Int) ([32]byte, error) {
	var h [32]byte

	if len(fields) != splitHashSlots {
		return h, fmt.Errorf("invalid slot count: got %d, want %d", len(fields), splitHashSlots)
	}

	hi, lo := fields[0], fields[1]
	if hi == nil || lo == nil || hi.Sign() < 0 || lo.Sign() < 0 {
		return h, fmt.Errorf("invalid hash halves")
	}

	if hi.Cmp(halfBound) >= 0 || lo.Cmp(halfBound) >= 0 {
		return h, fmt.Errorf("hash half exceeds 128 bits")
	}

	hi.FillBytes(h[:16])
	lo.FillBytes(h[16:])

	return h, nil
}

// PackPublicKey chunks an arbitrary-length key into KeyChunkSize-byte
// aligned slots. The final chunk is zero-padded on the right.
func PackPublicKey(key []byte) []*big.Int {
	numChunks := (len(key) + KeyChunkSize - 1) / KeyChunkSize
	fields := make([]*big.Int, numChunks)

	for i := 0; i < numChunks; i++ {
		chunk := make([]byte, KeyChunkSize)
		copy(chunk, key[i*KeyChunkSize:min((i+1)*KeyChunkSize, len(key))])
		fields[i] = new(big.Int).SetBytes(chunk)
	}

	return fields
}

// UnpackPublicKey reads numChunks key chunks from fields starting at
// startIndex, so a key can be recovered from the middle of a larger
// field array without slicing it out first.
func UnpackPublicKey(fields []*big.Int, startIndex, numChunks int) ([]byte, error) {
	if startIndex < 0 || startIndex+numChunks > len(fields) {
		return nil, fmt.Errorf("chunk range [%d,%d) exceeds %d slots", startIndex, startIndex+numChunks, len(fields))
	}

	out := make([]byte, numChunks*KeyChunkSize)

	for i := 0; i < numChunks; i++ {
		slot := fields[startIndex+i]
		if slot == nil || slot.Sign() < 0 || slot.BitLen() > KeyChunkSize*8 {
			return nil, fmt.Errorf("slot %d is not a %d-byte chunk", startIndex+i, KeyChunkSize)
		}

		slot.FillBytes(out[i*KeyChunkSize : (i+1)*KeyChunkSize])
	}

	return out, nil
}
