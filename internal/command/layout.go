package command

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"MailNames/internal/codec"
)

// Layout describes how a variant's public inputs are laid out in the
// flat field array. Both known layouts share one section order:
//
//	domain (bounded) | key hash (2, split) | nullifier (2, split) |
//	timestamp (1) | command (bounded) | subject (bounded) |
//	prover address (1) | account salt (2, split) | reserved (zeros)
//
// so the two layouts differ only in slot counts and string packing,
// not in decode logic. The fixed numeric layout packs strings as
// 31-byte chunks per slot; the bounded layout packs one byte per slot.
type Layout struct {
	DomainSlots   int  // DomainSlots is the string-section size for the domain
	CommandSlots  int  // CommandSlots is the string-section size for the command string
	SubjectSlots  int  // SubjectSlots is the string-section size for the subject
	ReservedSlots int  // ReservedSlots is the zero-filled tail (fixed layout only)
	Chunked       bool // Chunked selects 31-byte chunk packing for string sections
}

// Fixed60Layout is the fixed 60-slot numeric layout. String sections
// carry 31-byte chunks, so 20 command slots fit a 589-byte command.
var Fixed60Layout = Layout{DomainSlots: 9, CommandSlots: 20, SubjectSlots: 20, ReservedSlots: 3, Chunked: true}

// BoundedLayout is the wider bounded-byte-vector layout: one byte per
// slot plus a length slot per section.
var BoundedLayout = Layout{DomainSlots: 16, CommandSlots: 80, SubjectSlots: 64}

// TotalSlots returns the exact field count the layout requires.
func (l Layout) TotalSlots() int {
	return l.DomainSlots + 2 + 2 + 1 + l.CommandSlots + l.SubjectSlots + 1 + 2 + l.ReservedSlots
}

// Decode recovers structured public inputs from a flat field array.
// Any malformed count or section is a hard decode error.
func (l Layout) Decode(fields []*big.Int) (*PublicInputs, error) {
	if len(fields) != l.TotalSlots() {
		return nil, fmt.Errorf("invalid field count: got %d, want %d", len(fields), l.TotalSlots())
	}

	cur := newCursor(fields, l.Chunked)

	domain, err := cur.stringBytes(l.DomainSlots)
	if err != nil {
		return nil, fmt.Errorf("decode domain:\n%w", err)
	}

	keyHash, err := cur.splitHash()
	if err != nil {
		return nil, fmt.Errorf("decode key hash:\n%w", err)
	}

	nullifier, err := cur.splitHash()
	if err != nil {
		return nil, fmt.Errorf("decode nullifier:\n%w", err)
	}

	timestamp, err := cur.uint64()
	if err != nil {
		return nil, fmt.Errorf("decode timestamp:\n%w", err)
	}

	commandStr, err := cur.stringBytes(l.CommandSlots)
	if err != nil {
		return nil, fmt.Errorf("decode command:\n%w", err)
	}

	subject, err := cur.stringBytes(l.SubjectSlots)
	if err != nil {
		return nil, fmt.Errorf("decode subject:\n%w", err)
	}

	prover, err := cur.address()
	if err != nil {
		return nil, fmt.Errorf("decode prover address:\n%w", err)
	}

	salt, err := cur.splitHash()
	if err != nil {
		return nil, fmt.Errorf("decode account salt:\n%w", err)
	}

	if err := cur.reservedZeros(l.ReservedSlots); err != nil {
		return nil, err
	}

	return &PublicInputs{
		Domain:        string(domain),
		Subject:       string(subject),
		KeyHash:       keyHash,
		Nullifier:     nullifier,
		Timestamp:     timestamp,
		ProverAddress: prover,
		AccountSalt:   salt,
		Command:       string(commandStr),
	}, nil
}

// Encode packs structured public inputs into the layout's flat field
// array. The inverse of Decode, used by provers and tests.
func (l Layout) Encode(in *PublicInputs) ([]*big.Int, error) {
	fields := make([]*big.Int, 0, l.TotalSlots())

	packString := codec.PackBoundedBytes
	if l.Chunked {
		packString = codec.PackChunkedBytes
	}

	domain, err := packString([]byte(in.Domain), l.DomainSlots)
	if err != nil {
		return nil, fmt.Errorf("pack domain:\n%w", err)
	}
	fields = append(fields, domain...)

	fields = append(fields, codec.PackSplitHash256(in.KeyHash)...)
	fields = append(fields, codec.PackSplitHash256(in.Nullifier)...)
	fields = append(fields, new(big.Int).SetUint64(in.Timestamp))

	cmd, err := packString([]byte(in.Command), l.CommandSlots)
	if err != nil {
		return nil, fmt.Errorf("pack command:\n%w", err)
	}
	fields = append(fields, cmd...)

	subject, err := packString([]byte(in.Subject), l.SubjectSlots)
	if err != nil {
		return nil, fmt.Errorf("pack subject:\n%w", err)
	}
	fields = append(fields, subject...)

	fields = append(fields, new(big.Int).SetBytes(in.ProverAddress[:]))
	fields = append(fields, codec.PackSplitHash256(in.AccountSalt)...)

	for i := 0; i < l.ReservedSlots; i++ {
		fields = append(fields, new(big.Int))
	}

	return fields, nil
}

// cursor walks a flat field array section by section.
type cursor struct {
	fields  []*big.Int
	pos     int
	chunked bool
}

// newCursor creates a cursor at the start of fields.
func newCursor(fields []*big.Int, chunked bool) *cursor {
	return &cursor{fields: fields, chunked: chunked}
}

// take consumes n slots.
func (c *cursor) take(n int) []*big.Int {
	out := c.fields[c.pos : c.pos+n]
	c.pos += n
	return out
}

// stringBytes consumes n slots as a string section in the layout's
// packing.
func (c *cursor) stringBytes(n int) ([]byte, error) {
	if c.chunked {
		return codec.UnpackChunkedBytes(c.take(n))
	}

	return codec.UnpackBoundedBytes(c.take(n))
}

// splitHash consumes two slots as a split 256-bit hash.
func (c *cursor) splitHash() ([32]byte, error) {
	return codec.UnpackSplitHash256(c.take(2))
}

// uint64 consumes one slot as a uint64 scalar.
func (c *cursor) uint64() (uint64, error) {
	slot := c.take(1)[0]
	if !slot.IsUint64() {
		return 0, fmt.Errorf("scalar exceeds uint64")
	}

	return slot.Uint64(), nil
}

// address consumes one slot as a 160-bit address.
func (c *cursor) address() (common.Address, error) {
	slot := c.take(1)[0]
	if slot.BitLen() > 160 {
		return common.Address{}, fmt.Errorf("address exceeds 160 bits")
	}

	var buf [20]byte
	slot.FillBytes(buf[:])

	return common.Address(buf), nil
}

// reservedZeros consumes n slots and requires each to be zero.
func (c *cursor) reservedZeros(n int) error {
	for i, slot := range c.take(n) {
		if slot.Sign() != 0 {
			return fmt.Errorf("reserved slot %d is non-zero", i)
		}
	}

	return nil
}
