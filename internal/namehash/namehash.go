// Package namehash computes naming-system node identifiers from dotted
// label paths using the standard recursive keccak256 scheme.
package namehash

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Node is a 32-byte naming-system node identifier.
type Node [32]byte

// ZeroNode is the root node, the namehash of the empty name.
var ZeroNode Node

// Hash computes the node for a dotted label path. Labels are consumed
// from the rightmost (top) label down to the leftmost:
//
//	node = keccak256(parentNode || keccak256(label))
//
// An email-shaped label keeps its '@' in place but hashes as though it
// were a literal '$', so "user@gmail.com" lands on the same node as a
// name whose lowest label is the literal string "user$gmail" under
// "com". This lets a raw email string be hashed into a stable
// identifier without pre-processing.
func Hash(name string) Node {
	return HashFrom([]byte(name), 0)
}

// HashFrom computes the node for the suffix of buf starting at offset,
// without copying the tail into a fresh string.
func HashFrom(buf []byte, offset int) Node {
	var node Node

	if offset >= len(buf) {
		return node
	}

	end := len(buf)

	for end > offset {
		start := labelStart(buf, offset, end)
		node = hashLabel(node, buf[start:end])
		end = start - 1

		if end < offset {
			break
		}
	}

	return node
}

// labelStart finds the start of the label ending at end, scanning
// backwards to the previous '.' separator (or offset).
func labelStart(buf []byte, offset, end int) int {
	for i := end - 1; i >= offset; i-- {
		if buf[i] == '.' {
			return i + 1
		}
	}

	return offset
}

// hashLabel folds one label into the running node. The '@' separator
// is substituted with '$' before hashing.
func hashLabel(parent Node, label []byte) Node {
	normalized := label

	for i, b := range label {
		if b == '@' {
			normalized = make([]byte, len(label))
			copy(normalized, label)
			normalized[i] = '$'
			break
		}
	}

	labelHash := crypto.Keccak256(normalized)

	var node Node
	copy(node[:], crypto.Keccak256(parent[:], labelHash))

	return node
}
