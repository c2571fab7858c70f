// Package snapshot exports and imports the node's persistent state:
// claim records, nullifiers, text records and DKIM trust anchors, as
// one checksummed, compressed document.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"MailNames/internal/storage"
	"MailNames/internal/types"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1
)

// Prefixes of the state the snapshot carries. Everything else in the
// store is node-local and stays out.
var statePrefixes = [][]byte{
	[]byte("n:"), // nullifiers
	[]byte("a:"), // node accounts
	[]byte("t:"), // text records
	[]byte("k:"), // dkim trust anchors
}

// recordEntry holds one key-value pair destined for the snapshot.
type recordEntry struct {
	key   []byte
	value []byte
}

// Create exports the current state as an uncompressed snapshot.
func Create(db *storage.Storage) ([]byte, error) {
	records, err := collectRecords(db)
	if err != nil {
		return nil, fmt.Errorf("collect records:\n%w", err)
	}

	return build(records), nil
}

// CreateCompressed exports the current state zstd-compressed for
// transfer.
func CreateCompressed(db *storage.Storage) ([]byte, error) {
	data, err := Create(db)
	if err != nil {
		return nil, err
	}

	return Compress(data)
}

// collectRecords iterates storage and copies every state record.
func collectRecords(db *storage.Storage) ([]recordEntry, error) {
	var records []recordEntry

	err := db.Iterate(func(key, value []byte) error {
		if !isStateKey(key) {
			return nil
		}

		// Copy key and value, the iterator reuses its buffers
		keyCopy := make([]byte, len(key))
		copy(keyCopy, key)

		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)

		records = append(records, recordEntry{key: keyCopy, value: valueCopy})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// isStateKey reports whether a key belongs to snapshotted state.
func isStateKey(key []byte) bool {
	for _, prefix := range statePrefixes {
		if bytes.HasPrefix(key, prefix) {
			return true
		}
	}

	return false
}

// build creates the FlatBuffers snapshot with its checksum.
func build(records []recordEntry) []byte {
	// Sort records by key for a deterministic checksum
	sortRecords(records)

	checksum := computeChecksum(snapshotVersion, records)

	builder := flatbuffers.NewBuilder(1024)

	recordOffsets := make([]flatbuffers.UOffsetT, len(records))
	for i, rec := range records {
		keyOffset := builder.CreateByteVector(rec.key)
		valueOffset := builder.CreateByteVector(rec.value)

		types.SnapshotRecordStart(builder)
		types.SnapshotRecordAddKey(builder, keyOffset)
		types.SnapshotRecordAddValue(builder, valueOffset)
		recordOffsets[i] = types.SnapshotRecordEnd(builder)
	}

	types.SnapshotStartRecordsVector(builder, len(recordOffsets))
	for i := len(recordOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(recordOffsets[i])
	}
	recordsVector := builder.EndVector(len(recordOffsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddRecords(builder, recordsVector)
	types.SnapshotAddChecksum(builder, checksumOffset)
	offset := types.SnapshotEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// sortRecords sorts records by key for deterministic ordering.
func sortRecords(records []recordEntry) {
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].key, records[j].key) < 0
	})
}

// computeChecksum computes a blake3 checksum over canonical data.
// Format: version (4 bytes) + count (4 bytes) + per record:
// key-length, key, value-length, value.
func computeChecksum(version uint32, records []recordEntry) [32]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	binary.BigEndian.PutUint32(buf[:], uint32(len(records)))
	hasher.Write(buf[:])

	for _, rec := range records {
		binary.BigEndian.PutUint32(buf[:], uint32(len(rec.key)))
		hasher.Write(buf[:])
		hasher.Write(rec.key)

		binary.BigEndian.PutUint32(buf[:], uint32(len(rec.value)))
		hasher.Write(buf[:])
		hasher.Write(rec.value)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// Compress compresses snapshot data with zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// Apply writes an uncompressed snapshot's records into storage in one
// atomic batch after verifying its checksum.
func Apply(db *storage.Storage, data []byte) (int, error) {
	snap, records, err := parse(data)
	if err != nil {
		return 0, err
	}

	if err := verifyChecksum(snap, records); err != nil {
		return 0, fmt.Errorf("verify checksum:\n%w", err)
	}

	pairs := make([]storage.KeyValue, len(records))
	for i, rec := range records {
		pairs[i] = storage.KeyValue{Key: rec.key, Value: rec.value}
	}

	if err := db.SetBatch(pairs); err != nil {
		return 0, fmt.Errorf("write records:\n%w", err)
	}

	return len(records), nil
}

// parse reads a snapshot buffer. Snapshots arrive over the network and
// FlatBuffers accessors panic on corrupt buffers, so parsing is guarded.
func parse(data []byte) (snap *types.Snapshot, records []recordEntry, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			snap, records = nil, nil
			err = fmt.Errorf("corrupt snapshot buffer")
		}
	}()

	snap = types.GetRootAsSnapshot(data, 0)

	records, err = extractRecords(snap)
	if err != nil {
		return nil, nil, err
	}

	return snap, records, nil
}

// extractRecords copies all records out of a snapshot buffer.
func extractRecords(snap *types.Snapshot) ([]recordEntry, error) {
	records := make([]recordEntry, snap.RecordsLength())
	var rec types.SnapshotRecord

	for i := 0; i < snap.RecordsLength(); i++ {
		if !snap.Records(&rec, i) {
			return nil, fmt.Errorf("read record %d", i)
		}

		keyBytes := rec.KeyBytes()
		valueBytes := rec.ValueBytes()

		key := make([]byte, len(keyBytes))
		copy(key, keyBytes)

		value := make([]byte, len(valueBytes))
		copy(value, valueBytes)

		records[i] = recordEntry{key: key, value: value}
	}

	return records, nil
}

// verifyChecksum recomputes the canonical checksum and compares.
func verifyChecksum(snap *types.Snapshot, records []recordEntry) error {
	stored := snap.ChecksumBytes()
	if len(stored) != 32 {
		return fmt.Errorf("invalid checksum length: %d", len(stored))
	}

	sorted := make([]recordEntry, len(records))
	copy(sorted, records)
	sortRecords(sorted)

	computed := computeChecksum(snap.Version(), sorted)
	if !bytes.Equal(computed[:], stored) {
		return fmt.Errorf("checksum mismatch")
	}

	return nil
}
