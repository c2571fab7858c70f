//go:build ignore

// compare_state diffs the claim state of two node databases. Useful
// for checking that a snapshot-synced replica matches its source.
//
// Usage: go run scripts/compare_state.go <db1_path> <db2_path>
package main

import (
	"bytes"
	"fmt"
	"os"

	"MailNames/internal/storage"
)

// statePrefixes are the replicated key spaces: nullifiers, accounts,
// text records and DKIM keys.
var statePrefixes = []string{"n:", "a:", "t:", "k:"}

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <db1_path> <db2_path>\n", os.Args[0])
		os.Exit(1)
	}

	db1Path := os.Args[1]
	db2Path := os.Args[2]

	db1, err := storage.New(db1Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db1: %v\n", err)
		os.Exit(1)
	}
	defer db1.Close()

	db2, err := storage.New(db2Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db2: %v\n", err)
		os.Exit(1)
	}
	defer db2.Close()

	records1 := collectState(db1)
	records2 := collectState(db2)

	fmt.Printf("DB1 (%s): %d records\n", db1Path, len(records1))
	fmt.Printf("DB2 (%s): %d records\n", db2Path, len(records2))

	missing1, missing2, different := compare(records1, records2)

	if len(missing1) == 0 && len(missing2) == 0 && len(different) == 0 {
		fmt.Println("\n✓ States are identical!")
		os.Exit(0)
	}

	fmt.Println("\n✗ States differ:")

	if len(missing1) > 0 {
		fmt.Printf("  - Records in DB1 but not in DB2: %d\n", len(missing1))
		for _, key := range missing1 {
			fmt.Printf("      %s\n", renderKey(key))
		}
	}

	if len(missing2) > 0 {
		fmt.Printf("  - Records in DB2 but not in DB1: %d\n", len(missing2))
		for _, key := range missing2 {
			fmt.Printf("      %s\n", renderKey(key))
		}
	}

	if len(different) > 0 {
		fmt.Printf("  - Records with different content: %d\n", len(different))
		for _, key := range different {
			fmt.Printf("      %s\n", renderKey(key))
		}
	}

	os.Exit(1)
}

// collectState gathers every replicated record keyed by its full key.
func collectState(db *storage.Storage) map[string][]byte {
	records := make(map[string][]byte)

	db.Iterate(func(key, value []byte) error {
		if !isStateKey(key) {
			return nil
		}

		valueCopy := make([]byte, len(value))
		copy(valueCopy, value)
		records[string(key)] = valueCopy

		return nil
	})

	return records
}

// isStateKey reports whether a key belongs to a replicated prefix.
func isStateKey(key []byte) bool {
	for _, prefix := range statePrefixes {
		if bytes.HasPrefix(key, []byte(prefix)) {
			return true
		}
	}

	return false
}

// compare partitions the key spaces into missing and differing sets.
func compare(rec1, rec2 map[string][]byte) (missing1, missing2, different []string) {
	for key := range rec1 {
		if _, ok := rec2[key]; !ok {
			missing1 = append(missing1, key)
		}
	}

	for key := range rec2 {
		if _, ok := rec1[key]; !ok {
			missing2 = append(missing2, key)
		}
	}

	for key, data1 := range rec1 {
		if data2, ok := rec2[key]; ok && !bytes.Equal(data1, data2) {
			different = append(different, key)
		}
	}

	return
}

// renderKey shows the prefix plus the leading bytes of the key body.
func renderKey(key string) string {
	if len(key) < 2 {
		return fmt.Sprintf("%x", key)
	}

	body := key[2:]
	if len(body) > 8 {
		body = body[:8]
	}

	return fmt.Sprintf("%s%x", key[:2], body)
}
