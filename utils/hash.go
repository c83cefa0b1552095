package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// fileHashChunkSize is the read size for streaming file hashes.
const fileHashChunkSize = 8192

// SHA1Hex returns the hex SHA-1 digest of data.
func SHA1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// FileSHA1 computes the SHA-1 of a file's contents with fixed-size reads.
// The digest is stored for provenance only; it is not part of record identity.
func FileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, fileHashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s for hashing: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChunkID derives a stable record ID from identity metadata: values are
// joined with "|" in lexicographic key order and hashed. Equal maps produce
// equal IDs regardless of construction order, which is what makes
// re-ingestion idempotent under upsert semantics.
func ChunkID(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, fields[k])
	}
	return SHA1Hex([]byte(strings.Join(vals, "|")))
}
