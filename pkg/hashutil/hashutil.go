package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

type HashAlgo string

const (
	HashAlgoSHA256 = "sha256"
	HashAlgoBLAKE3 = "blake3"
)

// HashBytes returns the hash of bytes as a hex string using the specified algorithm.
// Supported algorithms: "sha256" and "blake3".
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	switch algo {
	case HashAlgoSHA256:
		return hashBytesSha256(data), nil
	case HashAlgoBLAKE3:
		return hashBytesBlake3(data), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

func hashBytesSha256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func hashBytesBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// URLKey is the canonical per-URL identity used for visited records and
// content filenames: sha256 hex of the normalized URL string.
func URLKey(url string) string {
	return hashBytesSha256([]byte(url))
}

// MD5Prefix returns the first two hex characters of the md5 of s. Frontier
// files are fanned out across 256 subdirectories by this prefix so a single
// directory never accumulates millions of entries.
func MD5Prefix(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:1])
}

// Shard maps s onto [0, n). Every process must shard identically, so this is
// pinned to blake3: the first eight little-endian bytes of the digest taken
// as a uint64, mod n. Used with a registered domain for pod routing and with
// a full URL for data-directory selection.
func Shard(s string, n int) int {
	if n <= 1 {
		return 0
	}
	sum := blake3.Sum256([]byte(s))
	return int(binary.LittleEndian.Uint64(sum[:8]) % uint64(n))
}
