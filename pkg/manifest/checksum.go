package manifest

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

const checksumBufferSize = 64 * 1024

// FileChecksum streams a file through SHA-256 and returns the digest
// base64-encoded, the encoding S3 uses for ChecksumSHA256.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return ReaderChecksum(file)
}

// ReaderChecksum computes the base64 SHA-256 digest of everything in r.
func ReaderChecksum(r io.Reader) (string, error) {
	hash := sha256.New()
	buf := make([]byte, checksumBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := hash.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("write to hash: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}
