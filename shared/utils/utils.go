package utils

import (
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// NewStoredName returns a random file name with the given extension.
// Client-supplied names are never used as storage keys.
func NewStoredName(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return uuid.NewString() + strings.ToLower(ext)
}

// VehicleImageKey is the blob key for a stored image of a vehicle.
func VehicleImageKey(vehicleID int64, storedName string) string {
	return path.Join("vehicles", strconv.FormatInt(vehicleID, 10), storedName)
}

// Checksum returns the hex blake2b-256 digest of r.
func Checksum(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseID parses a positive numeric path id.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseBool accepts the flag spellings HTML forms send.
func ParseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "", "0", "false", "off", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

// JoinURL joins a public storage root and a blob key with a single slash.
func JoinURL(root, key string) string {
	return strings.TrimSuffix(root, "/") + "/" + strings.TrimPrefix(key, "/")
}
