package utils

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParseSSHKey parses a single authorized_keys style line
func ParseSSHKey(raw string) (ssh.PublicKey, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("SSH key is empty")
	}
	if strings.ContainsAny(raw, "\r\n") {
		return nil, "", fmt.Errorf("SSH key must be a single line")
	}
	key, comment, _, rest, err := ssh.ParseAuthorizedKey([]byte(raw))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse SSH key: %w", err)
	}
	if len(rest) > 0 {
		return nil, "", fmt.Errorf("SSH key must contain exactly one key")
	}
	return key, comment, nil
}

// Fingerprint returns the SHA256 fingerprint of an SSH public key line
func Fingerprint(raw string) (string, error) {
	key, _, err := ParseSSHKey(raw)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(key), nil
}
