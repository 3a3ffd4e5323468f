package utils

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func generateKeyLine(t *testing.T, comment string) (string, ssh.PublicKey) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + comment
	return line, sshPub
}

func TestParseSSHKey(t *testing.T) {
	line, pub := generateKeyLine(t, "john@example.com")

	key, comment, err := ParseSSHKey(line)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", comment)
	assert.Equal(t, pub.Marshal(), key.Marshal())
}

func TestParseSSHKey_Invalid(t *testing.T) {
	line, _ := generateKeyLine(t, "x")
	tests := map[string]string{
		"empty":     "  ",
		"garbage":   "A short key",
		"multiline": line + "\n" + line,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseSSHKey(raw)
			assert.Error(t, err)
		})
	}
}

func TestFingerprint(t *testing.T) {
	line, pub := generateKeyLine(t, "")

	fp, err := Fingerprint(line)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintSHA256(pub), fp)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))

	_, err = Fingerprint("not a key")
	assert.Error(t, err)
}
