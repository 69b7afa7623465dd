// Package crypto parses SSH key material for the remote executor.
// This is part of the Functional Core - all functions are pure with no I/O.
package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrInvalidKey is returned when the key material cannot be parsed.
	ErrInvalidKey = errors.New("invalid SSH private key format")

	// ErrPassphraseRequired is returned for an encrypted key without passphrase.
	ErrPassphraseRequired = errors.New("SSH private key is passphrase protected")
)

// ParseSigner parses a PEM/OpenSSH private key. passphrase is only used when
// the key is encrypted.
func ParseSigner(key []byte, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return signer, nil
}

// Fingerprint returns the SHA256 fingerprint of the signer's public key, in
// the format ssh-keygen -l prints.
func Fingerprint(signer ssh.Signer) string {
	return ssh.FingerprintSHA256(signer.PublicKey())
}
