// Package signing produces detached OpenPGP signatures for published index
// files, the <index>.sig files the Arduino IDE checks.
package signing

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/boardindex/bpt/internal/domain"
)

// SignatureSuffix is appended to the signed file's name.
const SignatureSuffix = ".sig"

// SignDetached returns a binary detached signature over data made with the
// first private key in armoredKey. An encrypted key is unlocked with
// passphrase.
func SignDetached(data []byte, armoredKey string, passphrase []byte) ([]byte, error) {
	signer, err := loadSigner(armoredKey, passphrase)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := openpgp.DetachSign(&out, signer, bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return out.Bytes(), nil
}

// ReadKeyFile loads an armored OpenPGP key from disk.
func ReadKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read signing key: %v", domain.ErrConfig, err)
	}
	return string(data), nil
}

func loadSigner(armoredKey string, passphrase []byte) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signing key: %v", domain.ErrConfig, err)
	}

	var signer *openpgp.Entity
	for _, e := range entities {
		if e.PrivateKey != nil {
			signer = e
			break
		}
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: no private key found", domain.ErrConfig)
	}

	if signer.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: signing key is encrypted and no passphrase was given", domain.ErrConfig)
		}
		if err := signer.DecryptPrivateKeys(passphrase); err != nil {
			return nil, fmt.Errorf("%w: cannot unlock signing key: %v", domain.ErrConfig, err)
		}
	}
	return signer, nil
}

// PublicKey returns the armored public half of armoredKey, for publishing
// next to the index.
func PublicKey(armoredKey string) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signing key: %v", domain.ErrConfig, err)
	}
	if len(entities) == 0 {
		return nil, errors.New("no key found")
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := entities[0].Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verify checks a detached signature against the armored key ring.
func Verify(data, signature []byte, armoredKeyRing string) error {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyRing))
	if err != nil {
		return fmt.Errorf("invalid key ring: %w", err)
	}
	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
