package signing

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/boardindex/bpt/internal/domain"
)

// Helper to generate a temporary GPG key
func generateTestKey(t *testing.T) string {
	t.Helper()
	entity, err := openpgp.NewEntity("Test", "test", "test@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatalf("armor encode failed: %v", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	w.Close()
	return buf.String()
}

func TestSignDetached_Verifies(t *testing.T) {
	key := generateTestKey(t)
	data := []byte(`{"packages": []}` + "\n")

	sig, err := SignDetached(data, key, nil)
	if err != nil {
		t.Fatalf("SignDetached() error = %v", err)
	}

	pub, err := PublicKey(key)
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if err := Verify(data, sig, string(pub)); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	tampered := append([]byte{}, data...)
	tampered[0] = '['
	if err := Verify(tampered, sig, string(pub)); err == nil {
		t.Error("expected verification to fail for modified data")
	}
}

func TestSignDetached_BadKey(t *testing.T) {
	_, err := SignDetached([]byte("x"), "not a key", nil)
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}

	pub, err := PublicKey(generateTestKey(t))
	if err != nil {
		t.Fatal(err)
	}
	_, err = SignDetached([]byte("x"), string(pub), nil)
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("public-only key error = %v, want ErrConfig", err)
	}
}

func TestReadKeyFile(t *testing.T) {
	key := generateTestKey(t)
	path := filepath.Join(t.TempDir(), "key.asc")
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ReadKeyFile(path)
	if err != nil || got != key {
		t.Errorf("ReadKeyFile() = %d bytes, %v", len(got), err)
	}

	if _, err := ReadKeyFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}
