package workflow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/boardindex/bpt/internal/cleanup"
	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/index"
	"github.com/boardindex/bpt/internal/registry"
	"github.com/boardindex/bpt/internal/signing"
	"github.com/boardindex/bpt/internal/testutil"
)

const testIndex = `{
  "packages": [
    {
      "name": "adafruit",
      "maintainer": "Adafruit",
      "platforms": [
        {
          "name": "avr",
          "version": "1.4.9",
          "url": "https://example.com/boards/avr-1.4.9.tar.bz2"
        },
        {
          "name": "avr",
          "version": "1.5.0",
          "url": "https://example.com/boards/avr-1.5.0.tar.bz2"
        }
      ]
    }
  ]
}
`

const testTemplate = `{{"name": "avr", "version": "{version}", "url": "https://example.com/boards/{filename}", "archiveFileName": "{filename}", "checksum": "SHA-256:{sha256}", "size": "{size}"}}`

type fixture struct {
	root      string
	indexPath string
	outDir    string
	wf        *Workflow
	out       *bytes.Buffer
}

// newFixture builds a registry with one directory package "avr" at the
// given version plus any extra INI sections.
func newFixture(t *testing.T, version, template, extra string) *fixture {
	t.Helper()
	root := t.TempDir()

	pkgDir := filepath.Join(root, "src", "avr")
	testutil.WriteFiles(t, pkgDir, map[string]string{
		"platform.txt": "name=AVR\nversion=" + version + "\n",
		"boards.txt":   "uno.name=Uno\n",
	})

	regPath := filepath.Join(root, "bpt.ini")
	reg := "[avr]\nindex_parent = adafruit\ndirectory = " + pkgDir + "\nindex_template = " + template + "\n" + extra
	if err := os.WriteFile(regPath, []byte(reg), 0o644); err != nil {
		t.Fatal(err)
	}
	indexPath := filepath.Join(root, "package_adafruit_index.json")
	if err := os.WriteFile(indexPath, []byte(testIndex), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := registry.Load(regPath, registry.Options{})
	if err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}
	idx, err := index.Load(indexPath, nil)
	if err != nil {
		t.Fatalf("index.Load() error = %v", err)
	}

	out := &bytes.Buffer{}
	return &fixture{
		root:      root,
		indexPath: indexPath,
		outDir:    filepath.Join(root, "boards"),
		out:       out,
		wf: &Workflow{
			Registry: r,
			Index:    idx,
			Guard:    cleanup.New(nil),
			Out:      out,
		},
	}
}

func (f *fixture) publish(t *testing.T, force bool) (*PublishResult, error) {
	t.Helper()
	return f.wf.Publish(context.Background(), PublishOptions{
		Name:        "avr",
		Force:       force,
		OutputIndex: f.indexPath,
		OutputDir:   f.outDir,
	})
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPublish_StaleRejected(t *testing.T) {
	// Arrange
	f := newFixture(t, "1.5.0", testTemplate, "")

	// Act
	_, err := f.publish(t, false)

	// Assert
	if !errors.Is(err, domain.ErrStaleUpdate) {
		t.Fatalf("error = %v, want ErrStaleUpdate", err)
	}
	if got := readFile(t, f.indexPath); got != testIndex {
		t.Errorf("index changed:\n%s", got)
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir not empty: %v", names)
	}
}

func TestPublish_ForceAppendsOnePlatform(t *testing.T) {
	// Arrange
	f := newFixture(t, "1.5.0", testTemplate, "")

	// Act
	res, err := f.publish(t, true)

	// Assert
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	idx, err := index.Load(f.indexPath, nil)
	if err != nil {
		t.Fatalf("reload index: %v", err)
	}
	platforms, _ := idx.Platforms("adafruit", "avr")
	if len(platforms) != 3 {
		t.Fatalf("platforms = %d, want 3", len(platforms))
	}
	added := platforms[2]
	if added.Version != "1.5.0" {
		t.Errorf("added version = %q", added.Version)
	}

	data, err := os.ReadFile(filepath.Join(f.outDir, "avr-1.5.0.tar.bz2"))
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if res.Archive.SHA256 != digest {
		t.Errorf("result digest %s, file digest %s", res.Archive.SHA256, digest)
	}
	if !strings.Contains(string(added.Raw), "SHA-256:"+digest) {
		t.Errorf("platform entry lacks checksum: %s", added.Raw)
	}
	if names := dirEntries(t, f.outDir); len(names) != 1 {
		t.Errorf("output dir = %v, want only the archive", names)
	}
}

func TestPublish_NewVersion(t *testing.T) {
	f := newFixture(t, "1.6.0", testTemplate, "")

	res, err := f.publish(t, false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Archive.Filename != "avr-1.6.0.tar.bz2" {
		t.Errorf("archive = %q", res.Archive.Filename)
	}

	written := readFile(t, f.indexPath)
	if !strings.HasPrefix(written, `{
  "packages": [
    {
      "name": "adafruit",
      "maintainer": "Adafruit",`) {
		t.Errorf("untouched content was reformatted:\n%s", written)
	}
	if !strings.Contains(written, `"archiveFileName": "avr-1.6.0.tar.bz2"`) {
		t.Errorf("new entry missing:\n%s", written)
	}
	if !strings.Contains(f.out.String(), "Wrote updated board index JSON") {
		t.Errorf("output = %q", f.out.String())
	}
}

func TestPublish_TemplateErrorWritesNothing(t *testing.T) {
	f := newFixture(t, "1.6.0", `{{"version": "{release}"}}`, "")

	_, err := f.publish(t, false)
	if !errors.Is(err, domain.ErrTemplate) {
		t.Fatalf("error = %v, want ErrTemplate", err)
	}
	if got := readFile(t, f.indexPath); got != testIndex {
		t.Error("index changed after template error")
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir not empty: %v", names)
	}
}

func TestPublish_UnknownParent(t *testing.T) {
	f := newFixture(t, "1.6.0", testTemplate, "")
	f.wf.Index, _ = index.Parse([]byte(`{"packages": [{"name": "someone-else"}]}`), nil)

	_, err := f.publish(t, true)
	if !errors.Is(err, domain.ErrUnknownParent) {
		t.Errorf("error = %v, want ErrUnknownParent", err)
	}
}

func TestPublish_UnknownPackage(t *testing.T) {
	f := newFixture(t, "1.6.0", testTemplate, "")

	_, err := f.wf.Publish(context.Background(), PublishOptions{Name: "nope", OutputIndex: f.indexPath})
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestPublish_SeparateOutputIndex(t *testing.T) {
	f := newFixture(t, "1.6.0", testTemplate, "")
	outIndex := filepath.Join(f.root, "out", "package_new_index.json")

	_, err := f.wf.Publish(context.Background(), PublishOptions{
		Name:        "avr",
		OutputIndex: outIndex,
		OutputDir:   f.outDir,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := readFile(t, f.indexPath); got != testIndex {
		t.Error("input index changed")
	}
	if !strings.Contains(readFile(t, outIndex), `"version": "1.6.0"`) {
		t.Error("output index lacks new version")
	}
}

func TestPublish_Signed(t *testing.T) {
	f := newFixture(t, "1.6.0", testTemplate, "")

	entity, err := openpgp.NewEntity("Test", "test", "test@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	var key bytes.Buffer
	w, _ := armor.Encode(&key, openpgp.PrivateKeyType, nil)
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatal(err)
	}
	w.Close()

	res, err := f.wf.Publish(context.Background(), PublishOptions{
		Name:        "avr",
		OutputIndex: f.indexPath,
		OutputDir:   f.outDir,
		SignKey:     key.String(),
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	pub, err := signing.PublicKey(key.String())
	if err != nil {
		t.Fatal(err)
	}
	sig, err := os.ReadFile(res.SignaturePath)
	if err != nil {
		t.Fatalf("signature not written: %v", err)
	}
	if err := signing.Verify([]byte(readFile(t, f.indexPath)), sig, string(pub)); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestPublish_RemovesPreviousSignature(t *testing.T) {
	// Arrange
	f := newFixture(t, "1.6.0", testTemplate, "")
	sigPath := f.indexPath + signing.SignatureSuffix
	if err := os.WriteFile(sigPath, []byte("signature of the old index"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Act
	res, err := f.publish(t, false)

	// Assert
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.SignaturePath != "" {
		t.Errorf("SignaturePath = %q for an unsigned publish", res.SignaturePath)
	}
	if _, err := os.Stat(sigPath); !os.IsNotExist(err) {
		t.Errorf("stale signature still next to the new index (stat err %v)", err)
	}
}

func TestPublish_SignatureNotRemovableLeavesIndex(t *testing.T) {
	// Arrange
	f := newFixture(t, "1.6.0", testTemplate, "")
	sigPath := f.indexPath + signing.SignatureSuffix
	testutil.WriteFiles(t, sigPath, map[string]string{"keep": "x"})

	// Act
	_, err := f.publish(t, false)

	// Assert
	if !errors.Is(err, domain.ErrIOWrite) {
		t.Fatalf("error = %v, want ErrIOWrite", err)
	}
	if got := readFile(t, f.indexPath); got != testIndex {
		t.Errorf("index changed:\n%s", got)
	}
	if names := dirEntries(t, f.outDir); len(names) != 0 {
		t.Errorf("output dir not empty: %v", names)
	}
}

func TestPublish_FromGitClone(t *testing.T) {
	repo := testutil.NewGitRepo(t, map[string]string{
		"avr/platform.txt": "version=2.0.0\n",
		"avr/boards.txt":   "uno.name=Uno\n",
	})
	f := newFixture(t, "1.0.0", testTemplate,
		"\n[avr-git]\nindex_parent = adafruit\nrepo = "+repo.Dir+"\nrepo_dir = avr\narchive_prefix = avr\nindex_template = "+testTemplate+"\n")

	res, err := f.wf.Publish(context.Background(), PublishOptions{
		Name:        "avr-git",
		OutputIndex: f.indexPath,
		OutputDir:   f.outDir,
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Descriptor.Origin != "git: "+repo.Dir {
		t.Errorf("origin = %q", res.Descriptor.Origin)
	}
	if res.Archive.Filename != "avr-2.0.0.tar.bz2" {
		t.Errorf("archive = %q", res.Archive.Filename)
	}

	f.wf.Guard.Release()
}

func TestCheck_Report(t *testing.T) {
	// Arrange
	f := newFixture(t, "1.6.0", testTemplate, `
[broken]
index_parent = adafruit
directory = `+filepath.Join(t.TempDir(), "unused")+`
index_template = {{}}
`)
	sharedDir := filepath.Join(f.root, "src", "shared")
	testutil.WriteFiles(t, sharedDir, map[string]string{"platform.txt": "version=1.0.0\n"})
	extra := "\n[absent]\nindex_parent = adafruit\ndirectory = " + sharedDir + "\nindex_template = {{}}\n" +
		"\n[orphan]\nindex_parent = nobody\ndirectory = " + sharedDir + "\nindex_template = {{}}\n"
	regPath := filepath.Join(f.root, "bpt.ini")
	base, _ := os.ReadFile(regPath)
	if err := os.WriteFile(regPath, append(base, []byte(extra)...), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := registry.Load(regPath, registry.Options{})
	if err != nil {
		t.Fatal(err)
	}
	f.wf.Registry = r

	// Act
	report, err := f.wf.Check(context.Background())

	// Assert
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	want := map[string]Status{
		"avr":    StatusOutdated,
		"broken": StatusError,
		"absent": StatusAbsent,
		"orphan": StatusError,
	}
	if len(report.Entries) != len(want) {
		t.Fatalf("entries = %+v", report.Entries)
	}
	for _, e := range report.Entries {
		if e.Status != want[e.Name] {
			t.Errorf("%s: status = %s, want %s (err %v)", e.Name, e.Status, want[e.Name], e.Err)
		}
	}
	if report.Entries[0].LatestVersion != "1.5.0" {
		t.Errorf("latest = %q, want 1.5.0", report.Entries[0].LatestVersion)
	}
	if !report.Failed() {
		t.Error("Failed() = false with an unreadable package")
	}
	if !errors.Is(report.Err(), domain.ErrMissingVersion) {
		t.Errorf("Err() = %v", report.Err())
	}
	if !errors.Is(report.Err(), domain.ErrUnknownParent) {
		t.Errorf("Err() = %v, want unknown parent for orphan", report.Err())
	}
	if strings.Count(f.out.String(), "Not found in board index!") != 1 {
		t.Errorf("only the absent package should be reported as not found:\n%s", f.out.String())
	}
	if !strings.Contains(f.out.String(), "!!!! BOARD INDEX NOT UP TO DATE !!!!") {
		t.Errorf("output lacks outdated warning:\n%s", f.out.String())
	}
}

func TestCheck_AllCurrent(t *testing.T) {
	f := newFixture(t, "1.5.0", testTemplate, "")

	report, err := f.wf.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed() || len(report.Outdated()) != 0 {
		t.Errorf("report = %+v", report.Entries)
	}
	if report.Entries[0].Status != StatusCurrent {
		t.Errorf("status = %s", report.Entries[0].Status)
	}
}
