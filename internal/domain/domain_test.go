package domain

import "testing"

func TestDescriptor_ArchiveName(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{name: "defaults", d: Descriptor{Name: "avr", Version: "1.4.9"}, want: "avr-1.4.9.tar.bz2"},
		{name: "prefix", d: Descriptor{Name: "avr", ArchivePrefix: "adafruit-avr", Version: "1.4.9"}, want: "adafruit-avr-1.4.9.tar.bz2"},
		{name: "extension", d: Descriptor{Name: "samd", Version: "2.0.0", ArchiveExt: "tar.zst"}, want: "samd-2.0.0.tar.zst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.ArchiveName(); got != tt.want {
				t.Errorf("ArchiveName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsContainedPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"hardware/avr", true},
		{"a/../b", true},
		{".", true},
		{"", false},
		{"/abs", false},
		{"..", false},
		{"../sibling", false},
		{"a/../../b", false},
		{`hardware\avr`, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsContainedPath(tt.path); got != tt.want {
				t.Errorf("IsContainedPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewValidator_PackageName(t *testing.T) {
	type section struct {
		Name string `validate:"package_name"`
	}
	v := NewValidator()

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"adafruit", false},
		{"Adafruit SAMD", false},
		{"a/b", true},
		{`a\b`, true},
		{"tab\tname", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(section{Name: tt.name})
			if (err != nil) != tt.wantErr {
				t.Errorf("validate %q: error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}
