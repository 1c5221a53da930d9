package domain

import (
	"path"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PackageNameRegex matches section and parent names usable in archive file
// names and index lookups.
var PackageNameRegex = regexp.MustCompile(`^[^/\\\x00-\x1f]+$`)

// NewValidator creates a configured validator instance. Field names in
// validation errors come from the `ini` struct tag so messages name the
// configuration key the user wrote.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("ini"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Package names end up in file names
	_ = v.RegisterValidation("package_name", func(fl validator.FieldLevel) bool {
		return PackageNameRegex.MatchString(fl.Field().String())
	})

	// Forward-slash relative path that stays inside its root
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		return IsContainedPath(fl.Field().String())
	})

	return v
}

// IsContainedPath reports whether p is a relative forward-slash path that
// does not climb out of the directory it is joined to.
func IsContainedPath(p string) bool {
	if p == "" || path.IsAbs(p) || strings.Contains(p, `\`) {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
