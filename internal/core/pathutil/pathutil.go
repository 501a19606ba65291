// Package pathutil splits form field paths into segments and turns them into
// stable DOM-style ids. Pure functions only.
package pathutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/fieldstore/internal/models"
)

// Defaults used by ToIDDefault.
const (
	DefaultPrefix    = "path"
	DefaultSeparator = "-"
)

var (
	pathChars      = regexp.MustCompile(`^[A-Za-z0-9_\-.\[\]"' ]+$`)
	prefixChars    = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	separatorChars = regexp.MustCompile(`^[-_.:]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	register := func(tag string, re *regexp.Regexp) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	register("fieldpath", pathChars)
	register("idprefix", prefixChars)
	register("idseparator", separatorChars)
	return v
}

type idRequest struct {
	Path      string `validate:"required,max=256,fieldpath"`
	Prefix    string `validate:"required,max=64,idprefix"`
	Separator string `validate:"required,max=4,idseparator"`
}

// ToIDDefault is ToID with the "path" prefix and "-" separator.
func ToIDDefault(path string) (string, error) {
	return ToID(path, DefaultPrefix, DefaultSeparator)
}

// ToID converts a field path into an id: the prefix followed by every path
// segment, joined with separator. "location[1].state" becomes
// "path-location-1-state". A segment may not contain any separator character,
// so "a-b" is rejected under the default separator instead of colliding with
// "a.b".
func ToID(path, prefix, separator string) (string, error) {
	if err := validate.Struct(idRequest{Path: path, Prefix: prefix, Separator: separator}); err != nil {
		return "", validationError(err)
	}
	segments, err := Split(path)
	if err != nil {
		return "", err
	}
	for _, seg := range segments {
		if strings.ContainsAny(seg, separator) {
			return "", fmt.Errorf("%w: path segment %q contains separator %q", models.ErrValidation, seg, separator)
		}
	}
	return strings.Join(append([]string{prefix}, segments...), separator), nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s %q fails %q", models.ErrValidation, strings.ToLower(fe.Field()), fe.Value(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", models.ErrValidation, err)
}

// Split breaks a path into property segments the way a nested property
// accessor reads it: dots and [index] / ["key"] / ['key'] brackets both
// delimit segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", models.ErrValidation)
	}

	var (
		segments []string
		cur      strings.Builder
		// afterBracket suppresses the empty segment a dot would otherwise
		// produce in "a[0].b".
		afterBracket bool
	)

	for i := 0; i < len(path); i++ {
		c := path[i]
		switch c {
		case '.':
			if cur.Len() > 0 || !afterBracket {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			afterBracket = false
		case '[':
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			seg, end, err := readBracket(path, i)
			if err != nil {
				return nil, err
			}
			segments = append(segments, seg)
			i = end
			afterBracket = true
		default:
			cur.WriteByte(c)
			afterBracket = false
		}
	}
	if cur.Len() > 0 || path[len(path)-1] == '.' {
		segments = append(segments, cur.String())
	}
	return segments, nil
}

// readBracket parses the bracket expression opening at path[start] and
// returns its segment and the index of the closing ']'.
func readBracket(path string, start int) (string, int, error) {
	i := start + 1
	if i < len(path) && (path[i] == '"' || path[i] == '\'') {
		quote := path[i]
		var b strings.Builder
		for j := i + 1; j < len(path); j++ {
			switch {
			case path[j] == '\\' && j+1 < len(path):
				b.WriteByte(path[j+1])
				j++
			case path[j] == quote:
				if j+1 >= len(path) || path[j+1] != ']' {
					return "", 0, fmt.Errorf("%w: expected ] after quoted key at %d in %q", models.ErrValidation, j+1, path)
				}
				return b.String(), j + 1, nil
			default:
				b.WriteByte(path[j])
			}
		}
		return "", 0, fmt.Errorf("%w: unterminated quoted key in %q", models.ErrValidation, path)
	}

	end := strings.IndexByte(path[i:], ']')
	if end < 0 {
		return "", 0, fmt.Errorf("%w: unterminated bracket in %q", models.ErrValidation, path)
	}
	return strings.TrimSpace(path[i : i+end]), i + end, nil
}

// MustSplit is Split for paths known at compile time.
func MustSplit(path string) []string {
	segments, err := Split(path)
	if err != nil {
		panic(err)
	}
	return segments
}
