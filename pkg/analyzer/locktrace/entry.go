package locktrace

import (
	"fmt"
	"path"
	"strings"

	"github.com/panbanda/locksmith/pkg/model"
)

// Matcher selects entry-point functions by glob patterns on the class and
// method name. An empty pattern matches everything.
type Matcher struct {
	Class  string `json:"class" toml:"class" yaml:"class" koanf:"class"`
	Method string `json:"method" toml:"method" yaml:"method" koanf:"method"`
}

// DefaultEntryPoints selects main and run methods of any class.
func DefaultEntryPoints() []Matcher {
	return []Matcher{
		{Class: "*", Method: "main"},
		{Class: "*", Method: "run"},
	}
}

// ParseEntryPoint parses "Class#method", "pkg.Class#method" or a bare
// method pattern.
func ParseEntryPoint(s string) (Matcher, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Matcher{}, fmt.Errorf("locktrace: empty entry point")
	}
	m := Matcher{Class: "*", Method: s}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		m.Class, m.Method = s[:i], s[i+1:]
		if m.Class == "" {
			m.Class = "*"
		}
	}
	if m.Method == "" {
		return Matcher{}, fmt.Errorf("locktrace: entry point %q has no method", s)
	}
	if err := m.Validate(); err != nil {
		return Matcher{}, err
	}
	return m, nil
}

// Validate reports malformed glob patterns.
func (m Matcher) Validate() error {
	for _, pat := range []string{m.Class, m.Method} {
		if _, err := path.Match(pat, ""); err != nil {
			return fmt.Errorf("locktrace: bad entry point pattern %q: %w", pat, err)
		}
	}
	return nil
}

// Matches reports whether fn is selected. Classes match on either their
// qualified or simple name. Lambdas and abstract methods never match.
func (m Matcher) Matches(fn *model.Function) bool {
	if fn.Lambda || fn.Abstract || fn.Class == nil {
		return false
	}
	if !glob(m.Method, fn.Name) {
		return false
	}
	return glob(m.Class, fn.Class.QualifiedName) || glob(m.Class, fn.Class.Name)
}

func (m Matcher) String() string {
	return m.Class + "#" + m.Method
}

func glob(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// SelectEntryPoints returns the ids of the functions matched by any
// matcher, in id order.
func SelectEntryPoints(funcs []*model.Function, matchers []Matcher) []model.FunctionID {
	var out []model.FunctionID
	for _, fn := range funcs {
		for _, m := range matchers {
			if m.Matches(fn) {
				out = append(out, fn.ID)
				break
			}
		}
	}
	return out
}
