// Package safety implements the opt-in gate that callers must pass before
// any reverse engineered or potentially destructive bus operation runs.
package safety

import (
	"errors"
	"sort"
	"strings"
)

// Well known feature tokens
const (
	SMBus           = "smbus"
	DDR4Temperature = "ddr4_temperature"
	VengeanceRGB    = "vengeance_rgb"
)

// ErrNotEnabled is matched by every *NotEnabledError
var ErrNotEnabled = errors.New("unsafe features not enabled")

// NotEnabledError reports which features the caller failed to enable
type NotEnabledError struct {
	Features []string
}

func (e *NotEnabledError) Error() string {
	return ErrNotEnabled.Error() + ": " + strings.Join(e.Features, ", ")
}

// Is makes errors.Is(err, ErrNotEnabled) succeed
func (e *NotEnabledError) Is(target error) bool {
	return target == ErrNotEnabled
}

// Tokens is the set of unsafe features enabled for a single call.
// The zero value enables nothing.
type Tokens map[string]struct{}

// Parse builds a token set. Each value may itself be a comma separated
// list; tokens are trimmed and lowercased, empty ones are dropped.
func Parse(values ...string) Tokens {
	t := Tokens{}
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				t[tok] = struct{}{}
			}
		}
	}
	return t
}

// Has reports whether every one of features is enabled
func (t Tokens) Has(features ...string) bool {
	for _, f := range features {
		if _, ok := t[f]; !ok {
			return false
		}
	}
	return true
}

// Require returns a *NotEnabledError naming the missing features, or nil
func (t Tokens) Require(features ...string) error {
	var missing []string
	for _, f := range features {
		if _, ok := t[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &NotEnabledError{Features: missing}
}

// Union returns a new set holding the tokens of both sets
func (t Tokens) Union(other Tokens) Tokens {
	u := make(Tokens, len(t)+len(other))
	for k := range t {
		u[k] = struct{}{}
	}
	for k := range other {
		u[k] = struct{}{}
	}
	return u
}

// List returns the enabled tokens in sorted order
func (t Tokens) List() []string {
	list := make([]string, 0, len(t))
	for k := range t {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

func (t Tokens) String() string {
	return strings.Join(t.List(), ",")
}
