package flow

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/intakemesh/core"
)

// Validator reports whether free text is acceptable for a step.
type Validator func(input string) bool

// ValidatorSpec names a builtin validator, or a custom pattern.
type ValidatorSpec struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// ValidationError is returned when input fails a step validator.
type ValidationError struct {
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at step %q: %s", e.Step, e.Message)
}

func (e *ValidationError) Unwrap() error { return core.ErrValidation }

var (
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	amountPattern  = regexp.MustCompile(`^[0-9][0-9,]{0,15}(\.[0-9]{1,2})?$`)
)

// DateLayouts are the accepted incident date formats.
var DateLayouts = []string{"02-01-2006", "02/01/2006", "2006-01-02", "2-1-2006", "2/1/2006"}

var builtinValidators = map[string]Validator{
	"phone": func(s string) bool {
		return phonePattern.MatchString(stripSeparators(s))
	},
	"pincode": func(s string) bool {
		return pincodePattern.MatchString(strings.TrimSpace(s))
	},
	"ifsc": func(s string) bool {
		return ifscPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
	},
	"email": func(s string) bool {
		addr, err := mail.ParseAddress(strings.TrimSpace(s))
		return err == nil && addr.Name == "" && strings.Contains(addr.Address, ".")
	},
	"amount": func(s string) bool {
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "Rs."), "₹")
		return amountPattern.MatchString(strings.TrimSpace(s))
	},
	"date": func(s string) bool {
		_, ok := ParseDate(s)
		return ok
	},
}

// ParseDate parses s using DateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
}

func compileValidator(spec *ValidatorSpec) (Validator, error) {
	if spec == nil {
		return nil, nil
	}
	if spec.Name == "pattern" || (spec.Name == "" && spec.Pattern != "") {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", spec.Pattern, err)
		}
		return func(s string) bool { return re.MatchString(strings.TrimSpace(s)) }, nil
	}
	v, ok := builtinValidators[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", spec.Name)
	}
	return v, nil
}
