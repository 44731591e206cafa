package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindMalformed
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindMalformed:
		return "malformed"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Sentinels matched by ConfigError.Is.
var (
	ErrNotFound  = errors.New("config file not found")
	ErrMalformed = errors.New("config file is malformed")
	ErrInvalid   = errors.New("config is invalid")
)

// ConfigError is returned by Load, Save and Validate.
type ConfigError struct {
	Kind     ErrorKind
	Path     string
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindNotFound:
		fmt.Fprintf(&b, "config file %q not found", e.Path)
	case KindMalformed:
		fmt.Fprintf(&b, "failed to parse config file %q", e.Path)
	case KindInvalid:
		if e.Path != "" {
			fmt.Fprintf(&b, "invalid config file %q", e.Path)
		} else {
			b.WriteString("invalid config")
		}
		if len(e.Problems) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(e.Problems, "; "))
		}
		return b.String()
	default:
		b.WriteString("config error")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is lets callers match on the error kind with errors.Is.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrInvalid:
		return e.Kind == KindInvalid
	}
	return false
}
