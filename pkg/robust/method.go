// Package robust implements the sample-consensus estimation framework:
// RANSAC, LMedS, MSAC, PROSAC and PROMedS over any model family that
// implements Model.
package robust

import (
	"strings"

	"github.com/pkg/errors"
)

// Method selects the robust algorithm.
type Method int

const (
	// RANSAC keeps the candidate with the most inliers within a threshold.
	RANSAC Method = iota
	// LMedS keeps the candidate with the least median of squared residuals.
	LMedS
	// MSAC keeps the candidate with the least truncated residual sum.
	MSAC
	// PROSAC is RANSAC with quality-ordered progressive sampling.
	PROSAC
	// PROMedS is LMedS with quality-ordered progressive sampling.
	PROMedS
)

// DefaultMethod is used when no method is given.
const DefaultMethod = PROMedS

var methodNames = map[Method]string{
	RANSAC:  "RANSAC",
	LMedS:   "LMedS",
	MSAC:    "MSAC",
	PROSAC:  "PROSAC",
	PROMedS: "PROMedS",
}

// Methods returns all supported methods.
func Methods() []Method {
	return []Method{RANSAC, LMedS, MSAC, PROSAC, PROMedS}
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "Method(unknown)"
}

// Valid reports whether m is one of the five supported methods.
func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

// ParseMethod parses a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown method %q", s)
}

// RequiresQualityScores reports whether the method samples by quality.
func (m Method) RequiresQualityScores() bool {
	return m == PROSAC || m == PROMedS
}

// UsesThreshold reports whether the method classifies inliers with the
// configured threshold. The median methods derive their own.
func (m Method) UsesThreshold() bool {
	return m == RANSAC || m == MSAC || m == PROSAC
}

// UsesMedian reports whether the method scores by median residual.
func (m Method) UsesMedian() bool {
	return m == LMedS || m == PROMedS
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown method %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
