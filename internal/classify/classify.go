// Package classify maps arbitrary handler failures onto the closed error
// taxonomy used to decide retryability.
package classify

import (
	"errors"
	"strings"

	"github.com/mhersta/conveyor/pkg/api"
)

// Classify inspects err and returns one of the eight defined error kinds.
// It never panics and always returns a valid kind; nil maps to
// api.ErrUnknown.
//
// Classification is best-effort: a status code attached to the error (via
// api.StatusCoder) is decisive when it matches a known rule; otherwise a
// case-insensitive substring match against the error message is used.
func Classify(err error) api.ErrorKind {
	if err == nil {
		return api.ErrUnknown
	}

	if code, ok := statusCode(err); ok {
		if kind, decisive := classifyStatus(code); decisive {
			return kind
		}
	}

	return classifyMessage(err.Error())
}

func statusCode(err error) (int, bool) {
	var sc api.StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode(), true
	}
	return 0, false
}

func classifyStatus(code int) (api.ErrorKind, bool) {
	switch {
	case code == 429:
		return api.ErrRateLimit, true
	case code == 401 || code == 403:
		return api.ErrAuth, true
	case code == 400 || code == 422:
		return api.ErrValidation, true
	case code == 404:
		return api.ErrNotFound, true
	case code >= 500 && code <= 599:
		return api.ErrServer, true
	}
	// Other codes are not decisive; fall through to message rules.
	return api.ErrUnknown, false
}

// substringRules are checked in order; the first match wins.
var substringRules = []struct {
	kind    api.ErrorKind
	needles []string
}{
	{api.ErrTimeout, []string{"timeout", "timed out"}},
	{api.ErrNetwork, []string{"network", "connection", "no such host", "fetch failed"}},
	{api.ErrRateLimit, []string{"rate limit", "too many requests"}},
	{api.ErrAuth, []string{"unauthorized", "authentication"}},
	{api.ErrValidation, []string{"validation", "invalid"}},
	{api.ErrNotFound, []string{"not found"}},
}

func classifyMessage(msg string) api.ErrorKind {
	msg = strings.ToLower(msg)
	for _, rule := range substringRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.kind
			}
		}
	}
	return api.ErrUnknown
}
