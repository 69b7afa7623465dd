package remote

import (
	"errors"
	"regexp"
	"syscall"
)

// Class is the retry classification of a connection failure.
type Class int

const (
	// Terminal failures stop the retry loop immediately.
	Terminal Class = iota
	// Transient failures are retried with backoff.
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "terminal"
}

// transientPatterns adapt transport error text that does not carry a typed
// errno, such as messages relayed from an ssh binary or a proxy.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ssh_exchange_identification|kex_exchange_identification|handshake failed).*connection reset by peer`),
	regexp.MustCompile(`(?i)ssh: connect to host \S+ port \d+: connection refused`),
	regexp.MustCompile(`(?i)connection failed: (connect )?ECONNREFUSED`),
	regexp.MustCompile(`(?i)dial tcp \S+: connect: connection refused`),
}

// Classify decides whether a connection failure is worth retrying. Typed
// errno values are checked first; message patterns are the fallback.
func Classify(err error) Class {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Transient
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a connection failure by its text alone.
func ClassifyMessage(msg string) Class {
	for _, re := range transientPatterns {
		if re.MatchString(msg) {
			return Transient
		}
	}
	return Terminal
}
