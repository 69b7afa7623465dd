package remote

import "regexp"

// Result markers.
const (
	NotExecutedPrefix = "Not executed: "
	UnknownError      = "unknown error"
)

var hostKeyWarning = regexp.MustCompile(`Warning: Permanently added '[^']*' .*(\r\n|\n|\r)`)

// CleanStderr strips the "permanently added host key" notices that ssh
// prints on first contact with a host.
func CleanStderr(stderr string) string {
	return hostKeyWarning.ReplaceAllString(stderr, "")
}

// TerminalStderr post-processes the stderr of a final result. A failure with
// no stderr at all gets the UnknownError marker.
func TerminalStderr(exitCode int, stderr string) string {
	stderr = CleanStderr(stderr)
	if exitCode != 0 && stderr == "" {
		return UnknownError
	}
	return stderr
}

// NotExecuted returns the stderr marker of a skipped command.
func NotExecuted(c Command) string {
	return NotExecutedPrefix + c.Script()
}
