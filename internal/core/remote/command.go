package remote

import (
	"strings"

	"github.com/alessio/shellescape"
	"github.com/artpar/templdeploy/internal/core/domain"
)

// MockHost is the sentinel host that never gets a connection attempt.
const MockHost = "mock_ip"

// Destination identifies where a command runs and how to authenticate.
type Destination struct {
	Host       string
	Port       int
	Username   string
	PrivateKey string // inline key material, wins over KeyFile
	KeyFile    string
}

// DestinationFor builds the destination of a resolved deployment unit.
func DestinationFor(p domain.EffectiveParameters) Destination {
	return Destination{
		Host:       p.Host,
		Port:       p.Port,
		Username:   p.User,
		PrivateKey: p.Identity.PrivateKey,
		KeyFile:    p.Identity.KeyFile,
	}
}

// IsMock reports whether the destination must be short-circuited.
func (d Destination) IsMock() bool {
	return d.Host == "" || d.Host == MockHost
}

// Command describes a remote command. Text is shell source written by the
// user and is passed through untouched; Dir is quoted when the command is
// rendered.
type Command struct {
	Dir  string
	Text string
}

// CommandFor builds the post-deploy command of a resolved deployment unit.
// It runs inside the destination directory.
func CommandFor(p domain.EffectiveParameters) Command {
	return Command{Dir: p.DestinationDir, Text: p.RemoteCommand}
}

// Script renders the command as a single remote shell line.
func (c Command) Script() string {
	if c.Dir == "" {
		return c.Text
	}
	return "cd " + QuoteDir(c.Dir) + " && " + c.Text
}

// QuoteDir quotes a remote directory for the shell. A leading "~" is
// rewritten to "$HOME" outside the quotes so the remote shell expands it.
func QuoteDir(dir string) string {
	if dir == "~" {
		return `"$HOME"`
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		if rest == "" {
			return `"$HOME"/`
		}
		return `"$HOME"/` + shellescape.Quote(rest)
	}
	return shellescape.Quote(dir)
}
