package uninstall

import (
	"regexp"
	"strings"

	"github.com/juju/errors"
)

// commandLinePattern splits an uninstall string into the program, which ends
// at the first three letter extension and may be quoted, and its arguments.
var commandLinePattern = regexp.MustCompile(`"?(?P<command>.*?\.[a-zA-Z]{3})"?(?: (?P<args>.*)?)?`)

// ParseCommandLine splits an uninstall string as registered by installers,
// e.g. `"C:\Program Files\Vendor\uninstall.exe" /S /norestart`.
// Arguments are separated by single spaces.
func ParseCommandLine(commandLine string) (string, []string, error) {
	m := commandLinePattern.FindStringSubmatch(strings.TrimSpace(commandLine))
	if m == nil {
		return "", nil, errors.NotValidf("uninstall command %q", commandLine)
	}
	program := m[commandLinePattern.SubexpIndex("command")]
	rest := m[commandLinePattern.SubexpIndex("args")]

	var args []string
	for _, arg := range strings.Split(rest, " ") {
		if arg != "" {
			args = append(args, arg)
		}
	}
	return program, args, nil
}

// programDir returns the directory part of a Windows or slash separated
// program path, without the trailing separator.
func programDir(program string) string {
	i := strings.LastIndexAny(program, `\/`)
	if i < 0 {
		return ""
	}
	return program[:i]
}
