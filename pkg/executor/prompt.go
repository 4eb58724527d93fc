package executor

import "strings"

// MatchPrompt reports whether buf holds the echo of command followed by one of
// the device prompts. The echo is matched verbatim on the trimmed command;
// the prompts ("<name>#" for exec mode, "<name>(config" for any configuration
// submode) are matched case-insensitively and only after the echo, so a prompt
// printed before the command was echoed does not count.
func MatchPrompt(buf, command, name string) bool {
	echo := strings.TrimSpace(command)
	i := strings.Index(buf, echo)
	if i < 0 {
		return false
	}
	rest := strings.ToLower(buf[i+len(echo):])
	for _, p := range Prompts(name) {
		if strings.Contains(rest, p) {
			return true
		}
	}
	return false
}

// Prompts returns the lower-cased prompt patterns for a device.
func Prompts(name string) []string {
	n := strings.ToLower(name)
	return []string{n + "#", n + "(config"}
}
