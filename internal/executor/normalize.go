package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// NormalizeCommand strips the wrapping models like to put around commands
// (code fences, prompt markers) and rejects empty or NUL-bearing input.
func NormalizeCommand(command string) (string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", fmt.Errorf("command contains invalid null byte")
	}

	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		lines = lines[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		trimmed = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`") && len(trimmed) > 1 {
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}

	for _, prefix := range []string{"$ ", "> ", "# "} {
		if strings.HasPrefix(trimmed, prefix) {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			break
		}
	}

	if trimmed == "" {
		return "", fmt.Errorf("command cannot be empty")
	}
	return trimmed, nil
}

type typoFix struct {
	wrong  string
	right  string
	reason string
}

var commandTypos = []typoFix{
	{"gti", "git", "common typo: gti -> git"},
	{"got", "git", "common typo: got -> git"},
	{"sl", "ls", "common typo: sl -> ls"},
	{"grpe", "grep", "common typo: grpe -> grep"},
	{"suod", "sudo", "common typo: suod -> sudo"},
	{"sduo", "sudo", "common typo: sduo -> sudo"},
	{"pyhton", "python", "common typo: pyhton -> python"},
	{"pytohn", "python", "common typo: pytohn -> python"},
	{"dokcer", "docker", "common typo: dokcer -> docker"},
	{"mkidr", "mkdir", "common typo: mkidr -> mkdir"},
	{"cta", "cat", "common typo: cta -> cat"},
}

var (
	cdDotsPattern   = regexp.MustCompile(`^cd\.\.(/.*)?$`)
	aptNoSudo       = regexp.MustCompile(`^(apt|apt-get|dnf|yum|pacman|zypper)\s+(install|update|upgrade|remove)\b`)
	permissionError = regexp.MustCompile(`(?i)(permission denied|are you root|must be run as root|operation not permitted)`)
)

// SuggestFix proposes a corrected command for a failed one, using the
// failure output when it is available. It returns empty strings when it
// has nothing to offer.
func SuggestFix(command, output string) (string, string) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", ""
	}
	fields := strings.Fields(trimmed)
	for _, typo := range commandTypos {
		if fields[0] == typo.wrong {
			return typo.right + strings.TrimPrefix(trimmed, typo.wrong), typo.reason
		}
	}
	switch {
	case cdDotsPattern.MatchString(trimmed):
		return "cd " + strings.TrimPrefix(trimmed, "cd"), "cd needs a space before the path"
	case strings.Contains(trimmed, "aws-vault clear"):
		return "aws-vault remove --all", "aws-vault clear is often remove --all"
	case fields[0] == "git" && len(fields) > 1 && fields[1] == "stauts":
		return strings.Replace(trimmed, "stauts", "status", 1), "common typo: stauts -> status"
	case fields[0] == "git" && len(fields) > 1 && fields[1] == "pul":
		return strings.Replace(trimmed, "pul", "pull", 1), "common typo: pul -> pull"
	}
	if fields[0] != "sudo" && (aptNoSudo.MatchString(trimmed) || permissionError.MatchString(output)) {
		return "sudo " + trimmed, "the command needs elevated privileges"
	}
	return "", ""
}
