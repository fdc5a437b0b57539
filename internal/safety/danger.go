package safety

import (
	"regexp"
	"strings"
)

type dangerPattern struct {
	reason  string
	pattern *regexp.Regexp
}

var dangerPatterns = []dangerPattern{
	{"recursive force delete", regexp.MustCompile(`(?i)\brm\s+(?:-\S*\s+)*-(?:[a-z]*r[a-z]*f|[a-z]*f[a-z]*r)[a-z]*\b`)},
	{"recursive force delete", regexp.MustCompile(`(?i)\brm\s+(?:\S+\s+)*(?:--recursive\s+--force|--force\s+--recursive)\b`)},
	{"recursive force delete", regexp.MustCompile(`(?i)\brm\s+(?:[^\s;&|]+\s+)*-[a-z]*r[a-z]*\s+(?:[^\s;&|]+\s+)*-[a-z]*f[a-z]*\b`)},
	{"recursive force delete", regexp.MustCompile(`(?i)\brm\s+(?:[^\s;&|]+\s+)*-[a-z]*f[a-z]*\s+(?:[^\s;&|]+\s+)*-[a-z]*r[a-z]*\b`)},
	{"filesystem format", regexp.MustCompile(`(?i)\bmkfs(?:\.[a-z0-9]+)?\b`)},
	{"raw disk copy", regexp.MustCompile(`(?i)\bdd\s+(?:\S+\s+)*if=`)},
	{"power state change", regexp.MustCompile(`(?i)(?:^|[\s;&|])(?:sudo\s+)?(?:shutdown|reboot|halt|poweroff)\b`)},
	{"user removal", regexp.MustCompile(`(?i)\buserdel\b`)},
	{"world-writable root", regexp.MustCompile(`(?i)\bchmod\s+(?:-R\s+)?0?777\s+/(?:\s|$)`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`)},
	{"write to raw disk", regexp.MustCompile(`(?i)>\s*/dev/(?:sd[a-z]|nvme\d|hd[a-z]|disk\d|mmcblk\d)`)},
	{"remote script piped to shell", regexp.MustCompile(`(?i)\b(?:curl|wget)\b[^|]*\|\s*(?:sudo\s+)?(?:ba|z|da)?sh\b`)},
}

// DangerReason reports why command looks destructive, if it does.
func DangerReason(command string) (string, bool) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", false
	}
	for _, p := range dangerPatterns {
		if p.pattern.MatchString(trimmed) {
			return p.reason, true
		}
	}
	return "", false
}

// HighRisk is a convenience wrapper over DangerReason.
func HighRisk(command string) bool {
	_, ok := DangerReason(command)
	return ok
}
