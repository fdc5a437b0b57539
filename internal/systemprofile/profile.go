// Package systemprofile gathers facts about the host that help the assistant
// pick commands that actually work here.
package systemprofile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

const schemaVersion = 1

var (
	lookPath      = exec.LookPath
	osReleasePath = "/etc/os-release"
	now           = time.Now
)

type Profile struct {
	Version        int      `json:"version"`
	CapturedAt     string   `json:"captured_at"`
	OS             string   `json:"os"`
	Arch           string   `json:"arch"`
	Distro         string   `json:"distro,omitempty"`
	Kernel         string   `json:"kernel,omitempty"`
	Hostname       string   `json:"hostname,omitempty"`
	User           string   `json:"user,omitempty"`
	Home           string   `json:"home,omitempty"`
	Shell          string   `json:"shell,omitempty"`
	Locale         string   `json:"locale,omitempty"`
	PackageManager string   `json:"package_manager,omitempty"`
	Tools          []string `json:"tools,omitempty"`
}

// Capture inspects the current machine. Every probe is best effort.
func Capture() Profile {
	profile := Profile{
		Version:    schemaVersion,
		CapturedAt: now().UTC().Format(time.RFC3339),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
	profile.Distro = detectDistro()
	profile.Kernel = detectKernel()
	if host, err := os.Hostname(); err == nil {
		profile.Hostname = host
	}
	if u, err := user.Current(); err == nil {
		profile.User = u.Username
	}
	if home, err := os.UserHomeDir(); err == nil {
		profile.Home = home
	}
	profile.Shell = detectShell()
	profile.Locale = detectLocale()
	profile.Tools = detectTools()
	profile.PackageManager = detectPackageManager(profile.Tools)
	profile.Normalize()
	return profile
}

func (p Profile) IsZero() bool {
	return p.OS == "" && p.CapturedAt == ""
}

func (p Profile) IsStale(refreshHours int) bool {
	if refreshHours <= 0 {
		refreshHours = 24 * 7
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(p.CapturedAt))
	if err != nil {
		return true
	}
	age := now().Sub(ts)
	if age < 0 {
		return false
	}
	return age > time.Duration(refreshHours)*time.Hour
}

// PromptContext renders the profile as compact key=value lines.
func (p Profile) PromptContext(maxTools int) string {
	p.Normalize()
	if maxTools <= 0 {
		maxTools = 16
	}
	lines := make([]string, 0, 4)

	base := []string{}
	for _, kv := range [][2]string{
		{"os", p.OS}, {"arch", p.Arch}, {"distro", p.Distro}, {"kernel", p.Kernel},
	} {
		if kv[1] != "" {
			base = append(base, kv[0]+"="+quoteIfSpaced(kv[1]))
		}
	}
	if len(base) > 0 {
		lines = append(lines, strings.Join(base, " "))
	}

	env := []string{}
	for _, kv := range [][2]string{
		{"user", p.User}, {"home", p.Home}, {"shell", p.Shell}, {"locale", p.Locale}, {"package_manager", p.PackageManager},
	} {
		if kv[1] != "" {
			env = append(env, kv[0]+"="+quoteIfSpaced(kv[1]))
		}
	}
	if len(env) > 0 {
		lines = append(lines, strings.Join(env, " "))
	}
	if len(p.Tools) > 0 {
		lines = append(lines, "tools="+strings.Join(trimList(p.Tools, maxTools), ", "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (p Profile) HumanSummary(maxTools int) string {
	context := p.PromptContext(maxTools)
	if context == "" {
		return ""
	}
	lines := strings.Split(context, "\n")
	bullets := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			bullets = append(bullets, "- "+line)
		}
	}
	return strings.Join(bullets, "\n")
}

func (p *Profile) Normalize() {
	if p == nil {
		return
	}
	if p.Version == 0 {
		p.Version = schemaVersion
	}
	p.CapturedAt = strings.TrimSpace(p.CapturedAt)
	p.OS = strings.TrimSpace(strings.ToLower(p.OS))
	p.Arch = strings.TrimSpace(strings.ToLower(p.Arch))
	p.Distro = strings.TrimSpace(p.Distro)
	p.Kernel = strings.TrimSpace(p.Kernel)
	p.Hostname = strings.TrimSpace(p.Hostname)
	p.User = strings.TrimSpace(p.User)
	p.Home = strings.TrimSpace(p.Home)
	if p.Shell != "" {
		p.Shell = strings.TrimSpace(strings.ToLower(filepath.Base(p.Shell)))
	}
	p.Locale = strings.TrimSpace(p.Locale)
	p.PackageManager = strings.TrimSpace(strings.ToLower(p.PackageManager))
	p.Tools = normalizeStringList(p.Tools)
}

func detectShell() string {
	if shell := strings.TrimSpace(os.Getenv("SHELL")); shell != "" {
		return filepath.Base(shell)
	}
	if runtime.GOOS == "windows" {
		if comspec := strings.TrimSpace(os.Getenv("COMSPEC")); comspec != "" {
			return filepath.Base(comspec)
		}
	}
	return ""
}

func detectLocale() string {
	for _, candidate := range []string{os.Getenv("LC_ALL"), os.Getenv("LC_MESSAGES"), os.Getenv("LANG")} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

func detectDistro() string {
	file, err := os.Open(osReleasePath)
	if err != nil {
		return ""
	}
	defer file.Close()
	return parseOSRelease(file)
}

func parseOSRelease(r io.Reader) string {
	values := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	if pretty := values["PRETTY_NAME"]; pretty != "" {
		return pretty
	}
	return strings.TrimSpace(values["NAME"] + " " + values["VERSION_ID"])
}

func detectKernel() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	if _, err := lookPath("uname"); err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	out, err := exec.CommandContext(ctx, "uname", "-r").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

var toolCandidates = []string{
	"git", "gh", "docker", "podman", "kubectl", "systemctl", "journalctl",
	"apt", "dnf", "yum", "pacman", "zypper", "apk", "brew",
	"python3", "node", "npm", "go", "cargo", "make",
	"curl", "wget", "jq", "rg", "fzf", "htop", "tmux", "ssh", "rsync",
	"ip", "ifconfig", "ss", "netstat", "free", "df", "lsblk",
}

func detectTools() []string {
	installed := make([]string, 0, len(toolCandidates))
	for _, candidate := range toolCandidates {
		if _, err := lookPath(candidate); err == nil {
			installed = append(installed, candidate)
		}
	}
	return installed
}

// detectPackageManager picks the first known package manager on PATH.
func detectPackageManager(tools []string) string {
	have := map[string]bool{}
	for _, tool := range tools {
		have[tool] = true
	}
	for _, pm := range []string{"apt", "dnf", "yum", "pacman", "zypper", "apk", "brew"} {
		if have[pm] {
			return pm
		}
	}
	return ""
}

func normalizeStringList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func trimList(values []string, limit int) []string {
	if limit <= 0 || limit >= len(values) {
		return values
	}
	out := append([]string(nil), values[:limit]...)
	return append(out, fmt.Sprintf("+%d more", len(values)-limit))
}

func quoteIfSpaced(value string) string {
	if strings.ContainsAny(value, " \t") {
		return fmt.Sprintf("%q", value)
	}
	return value
}
