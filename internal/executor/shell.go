package executor

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// resolveShell picks the shell binary: the configured one, then $SHELL,
// then sh. A shell that cannot be found is skipped.
func resolveShell(configured string) string {
	if runtime.GOOS == "windows" {
		if comspec := strings.TrimSpace(os.Getenv("COMSPEC")); comspec != "" {
			return comspec
		}
		return "cmd"
	}
	for _, candidate := range []string{configured, os.Getenv("SHELL")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if filepath.IsAbs(candidate) {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			continue
		}
		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved
		}
	}
	return "sh"
}

func shellCommandInvocation(shell, script string, login bool) (string, []string) {
	if runtime.GOOS == "windows" {
		return shell, []string{"/C", script}
	}
	flag := "-c"
	if login {
		flag = "-lc"
	}
	return shell, []string{flag, script}
}

// posixShell reports whether shell understands the sh syntax used by the
// directory-tracking wrapper.
func posixShell(shell string) bool {
	switch strings.ToLower(filepath.Base(shell)) {
	case "sh", "bash", "zsh", "dash", "ksh", "mksh", "ash", "busybox", "yash":
		return true
	default:
		return false
	}
}

const (
	dirFD        = 3
	statusVar    = "__cortana_status"
	trackWrapper = "{\n%s\n} 3>&-\n" + statusVar + "=$?\npwd -P >&3 2>/dev/null\nexit $" + statusVar + "\n"
)

// interactivePrograms take over the terminal; they run attached to it
// without capture.
var interactivePrograms = map[string]struct{}{
	"vim": {}, "vi": {}, "nvim": {}, "nano": {}, "emacs": {}, "less": {}, "more": {},
	"man": {}, "top": {}, "htop": {}, "btop": {}, "watch": {}, "ssh": {}, "tmux": {},
	"screen": {}, "mysql": {}, "psql": {}, "python": {}, "python3": {}, "node": {},
	"irb": {}, "ftp": {}, "sftp": {}, "telnet": {},
}

func isInteractive(command string) bool {
	fields := strings.Fields(command)
	for len(fields) > 0 && (fields[0] == "sudo" || strings.Contains(fields[0], "=")) {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return false
	}
	name := filepath.Base(fields[0])
	if _, ok := interactivePrograms[name]; !ok {
		return false
	}
	// "python script.py" or "ssh host uptime" are ordinary batch commands.
	switch name {
	case "python", "python3", "node", "irb":
		return len(fields) == 1
	case "ssh":
		return len(fields) <= 2
	case "mysql", "psql":
		for _, f := range fields[1:] {
			if f == "-e" || f == "-c" {
				return false
			}
		}
	}
	return true
}

// plainCD recognises a bare "cd <dir>" so the tracked directory can be
// updated on shells where the wrapper cannot run.
func plainCD(command string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 || fields[0] != "cd" || len(fields) > 2 {
		return "", false
	}
	if strings.ContainsAny(command, ";&|`$(") {
		return "", false
	}
	if len(fields) == 1 {
		return "~", true
	}
	return strings.Trim(fields[1], `"'`), true
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
