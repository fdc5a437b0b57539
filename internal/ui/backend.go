// Package ui is the terminal surface: the confirmation gate, line input,
// step picker, onboarding card and output rendering.
package ui

import "strings"

const (
	BackendAuto      = "auto"
	BackendBubbleTea = "bubbletea"
	BackendHuh       = "huh"
	BackendTView     = "tview"
	BackendPlain     = "plain"
)

func NormalizeBackend(backend string) string {
	switch b := strings.ToLower(strings.TrimSpace(backend)); b {
	case BackendBubbleTea, BackendHuh, BackendTView, BackendPlain:
		return b
	default:
		return BackendAuto
	}
}

// Effective picks the backend for this run. Without a terminal on both
// ends only the plain backend can work.
func Effective(backend string, interactive bool) string {
	if !interactive {
		return BackendPlain
	}
	return NormalizeBackend(backend)
}

func IsInteractiveBackend(backend string) bool {
	return NormalizeBackend(backend) != BackendPlain
}

// backendCandidates lists TUI backends to try in order. The chosen one
// comes first; the others are fallbacks.
func backendCandidates(backend string) []string {
	switch NormalizeBackend(backend) {
	case BackendHuh:
		return []string{BackendHuh, BackendBubbleTea, BackendTView}
	case BackendTView:
		return []string{BackendTView, BackendBubbleTea, BackendHuh}
	case BackendPlain:
		return []string{BackendPlain}
	default:
		return []string{BackendBubbleTea, BackendHuh, BackendTView}
	}
}
