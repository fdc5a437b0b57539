package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/ashwch/cortana/internal/config"
)

func builtinChat(t *testing.T, prompt string, ctx map[string]any) Reply {
	t.Helper()
	adapter, _ := NewBuiltinAdapter("builtin", config.ProviderConfig{})
	reply, err := adapter.Complete(context.Background(), Request{
		Intent:   IntentChat,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
		Context:  ctx,
	})
	if err != nil {
		t.Fatalf("Complete(%q) failed: %v", prompt, err)
	}
	return reply
}

func TestBuiltinAdapterCommonRequests(t *testing.T) {
	cases := map[string]string{
		"list files":                            "ls",
		"list the files in my Documents folder": "ls ~/Documents",
		"go to my home directory":               "cd ~",
		"make a folder called Projects":         "mkdir -p Projects",
		"create an empty file notes.txt":        "touch notes.txt",
		"copy report.txt to backup/":            "cp -r report.txt backup/",
		"move draft.md to final.md":             "mv draft.md final.md",
		"delete old.log":                        "rm old.log",
		"how much disk space do I have":         "df -h",
		"show memory usage":                     "free -h",
		"show running processes":                "ps aux",
		"what is my ip address":                 "ip a",
		"ping example.com":                      "ping -c 4 example.com",
		"update packages":                       "sudo apt update",
		"install htop":                          "sudo apt install htop",
		"uninstall htop":                        "sudo apt remove htop",
		"find file named config.yaml":           `find . -name "config.yaml"`,
	}
	for prompt, want := range cases {
		if got := builtinChat(t, prompt, nil).Command; got != want {
			t.Errorf("%q: expected %q, got %q", prompt, want, got)
		}
	}
}

func TestBuiltinAdapterUsesSystemContext(t *testing.T) {
	ctx := map[string]any{"package_manager": "brew", "os": "darwin"}
	if got := builtinChat(t, "install jq", ctx).Command; got != "brew install jq" {
		t.Fatalf("expected brew install, got %q", got)
	}
	if got := builtinChat(t, "memory usage", ctx).Command; got != "vm_stat" {
		t.Fatalf("expected vm_stat on darwin, got %q", got)
	}
}

func TestBuiltinAdapterUnknownChatExplainsLimits(t *testing.T) {
	reply := builtinChat(t, "write me a haiku about kubernetes", nil)
	if reply.Command != "" || !strings.Contains(reply.Explanation, "OPENAI_API_KEY") {
		t.Fatalf("expected an explanation without a command, got %+v", reply)
	}
}

func TestBuiltinAdapterPlansMultiPartTasks(t *testing.T) {
	adapter, _ := NewBuiltinAdapter("builtin", config.ProviderConfig{})
	reply, err := adapter.Complete(context.Background(), Request{
		Intent:   IntentPlan,
		Messages: []Message{{Role: RoleUser, Content: "make a folder called demo and then create an empty file demo/readme.md, then list files"}},
	})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	var commands []string
	for _, step := range reply.Steps {
		commands = append(commands, step.Command)
	}
	if strings.Join(commands, " | ") != "mkdir -p demo | touch demo/readme.md | ls" {
		t.Fatalf("unexpected steps %+v", reply.Steps)
	}

	_, err = adapter.Complete(context.Background(), Request{
		Intent:   IntentPlan,
		Messages: []Message{{Role: RoleUser, Content: "list files and then compose a symphony"}},
	})
	if err == nil {
		t.Fatalf("expected unknown step to fail the plan")
	}
}

func TestBuiltinAdapterFix(t *testing.T) {
	adapter, _ := NewBuiltinAdapter("builtin", config.ProviderConfig{})
	reply, err := adapter.Complete(context.Background(), Request{
		Intent:  IntentFix,
		Context: map[string]any{"failed_command": "gti status"},
	})
	if err != nil || reply.Command != "git status" {
		t.Fatalf("expected typo fix, got %+v (%v)", reply, err)
	}

	reply, err = adapter.Complete(context.Background(), Request{
		Intent:   IntentFix,
		Messages: []Message{{Role: RoleUser, Content: `Failed command: "sl -la"`}},
	})
	if err != nil || reply.Command != "ls -la" {
		t.Fatalf("expected fix from prompt text, got %+v (%v)", reply, err)
	}

	if _, err := adapter.Complete(context.Background(), Request{Intent: IntentFix}); err == nil {
		t.Fatalf("expected error without a failed command")
	}
}
