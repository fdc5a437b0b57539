// Package router classifies a line typed into the chat loop: a slash
// command, an exit request, or a message for the assistant.
package router

import (
	"sort"
	"strings"
)

type Intent string

const (
	IntentChat    Intent = "chat"
	IntentExit    Intent = "exit"
	IntentEmpty   Intent = "empty"
	IntentHelp    Intent = "help"
	IntentPlan    Intent = "plan"
	IntentResume  Intent = "resume"
	IntentEdit    Intent = "edit"
	IntentPlans   Intent = "plans"
	IntentKB      Intent = "kb"
	IntentRules   Intent = "rules"
	IntentFix     Intent = "fix"
	IntentClear   Intent = "clear"
	IntentPwd     Intent = "pwd"
	IntentUnknown Intent = "unknown"
)

// Route is a classified input line. Arg is the text after the command
// name, or the whole line for chat.
type Route struct {
	Intent Intent
	Name   string
	Arg    string
}

type command struct {
	intent Intent
	usage  string
	help   string
}

var commands = map[string]command{
	"help":   {IntentHelp, "/help", "show this help"},
	"plan":   {IntentPlan, "/plan <task>", "break a task into steps and run them one by one"},
	"resume": {IntentResume, "/resume [id]", "continue the latest or the given paused plan"},
	"edit":   {IntentEdit, "/edit [id]", "edit the steps of a plan"},
	"plans":  {IntentPlans, "/plans", "list saved plans"},
	"kb":     {IntentKB, "/kb [set key value | note text]", "show or update the knowledge base"},
	"rules":  {IntentRules, "/rules [command]", "show the safety rules or check a command"},
	"fix":    {IntentFix, "/fix [context]", "suggest a fix for the last failed command"},
	"clear":  {IntentClear, "/clear", "forget the conversation so far"},
	"pwd":    {IntentPwd, "/pwd", "show the directory commands run in"},
	"exit":   {IntentExit, "/exit", "end the session"},
}

var aliases = map[string]string{
	"?":    "help",
	"h":    "help",
	"quit": "exit",
	"q":    "exit",
	"p":    "plan",
}

func Parse(line string) Route {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Route{Intent: IntentEmpty}
	}
	switch strings.ToLower(trimmed) {
	case "exit", "quit":
		return Route{Intent: IntentExit, Name: strings.ToLower(trimmed)}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Route{Intent: IntentChat, Arg: trimmed}
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	name = strings.ToLower(strings.TrimSpace(name))
	arg = strings.TrimSpace(arg)
	if target, ok := aliases[name]; ok {
		name = target
	}
	cmd, ok := commands[name]
	if !ok {
		return Route{Intent: IntentUnknown, Name: name, Arg: arg}
	}
	return Route{Intent: cmd.intent, Name: name, Arg: arg}
}

// Names lists every slash command, for tab completion.
func Names() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, "/"+name)
	}
	sort.Strings(names)
	return names
}

// Help renders one line per command.
func Help() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		cmd := commands[name]
		b.WriteString("  ")
		b.WriteString(cmd.usage)
		b.WriteString(strings.Repeat(" ", max(1, 34-len(cmd.usage))))
		b.WriteString(cmd.help)
		b.WriteString("\n")
	}
	b.WriteString("  exit | quit                       end the session\n")
	return b.String()
}
