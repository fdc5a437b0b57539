package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ashwch/cortana/internal/config"
)

var placeholderRegex = regexp.MustCompile(`\{([a-z_]+)\}`)

// CommandAdapter drives an external AI CLI such as `claude -p`. The whole
// conversation is flattened into a single prompt argument.
type CommandAdapter struct {
	name string
	cfg  config.ProviderConfig
}

func NewCommandAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = name
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = name
	}
	if strings.TrimSpace(cfg.ModelFlag) == "" {
		cfg.ModelFlag = "--model"
	}
	return &CommandAdapter{name: name, cfg: cfg}, nil
}

func (a *CommandAdapter) Name() string { return a.name }
func (a *CommandAdapter) Type() string { return "command" }

func (a *CommandAdapter) HealthCheck() error {
	if _, err := exec.LookPath(a.cfg.Command); err != nil {
		return fmt.Errorf("command not found in PATH: %s", a.cfg.Command)
	}
	return nil
}

func (a *CommandAdapter) Complete(ctx context.Context, req Request) (Reply, error) {
	values, cleanup, err := a.prepareValues(req)
	if err != nil {
		return Reply{}, err
	}
	defer cleanup()

	invocation, err := a.BuildInvocation(values)
	if err != nil {
		return Reply{}, err
	}

	cmd := exec.CommandContext(ctx, invocation[0], invocation[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return Reply{}, fmt.Errorf("provider command failed (%s): %w; stderr=%s", a.cfg.Command, runErr, truncate(stderr.String(), 800))
	}
	raw := readPreferredOutput(values["output_file"], stdout.String())

	reply, parseErr := parseReply(raw)
	if parseErr == nil {
		return reply, nil
	}
	combined := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
	if extracted, ok := extractJSONObject(combined); ok {
		if parsed, err := parseReply(extracted); err == nil {
			return parsed, nil
		}
	}
	return Reply{}, fmt.Errorf("provider returned unparseable output: %s", truncate(raw, 800))
}

// BuildInvocation renders the configured argument template. Arguments whose
// placeholders have no value are dropped; the prompt is appended when no
// argument mentions it.
func (a *CommandAdapter) BuildInvocation(values map[string]string) ([]string, error) {
	if strings.TrimSpace(values["prompt"]) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if strings.TrimSpace(values["model"]) == "" {
		values["model"] = a.cfg.Model
	}

	if len(a.cfg.Args) > 0 {
		args := make([]string, 0, len(a.cfg.Args)+1)
		hasPromptPlaceholder := false
		for _, templateArg := range a.cfg.Args {
			if strings.Contains(templateArg, "{prompt}") {
				hasPromptPlaceholder = true
			}
			if rendered, ok := renderTemplateArg(templateArg, values); ok {
				args = append(args, rendered)
			}
		}
		if !hasPromptPlaceholder {
			args = append(args, values["prompt"])
		}
		return append([]string{a.cfg.Command}, args...), nil
	}

	args := []string{}
	if a.cfg.ModelFlag != "" && values["model"] != "" {
		args = append(args, a.cfg.ModelFlag, values["model"])
	}
	args = append(args, values["prompt"])
	return append([]string{a.cfg.Command}, args...), nil
}

func (a *CommandAdapter) prepareValues(req Request) (map[string]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "cortana-provider-")
	if err != nil {
		return nil, nil, fmt.Errorf("could not create provider temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	schemaFile := filepath.Join(tmpDir, "reply.schema.json")
	if err := os.WriteFile(schemaFile, []byte(replyJSONSchema), 0o600); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("could not write schema file: %w", err)
	}

	values := map[string]string{
		"model":       req.Model,
		"prompt":      flattenPrompt(req),
		"intent":      string(req.Intent),
		"schema_file": schemaFile,
		"output_file": filepath.Join(tmpDir, "reply.output.json"),
		"schema_json": compactSchema(replyJSONSchema),
	}
	for key, value := range req.Context {
		if str, ok := value.(string); ok {
			if _, reserved := values[key]; !reserved {
				values[key] = str
			}
		}
	}
	return values, cleanup, nil
}

func flattenPrompt(req Request) string {
	var b strings.Builder
	if system := strings.TrimSpace(req.System); system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if len(req.Messages) > 1 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range req.Messages[:len(req.Messages)-1] {
			label := "User"
			if msg.Role == RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, strings.TrimSpace(msg.Content))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Request: %s\n\n", strings.TrimSpace(req.LastUser()))
	b.WriteString("Respond with only a JSON object matching this schema:\n")
	b.WriteString(compactSchema(replyJSONSchema))
	return b.String()
}

func renderTemplateArg(template string, values map[string]string) (string, bool) {
	rendered := template
	for _, match := range placeholderRegex.FindAllStringSubmatch(template, -1) {
		key := match[1]
		value, ok := values[key]
		if !ok || strings.TrimSpace(value) == "" {
			return "", false
		}
		rendered = strings.ReplaceAll(rendered, "{"+key+"}", value)
	}
	rendered = strings.TrimSpace(rendered)
	return rendered, rendered != ""
}

// readPreferredOutput prefers the output file when the CLI wrote one.
func readPreferredOutput(outputFile, stdout string) string {
	if outputFile != "" {
		if content, err := os.ReadFile(outputFile); err == nil {
			if trimmed := strings.TrimSpace(string(content)); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(stdout)
}

func compactSchema(schema string) string {
	var generic map[string]any
	if err := json.Unmarshal([]byte(schema), &generic); err != nil {
		return strings.TrimSpace(schema)
	}
	encoded, err := json.Marshal(generic)
	if err != nil {
		return strings.TrimSpace(schema)
	}
	return string(encoded)
}
