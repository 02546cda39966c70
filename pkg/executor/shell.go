package executor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loomworks/weft/pkg/models"
)

const scriptPrefix = "scripts/"

// ShellExecutor runs shell tasks. Params schema:
//
//	{"command": "scripts/...", "args": ["...", ...]}
//
// When no argument references an input macro, "${inputs}" is prepended;
// when none references an output macro, "${outputs}" is appended, so bare
// commands behave like make recipes over their declared files.
type ShellExecutor struct {
	logger *slog.Logger
}

func NewShellExecutor(logger *slog.Logger) *ShellExecutor {
	return &ShellExecutor{logger: logger.With("module", "shell_executor")}
}

func (e *ShellExecutor) Execute(ctx context.Context, _ *models.WorkflowDefinition, _ *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error {
	e.logger.Info("Executing shell task", "task", task.ID)

	fail := func(message string) error {
		state.State = models.TaskStateFailed
		state.LastError = message

		return errors.New(message)
	}

	if len(task.Params) == 0 {
		return fail("ShellExecutor: Missing params JSON")
	}

	params := string(task.Params)
	if !gjson.Valid(params) {
		return fail("ShellExecutor: Invalid params JSON")
	}

	command := gjson.Get(params, "command")
	if !command.Exists() || command.Type != gjson.String {
		return fail("ShellExecutor: Missing 'command' field")
	}

	if !strings.HasPrefix(command.String(), scriptPrefix) {
		return fail("ShellExecutor: Script path rejected (must start with 'scripts/')")
	}

	rawArgs, errMessage := collectRawArgs(params)
	if errMessage != "" {
		return fail(errMessage)
	}

	rawArgs = ensureDefaultInputOutputArgs(rawArgs)

	argv := []string{command.String()}

	for _, rawArg := range rawArgs {
		expanded, err := expandArgTemplates(rawArg, task, state)
		if err != nil {
			return fail("ShellExecutor: Failed to expand argument template '" + rawArg + "'")
		}

		if !isSafeArgument(expanded) {
			return fail("ShellExecutor: Argument contains unsupported characters (safety check failed)")
		}

		if expanded != "" {
			argv = append(argv, expanded)
		}
	}

	fullCommand := strings.Join(argv, " ")

	e.logger.Info("Running shell command", "task", task.ID, "command", fullCommand)

	if err := exec.CommandContext(ctx, "/bin/sh", "-c", fullCommand).Run(); err != nil {
		return fail("ShellExecutor: Shell command returned non-zero exit status")
	}

	for name, value := range buildOutputSlotMap(task, state) {
		state.OutputValues[name] = value
	}

	state.State = models.TaskStateSucceeded

	return nil
}

func collectRawArgs(params string) ([]string, string) {
	argsField := gjson.Get(params, "args")
	if !argsField.Exists() {
		return nil, ""
	}

	if !argsField.IsArray() {
		return nil, "ShellExecutor: 'args' must be an array if present"
	}

	var rawArgs []string

	for _, entry := range argsField.Array() {
		if entry.Type != gjson.String {
			return nil, "ShellExecutor: Non-string value in 'args' array"
		}

		rawArgs = append(rawArgs, entry.String())
	}

	return rawArgs, ""
}

// ensureDefaultInputOutputArgs injects the default input/output macros when
// no argument textually references them.
func ensureDefaultInputOutputArgs(rawArgs []string) []string {
	var hasInputMacro, hasOutputMacro bool

	for _, arg := range rawArgs {
		if strings.Contains(arg, "${inputs}") || strings.Contains(arg, "${input[") {
			hasInputMacro = true
		}

		if strings.Contains(arg, "${outputs}") || strings.Contains(arg, "${output[") {
			hasOutputMacro = true
		}
	}

	if !hasInputMacro {
		rawArgs = append([]string{"${inputs}"}, rawArgs...)
	}

	if !hasOutputMacro {
		rawArgs = append(rawArgs, "${outputs}")
	}

	return rawArgs
}
