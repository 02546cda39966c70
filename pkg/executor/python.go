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

// PythonExecutor runs python tasks through the system interpreter. Params
// schema:
//
//	{"script": "scripts/...py", "args": ["...", ...]}
//
// Argument handling matches the shell executor: the same template language,
// the same safety checks, and the same default input/output macros.
type PythonExecutor struct {
	logger      *slog.Logger
	interpreter string
}

func NewPythonExecutor(logger *slog.Logger) *PythonExecutor {
	return &PythonExecutor{
		logger:      logger.With("module", "python_executor"),
		interpreter: "python3",
	}
}

func (e *PythonExecutor) Execute(ctx context.Context, _ *models.WorkflowDefinition, _ *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error {
	e.logger.Info("Executing python task", "task", task.ID)

	fail := func(message string) error {
		state.State = models.TaskStateFailed
		state.LastError = message

		return errors.New(message)
	}

	if len(task.Params) == 0 {
		return fail("PythonExecutor: Missing params JSON")
	}

	params := string(task.Params)
	if !gjson.Valid(params) {
		return fail("PythonExecutor: Invalid params JSON")
	}

	script := gjson.Get(params, "script")
	if !script.Exists() || script.Type != gjson.String {
		return fail("PythonExecutor: Missing 'script' field")
	}

	if !strings.HasPrefix(script.String(), scriptPrefix) {
		return fail("PythonExecutor: Script path rejected (must start with 'scripts/')")
	}

	rawArgs, errMessage := collectRawArgs(params)
	if errMessage != "" {
		return fail(strings.Replace(errMessage, "ShellExecutor", "PythonExecutor", 1))
	}

	rawArgs = ensureDefaultInputOutputArgs(rawArgs)

	argv := []string{e.interpreter, script.String()}

	for _, rawArg := range rawArgs {
		expanded, err := expandArgTemplates(rawArg, task, state)
		if err != nil {
			return fail("PythonExecutor: Failed to expand argument template '" + rawArg + "'")
		}

		if !isSafeArgument(expanded) {
			return fail("PythonExecutor: Argument contains unsupported characters (safety check failed)")
		}

		if expanded != "" {
			argv = append(argv, expanded)
		}
	}

	fullCommand := strings.Join(argv, " ")

	e.logger.Info("Running python script", "task", task.ID, "command", fullCommand)

	if err := exec.CommandContext(ctx, "/bin/sh", "-c", fullCommand).Run(); err != nil {
		return fail("PythonExecutor: Script returned non-zero exit status")
	}

	for name, value := range buildOutputSlotMap(task, state) {
		state.OutputValues[name] = value
	}

	state.State = models.TaskStateSucceeded

	return nil
}
