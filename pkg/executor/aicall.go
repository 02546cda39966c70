package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/loomworks/weft/pkg/models"
)

// AssistantClient completes a prompt against an assistant backend.
type AssistantClient interface {
	Complete(ctx context.Context, assistantID, model, prompt string) (string, error)
}

// RestyAssistantClient posts completion requests to an HTTP endpoint.
type RestyAssistantClient struct {
	client *resty.Client
}

func NewRestyAssistantClient(baseURL string) *RestyAssistantClient {
	return &RestyAssistantClient{
		client: resty.New().SetBaseURL(baseURL),
	}
}

func (c *RestyAssistantClient) Complete(ctx context.Context, assistantID, model, prompt string) (string, error) {
	response, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"assistant_id": assistantID,
			"model":        model,
			"prompt":       prompt,
		}).
		Post("/v1/completions")
	if err != nil {
		return "", fmt.Errorf("assistant request failed: %w", err)
	}

	if response.IsError() {
		return "", fmt.Errorf("assistant returned status %d", response.StatusCode())
	}

	return response.String(), nil
}

// AICallExecutor runs ai_call tasks. Params schema:
//
//	{"model": "...", "prompt_template": "..."}
//
// The prompt template uses the same argv template language as shell args, so
// prompts can splice resolved slot values and file lists. The completion is
// written to the first resolved file output, and logical outputs derive the
// same way as for shell tasks.
type AICallExecutor struct {
	logger *slog.Logger
	client AssistantClient
}

func NewAICallExecutor(logger *slog.Logger, client AssistantClient) *AICallExecutor {
	return &AICallExecutor{
		logger: logger.With("module", "ai_call_executor"),
		client: client,
	}
}

func (e *AICallExecutor) Execute(ctx context.Context, _ *models.WorkflowDefinition, _ *models.WorkflowRun, task *models.TaskDef, state *models.TaskInstanceState) error {
	e.logger.Info("Executing ai_call task", "task", task.ID)

	fail := func(message string) error {
		state.State = models.TaskStateFailed
		state.LastError = message

		return errors.New(message)
	}

	if e.client == nil {
		return fail("AICallExecutor: No assistant client configured")
	}

	if len(task.Params) == 0 {
		return fail("AICallExecutor: Missing params JSON")
	}

	params := string(task.Params)
	if !gjson.Valid(params) {
		return fail("AICallExecutor: Invalid params JSON")
	}

	template := gjson.Get(params, "prompt_template")
	if !template.Exists() || template.Type != gjson.String {
		return fail("AICallExecutor: Missing 'prompt_template' field")
	}

	prompt, err := expandArgTemplates(template.String(), task, state)
	if err != nil {
		return fail("AICallExecutor: Failed to expand argument template '" + template.String() + "'")
	}

	completion, err := e.client.Complete(ctx, task.Environment.AssistantID, gjson.Get(params, "model").String(), prompt)
	if err != nil {
		return fail("AICallExecutor: " + err.Error())
	}

	if len(task.FileOutputs) > 0 {
		target, err := expandArgTemplates(task.FileOutputs[0], task, state)
		if err != nil {
			return fail("AICallExecutor: Failed to expand argument template '" + task.FileOutputs[0] + "'")
		}

		if err := os.WriteFile(target, []byte(completion), 0o644); err != nil {
			return fail("AICallExecutor: Failed to write completion to " + target)
		}
	}

	for name, value := range buildOutputSlotMap(task, state) {
		state.OutputValues[name] = value
	}

	state.State = models.TaskStateSucceeded

	return nil
}
