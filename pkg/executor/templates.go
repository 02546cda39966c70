package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loomworks/weft/pkg/models"
)

// expandArgTemplates rewrites the argv-level tokens inside a single raw
// argument. Supported forms:
//
//	${inputs}      space-joined file_inputs
//	${outputs}     space-joined file_outputs
//	${input[N]}    N-th file_input (0-based)
//	${output[N]}   N-th file_output (0-based)
//	${slot.NAME}   resolved input value NAME
//	${env.NAME}    environment variable NAME (missing expands to empty)
//
// Malformed patterns, out-of-range indices, unknown slots, and unknown
// token forms fail so misconfigurations stay explicit.
func expandArgTemplates(raw string, task *models.TaskDef, state *models.TaskInstanceState) (string, error) {
	var builder strings.Builder

	for current := 0; current < len(raw); {
		start := strings.Index(raw[current:], "${")
		if start < 0 {
			builder.WriteString(raw[current:])
			break
		}

		start += current
		builder.WriteString(raw[current:start])

		close := strings.IndexByte(raw[start+2:], '}')
		if close < 0 {
			return "", fmt.Errorf("malformed template in %q", raw)
		}

		close += start + 2
		key := raw[start+2 : close]

		replacement, err := expandToken(key, task, state)
		if err != nil {
			return "", err
		}

		builder.WriteString(replacement)
		current = close + 1
	}

	return builder.String(), nil
}

func expandToken(key string, task *models.TaskDef, state *models.TaskInstanceState) (string, error) {
	switch {
	case key == "inputs":
		return strings.Join(task.FileInputs, " "), nil
	case key == "outputs":
		return strings.Join(task.FileOutputs, " "), nil
	case strings.HasPrefix(key, "input[") && strings.HasSuffix(key, "]"):
		return indexedEntry(task.FileInputs, key[len("input["):len(key)-1])
	case strings.HasPrefix(key, "output[") && strings.HasSuffix(key, "]"):
		return indexedEntry(task.FileOutputs, key[len("output["):len(key)-1])
	case strings.HasPrefix(key, "slot."):
		name := key[len("slot."):]

		value, ok := state.InputValues[name]
		if !ok {
			return "", fmt.Errorf("unknown input slot %q", name)
		}

		return value, nil
	case strings.HasPrefix(key, "env."):
		// Missing environment variables expand to empty.
		return task.Environment.Variables[key[len("env."):]], nil
	}

	return "", fmt.Errorf("unknown template token %q", key)
}

func indexedEntry(entries []string, rawIndex string) (string, error) {
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 || index >= len(entries) {
		return "", fmt.Errorf("index %q out of range", rawIndex)
	}

	return entries[index], nil
}

// isSafeArgument rejects control characters and shell metacharacters. It is
// not a sandbox; combined with the scripts/ guard it keeps workflows on
// simple, predictable commands.
func isSafeArgument(arg string) bool {
	for _, r := range arg {
		if r < 0x20 || r == 0x7f {
			return false
		}

		switch r {
		case ';', '&', '|', '>', '<', '\'', '"', '`':
			return false
		}
	}

	return true
}
