// Package registry holds loaded workflow definitions and validates them.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/loomworks/weft/pkg/models"
	"github.com/loomworks/weft/pkg/parser"
)

const workflowExtension = ".jcwf"

// Registry owns all workflow definitions. It is read-only after load;
// concurrent reads need no locks.
type Registry struct {
	logger    *slog.Logger
	parser    *parser.Parser
	workflows map[string]*models.WorkflowDefinition

	// invalid records the workflows whose last validation reported errors;
	// the orchestrator refuses to run them.
	invalid map[string][]error
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "workflow_registry"),
		parser:    parser.NewParser(logger),
		workflows: make(map[string]*models.WorkflowDefinition),
		invalid:   make(map[string][]error),
	}
}

// LoadDirectory walks the immediate children of dir and loads every *.jcwf
// file. A file that fails to parse refuses that file only; the remaining
// workflows load normally.
func (r *Registry) LoadDirectory(dir string) error {
	r.logger.Info("Scanning workflow directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read workflow directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != workflowExtension {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		if err := r.LoadFile(path); err != nil {
			r.logger.Error("Failed to load workflow file", "path", path, "error", err)
		}
	}

	return nil
}

// LoadFile loads or reloads a single JCWF file, recording the definition
// under its own id. Redefinition warns and overwrites.
func (r *Registry) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	def, err := r.parser.Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if _, exists := r.workflows[def.ID]; exists {
		r.logger.Warn("Workflow already exists; reloading", "workflow_id", def.ID)
	}

	r.workflows[def.ID] = def
	delete(r.invalid, def.ID)

	r.logger.Info("Registered workflow", "workflow_id", def.ID, "path", path)

	return nil
}

// Register adds a definition directly, bypassing the filesystem.
func (r *Registry) Register(def *models.WorkflowDefinition) {
	if _, exists := r.workflows[def.ID]; exists {
		r.logger.Warn("Workflow already exists; replacing", "workflow_id", def.ID)
	}

	r.workflows[def.ID] = def
	delete(r.invalid, def.ID)
}

// Workflow returns the definition registered under the given id.
func (r *Registry) Workflow(workflowID string) (*models.WorkflowDefinition, bool) {
	def, ok := r.workflows[workflowID]
	return def, ok
}

// WorkflowIDs returns all registered ids in sorted order.
func (r *Registry) WorkflowIDs() []string {
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// IsValid reports whether the workflow passed its last validation. A
// workflow that was never validated counts as valid until ValidateAll runs.
func (r *Registry) IsValid(workflowID string) bool {
	_, broken := r.invalid[workflowID]
	return !broken
}

// ValidationErrors returns the recorded validation failures for a workflow.
func (r *Registry) ValidationErrors(workflowID string) []error {
	return r.invalid[workflowID]
}

// ValidateAll validates every registered workflow. Validation is total:
// every failure is reported and recorded, none unloads the definition.
// It returns true iff no workflow reported errors.
func (r *Registry) ValidateAll() bool {
	ok := true

	for _, id := range r.WorkflowIDs() {
		def := r.workflows[id]

		r.logger.Info("Validating workflow", "workflow_id", id)

		errs := ValidateWorkflow(def)
		if len(errs) > 0 {
			for _, err := range errs {
				r.logger.Error("Workflow validation failed", "workflow_id", id, "error", err)
			}

			r.invalid[id] = errs
			ok = false
		}
	}

	return ok
}
