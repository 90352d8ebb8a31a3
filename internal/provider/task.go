package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const taskDueLayout = "2006-01-02"

var (
	// task markers are checklist lines:
	//   - [ ] body @due(2006-01-02) @assignee(name) ^<uuid>
	taskLineRe     = regexp.MustCompile(`(?m)^[ \t]*- \[([ xX])\] (.+)$`)
	taskAnchorRe   = regexp.MustCompile(`\s+\^([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)
	taskDueRe      = regexp.MustCompile(`@due\(([^)]*)\)`)
	taskAssigneeRe = regexp.MustCompile(`@assignee\(([^)]*)\)`)
)

// TaskProvider derives tasks from markdown checklist lines. Unlike cards,
// tasks carry no scheduling defaults, so the provider needs no clock.
type TaskProvider struct{}

var _ Provider = (*TaskProvider)(nil)

func NewTaskProvider() *TaskProvider {
	return &TaskProvider{}
}

func (t *TaskProvider) Name() string {
	return "task"
}

func (t *TaskProvider) Capability() string {
	return "task"
}

func (t *TaskProvider) CanHandle(node *model.Node) bool {
	return node.Kind == model.KindFile && node.HasCapability(t.Capability())
}

func (t *TaskProvider) Validate(node *model.Node, content string) []error {
	var errs []error
	for _, m := range taskLineRe.FindAllStringSubmatch(content, -1) {
		rest, _ := splitTaskAnchor(m[2])

		if body := taskBody(rest); body == "" {
			errs = append(errs, fmt.Errorf("task marker %q: body cannot be blank", rest))
		}

		if due := taskDueRe.FindStringSubmatch(rest); due != nil {
			if err := validation.Validate(due[1], validation.Required, validation.Date(taskDueLayout)); err != nil {
				errs = append(errs, fmt.Errorf("task marker %q: due date %v", rest, err))
			}
		}
	}
	return errs
}

func (t *TaskProvider) ParseAndReconcile(ctx context.Context, tx store.Store, node *model.Node, content string) (string, error) {
	existing, err := tx.ListNodeTasks(ctx, node.ID)
	if err != nil {
		return "", err
	}

	owned := make(map[string]*model.Task, len(existing))
	ownedIDs := mapset.NewSet[string]()
	for _, task := range existing {
		owned[task.ID] = task
		ownedIDs.Add(task.ID)
	}

	seen := mapset.NewSet[string]()

	var out strings.Builder
	last := 0
	for _, m := range taskLineRe.FindAllStringSubmatchIndex(content, -1) {
		done := content[m[2]:m[3]] != " "
		rest, anchor := splitTaskAnchor(content[m[4]:m[5]])

		if anchor == "" {
			anchor = uuid.New().String()
		}

		task, ok := owned[anchor]
		if !ok {
			task = &model.Task{
				ID:     anchor,
				NodeID: node.ID,
				Module: node.Module,
			}
		}
		// the checkbox in content is authoritative on a content write
		task.Done = done
		task.Body = taskBody(rest)
		task.Assignee = ""
		if a := taskAssigneeRe.FindStringSubmatch(rest); a != nil {
			task.Assignee = strings.TrimSpace(a[1])
		}
		task.DueAt = nil
		if d := taskDueRe.FindStringSubmatch(rest); d != nil {
			due, err := time.Parse(taskDueLayout, d[1])
			if err != nil {
				return "", fmt.Errorf("task marker %q: %w", rest, err)
			}
			task.DueAt = &due
		}

		if err := tx.SaveTask(ctx, task); err != nil {
			return "", err
		}
		seen.Add(anchor)

		out.WriteString(content[last:m[4]])
		out.WriteString(rest)
		out.WriteString(" ^")
		out.WriteString(anchor)
		last = m[5]
	}
	out.WriteString(content[last:])

	stale := ownedIDs.Difference(seen)
	if stale.Cardinality() > 0 {
		logrus.Debugf("deleting %d stale tasks for node %s", stale.Cardinality(), node.ID)
		if err := tx.DeleteTasks(ctx, stale.ToSlice()); err != nil {
			return "", err
		}
	}

	return out.String(), nil
}

func (t *TaskProvider) Cleanup(ctx context.Context, tx store.Store, nodeIDs []string) error {
	return tx.DeleteNodeTasks(ctx, nodeIDs)
}

// OnCopy mints a fresh anchor for every task line. Copied tasks never share
// rows with the source; their state is re-derived from the copied text.
func (t *TaskProvider) OnCopy(ctx context.Context, tx store.Store, src, dst *model.Node, content string) (string, error) {
	var out strings.Builder
	last := 0
	for _, m := range taskLineRe.FindAllStringSubmatchIndex(content, -1) {
		done := content[m[2]:m[3]] != " "
		rest, _ := splitTaskAnchor(content[m[4]:m[5]])

		anchor := uuid.New().String()
		task := &model.Task{
			ID:     anchor,
			NodeID: dst.ID,
			Module: dst.Module,
			Done:   done,
			Body:   taskBody(rest),
		}
		if a := taskAssigneeRe.FindStringSubmatch(rest); a != nil {
			task.Assignee = strings.TrimSpace(a[1])
		}
		if d := taskDueRe.FindStringSubmatch(rest); d != nil {
			due, err := time.Parse(taskDueLayout, d[1])
			if err != nil {
				return "", fmt.Errorf("task marker %q: %w", rest, err)
			}
			task.DueAt = &due
		}

		if err := tx.SaveTask(ctx, task); err != nil {
			return "", err
		}

		out.WriteString(content[last:m[4]])
		out.WriteString(rest)
		out.WriteString(" ^")
		out.WriteString(anchor)
		last = m[5]
	}
	out.WriteString(content[last:])

	return out.String(), nil
}

// splitTaskAnchor splits a checklist line body from its trailing anchor.
func splitTaskAnchor(rest string) (body, anchor string) {
	if m := taskAnchorRe.FindStringSubmatch(rest); m != nil {
		return rest[:len(rest)-len(m[0])], m[1]
	}
	return rest, ""
}

// taskBody strips modifiers from a checklist line, leaving the task text.
func taskBody(rest string) string {
	body := taskDueRe.ReplaceAllString(rest, "")
	body = taskAssigneeRe.ReplaceAllString(body, "")
	return strings.Join(strings.Fields(body), " ")
}
