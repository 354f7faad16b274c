package workflow

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/service/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

const flowYAML = `
name: review
description: generate then approve
global:
  language: go
steps:
  - name: ask
    type: human_input
    prompt: What should be generated?
  - name: generate
    type: code_generation
    template: "// {{.Parameters.what}}"
    input:
      parameters:
        what: ${ask.human_input}
    dependsOn: ask
  - name: approve
    type: approval
    dependsOn: [generate]
  - name: print
    action: printer.print
    with:
      message: ${generate.generated_code}
    retry:
      type: fixed
      maxRetries: 2
      delay: 10ms
dependencies:
  - from: approve
    to: print
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	filename := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestService_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flow.yaml", flowYAML)
	ctx := context.Background()
	service := New(WithMetaService(meta.New(afs.New(), dir)))

	workflow, err := service.Load(ctx, "flow")
	require.NoError(t, err)
	assert.Equal(t, "review", workflow.Name)
	assert.Equal(t, "go", workflow.Global["language"])
	require.NotNil(t, workflow.Source)
	assert.Contains(t, workflow.Source.URL, "flow.yaml")
	require.Len(t, workflow.Steps, 4)

	ask := workflow.Steps[0]
	assert.Equal(t, "ask", ask.ID)
	assert.Equal(t, graph.TypeHumanInput, ask.Type)

	printStep := workflow.Lookup("print")
	require.NotNil(t, printStep)
	assert.Equal(t, graph.TypeAction, printStep.Type)
	assert.Equal(t, &graph.Action{Service: "printer", Method: "print"}, printStep.Action)
	assert.Equal(t, "${generate.generated_code}", printStep.Input["message"])
	assert.Equal(t, 2, printStep.Retry.MaxRetries)

	assert.ElementsMatch(t, []string{"ask"}, workflow.Predecessors("generate"))
	assert.ElementsMatch(t, []string{"generate"}, workflow.Predecessors("approve"))
	assert.ElementsMatch(t, []string{"approve"}, workflow.Predecessors("print"))

	// cached copies are independent
	workflow.Name = "changed"
	again, err := service.Load(ctx, "flow.yaml")
	require.NoError(t, err)
	assert.Equal(t, "review", again.Name)
	assert.Len(t, service.Cached(), 1)
}

func TestService_DecodeYAML(t *testing.T) {
	testCases := []struct {
		name      string
		yaml      string
		expectErr error
		check     func(t *testing.T, w *model.Workflow)
	}{
		{
			name: "steps as mapping",
			yaml: `
Name: mapped
Steps:
  first:
    service: nop
    method: nop
  second:
    Action: {service: nop, method: nop}
    DependsOn: first
`,
			check: func(t *testing.T, w *model.Workflow) {
				require.Len(t, w.Steps, 2)
				assert.Equal(t, "first", w.Steps[0].Name)
				assert.Equal(t, []string{"first"}, w.Predecessors("second"))
			},
		},
		{
			name: "dependencies as mapping",
			yaml: `
steps:
  - {name: a, action: "nop:nop"}
  - {name: b, action: "nop:nop"}
dependencies:
  b: a
`,
			check: func(t *testing.T, w *model.Workflow) {
				assert.Contains(t, w.Name, "anonymous-")
				assert.Equal(t, []string{"a"}, w.Predecessors("b"))
			},
		},
		{
			name:      "cycle",
			yaml:      "steps:\n  - {name: a, action: nop.nop, dependsOn: b}\n  - {name: b, action: nop.nop, dependsOn: a}\n",
			expectErr: model.ErrCycle,
		},
		{
			name:      "unknown dependency",
			yaml:      "steps:\n  - {name: a, action: nop.nop, dependsOn: missing}\n",
			expectErr: model.ErrInvalidDependency,
		},
		{
			name:      "no steps",
			yaml:      "name: empty\n",
			expectErr: model.ErrEmptyWorkflow,
		},
	}
	service := New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			workflow, err := service.DecodeYAML([]byte(tc.yaml))
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, workflow)
		})
	}

	_, err := service.DecodeYAML([]byte("- just\n- a list\n"))
	assert.Error(t, err)
	_, err = service.DecodeYAML([]byte("steps: {a: {input: text}}"))
	assert.Error(t, err)
}

func TestService_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "name: a\nsteps:\n  - {name: s, action: nop.nop}\n")
	writeFile(t, dir, "b.yml", "name: b\nsteps:\n  - {name: s, type: approval}\n")
	writeFile(t, dir, "broken.yaml", "name: broken\n")
	writeFile(t, dir, "readme.md", "# not a workflow")

	service := New(WithMetaService(meta.New(afs.New(), dir)))
	workflows, err := service.List(context.Background(), "")
	require.NoError(t, err)
	var names []string
	for _, w := range workflows {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestService_Watch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service := New(WithMetaService(meta.New(afs.New(), dir)))

	var mu sync.Mutex
	loaded := map[string]string{}
	require.NoError(t, service.Watch(ctx, "", func(location string, w *model.Workflow, err error) {
		if err != nil || w == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		loaded[filepath.Base(location)] = w.Name
	}))

	writeFile(t, dir, "watched.yaml", "name: watched\nsteps:\n  - {name: s, action: nop.nop}\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return loaded["watched.yaml"] == "watched"
	}, 2*time.Second, 10*time.Millisecond)
}
