package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelus-cml/caelus/pkg/run"
)

func TestHelp(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())
	for _, flag := range []string{"--base-dir", "--task-file", "--clean",
		"--include-patterns", "--exclude-patterns"} {
		assert.Contains(t, buf.String(), flag)
	}
}

func TestMatchTutorials(t *testing.T) {
	recipes := []string{"cavity", "channel", "motorbike"}

	assert.Equal(t, recipes, matchTutorials(recipes, nil, nil))
	assert.Equal(t, []string{"cavity", "channel"},
		matchTutorials(recipes, []string{"c*"}, nil))
	assert.Equal(t, []string{"motorbike"},
		matchTutorials(recipes, nil, []string{"c*"}))
	// Include patterns take precedence.
	assert.Equal(t, []string{"cavity"},
		matchTutorials(recipes, []string{"cavity"}, []string{"*"}))
}

func TestCleanSteps(t *testing.T) {
	tasks := &run.Tasks{Steps: []run.Task{
		{Name: "run_command"},
		{Name: "clean_case"},
		{Name: "process_logs"},
	}}
	cleaned := cleanSteps(tasks)
	require.Len(t, cleaned.Steps, 1)
	assert.Equal(t, "clean_case", cleaned.Steps[0].Name)
}
