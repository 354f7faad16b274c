package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avrabe/raco/internal/app"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/approval"
	"github.com/avrabe/raco/service/dao/workflow"
	"github.com/spf13/cobra"
)

type workflowResult struct {
	ID      string                   `json:"id"`
	Name    string                   `json:"name"`
	Status  execution.WorkflowStatus `json:"status"`
	Outputs map[string]interface{}   `json:"outputs,omitempty"`
	Errors  map[string]string        `json:"errors,omitempty"`
}

func newWorkflowCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run and validate workflow definitions",
	}
	cmd.AddCommand(newWorkflowRunCmd(opts), newWorkflowValidateCmd())
	return cmd
}

func newWorkflowRunCmd(opts *options) *cobra.Command {
	var auto bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a workflow definition",
		Long: `Run a workflow definition to completion. Input and approval steps are
asked on stdin unless --auto answers them with their defaults.

Examples:
  raco workflow run workflows/hello.yaml
  raco workflow run review.yaml --auto`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			location, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			appOptions := []app.Option{app.WithLogger(opts.logger)}
			if auto {
				appOptions = append(appOptions, app.WithPolicy(policy.New(policy.ModeAuto)))
			}
			a, err := app.New(ctx, opts.cfg, appOptions...)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err = a.Start(ctx); err != nil {
				return err
			}
			rt := a.Runtime
			wf, err := rt.LoadWorkflow(ctx, location)
			if err != nil {
				return err
			}
			id, err := rt.CreateWorkflow(ctx, wf, nil)
			if err != nil {
				return err
			}
			if err = rt.StartWorkflow(ctx, id); err != nil {
				return err
			}
			reader := bufio.NewReader(cmd.InOrStdin())
			deadline := time.Now().Add(timeout)
			for {
				instance, err := rt.Wait(ctx, id, time.Until(deadline))
				if err != nil {
					return err
				}
				if instance.Status.IsTerminal() {
					return printResult(cmd.OutOrStdout(), instance)
				}
				requests, err := rt.PendingRequests(ctx, id)
				if err != nil {
					return err
				}
				for _, request := range requests {
					if err = answer(cmd, reader, a, request); err != nil {
						return err
					}
				}
				if len(requests) == 0 {
					time.Sleep(50 * time.Millisecond)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "answer input and approval steps automatically")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "maximum run time")
	return cmd
}

func answer(cmd *cobra.Command, reader *bufio.Reader, a *app.App, request *approval.Request) error {
	ctx := cmd.Context()
	prompt := request.Prompt
	if prompt == "" {
		prompt = request.StepName
	}
	switch request.Kind {
	case approval.KindApproval:
		cmd.Printf("%s [y/N]: ", prompt)
		line, err := readLine(reader)
		if err != nil {
			return err
		}
		approved := line == "y" || line == "yes"
		reason := "rejected on the command line"
		if approved {
			reason = "approved on the command line"
		}
		return a.Runtime.Decide(ctx, request.InstanceID, request.StepID, approved, reason)
	default:
		if request.Default != nil {
			cmd.Printf("%s [%v]: ", prompt, request.Default)
		} else {
			cmd.Printf("%s: ", prompt)
		}
		line, err := readLine(reader)
		if err != nil {
			return err
		}
		var value interface{} = line
		if line == "" && request.Default != nil {
			value = request.Default
		}
		return a.Runtime.ProvideInput(ctx, request.InstanceID, request.StepID, value)
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printResult(w io.Writer, instance *execution.Instance) error {
	result := &workflowResult{
		ID:      instance.ID,
		Name:    instance.Name,
		Status:  instance.Status,
		Outputs: instance.Outputs,
		Errors:  instance.Errors,
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	if instance.Status != execution.WorkflowCompleted {
		return fmt.Errorf("workflow %s %s", instance.Name, instance.Status)
	}
	return nil
}

func newWorkflowValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			wf, err := workflow.New().DecodeYAML(data)
			if err != nil {
				return err
			}
			wf.Init()
			if err = wf.Validate(); err != nil {
				return fmt.Errorf("workflow %s is invalid: %w", wf.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %s is valid (%d steps)\n", wf.Name, len(wf.Steps))
			return nil
		},
	}
}
