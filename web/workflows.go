package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/approval"
	"github.com/labstack/echo/v4"
)

const maxDefinitionSize = 1 << 20

// createWorkflowRequest is the JSON form of POST /api/workflows. Any other
// content type is read as a YAML definition.
type createWorkflowRequest struct {
	Location   string                 `json:"location,omitempty"`
	Definition string                 `json:"definition,omitempty"`
	Global     map[string]interface{} `json:"global,omitempty"`
	Start      bool                   `json:"start,omitempty"`
}

type workflowResponse struct {
	*execution.Instance
	Progress *progress.Progress  `json:"progress,omitempty"`
	Pending  []*approval.Request `json:"pending,omitempty"`
}

type inputRequest struct {
	Input interface{} `json:"input"`
}

type decisionRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) createWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDefinitionSize))
	if err != nil {
		return badRequest(c, "failed to read request body")
	}
	request := &createWorkflowRequest{}
	var wf *model.Workflow
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err = json.Unmarshal(body, request); err != nil {
			return badRequest(c, "invalid request body")
		}
		switch {
		case request.Location != "":
			if wf, err = s.runtime.LoadWorkflow(ctx, request.Location); err != nil {
				return badRequest(c, err.Error())
			}
		case request.Definition != "":
			if wf, err = s.runtime.DecodeWorkflow([]byte(request.Definition)); err != nil {
				return badRequest(c, err.Error())
			}
		default:
			return badRequest(c, "location or definition is required")
		}
	} else {
		if len(strings.TrimSpace(string(body))) == 0 {
			return badRequest(c, "empty workflow definition")
		}
		if wf, err = s.runtime.DecodeWorkflow(body); err != nil {
			return badRequest(c, err.Error())
		}
		request.Start = c.QueryParam("start") == "true"
	}
	id, err := s.runtime.CreateWorkflow(ctx, wf, request.Global)
	if err != nil {
		return s.fail(c, err)
	}
	if request.Start {
		if err = s.runtime.StartWorkflow(ctx, id); err != nil {
			return s.fail(c, err)
		}
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

// listWorkflows accepts ?status=running,completed.
func (s *Server) listWorkflows(c echo.Context) error {
	var statuses []execution.WorkflowStatus
	if value := c.QueryParam("status"); value != "" {
		for _, status := range strings.Split(value, ",") {
			statuses = append(statuses, execution.WorkflowStatus(strings.TrimSpace(status)))
		}
	}
	instances, err := s.runtime.ListWorkflows(c.Request().Context(), statuses...)
	if err != nil {
		return s.fail(c, err)
	}
	if instances == nil {
		instances = []*execution.Instance{}
	}
	return c.JSON(http.StatusOK, instances)
}

func (s *Server) getWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	instance, err := s.runtime.GetWorkflow(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	response := &workflowResponse{Instance: instance}
	if p, ok := s.runtime.Progress(id); ok {
		response.Progress = &p
	}
	if instance.Status == execution.WorkflowWaitingForInput {
		if response.Pending, err = s.runtime.PendingRequests(ctx, id); err != nil {
			return s.fail(c, err)
		}
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) startWorkflow(c echo.Context) error {
	return s.transition(c, s.runtime.StartWorkflow)
}

func (s *Server) cancelWorkflow(c echo.Context) error {
	return s.transition(c, s.runtime.CancelWorkflow)
}

func (s *Server) transition(c echo.Context, fn func(ctx context.Context, id string) error) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := fn(ctx, id); err != nil {
		return s.fail(c, err)
	}
	instance, err := s.runtime.GetWorkflow(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id, "status": string(instance.Status)})
}

func (s *Server) provideInput(c echo.Context) error {
	request := &inputRequest{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.runtime.ProvideInput(c.Request().Context(), c.Param("id"), c.Param("step"), request.Input); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) decide(c echo.Context) error {
	request := &decisionRequest{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.runtime.Decide(c.Request().Context(), c.Param("id"), c.Param("step"), request.Approved, request.Reason); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}
