// Package raco is the workflow engine of the RACO orchestrator.
//
// A workflow is a graph of steps (human input, approvals, code generation
// and actions). The engine keeps one instance per run and moves it through
// pending, running, waitingForInput and a terminal state. The allocator owns
// every instance transition, the processor runs step executions on a worker
// pool and the approval service collects human answers.
//
//	srv := raco.New()
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	wf, _ := rt.LoadWorkflow(ctx, "review.yaml")
//	id, _ := rt.CreateWorkflow(ctx, wf, nil)
//	_ = rt.StartWorkflow(ctx, id)
//	instance, _ := rt.Wait(ctx, id, time.Minute)
package raco
