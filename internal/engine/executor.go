package engine

import (
	"context"
	"errors"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

// drive executes inst through g until it reaches a terminal or suspended
// status. It runs on the caller's goroutine (Run, Resume) or on a dedicated
// one (Submit); a run is never executed by two goroutines at once.
//
// resumed suppresses the AwaitInput park for the first node, so a resumed
// run executes the node it was suspended on.
func (e *engineImpl) drive(ctx context.Context, g api.WorkflowGraph, inst *api.WorkflowInstance, h *runHandle, resumed bool) (*api.WorkflowInstance, error) {
	if inst.Status == api.StatusPending {
		inst.Status = api.StatusRunning
		inst.UpdatedAt = time.Now()
		_ = e.instances.UpdateInstance(inst)
		e.observer.OnRunStart(ctx, inst)
	}

	for {
		if h.cancel.Load() || ctx.Err() != nil {
			return e.cancelRun(ctx, inst)
		}

		node, ok := g.Node(inst.Current)
		if !ok {
			return e.failRun(ctx, inst, &api.MappingError{Node: inst.Current, Key: ""})
		}

		if node.AwaitInput && !resumed {
			return e.suspend(ctx, inst)
		}
		resumed = false

		if err := e.executeNode(ctx, g, inst, node, h); err != nil {
			if errors.Is(err, errSkipped) {
				continue
			}
			if errors.Is(err, errCancelled) {
				return e.cancelRun(ctx, inst)
			}
			return e.failRun(ctx, inst, err)
		}

		if node.Terminal {
			return e.succeed(ctx, inst)
		}

		// Cancellation is observed at the step boundary: the node's work is
		// already committed to the context and history.
		if h.cancel.Load() || ctx.Err() != nil {
			return e.cancelRun(ctx, inst)
		}

		next, err := e.route(ctx, g, inst, node)
		if err != nil {
			return e.failRun(ctx, inst, err)
		}
		inst.Current = next
		inst.UpdatedAt = time.Now()
		_ = e.instances.UpdateInstance(inst)
	}
}

// errSkipped signals that a failed node advanced via SKIP_TO and the run
// loop should continue instead of failing the run.
var errSkipped = errors.New("node skipped")

// errCancelled signals that a cancellation was observed between retry
// attempts; the run ends CANCELLED, not FAILED.
var errCancelled = errors.New("run cancelled")

// executeNode runs one node, including retries per its failure policy. On
// success the node's outputs are merged into the run context and a history
// record is appended.
func (e *engineImpl) executeNode(ctx context.Context, g api.WorkflowGraph, inst *api.WorkflowInstance, node api.NodeSpec, h *runHandle) error {
	args, err := e.mapInputs(inst, node)
	if err != nil {
		e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventNodeStarted, Attempt: 1})
		e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventNodeFailed, Attempt: 1, Detail: err.Error()})
		return err
	}

	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	policy := node.OnFailure
	if policy != nil && policy.Kind == api.RetryNode && policy.Retry != nil {
		if policy.Retry.MaxAttempts > 0 {
			maxAttempts = policy.Retry.MaxAttempts
		}
		backoff = policy.Retry.InitialBackoff
		maxBackoff = policy.Retry.MaxBackoff
		multiplier = policy.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	var (
		out     map[string]any
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventNodeStarted, Attempt: attempt})
		e.observer.OnNodeStart(ctx, inst, node.ID)

		start := time.Now()
		out, lastErr = e.invoke(ctx, node, args, attempt)
		e.observer.OnNodeEnd(ctx, inst, node.ID, lastErr, time.Since(start))

		if lastErr == nil {
			break
		}

		e.emit(ctx, api.ExecutionEvent{
			RunID:   inst.ID,
			Node:    node.ID,
			Kind:    api.EventNodeFailed,
			Attempt: attempt,
			Detail:  lastErr.Error(),
		})

		if attempt == maxAttempts {
			break
		}
		if h.cancel.Load() {
			return errCancelled
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}
			select {
			case <-ctx.Done():
				return errCancelled
			case <-time.After(delay):
			}
			if h.cancel.Load() {
				return errCancelled
			}
			next := time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && next > maxBackoff {
				backoff = maxBackoff
			} else {
				backoff = next
			}
		}
	}

	if lastErr != nil {
		if policy != nil && policy.Kind == api.SkipToNode && policy.SkipTo != "" {
			return e.skipTo(ctx, inst, node, lastErr, policy.SkipTo)
		}
		// FAIL_RUN, or retries exhausted.
		return lastErr
	}

	if err := e.mergeOutputs(inst, node, out); err != nil {
		e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventNodeFailed, Detail: err.Error()})
		return err
	}

	inst.History = append(inst.History, api.StepRecord{Node: node.ID, At: time.Now()})
	inst.UpdatedAt = time.Now()
	_ = e.instances.UpdateInstance(inst)
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventNodeSucceeded})
	return nil
}

// skipTo abandons a failed node per its SKIP_TO policy: the failure is
// recorded in history and the run routes directly to the named node.
func (e *engineImpl) skipTo(ctx context.Context, inst *api.WorkflowInstance, node api.NodeSpec, cause error, target string) error {
	inst.History = append(inst.History, api.StepRecord{Node: node.ID, At: time.Now(), Err: cause.Error()})
	inst.Current = target
	inst.UpdatedAt = time.Now()
	_ = e.instances.UpdateInstance(inst)
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventRouted, Detail: target})
	return errSkipped
}

// invoke calls the node's tool with a bounded timeout. Pure nodes return
// immediately. The timeout resolution order is node, then descriptor, then
// the engine default. A handler that overruns its deadline keeps running on
// its own goroutine; the run proceeds with a timeout error.
func (e *engineImpl) invoke(ctx context.Context, node api.NodeSpec, args map[string]any, attempt int) (map[string]any, error) {
	if node.Pure() {
		return nil, nil
	}

	desc, err := e.registry.Lookup(node.Tool)
	if err != nil {
		return nil, err
	}

	timeout := node.Timeout
	if timeout <= 0 {
		timeout = desc.Timeout
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out map[string]any
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := e.registry.Invoke(callCtx, node.Tool, args)
		ch <- result{out, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			var execErr *api.ToolExecutionError
			if errors.As(res.err, &execErr) {
				execErr.Node = node.ID
				execErr.Attempt = attempt
			}
			return nil, res.err
		}
		return res.out, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &api.ToolExecutionError{Tool: node.Tool, Node: node.ID, Attempt: attempt, Cause: api.ErrToolTimeout}
		}
		return nil, &api.ToolExecutionError{Tool: node.Tool, Node: node.ID, Attempt: attempt, Cause: callCtx.Err()}
	}
}

// mapInputs builds the tool argument map from the node's input mapping.
func (e *engineImpl) mapInputs(inst *api.WorkflowInstance, node api.NodeSpec) (map[string]any, error) {
	if node.Pure() || len(node.Inputs) == 0 {
		return map[string]any{}, nil
	}
	args := make(map[string]any, len(node.Inputs))
	for arg, key := range node.Inputs {
		v, ok := inst.Context.Lookup(key)
		if !ok {
			return nil, &api.MappingError{Node: node.ID, Key: key}
		}
		args[arg] = v
	}
	return args, nil
}

// mergeOutputs writes the tool result back to the run context per the
// node's output mapping. A declared result key the tool did not produce is
// a MappingError: the node's contract with the rest of the graph is broken.
func (e *engineImpl) mergeOutputs(inst *api.WorkflowInstance, node api.NodeSpec, out map[string]any) error {
	if len(node.Outputs) == 0 {
		return nil
	}
	values := make(map[string]any, len(node.Outputs))
	for resultKey, ctxKey := range node.Outputs {
		v, ok := out[resultKey]
		if !ok {
			return &api.MappingError{Node: node.ID, Key: resultKey}
		}
		values[ctxKey] = v
	}
	return inst.Context.Merge(values)
}

// route picks the next node. Guard keys are prechecked against the context
// so a missing key surfaces as a MappingError, not an unmatched route.
func (e *engineImpl) route(ctx context.Context, g api.WorkflowGraph, inst *api.WorkflowInstance, node api.NodeSpec) (string, error) {
	values := inst.Context.Snapshot()
	for _, key := range g.RouteKeys(node.ID) {
		if _, ok := values[key]; !ok {
			return "", &api.MappingError{Node: node.ID, Key: key}
		}
	}
	next, err := g.ResolveNext(node.ID, values)
	if err != nil {
		return "", err
	}
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: node.ID, Kind: api.EventRouted, Detail: next})
	return next, nil
}

func (e *engineImpl) suspend(ctx context.Context, inst *api.WorkflowInstance) (*api.WorkflowInstance, error) {
	inst.Status = api.StatusSuspended
	inst.UpdatedAt = time.Now()
	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Node: inst.Current, Kind: api.EventRunSuspended})
	e.release(inst.ID)
	return inst.Clone(), nil
}

func (e *engineImpl) succeed(ctx context.Context, inst *api.WorkflowInstance) (*api.WorkflowInstance, error) {
	inst.Status = api.StatusSucceeded
	inst.UpdatedAt = time.Now()
	inst.Context.Freeze()
	if err := e.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Kind: api.EventRunSucceeded})
	e.observer.OnRunEnd(ctx, inst, nil)
	e.release(inst.ID)
	return inst.Clone(), nil
}

func (e *engineImpl) failRun(ctx context.Context, inst *api.WorkflowInstance, cause error) (*api.WorkflowInstance, error) {
	inst.Status = api.StatusFailed
	inst.Err = cause
	inst.UpdatedAt = time.Now()
	inst.Context.Freeze()
	_ = e.instances.UpdateInstance(inst)
	e.emit(ctx, api.ExecutionEvent{
		RunID:  inst.ID,
		Node:   inst.Current,
		Kind:   api.EventRunFailed,
		Detail: api.ErrorKind(cause) + ": " + cause.Error(),
	})
	e.observer.OnRunEnd(ctx, inst, cause)
	e.release(inst.ID)
	return inst.Clone(), cause
}

func (e *engineImpl) cancelRun(ctx context.Context, inst *api.WorkflowInstance) (*api.WorkflowInstance, error) {
	inst.Status = api.StatusCancelled
	inst.UpdatedAt = time.Now()
	inst.Context.Freeze()
	_ = e.instances.UpdateInstance(inst)
	e.emit(ctx, api.ExecutionEvent{RunID: inst.ID, Kind: api.EventRunCancelled})
	e.observer.OnRunEnd(ctx, inst, nil)
	e.release(inst.ID)
	return inst.Clone(), nil
}
