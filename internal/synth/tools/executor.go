package tools

import (
	"context"
	"encoding/json"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/trajgen/server/internal/synth/model"
)

type callKey struct{}

type callInfo struct {
	sim        Simulation
	corrective bool
}

// Executor runs synthetic tools built as eino invokable tools. The outcome of
// each call is decided by the Simulation in the call context, never by chance.
type Executor struct {
	catalog  *Catalog
	tools    map[string]tool.InvokableTool
	handlers []einocb.Handler
}

func NewExecutor(c *Catalog, handlers ...einocb.Handler) *Executor {
	e := &Executor{catalog: c, tools: make(map[string]tool.InvokableTool), handlers: handlers}
	for _, spec := range c.Specs() {
		e.tools[spec.Name] = newSyntheticTool(spec)
	}
	return e
}

// Execute runs calls in order and classifies each result.
func (e *Executor) Execute(ctx context.Context, sim Simulation, calls []model.ToolCall) ([]model.ToolInvocation, error) {
	out := make([]model.ToolInvocation, 0, len(calls))
	for _, call := range calls {
		inv, err := e.run(ctx, sim, call)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (e *Executor) run(ctx context.Context, sim Simulation, call model.ToolCall) (model.ToolInvocation, error) {
	t, ok := e.tools[call.Tool]
	if !ok {
		return model.ToolInvocation{}, fmt.Errorf("unknown tool %q", call.Tool)
	}
	spec, _ := e.catalog.Lookup(call.Tool)

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return model.ToolInvocation{}, fmt.Errorf("marshal %s arguments: %w", call.Tool, err)
	}

	ctx = context.WithValue(ctx, callKey{}, callInfo{sim: sim, corrective: call.Corrective})
	if len(e.handlers) > 0 {
		ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{
			Name:      call.Tool,
			Type:      "SyntheticTool",
			Component: components.ComponentOfTool,
		}, e.handlers...)
		ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: string(argsJSON)})
	}

	result, err := t.InvokableRun(ctx, string(argsJSON))
	if err != nil {
		if len(e.handlers) > 0 {
			einocb.OnError(ctx, err)
		}
		return model.ToolInvocation{}, fmt.Errorf("run %s: %w", call.Tool, err)
	}
	if len(e.handlers) > 0 {
		einocb.OnEnd(ctx, &tool.CallbackOutput{Response: result})
	}

	return classify(spec, call, sim.Iteration, result), nil
}

func classify(spec model.ToolSpec, call model.ToolCall, iteration int, result string) model.ToolInvocation {
	inv := model.ToolInvocation{
		Tool:       call.Tool,
		Parameters: call.Arguments,
		Result:     result,
		Iteration:  iteration,
		Corrective: call.Corrective,
		Outcome:    model.OutcomeSuccess,
	}

	var env Envelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		inv.Outcome, inv.ErrorKind = model.OutcomeSimulatedError, model.ErrCorruptedPayload
		return inv
	}
	if env.Status == StatusError {
		inv.Outcome, inv.ErrorKind = model.OutcomeSimulatedError, model.ErrUpstreamFailure
		if env.Error != nil {
			inv.ErrorKind = env.Error.Kind
			inv.MissingParam = env.Error.Param
		}
		return inv
	}
	if err := CheckPlausible(spec, env.Data, call.Arguments); err != nil {
		inv.Outcome, inv.ErrorKind = model.OutcomeSimulatedError, model.ErrCorruptedPayload
	}
	return inv
}

func newSyntheticTool(spec model.ToolSpec) tool.InvokableTool {
	return utils.NewTool(toolInfo(spec), func(ctx context.Context, in map[string]any) (*Envelope, error) {
		info, _ := ctx.Value(callKey{}).(callInfo)
		return simulate(spec, in, info), nil
	})
}

func simulate(spec model.ToolSpec, args map[string]any, info callInfo) *Envelope {
	r := info.sim.rng(spec.Name, info.corrective)
	env := &Envelope{Tool: spec.Name, Status: StatusOK}

	if info.sim.Mode != model.InvalidData {
		env.Data = validPayload(spec, args, info.sim, r)
		return env
	}

	if param, missing := MissingRequired(spec, args); missing {
		env.Status = StatusError
		env.Error = &ToolError{
			Kind:    model.ErrMissingInput,
			Message: fmt.Sprintf("required parameter %q was not provided", param),
			Param:   param,
		}
		return env
	}
	if r.IntN(2) == 0 {
		env.Status = StatusError
		env.Error = &ToolError{
			Kind:    model.ErrUpstreamFailure,
			Message: upstreamMessages[r.IntN(len(upstreamMessages))],
		}
		return env
	}
	env.Data = corruptPayload(spec, args, info.sim, r)
	return env
}

var upstreamMessages = []string{
	"upstream service timed out after 30s",
	"data provider returned HTTP 503",
	"connection reset by upstream",
}

func toolInfo(spec model.ToolSpec) *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(spec.Parameters))
	for name, p := range spec.Parameters {
		params[name] = &schema.ParameterInfo{
			Type:     dataType(p.Type),
			Desc:     p.Description,
			Enum:     p.Enum,
			Required: p.Required,
		}
	}
	return &schema.ToolInfo{
		Name:        spec.Name,
		Desc:        spec.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
