package plugin

import (
	"context"
	"encoding/json"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"
)

// resolveRequest is the input of the stackmap_resolve host function
type resolveRequest struct {
	Path string `json:"path"`
}

// resolveResponse is written back to plugin memory
type resolveResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleResolve answers one stackmap_resolve request
func (p *Plugin) handleResolve(ctx context.Context, input []byte) resolveResponse {
	var req resolveRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return resolveResponse{Error: "invalid resolve request"}
	}
	if p.host == nil {
		return resolveResponse{Error: "no resolver configured"}
	}

	data, err := p.host(ctx, req.Path)
	if err != nil {
		p.logger.Debug("plugin resolve failed", zap.String("path", req.Path), zap.Error(err))
		return resolveResponse{Error: err.Error()}
	}
	return resolveResponse{Success: true, Data: data}
}

// createResolveHostFunc creates the host function that lets a plugin fetch
// documents through the host's resolver
func createResolveHostFunc(p *Plugin) extism.HostFunction {
	return extism.NewHostFunctionWithStack(
		"stackmap_resolve",
		func(ctx context.Context, plugin *extism.CurrentPlugin, stack []uint64) {
			inputData, err := plugin.ReadBytes(stack[0])
			if err != nil {
				plugin.Logf(extism.LogLevelError, "Failed to read input: %v", err)
				stack[0] = 0
				return
			}

			// p.mu is held by the exported call that led here
			response := p.handleResolve(p.ctx, inputData)
			writeResponse(plugin, stack, response)
		},
		[]extism.ValueType{extism.ValueTypeI64}, // input: offset to request JSON
		[]extism.ValueType{extism.ValueTypeI64}, // output: offset to response JSON
	)
}

// writeResponse writes a response to plugin memory and returns its offset on the stack
func writeResponse(plugin *extism.CurrentPlugin, stack []uint64, response resolveResponse) {
	responseData, _ := json.Marshal(response)
	responseOffset, err := plugin.WriteBytes(responseData)
	if err != nil {
		plugin.Logf(extism.LogLevelError, "Failed to write response: %v", err)
		stack[0] = 0
		return
	}
	stack[0] = responseOffset
}
