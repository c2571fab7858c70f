package zkvm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// execContext holds the state for a single verifier invocation.
type execContext struct {
	proof        []byte     // proof is the opaque proof blob
	inputs       []byte     // inputs is the serialized public-input array
	memory       api.Memory // memory is the WASM linear memory
	gasLimit     uint64     // gasLimit is the maximum gas allowed
	gasUsed      uint64     // gasUsed tracks consumed gas
	gasExhausted bool       // gasExhausted is true if gas limit was exceeded
}

// buildHostModule creates the "env" module with host functions.
func (p *Pool) buildHostModule(ctx context.Context, execCtx *execContext) (api.Module, error) {
	return p.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, cost uint32) {
			hostGas(execCtx, cost)
		}).
		Export("gas").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			return uint32(len(execCtx.proof))
		}).
		Export("proof_len").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr uint32) {
			hostCopyIn(execCtx, ptr, execCtx.proof)
		}).
		Export("read_proof").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			return uint32(len(execCtx.inputs))
		}).
		Export("inputs_len").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr uint32) {
			hostCopyIn(execCtx, ptr, execCtx.inputs)
		}).
		Export("read_inputs").
		Instantiate(ctx)
}

// hostGas handles gas metering.
// Panics if the gas limit is exceeded to abort execution.
func hostGas(execCtx *execContext, cost uint32) {
	execCtx.gasUsed += uint64(cost)

	if execCtx.gasUsed > execCtx.gasLimit {
		execCtx.gasExhausted = true
		panic("gas exhausted")
	}
}

// hostCopyIn copies a host buffer into WASM memory at the given pointer.
func hostCopyIn(execCtx *execContext, ptr uint32, data []byte) {
	if execCtx.memory == nil || len(data) == 0 {
		return
	}

	execCtx.memory.Write(ptr, data)
}
