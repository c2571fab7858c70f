// Package zkvm runs proof-verifier programs inside a sandboxed WASM
// runtime. Verifier modules are compiled once and kept hot-loaded;
// each invocation gets fresh linear memory and a gas budget.
package zkvm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/zeebo/blake3"
)

var (
	// ErrModuleNotFound is returned when a verifier ID is not loaded.
	ErrModuleNotFound = errors.New("verifier module not found")

	// ErrGasExhausted is returned when verification runs out of gas.
	ErrGasExhausted = errors.New("gas exhausted")
)

// Pool manages compiled WASM verifier modules keyed by blake3 hash.
type Pool struct {
	runtime wazero.Runtime                     // runtime is the wazero runtime instance
	modules map[[32]byte]wazero.CompiledModule // modules maps blake3 hash to compiled module
	mu      sync.RWMutex                       // mu protects modules map
}

// New creates a Pool with an initialized wazero runtime.
func New() *Pool {
	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)

	return &Pool{
		runtime: runtime,
		modules: make(map[[32]byte]wazero.CompiledModule),
	}
}

// Load compiles and stores a verifier module. The module ID is the
// blake3 hash of the WASM bytes, so identical verifiers dedupe.
func (p *Pool) Load(wasmBytes []byte) ([32]byte, error) {
	id := blake3.Sum256(wasmBytes)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.modules[id]; exists {
		return id, nil
	}

	compiled, err := p.runtime.CompileModule(context.Background(), wasmBytes)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compile module: %w", err)
	}

	p.modules[id] = compiled

	return id, nil
}

// Run executes a verifier module against a proof and its serialized
// public inputs. Returns the module's boolean verdict and the gas
// consumed.
func (p *Pool) Run(id [32]byte, proof, inputs []byte, gasLimit uint64) (bool, uint64, error) {
	p.mu.RLock()
	compiled, exists := p.modules[id]
	p.mu.RUnlock()

	if !exists {
		return false, 0, ErrModuleNotFound
	}

	return p.runModule(compiled, proof, inputs, gasLimit)
}

// runModule instantiates and runs a compiled verifier.
func (p *Pool) runModule(compiled wazero.CompiledModule, proof, inputs []byte, gasLimit uint64) (bool, uint64, error) {
	ctx := context.Background()

	execCtx := &execContext{
		proof:    proof,
		inputs:   inputs,
		gasLimit: gasLimit,
	}

	hostModule, err := p.buildHostModule(ctx, execCtx)
	if err != nil {
		return false, 0, fmt.Errorf("build host module: %w", err)
	}
	defer hostModule.Close(ctx)

	instance, err := p.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		return false, execCtx.gasUsed, fmt.Errorf("instantiate module: %w", err)
	}
	defer instance.Close(ctx)

	execCtx.memory = instance.Memory()

	return p.callVerify(ctx, instance, execCtx)
}

// callVerify calls the verify function on the WASM instance.
// The function returns 1 for a valid proof and 0 otherwise.
func (p *Pool) callVerify(ctx context.Context, instance api.Module, execCtx *execContext) (bool, uint64, error) {
	verifyFn := instance.ExportedFunction("verify")
	if verifyFn == nil {
		return false, execCtx.gasUsed, fmt.Errorf("verify function not exported")
	}

	results, err := verifyFn.Call(ctx)
	if err != nil {
		if execCtx.gasExhausted {
			return false, execCtx.gasUsed, ErrGasExhausted
		}

		return false, execCtx.gasUsed, fmt.Errorf("verify: %w", err)
	}

	if len(results) != 1 {
		return false, execCtx.gasUsed, fmt.Errorf("verify returned %d values", len(results))
	}

	return results[0] == 1, execCtx.gasUsed, nil
}

// Unload removes a module from the pool.
func (p *Pool) Unload(id [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if compiled, exists := p.modules[id]; exists {
		compiled.Close(context.Background())
		delete(p.modules, id)
	}
}

// Close releases all resources held by the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, compiled := range p.modules {
		compiled.Close(context.Background())
		delete(p.modules, id)
	}

	return p.runtime.Close(context.Background())
}
