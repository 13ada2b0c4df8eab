package wasm

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/GPTx-global/gora/x/gora/types"
)

// WeatherModule looks up a postcode and returns the current temperature
// there. Its single parameter is the postcode.
//
//go:embed modules/weather.wasm
var WeatherModule []byte

// Entry point names accepted by off-chain responders, in lookup order.
var EntryPoints = []string{"goraMain", "gora_main"}

// HostModule is the only import namespace responders provide.
const HostModule = "env"

// Host functions provided to off-chain modules.
var HostFunctions = map[string]bool{
	"gora_request_url":        true,
	"gora_set_next_url_param": true,
}

// Import is a function the module expects from its host.
type Import struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Known  bool   `json:"known"`
}

// Memory describes the linear memory the module runs with.
type Memory struct {
	Imported bool   `json:"imported"`
	Name     string `json:"name"`
	MinPages uint32 `json:"min_pages"`
	MaxPages uint32 `json:"max_pages,omitempty"`
}

// Info summarizes a compiled off-chain module.
type Info struct {
	Size       int      `json:"size"`
	EntryPoint string   `json:"entry_point"`
	Imports    []Import `json:"imports"`
	Memory     Memory   `json:"memory"`
	Exports    []string `json:"exports"`
}

// Inspect compiles module without instantiating it and checks that it can
// be run by a responder: an entry point taking and returning one i32, a
// linear memory, and host imports from HostModule only.
func Inspect(ctx context.Context, module []byte) (*Info, error) {
	if len(module) == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidModule, "empty module")
	}
	if len(module) > types.MaxFieldLength {
		return nil, errorsmod.Wrapf(types.ErrInvalidModule, "%d bytes exceeds %d", len(module), types.MaxFieldLength)
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, module)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidModule, err.Error())
	}
	defer compiled.Close(ctx)

	info := &Info{Size: len(module)}

	exported := compiled.ExportedFunctions()
	for name := range exported {
		info.Exports = append(info.Exports, name)
	}
	sort.Strings(info.Exports)

	for _, name := range EntryPoints {
		fn, ok := exported[name]
		if !ok {
			continue
		}
		if err := checkEntrySignature(name, fn); err != nil {
			return nil, err
		}
		info.EntryPoint = name
		break
	}
	if info.EntryPoint == "" {
		return nil, errorsmod.Wrapf(types.ErrInvalidModule, "no entry point, expected one of %v", EntryPoints)
	}

	for _, fn := range compiled.ImportedFunctions() {
		moduleName, name, _ := fn.Import()
		if moduleName != HostModule {
			return nil, errorsmod.Wrapf(types.ErrInvalidModule, "import %s.%s: unknown host module", moduleName, name)
		}
		info.Imports = append(info.Imports, Import{Module: moduleName, Name: name, Known: HostFunctions[name]})
	}

	mem, err := findMemory(compiled)
	if err != nil {
		return nil, err
	}
	info.Memory = *mem

	return info, nil
}

func checkEntrySignature(name string, fn api.FunctionDefinition) error {
	params, results := fn.ParamTypes(), fn.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeI32 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		return errorsmod.Wrapf(types.ErrInvalidModule, "entry point %s has signature %s -> %s, want (i32) -> i32",
			name, typeNames(params), typeNames(results))
	}
	return nil
}

func findMemory(compiled wazero.CompiledModule) (*Memory, error) {
	if imported := compiled.ImportedMemories(); len(imported) > 0 {
		m := imported[0]
		moduleName, name, _ := m.Import()
		mem := &Memory{Imported: true, Name: moduleName + "." + name, MinPages: m.Min()}
		if maxPages, ok := m.Max(); ok {
			mem.MaxPages = maxPages
		}
		return mem, nil
	}

	exported := compiled.ExportedMemories()
	names := make([]string, 0, len(exported))
	for name := range exported {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errorsmod.Wrap(types.ErrInvalidModule, "module neither imports nor exports a memory")
	}
	sort.Strings(names)

	m := exported[names[0]]
	mem := &Memory{Name: names[0], MinPages: m.Min()}
	if maxPages, ok := m.Max(); ok {
		mem.MaxPages = maxPages
	}
	return mem, nil
}

func typeNames(ts []api.ValueType) string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, api.ValueTypeName(t))
	}
	return fmt.Sprintf("%v", names)
}
