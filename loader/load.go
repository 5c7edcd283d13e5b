package loader

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/host"
)

const fallbackModuleName = "guest"

// Load fetches the binary at rawURL and instantiates it against the import
// table. Every failure is a LoadError; on failure nothing is instantiated.
func (l *Loader) Load(ctx context.Context, rawURL string) error {
	if l.mod != nil {
		return errors.InvalidInput(errors.PhaseInstantiate, "module already loaded")
	}

	start := time.Now()
	data, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		l.metrics.Loaded(0, 0, err)
		return err
	}

	mod, err := l.instantiate(ctx, rawURL, data)
	if err != nil {
		l.metrics.Loaded(0, 0, err)
		return err
	}

	took := time.Since(start)
	l.metrics.Loaded(took, len(data), nil)
	l.mod = mod
	l.url = rawURL

	Logger().Info("module instantiated",
		zap.String("url", rawURL),
		zap.String("module", mod.Name()),
		zap.Int("bytes", len(data)),
		zap.Duration("took", took))
	return nil
}

func (l *Loader) instantiate(ctx context.Context, rawURL string, data []byte) (api.Module, error) {
	compiled, err := l.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Compile(rawURL, err)
	}

	if err := l.ensureHost(ctx); err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(rawURL, err)
	}

	if missing := l.missingImports(compiled); len(missing) > 0 {
		_ = compiled.Close(ctx)
		return nil, errors.New(errors.PhaseInstantiate, errors.KindMissingImport).
			URL(rawURL).
			Detail("unresolved imports").
			Cause(errors.NewMissingImportsError(missing)).
			Build()
	}

	mod, err := l.runtime.InstantiateModule(ctx, compiled, l.table.ModuleConfig(l.moduleName(rawURL)))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(rawURL, err)
	}
	return mod, nil
}

// missingImports lists imported functions no registered module provides, as
// "module.function".
func (l *Loader) missingImports(compiled wazero.CompiledModule) []string {
	var missing []string
	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		provider := l.runtime.Module(modName)
		// Host modules only expose definitions; ExportedFunction panics on them.
		if provider == nil || provider.ExportedFunctionDefinitions()[name] == nil {
			missing = append(missing, modName+"."+name)
		}
	}
	return missing
}

// moduleName derives the guest's name from the last URL path element,
// avoiding names the import table already uses.
func (l *Loader) moduleName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := strings.TrimSuffix(path.Base(strings.ReplaceAll(p, "\\", "/")), ".wasm")
	switch name {
	case "", ".", "/", l.table.Module(), wasi_snapshot_preview1.ModuleName:
		return fallbackModuleName
	}
	return name
}

// Import describes one imported function.
type Import struct {
	Module   string
	Name     string
	Params   []string
	Results  []string
	Resolved bool
}

// Export describes one exported function.
type Export struct {
	Name    string
	Params  []string
	Results []string
}

// Info summarizes a module without running it.
type Info struct {
	URL           string
	Entry         string
	Imports       []Import
	Exports       []Export
	Memories      []string
	Size          int
	ExportsHook   bool
	PublishesHook bool
}

// Inspect fetches and compiles the module at rawURL and reports its imports,
// exports, entry point and hook wiring. It never instantiates the module.
func (l *Loader) Inspect(ctx context.Context, rawURL string) (*Info, error) {
	data, err := l.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	compiled, err := l.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Compile(rawURL, err)
	}
	defer compiled.Close(ctx)

	if err := l.ensureHost(ctx); err != nil {
		return nil, errors.Instantiation(rawURL, err)
	}

	info := &Info{URL: rawURL, Size: len(data)}

	missing := make(map[string]bool)
	for _, key := range l.missingImports(compiled) {
		missing[key] = true
	}

	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		info.Imports = append(info.Imports, Import{
			Module:   modName,
			Name:     name,
			Params:   valueTypeNames(def.ParamTypes()),
			Results:  valueTypeNames(def.ResultTypes()),
			Resolved: !missing[modName+"."+name],
		})
		if modName == l.table.Module() && name == host.FuncPublishHook {
			info.PublishesHook = true
		}
	}

	exports := compiled.ExportedFunctions()
	for name, def := range exports {
		info.Exports = append(info.Exports, Export{
			Name:    name,
			Params:  valueTypeNames(def.ParamTypes()),
			Results: valueTypeNames(def.ResultTypes()),
		})
	}
	sort.Slice(info.Exports, func(i, j int) bool { return info.Exports[i].Name < info.Exports[j].Name })

	for name := range compiled.ExportedMemories() {
		info.Memories = append(info.Memories, name)
	}
	sort.Strings(info.Memories)

	for _, candidate := range l.opts.EntryPoints {
		if _, ok := exports[candidate]; ok {
			info.Entry = candidate
			break
		}
	}
	if def, ok := exports[l.opts.Hook]; ok && len(def.ParamTypes()) == 0 {
		info.ExportsHook = true
	}

	return info, nil
}

func valueTypeNames(types []api.ValueType) []string {
	if len(types) == 0 {
		return nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}
