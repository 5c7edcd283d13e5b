// Package wasmbin builds small core WebAssembly binaries.
//
// It covers the subset of the binary format needed for loader fixtures:
// function types, function imports, one memory, i32 globals, exports,
// active data segments and raw instruction bodies.
package wasmbin

import "fmt"

// Binary format constants.
const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11

	kindFunc   byte = 0
	kindMemory byte = 2
	kindGlobal byte = 3

	funcTypeByte byte = 0x60
)

// ValType is a core value type encoding.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

// Opcodes used by fixtures.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpEnd         byte = 0x0B
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Const    byte = 0x41
	OpI32Add      byte = 0x6A
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) equal(o FuncType) bool {
	if len(ft.Params) != len(o.Params) || len(ft.Results) != len(o.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type funcDef struct {
	locals  []ValType
	body    []byte
	typeIdx uint32
}

type global struct {
	init    int32
	mutable bool
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// Module accumulates module parts. Imports must be added before any
// function is defined so that function indices stay stable.
type Module struct {
	memory  *uint32
	types   []FuncType
	imports []funcImport
	funcs   []funcDef
	globals []global
	exports []export
	data    []dataSegment
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: imports must be added before functions")
	}
	idx := m.typeIndex(FuncType{Params: params, Results: results})
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: idx})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its index. body holds the
// instructions without the trailing end opcode.
func (m *Module) Func(params, results []ValType, locals []ValType, body ...[]byte) uint32 {
	idx := m.typeIndex(FuncType{Params: params, Results: results})
	var code []byte
	for _, b := range body {
		code = append(code, b...)
	}
	code = append(code, OpEnd)
	m.funcs = append(m.funcs, funcDef{typeIdx: idx, locals: locals, body: code})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module's memory with minPages initial pages.
func (m *Module) Memory(minPages uint32) {
	m.memory = &minPages
}

// GlobalI32 declares an i32 global and returns its index.
func (m *Module) GlobalI32(mutable bool, init int32) uint32 {
	m.globals = append(m.globals, global{init: init, mutable: mutable})
	return uint32(len(m.globals) - 1)
}

// Data places bytes in memory at offset when the module is instantiated.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, dataSegment{offset: offset, data: b})
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, index: idx})
}

// ExportMemory exports memory 0 under name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: kindMemory, index: 0})
}

// ExportGlobal exports global idx under name.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindGlobal, index: idx})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte(magic + version)

	if len(m.types) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.types)))
		for _, ft := range m.types {
			sec = append(sec, funcTypeByte)
			sec = appendValTypes(sec, ft.Params)
			sec = appendValTypes(sec, ft.Results)
		}
		out = appendSection(out, sectionType, sec)
	}

	if len(m.imports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec = appendName(sec, imp.module)
			sec = appendName(sec, imp.name)
			sec = append(sec, kindFunc)
			sec = appendU32(sec, imp.typeIdx)
		}
		out = appendSection(out, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec = appendU32(sec, f.typeIdx)
		}
		out = appendSection(out, sectionFunction, sec)
	}

	if m.memory != nil {
		var sec []byte
		sec = appendU32(sec, 1)
		sec = append(sec, 0x00) // limits: min only
		sec = appendU32(sec, *m.memory)
		out = appendSection(out, sectionMemory, sec)
	}

	if len(m.globals) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec = append(sec, byte(I32))
			if g.mutable {
				sec = append(sec, 0x01)
			} else {
				sec = append(sec, 0x00)
			}
			sec = append(sec, I32Const(g.init)...)
			sec = append(sec, OpEnd)
		}
		out = appendSection(out, sectionGlobal, sec)
	}

	if len(m.exports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = appendU32(sec, e.index)
		}
		out = appendSection(out, sectionExport, sec)
	}

	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendU32(body, 1)
				body = append(body, byte(l))
			}
			body = append(body, f.body...)
			sec = appendU32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, sectionCode, sec)
	}

	if len(m.data) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec = append(sec, 0x00) // active, memory 0
			sec = append(sec, I32Const(int32(d.offset))...)
			sec = append(sec, OpEnd)
			sec = appendU32(sec, uint32(len(d.data)))
			sec = append(sec, d.data...)
		}
		out = appendSection(out, sectionData, sec)
	}

	return out
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return appendS64([]byte{OpI32Const}, int64(v))
}

// Call encodes call idx.
func Call(idx uint32) []byte {
	return appendU32([]byte{OpCall}, idx)
}

// GlobalGet encodes global.get idx.
func GlobalGet(idx uint32) []byte {
	return appendU32([]byte{OpGlobalGet}, idx)
}

// GlobalSet encodes global.set idx.
func GlobalSet(idx uint32) []byte {
	return appendU32([]byte{OpGlobalSet}, idx)
}

// Op wraps single-byte opcodes for use as a Func body part.
func Op(ops ...byte) []byte {
	return ops
}

// Increment encodes global[idx] += 1.
func Increment(idx uint32) []byte {
	var b []byte
	b = append(b, GlobalGet(idx)...)
	b = append(b, I32Const(1)...)
	b = append(b, OpI32Add)
	b = append(b, GlobalSet(idx)...)
	return b
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(content)))
	return append(out, content...)
}

func appendValTypes(out []byte, vts []ValType) []byte {
	out = appendU32(out, uint32(len(vts)))
	for _, vt := range vts {
		out = append(out, byte(vt))
	}
	return out
}

func appendName(out []byte, s string) []byte {
	out = appendU32(out, uint32(len(s)))
	return append(out, s...)
}

// appendU32 appends v as unsigned LEB128.
func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// appendS64 appends v as signed LEB128.
func appendS64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// String describes the module layout, for test failure messages.
func (m *Module) String() string {
	return fmt.Sprintf("module{types:%d imports:%d funcs:%d globals:%d exports:%d data:%d}",
		len(m.types), len(m.imports), len(m.funcs), len(m.globals), len(m.exports), len(m.data))
}
