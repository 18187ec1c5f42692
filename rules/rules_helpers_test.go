package rules

import (
	"testing"

	"github.com/exoego/inspequte-sub000/cfg"
	"github.com/exoego/inspequte-sub000/ir"
)

func be16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func newContext(classes ...*ir.Class) *Context {
	return &Context{Classes: classes}
}

// buildMethod assembles a method's CFG/Edges from raw bytecode and an
// explicit instruction list, mirroring how the scanner populates a Method
// before any rule ever sees it.
func buildMethod(t *testing.T, name, descriptor string, code []byte, instructions []*ir.Instruction, extra func(*ir.Method)) *ir.Method {
	t.Helper()
	method := &ir.Method{Name: name, Descriptor: descriptor, Bytecode: code, Instructions: instructions}
	if extra != nil {
		extra(method)
	}
	if err := cfg.Build(method); err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	return method
}

func classWith(name string, methods ...*ir.Method) *ir.Class {
	return &ir.Class{Name: name, Methods: methods}
}
