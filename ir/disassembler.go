package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Style paints the tokens of a disassembly. A nil field leaves that token
// class unpainted.
type Style struct {
	Keyword     func(string) string
	Type        func(string) string
	Literal     func(string) string
	Comment     func(string) string
	Label       func(string) string
	Variable    func(string) string
	Function    func(string) string
	Instruction func(string) string
	Attribute   func(string) string
}

// Disassemble renders mod in its textual form.
//
// The output is deterministic: value ids are assigned in order of first
// reference, blocks are numbered in order of first reference, and control
// instructions are labelled if_N, loop_N and switch_N in printing order.
func Disassemble(mod *Module) string {
	return DisassembleStyled(mod, nil)
}

// DisassembleStyled renders mod like Disassemble, painting tokens with st.
func DisassembleStyled(mod *Module, st *Style) string {
	d := &disassembler{
		m:        mod,
		st:       st,
		valueIDs: make(map[ValueID]string),
		funcIDs:  make(map[FuncID]string),
		taken:    make(map[string]struct{}),
		blockIDs: make(map[BlockID]int),
		labels:   make(map[InstID]string),
	}
	return d.disassemble()
}

type disassembler struct {
	m      *Module
	st     *Style
	out    strings.Builder
	indent int

	valueIDs map[ValueID]string
	funcIDs  map[FuncID]string
	taken    map[string]struct{}
	ids      int

	blockIDs map[BlockID]int
	labels   map[InstID]string
	ifs      int
	loops    int
	switches int
}

func paint(f func(string) string, s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

func (d *disassembler) style() Style {
	if d.st == nil {
		return Style{}
	}
	return *d.st
}

func (d *disassembler) write(s string) { d.out.WriteString(s) }

func (d *disassembler) line() { d.out.WriteByte('\n') }

func (d *disassembler) writeIndent() {
	d.out.WriteString(strings.Repeat(" ", d.indent))
}

func (d *disassembler) disassemble() string {
	for _, h := range d.m.Types.Structs() {
		d.structDecl(h)
	}
	if !d.m.IsEmpty(d.m.Root) {
		d.block(d.m.Root, "root")
		d.line()
	}
	for _, f := range d.m.order {
		d.function(f)
	}
	return d.out.String()
}

// newID allocates the next id, preferring name when it is set.
func (d *disassembler) newID(name string) string {
	d.ids++
	if name == "" {
		return strconv.Itoa(d.ids)
	}
	if _, used := d.taken[name]; !used {
		d.taken[name] = struct{}{}
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if _, used := d.taken[candidate]; !used {
			d.taken[candidate] = struct{}{}
			return candidate
		}
	}
}

func (d *disassembler) valueID(v ValueID) string {
	if id, ok := d.valueIDs[v]; ok {
		return id
	}
	id := d.newID(d.m.NameOf(v))
	d.valueIDs[v] = id
	return id
}

func (d *disassembler) funcID(f FuncID) string {
	if id, ok := d.funcIDs[f]; ok {
		return id
	}
	id := d.newID(d.m.funcs[f].Name)
	d.funcIDs[f] = id
	return id
}

func (d *disassembler) blockID(b BlockID) string {
	id, ok := d.blockIDs[b]
	if !ok {
		id = len(d.blockIDs) + 1
		d.blockIDs[b] = id
	}
	return paint(d.style().Label, "%b"+strconv.Itoa(id))
}

func (d *disassembler) label(inst InstID) string {
	if name, ok := d.labels[inst]; ok {
		return name
	}
	var name string
	switch d.m.insts[inst].Kind {
	case InstIf:
		d.ifs++
		name = "if_" + strconv.Itoa(d.ifs)
	case InstLoop:
		d.loops++
		name = "loop_" + strconv.Itoa(d.loops)
	case InstSwitch:
		d.switches++
		name = "switch_" + strconv.Itoa(d.switches)
	default:
		return "undef"
	}
	d.labels[inst] = name
	return name
}

func (d *disassembler) typeName(t TypeHandle) string {
	return paint(d.style().Type, d.m.Types.Name(t))
}

func (d *disassembler) comment(s string) string {
	return paint(d.style().Comment, "# "+s)
}

func (d *disassembler) structDecl(h TypeHandle) {
	st := d.m.Types.Inner(h).(StructType)
	s := d.style()
	d.write(paint(s.Type, st.Name) + " = " + paint(s.Keyword, "struct") + " " +
		paint(s.Attribute, "@align") + "(" + paint(s.Literal, strconv.FormatUint(uint64(st.Align), 10)) + ") {")
	d.line()
	for _, mem := range st.Members {
		d.write("  " + paint(s.Variable, mem.Name) + ":" + d.typeName(mem.Type))
		d.write(" " + paint(s.Attribute, "@offset") + "(" + paint(s.Literal, strconv.FormatUint(uint64(mem.Offset), 10)) + ")")
		switch b := mem.Binding.(type) {
		case BuiltinBinding:
			d.write(", " + paint(s.Attribute, "@builtin") + "(" + b.Builtin.String() + ")")
		case LocationBinding:
			d.write(", " + paint(s.Attribute, "@location") + "(" + strconv.FormatUint(uint64(b.Location), 10) + ")")
		}
		d.line()
	}
	d.write("}")
	d.line()
	d.line()
}

func (d *disassembler) block(b BlockID, comment string) {
	d.writeIndent()
	d.write(d.blockID(b) + " = " + paint(d.style().Keyword, "block"))
	if params := d.m.blocks[b].Params; len(params) > 0 {
		d.write(" (")
		for i, p := range params {
			if i > 0 {
				d.write(", ")
			}
			d.value(p)
		}
		d.write(")")
	}
	d.write(" {")
	if comment != "" {
		d.write("  " + d.comment(comment))
	}
	d.line()
	d.indent += 2
	for _, inst := range d.m.blocks[b].Insts {
		d.writeIndent()
		d.instruction(inst)
		d.line()
	}
	d.indent -= 2
	d.writeIndent()
	d.write("}")
	d.line()
}

func bindingAttr(b Binding) string {
	switch b := b.(type) {
	case BuiltinBinding:
		return "@" + b.Builtin.String()
	case LocationBinding:
		return "@location(" + strconv.FormatUint(uint64(b.Location), 10) + ")"
	default:
		return ""
	}
}

func (d *disassembler) function(f FuncID) {
	fn := d.m.funcs[f]
	s := d.style()
	id := d.funcID(f)
	d.writeIndent()
	d.write(paint(s.Function, "%"+id) + " =")
	if fn.Stage != StageNone {
		d.write(" " + paint(s.Attribute, "@"+fn.Stage.String()))
	}
	if fn.WorkgroupSize != nil {
		dims := make([]string, 3)
		for i, dim := range fn.WorkgroupSize {
			if dim.Known() {
				dims[i] = paint(s.Literal, strconv.FormatUint(uint64(dim.Value), 10))
			} else {
				dims[i] = dim.Override
			}
		}
		d.write(" " + paint(s.Attribute, "@workgroup_size") + "(" + strings.Join(dims, ", ") + ")")
	}
	d.write(" " + paint(s.Keyword, "func") + "(")
	for i, p := range fn.Params {
		if i > 0 {
			d.write(", ")
		}
		d.write(paint(s.Variable, "%"+d.valueID(p)) + ":" + d.typeName(d.m.TypeOf(p)))
		if attr := bindingAttr(d.m.values[p].Binding); attr != "" {
			d.write(" [" + paint(s.Attribute, attr) + "]")
		}
	}
	d.write("):" + d.typeName(fn.ReturnType))
	if attr := bindingAttr(fn.ReturnBinding); attr != "" {
		d.write(" [" + paint(s.Attribute, attr) + "]")
	}
	d.write(" -> " + d.blockID(fn.Block) + " {")

	var names []string
	if fn.Name != "" && fn.Name != id {
		names = append(names, "%"+id+": '"+fn.Name+"'")
	}
	for _, p := range fn.Params {
		if name := d.m.NameOf(p); name != "" && name != d.valueID(p) {
			names = append(names, "%"+d.valueID(p)+": '"+name+"'")
		}
	}
	if len(names) > 0 {
		d.write("  " + d.comment(strings.Join(names, ", ")))
	}
	d.line()

	d.indent += 2
	d.block(fn.Block, "")
	d.indent -= 2
	d.writeIndent()
	d.write("}")
	d.line()
}

// value prints an operand.
func (d *disassembler) value(v ValueID) {
	if v == 0 {
		d.write(paint(d.style().Variable, "undef"))
		return
	}
	val := d.m.values[v]
	switch val.Kind {
	case ValueConstant:
		d.write(d.constant(val.Type, val.Const))
	case ValueResult, ValueFunctionParam:
		d.write(paint(d.style().Variable, "%"+d.valueID(v)))
	case ValueBlockParam:
		d.write(paint(d.style().Variable, "%"+d.valueID(v)) + ":" + d.typeName(val.Type))
	default:
		panic(fmt.Sprintf("ICE: unhandled value kind %d", val.Kind))
	}
}

// valueWithType prints a result definition.
func (d *disassembler) valueWithType(v ValueID) {
	d.write(paint(d.style().Variable, "%"+d.valueID(v)) + ":" + d.typeName(d.m.TypeOf(v)))
}

func (d *disassembler) constant(ty TypeHandle, c ConstantValue) string {
	switch c := c.(type) {
	case ScalarValue:
		return paint(d.style().Literal, FormatScalar(c, d.m.Types.Inner(ty)))
	case SplatValue:
		return d.typeName(ty) + "(" + d.constant(d.m.componentType(ty, 0), c.Value) + ")"
	case CompositeValue:
		parts := make([]string, len(c.Components))
		for i, comp := range c.Components {
			parts[i] = d.constant(d.m.componentType(ty, i), comp)
		}
		return d.typeName(ty) + "(" + strings.Join(parts, ", ") + ")"
	default:
		panic(fmt.Sprintf("ICE: unhandled constant %T", c))
	}
}

// FormatScalar renders a scalar constant with its type suffix, e.g. 1u, -1i,
// 0.5f, 1.0h.
func FormatScalar(v ScalarValue, ty TypeInner) string {
	s, _ := ty.(ScalarType)
	switch v.Kind {
	case ScalarBool:
		if v.Bits != 0 {
			return "true"
		}
		return "false"
	case ScalarSint:
		return strconv.FormatInt(int64(int32(uint32(v.Bits))), 10) + "i"
	case ScalarUint:
		return strconv.FormatUint(uint64(uint32(v.Bits)), 10) + "u"
	case ScalarFloat:
		f := math.Float32frombits(uint32(v.Bits))
		// The shortest float32 form rounds large integral values to their
		// leading digits, so those print exactly.
		bitSize := 32
		if g := float64(f); g == math.Trunc(g) && !math.IsInf(g, 0) {
			bitSize = 64
		}
		text := strconv.FormatFloat(float64(f), 'f', -1, bitSize)
		if !strings.ContainsAny(text, ".NI") {
			text += ".0"
		}
		if s.Width == 2 {
			return text + "h"
		}
		return text + "f"
	default:
		return "?"
	}
}

func (d *disassembler) operands(ops []ValueID) {
	for i, op := range ops {
		if i > 0 {
			d.write(", ")
		}
		d.value(op)
	}
}

func (d *disassembler) results(inst *Instruction) {
	for i, r := range inst.Results {
		if i > 0 {
			d.write(", ")
		}
		d.valueWithType(r)
	}
}

func (d *disassembler) op(name string) string {
	return paint(d.style().Instruction, name)
}

func (d *disassembler) instruction(id InstID) {
	inst := d.m.insts[id]
	if !inst.alive {
		d.write("<destroyed " + inst.Kind.String() + ">")
		return
	}
	s := d.style()

	switch inst.Kind {
	case InstVar:
		d.results(inst)
		d.write(" = " + d.op("var"))
		if len(inst.Operands) > 0 {
			d.write(", ")
			d.value(inst.Operands[0])
		}
		if bp := inst.BindingPoint; bp != nil {
			d.write(" " + paint(s.Attribute, "@binding_point") + "(" +
				paint(s.Literal, strconv.FormatUint(uint64(bp.Group), 10)) + ", " +
				paint(s.Literal, strconv.FormatUint(uint64(bp.Binding), 10)) + ")")
		}
	case InstStore:
		d.write(d.op("store") + " ")
		d.operands(inst.Operands)
	case InstStoreVectorElement:
		d.write(d.op("store_vector_element") + " ")
		d.operands(inst.Operands)
	case InstUserCall:
		d.results(inst)
		d.write(" = " + d.op("call") + " " + paint(s.Function, "%"+d.funcID(inst.Callee)))
		if len(inst.Operands) > 0 {
			d.write(", ")
			d.operands(inst.Operands)
		}
	case InstSwizzle:
		d.results(inst)
		d.write(" = " + d.op("swizzle") + " ")
		d.value(inst.Operands[0])
		d.write(", ")
		for _, idx := range inst.Indices {
			d.write(string("xyzw"[idx]))
		}
	case InstBinary:
		d.results(inst)
		d.write(" = " + d.op(inst.BinaryOp.String()) + " ")
		d.operands(inst.Operands)
	case InstUnary:
		d.results(inst)
		d.write(" = " + d.op(inst.UnaryOp.String()) + " ")
		d.operands(inst.Operands)
	case InstBuiltinCall:
		d.results(inst)
		d.write(" = " + d.op(inst.Builtin.String()))
		if len(inst.Operands) > 0 {
			d.write(" ")
			d.operands(inst.Operands)
		}
	case InstLet, InstLoad, InstLoadVectorElement, InstAccess, InstConstruct, InstConvert, InstBitcast:
		d.results(inst)
		d.write(" = " + d.op(inst.Kind.String()))
		if len(inst.Operands) > 0 {
			d.write(" ")
			d.operands(inst.Operands)
		}
	case InstIf:
		d.ifInst(id)
	case InstLoop:
		d.loopInst(id)
	case InstSwitch:
		d.switchInst(id)
	case InstReturn, InstExitIf, InstExitLoop, InstExitSwitch, InstContinue,
		InstNextIteration, InstBreakIf, InstUnreachable:
		d.terminator(id)
	default:
		panic(fmt.Sprintf("ICE: unhandled instruction kind %s", inst.Kind))
	}

	var names []string
	for _, r := range inst.Results {
		if name := d.m.NameOf(r); name != "" && name != d.valueID(r) {
			names = append(names, "%"+d.valueID(r)+": '"+name+"'")
		}
	}
	if len(names) > 0 {
		d.write("  " + d.comment(strings.Join(names, ", ")))
	}
}

func (d *disassembler) ifInst(id InstID) {
	inst := d.m.insts[id]
	if len(inst.Results) > 0 {
		d.results(inst)
		d.write(" = ")
	}
	d.write(d.op("if") + " ")
	d.value(inst.Operands[0])
	t, f := inst.Blocks[0], inst.Blocks[1]
	hasFalse := !d.m.IsEmpty(f)
	kw := d.style().Keyword
	d.write(" [" + paint(kw, "t") + ": " + d.blockID(t))
	if hasFalse {
		d.write(", " + paint(kw, "f") + ": " + d.blockID(f))
	}
	d.write("] {  " + d.comment(d.label(id)))
	d.line()

	d.indent += 2
	d.block(t, "true")
	if hasFalse {
		d.block(f, "false")
	} else if len(inst.Results) > 0 {
		d.writeIndent()
		d.write(paint(d.style().Comment, "# implicit false block: exit_if undef"+strings.Repeat(", undef", len(inst.Results)-1)))
		d.line()
	}
	d.indent -= 2
	d.writeIndent()
	d.write("}")
}

func (d *disassembler) loopInst(id InstID) {
	inst := d.m.insts[id]
	if len(inst.Results) > 0 {
		d.results(inst)
		d.write(" = ")
	}
	init, body, cont := inst.Blocks[0], inst.Blocks[1], inst.Blocks[2]
	kw := d.style().Keyword
	d.write(d.op("loop") + " [")
	if !d.m.IsEmpty(init) {
		d.write(paint(kw, "i") + ": " + d.blockID(init) + ", ")
	}
	d.write(paint(kw, "b") + ": " + d.blockID(body))
	if !d.m.IsEmpty(cont) {
		d.write(", " + paint(kw, "c") + ": " + d.blockID(cont))
	}
	d.write("] {  " + d.comment(d.label(id)))
	d.line()

	d.indent += 2
	if !d.m.IsEmpty(init) {
		d.block(init, "initializer")
	}
	d.block(body, "body")
	if !d.m.IsEmpty(cont) {
		d.block(cont, "continuing")
	}
	d.indent -= 2
	d.writeIndent()
	d.write("}")
}

func (d *disassembler) switchInst(id InstID) {
	inst := d.m.insts[id]
	if len(inst.Results) > 0 {
		d.results(inst)
		d.write(" = ")
	}
	d.write(d.op("switch") + " ")
	d.value(inst.Operands[0])
	d.write(" [")
	for i, c := range inst.Cases {
		if i > 0 {
			d.write(", ")
		}
		d.write("c: (")
		for j, sel := range c.Selectors {
			if j > 0 {
				d.write(" ")
			}
			if sel.Default {
				d.write(paint(d.style().Keyword, "default"))
			} else {
				d.value(sel.Value)
			}
		}
		d.write(", " + d.blockID(c.Block) + ")")
	}
	d.write("] {  " + d.comment(d.label(id)))
	d.line()

	d.indent += 2
	for _, c := range inst.Cases {
		d.block(c.Block, "case")
	}
	d.indent -= 2
	d.writeIndent()
	d.write("}")
}

func (d *disassembler) terminator(id InstID) {
	inst := d.m.insts[id]
	args := inst.Operands
	switch inst.Kind {
	case InstReturn:
		d.write(d.op("ret"))
	case InstUnreachable:
		d.write(d.op("unreachable"))
	case InstContinue:
		d.write(d.op("continue") + " " + d.blockID(d.m.insts[inst.Control].Blocks[2]))
	case InstNextIteration:
		d.write(d.op("next_iteration") + " " + d.blockID(d.m.insts[inst.Control].Blocks[1]))
	case InstBreakIf:
		d.write(d.op("break_if") + " ")
		d.value(args[0])
		d.write(" " + d.blockID(d.m.insts[inst.Control].Blocks[1]))
		args = args[1:]
	case InstExitIf:
		d.write(d.op("exit_if"))
	case InstExitLoop:
		d.write(d.op("exit_loop"))
	case InstExitSwitch:
		d.write(d.op("exit_switch"))
	}
	if len(args) > 0 {
		d.write(" ")
		d.operands(args)
	}
	switch inst.Kind {
	case InstExitIf, InstExitLoop, InstExitSwitch:
		d.write("  " + d.comment(d.label(inst.Control)))
	}
}
