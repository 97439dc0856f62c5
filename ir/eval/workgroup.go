package eval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/shaderir/ir"
)

// Workgroup is the outcome of RunWorkgroup.
type Workgroup struct {
	// Memory holds the final contents of the workgroup variables used.
	Memory map[ir.ValueID]Value
	// Resources holds the final contents of the resource variables used,
	// by binding point.
	Resources map[ir.BindingPoint]Value
	// Stores lists the writes to workgroup memory in execution order.
	Stores []Store
	// Barriers counts the barriers the workgroup passed.
	Barriers int
}

// event is sent by an invocation when it reaches a barrier or finishes.
type event struct {
	done bool
	err  error
}

// stopped unwinds invocations abandoned by the scheduler.
type stopped struct{}

// RunWorkgroup runs compute entry point entry of mod for one workgroup.
//
// Uninitialized workgroup memory holds Poison. Invocations run one at a
// time in local index order, each until it reaches a barrier or returns,
// and a barrier is passed once every invocation has reached it.
func RunWorkgroup(ctx context.Context, mod *ir.Module, entry ir.FuncID, opts Options) (*Workgroup, error) {
	fn := mod.Func(entry)
	if fn.Stage != ir.StageCompute {
		return nil, fmt.Errorf("eval: %s is not a compute entry point", fn.Name)
	}
	size := opts.Size
	if size == [3]uint32{} {
		if fn.WorkgroupSize == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorkgroupSize, fn.Name)
		}
		for i, d := range fn.WorkgroupSize {
			if !d.Known() {
				return nil, fmt.Errorf("%w: %s uses override %q", ErrUnknownWorkgroupSize, fn.Name, d.Override)
			}
			size[i] = d.Value
		}
	}
	total := size[0] * size[1] * size[2]
	if total == 0 {
		return nil, fmt.Errorf("eval: empty workgroup %v", size)
	}

	m := newMachine(ctx, mod, opts)
	s := &scheduler{
		events: make(chan event, total),
		stop:   make(chan struct{}),
		resume: make([]chan struct{}, total),
	}

	g := new(errgroup.Group)
	for i := range total {
		inv := m.newInvocation(i)
		resume := make(chan struct{})
		s.resume[i] = resume
		inv.barrier = func() { s.wait(resume) }
		args := entryArgs(m, fn, i, size)
		g.Go(func() error { return s.run(inv, entry, args) })
	}

	err := s.schedule(m)
	close(s.stop)
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}

	out := &Workgroup{
		Memory:    make(map[ir.ValueID]Value),
		Resources: make(map[ir.BindingPoint]Value),
		Stores:    m.stores,
		Barriers:  m.phase,
	}
	for v, cell := range m.shared {
		inst := mod.Inst(mod.Value(v).Inst)
		switch {
		case inst.BindingPoint != nil:
			out.Resources[*inst.BindingPoint] = *cell
		default:
			out.Memory[v] = *cell
		}
	}
	return out, nil
}

// scheduler hands control to one invocation at a time. Channel handoff
// orders every access to the machine.
type scheduler struct {
	events chan event
	stop   chan struct{}
	resume []chan struct{}
}

// wait reports a barrier and blocks until the invocation is resumed.
func (s *scheduler) wait(resume chan struct{}) {
	s.events <- event{}
	select {
	case <-resume:
	case <-s.stop:
		panic(stopped{})
	}
}

func (s *scheduler) run(inv *invocation, entry ir.FuncID, args []Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch f := r.(type) {
			case stopped:
				return
			case fault:
				err = f.err
			default:
				panic(r)
			}
		}
		s.events <- event{done: true, err: err}
	}()
	select {
	case <-s.resume[inv.index]:
	case <-s.stop:
		return nil
	}
	inv.call(entry, args)
	return nil
}

// schedule runs phases until every invocation finishes.
func (s *scheduler) schedule(m *machine) error {
	active := make([]int, len(s.resume))
	for i := range active {
		active[i] = i
	}
	for len(active) > 0 {
		if err := m.ctx.Err(); err != nil {
			return fmt.Errorf("eval: %w", err)
		}
		var waiting []int
		for _, i := range active {
			s.resume[i] <- struct{}{}
			ev := <-s.events
			if ev.err != nil {
				return fmt.Errorf("invocation %d: %w", i, ev.err)
			}
			if !ev.done {
				waiting = append(waiting, i)
			}
		}
		if len(waiting) > 0 && len(waiting) < len(active) {
			return fmt.Errorf("%w: %d of %d invocations waiting", ErrDivergentBarrier, len(waiting), len(active))
		}
		if len(waiting) > 0 {
			m.phase++
		}
		active = waiting
	}
	return nil
}

// entryArgs returns the arguments of invocation index: builtin inputs
// take their values for the first workgroup of a single-workgroup
// dispatch, other inputs are zero.
func entryArgs(m *machine, fn *ir.Function, index uint32, size [3]uint32) []Value {
	local := Vector(U32(index%size[0]), U32(index/size[0]%size[1]), U32(index/(size[0]*size[1])))
	builtin := func(b ir.Binding, ty ir.TypeHandle) Value {
		bb, ok := b.(ir.BuiltinBinding)
		if !ok {
			return Zero(m.types, ty)
		}
		switch bb.Builtin {
		case ir.BuiltinLocalInvocationIndex:
			return U32(index)
		case ir.BuiltinLocalInvocationID, ir.BuiltinGlobalInvocationID:
			return local.clone()
		case ir.BuiltinNumWorkGroups:
			return Vector(U32(1), U32(1), U32(1))
		default:
			return Zero(m.types, ty)
		}
	}

	args := make([]Value, len(fn.Params))
	for i, p := range fn.Params {
		ty := m.mod.TypeOf(p)
		if st, ok := m.types.Inner(ty).(ir.StructType); ok {
			v := Value{Elems: make([]Value, len(st.Members))}
			for j, mem := range st.Members {
				v.Elems[j] = builtin(mem.Binding, mem.Type)
			}
			args[i] = v
			continue
		}
		args[i] = builtin(m.mod.Value(p).Binding, ty)
	}
	return args
}
