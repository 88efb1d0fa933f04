package machine

import (
	"context"
	"fmt"

	"github.com/mna/loxvm/lang/value"
)

// run executes instructions until the outermost frame returns or a runtime
// fault occurs. It assumes the caller has already pushed the frame to run.
func (t *Thread) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame := &t.frames[t.frameCount-1]

		if t.Trace {
			t.traceInstruction(frame)
		}

		instr := value.OpCode(t.readByte(frame))
		switch instr {
		case value.OpConstant:
			t.push(t.readConstant(frame))
		case value.OpNil:
			t.push(value.None)
		case value.OpTrue:
			t.push(value.True)
		case value.OpFalse:
			t.push(value.False)
		case value.OpPop:
			t.pop()

		case value.OpGetLocal:
			slot := t.readByte(frame)
			t.push(t.stack[frame.base+int(slot)])
		case value.OpSetLocal:
			slot := t.readByte(frame)
			t.stack[frame.base+int(slot)] = t.peek(0)

		case value.OpGetGlobal:
			name := t.readConstant(frame).(*value.String)
			v, ok := t.globals.Get(name.Chars)
			if !ok {
				return t.runtimeError("Undefined variable %s.", name.Chars)
			}
			t.push(v)
		case value.OpDefineGlobal:
			name := t.readConstant(frame).(*value.String)
			t.globals.Put(name.Chars, t.peek(0))
			t.pop()
		case value.OpSetGlobal:
			name := t.readConstant(frame).(*value.String)
			if _, ok := t.globals.Get(name.Chars); !ok {
				return t.runtimeError("Undefined variable %s.", name.Chars)
			}
			t.globals.Put(name.Chars, t.peek(0))

		case value.OpGetUpvalue:
			slot := t.readByte(frame)
			t.push(frame.closure.Upvalues[slot].Get(t.stack))
		case value.OpSetUpvalue:
			slot := t.readByte(frame)
			frame.closure.Upvalues[slot].Set(t.stack, t.peek(0))

		case value.OpEqual:
			b := t.pop()
			a := t.pop()
			t.push(value.Bool(value.Equal(a, b)))
		case value.OpGreater:
			if rerr := t.numericCompare(func(a, b float64) bool { return a > b }); rerr != nil {
				return rerr
			}
		case value.OpLess:
			if rerr := t.numericCompare(func(a, b float64) bool { return a < b }); rerr != nil {
				return rerr
			}

		case value.OpAdd:
			if rerr := t.add(); rerr != nil {
				return rerr
			}
		case value.OpSubtract:
			if rerr := t.numericBinary(func(a, b float64) float64 { return a - b }); rerr != nil {
				return rerr
			}
		case value.OpMultiply:
			if rerr := t.numericBinary(func(a, b float64) float64 { return a * b }); rerr != nil {
				return rerr
			}
		case value.OpDivide:
			if rerr := t.numericBinary(func(a, b float64) float64 { return a / b }); rerr != nil {
				return rerr
			}

		case value.OpNot:
			t.push(value.Bool(!value.Truth(t.pop())))
		case value.OpNegate:
			n, ok := t.peek(0).(value.Number)
			if !ok {
				return t.runtimeError("Operand must be a number.")
			}
			t.pop()
			t.push(-n)

		case value.OpPrint:
			fmt.Fprintln(t.stdout, t.pop().String())

		case value.OpJump:
			off := t.readShort(frame)
			frame.ip += int(off)
		case value.OpJumpIfFalse:
			off := t.readShort(frame)
			if !value.Truth(t.peek(0)) {
				frame.ip += int(off)
			}
		case value.OpLoop:
			off := t.readShort(frame)
			frame.ip -= int(off)

		case value.OpCall:
			argCount := int(t.readByte(frame))
			callee := t.peek(argCount)
			if rerr := t.callValue(callee, argCount); rerr != nil {
				return rerr
			}

		case value.OpClosure:
			fn := t.readConstant(frame).(*value.Function)
			closure := t.heap.NewClosure(t, fn, make([]*value.Upvalue, fn.UpvalueCount))
			t.push(closure)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := t.readByte(frame)
				index := t.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = t.captureUpvalue(frame.base + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			t.closeUpvalues(t.stackTop - 1)
			t.pop()

		case value.OpReturn:
			result := t.pop()
			t.closeUpvalues(frame.base)
			t.frameCount--
			if t.frameCount == 0 {
				t.pop() // the implicit top-level closure
				return nil
			}
			t.stackTop = frame.base
			t.push(result)

		default:
			panic(fmt.Sprintf("loxvm: unknown opcode %d", instr))
		}
	}
}

func (t *Thread) readByte(f *callFrame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (t *Thread) readShort(f *callFrame) uint16 {
	hi := t.readByte(f)
	lo := t.readByte(f)
	return uint16(hi)<<8 | uint16(lo)
}

func (t *Thread) readConstant(f *callFrame) value.Value {
	idx := t.readByte(f)
	return f.closure.Function.Chunk.Constants[idx]
}

func (t *Thread) numericBinary(op func(a, b float64) float64) *RuntimeError {
	bn, bok := t.peek(0).(value.Number)
	an, aok := t.peek(1).(value.Number)
	if !aok || !bok {
		return t.runtimeError("Operands must be numbers.")
	}
	t.pop()
	t.pop()
	t.push(value.Number(op(float64(an), float64(bn))))
	return nil
}

func (t *Thread) numericCompare(op func(a, b float64) bool) *RuntimeError {
	bn, bok := t.peek(0).(value.Number)
	an, aok := t.peek(1).(value.Number)
	if !aok || !bok {
		return t.runtimeError("Operands must be numbers.")
	}
	t.pop()
	t.pop()
	t.push(value.Bool(op(float64(an), float64(bn))))
	return nil
}

func (t *Thread) add() *RuntimeError {
	bv := t.peek(0)
	av := t.peek(1)

	if bs, ok := bv.(*value.String); ok {
		if as, ok := av.(*value.String); ok {
			t.pop()
			t.pop()
			t.push(t.heap.NewString(t, as.Chars+bs.Chars))
			return nil
		}
	}
	if bn, ok := bv.(value.Number); ok {
		if an, ok := av.(value.Number); ok {
			t.pop()
			t.pop()
			t.push(an + bn)
			return nil
		}
	}
	return t.runtimeError("Operands must be two numbers or two strings.")
}
