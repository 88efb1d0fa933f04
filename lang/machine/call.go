package machine

import "github.com/mna/loxvm/lang/value"

// callValue dispatches a Call instruction: callee is whatever sits at
// peek(argCount), the value under the argCount arguments already pushed.
func (t *Thread) callValue(callee value.Value, argCount int) *RuntimeError {
	switch callee := callee.(type) {
	case *value.Closure:
		return t.callClosure(callee, argCount)
	case *value.Native:
		return t.callNative(callee, argCount)
	default:
		return t.runtimeError("Can only call functions and classes.")
	}
}

func (t *Thread) callClosure(closure *value.Closure, argCount int) *RuntimeError {
	if argCount != closure.Function.Arity {
		return t.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if t.frameCount == len(t.frames) {
		return t.runtimeError("Stack overflow.")
	}
	t.frames[t.frameCount] = callFrame{
		closure: closure,
		ip:      0,
		base:    t.stackTop - argCount - 1,
	}
	t.frameCount++
	return nil
}

func (t *Thread) callNative(native *value.Native, argCount int) *RuntimeError {
	args := make([]value.Value, argCount)
	copy(args, t.stack[t.stackTop-argCount:t.stackTop])

	result, err := native.Fn(args)
	if err != nil {
		return t.runtimeError("%s", err.Error())
	}

	t.stackTop -= argCount + 1
	t.push(result)
	return nil
}

// captureUpvalue finds or creates the Upvalue for the stack slot at index,
// keeping the open-upvalue list sorted by descending Index so that two
// closures capturing the same local share exactly one Upvalue.
func (t *Thread) captureUpvalue(index int) *value.Upvalue {
	var prev *value.Upvalue
	uv := t.openUpvalues
	for uv != nil && uv.Index > index {
		prev = uv
		uv = uv.NextUpvalue
	}
	if uv != nil && uv.Index == index {
		return uv
	}

	created := t.heap.NewUpvalue(t, index)
	created.NextUpvalue = uv
	if prev == nil {
		t.openUpvalues = created
	} else {
		prev.NextUpvalue = created
	}
	return created
}

// closeUpvalues closes every open upvalue referring to a stack slot at or
// above threshold, copying its value out of the stack before the frame that
// owns that slot is torn down.
func (t *Thread) closeUpvalues(threshold int) {
	for t.openUpvalues != nil && t.openUpvalues.Index >= threshold {
		uv := t.openUpvalues
		uv.Close(t.stack)
		t.openUpvalues = uv.NextUpvalue
	}
}
