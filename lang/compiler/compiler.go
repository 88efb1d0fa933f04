// Package compiler turns source text directly into a value.Function's
// bytecode in a single pass: there is no intermediate AST and no separate
// resolver pass. It is a Pratt parser in the mold of the source language's
// own reference compiler, emitting each instruction the moment enough of
// the grammar has been recognized to know what it means.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
	"golang.org/x/exp/slices"
)

const (
	maxLocals   = 256
	maxUpvalues = 256
	maxCallArgs = 255
)

// Compile compiles source into the implicit top-level function that running
// it means calling. Errors accumulate across panic-mode recovery points; a
// non-nil error is always a *Error wrapping one or more *SyntaxError values.
func Compile(source string, heap *value.Heap) (*value.Function, error) {
	p := &parser{scanner: scanner.New(source)}
	c := newCompilerState(p, heap, nil, kindScript, "")

	p.advance()
	for !p.match(token.EOF) {
		c.declaration()
	}
	fn := c.end()

	if p.hadError {
		return nil, &Error{Errs: p.errs}
	}
	return fn, nil
}

type funcKind int

const (
	kindFunction funcKind = iota
	kindScript
)

type localVar struct {
	name       string
	depth      int // -1: declared but not yet initialized
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// compilerState compiles one function body. Compiling a nested function
// declaration pushes a new compilerState with enclosing set to the current
// one; all of them share the single parser driving the token stream, since
// there is exactly one scan position regardless of how deep the function
// nesting goes.
type compilerState struct {
	enclosing *compilerState
	p         *parser
	heap      *value.Heap

	function *value.Function
	kind     funcKind

	locals     []localVar
	scopeDepth int
	upvalues   []upvalueRef
}

func newCompilerState(p *parser, heap *value.Heap, enclosing *compilerState, kind funcKind, name string) *compilerState {
	c := &compilerState{enclosing: enclosing, p: p, heap: heap, kind: kind}
	nameStr := heap.NewString(c, name)
	fnKind := value.FuncFunction
	if kind == kindScript {
		fnKind = value.FuncScript
	}
	c.function = heap.NewFunction(c, nameStr, fnKind)
	// Slot 0 is reserved for the running closure itself, so a function's
	// first declared local always starts at index 1, matching how the
	// machine lays out a CallFrame's window.
	c.locals = append(c.locals, localVar{name: "", depth: 0})
	return c
}

// MarkRoots implements value.RootProvider so the heap can collect safely
// while a function (possibly several, nested) is still being built: the
// Function object under construction, and every enclosing one, is reachable
// only through this chain until OP_CLOSURE folds it into the enclosing
// chunk's constant pool.
func (c *compilerState) MarkRoots(mark func(value.Value)) {
	for cc := c; cc != nil; cc = cc.enclosing {
		if cc.function != nil {
			mark(cc.function)
		}
	}
}

func (c *compilerState) currentChunk() *value.Chunk { return &c.function.Chunk }

func (c *compilerState) emitByte(b byte) {
	c.currentChunk().Write(b, c.p.previous.Line)
}

func (c *compilerState) emitBytes(b1, b2 byte) {
	c.emitByte(b1)
	c.emitByte(b2)
}

func (c *compilerState) emitReturn() {
	c.emitByte(byte(value.OpNil))
	c.emitByte(byte(value.OpReturn))
}

func (c *compilerState) makeConstant(v value.Value) byte {
	idx, err := c.currentChunk().AddConstant(v)
	if err != nil {
		c.p.error(err.Error())
		return 0
	}
	return byte(idx)
}

func (c *compilerState) emitConstant(v value.Value) {
	c.emitBytes(byte(value.OpConstant), c.makeConstant(v))
}

// emitJump writes a two-byte placeholder operand after instr and returns
// its offset so patchJump can back-patch it once the jump target is known.
func (c *compilerState) emitJump(instr byte) int {
	c.emitByte(instr)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *compilerState) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xffff {
		c.p.error("Too much code to jump over.")
		return
	}
	code := c.currentChunk().Code
	code[offset] = byte(jump >> 8)
	code[offset+1] = byte(jump)
}

func (c *compilerState) emitLoop(loopStart int) {
	c.emitByte(byte(value.OpLoop))
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.p.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *compilerState) end() *value.Function {
	c.emitReturn()
	c.function.UpvalueCount = len(c.upvalues)
	return c.function
}

func (c *compilerState) beginScope() { c.scopeDepth++ }

func (c *compilerState) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emitByte(byte(value.OpCloseUpvalue))
		} else {
			c.emitByte(byte(value.OpPop))
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// ---- declarations and statements ----

func (c *compilerState) declaration() {
	switch {
	case c.p.match(token.FUN):
		c.funDeclaration()
	case c.p.match(token.VAR):
		c.varDeclaration()
	case c.p.match(token.CLASS):
		c.classDeclaration()
	default:
		c.statement()
	}
	if c.p.panicMode {
		c.p.synchronize()
	}
}

// classDeclaration reports classes as unsupported rather than silently
// accepting syntax it would never be able to run: class, this and super
// stay reserved words so the diagnostic names the actual construct the
// script used.
func (c *compilerState) classDeclaration() {
	c.p.error("Classes are not supported.")
	for !c.p.check(token.EOF) && !c.p.check(token.LBRACE) {
		c.p.advance()
	}
	if c.p.match(token.LBRACE) {
		depth := 1
		for depth > 0 && !c.p.check(token.EOF) {
			switch {
			case c.p.match(token.LBRACE):
				depth++
			case c.p.match(token.RBRACE):
				depth--
			default:
				c.p.advance()
			}
		}
	}
}

func (c *compilerState) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	name := c.p.previous.Lexeme
	c.markInitialized()
	c.parseFunction(kindFunction, name)
	c.defineVariable(global)
}

func (c *compilerState) parseFunction(kind funcKind, name string) {
	child := newCompilerState(c.p, c.heap, c, kind, name)
	child.beginScope()

	child.p.consume(token.LPAREN, "Expect '(' after function name.")
	if !child.p.check(token.RPAREN) {
		for {
			child.function.Arity++
			if child.function.Arity > maxCallArgs {
				child.p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := child.parseVariable("Expect parameter name.")
			child.defineVariable(constant)
			if !child.p.match(token.COMMA) {
				break
			}
		}
	}
	child.p.consume(token.RPAREN, "Expect ')' after parameters.")
	child.p.consume(token.LBRACE, "Expect '{' before function body.")
	child.block()

	fn := child.end()

	idx := c.makeConstant(fn)
	c.emitBytes(byte(value.OpClosure), idx)
	for _, uv := range child.upvalues {
		c.emitByte(boolByte(uv.isLocal))
		c.emitByte(uv.index)
	}
}

func (c *compilerState) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.p.match(token.EQ) {
		c.expression()
	} else {
		c.emitByte(byte(value.OpNil))
	}
	c.p.consume(token.SEMI, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *compilerState) parseVariable(msg string) byte {
	c.p.consume(token.IDENT, msg)
	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.p.previous)
}

func (c *compilerState) identifierConstant(name token.Token) byte {
	s := c.heap.NewString(c, name.Lexeme)
	return c.makeConstant(s)
}

func (c *compilerState) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.p.previous.Lexeme
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.p.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *compilerState) addLocal(name string) {
	if len(c.locals) >= maxLocals {
		c.p.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, localVar{name: name, depth: -1})
}

func (c *compilerState) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *compilerState) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(value.OpDefineGlobal), global)
}

func (c *compilerState) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *compilerState) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(byte(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(byte(up), false)
	}
	return -1
}

func (c *compilerState) addUpvalue(index byte, isLocal bool) int {
	if i := slices.IndexFunc(c.upvalues, func(uv upvalueRef) bool {
		return uv.index == index && uv.isLocal == isLocal
	}); i != -1 {
		return i
	}
	if len(c.upvalues) >= maxUpvalues {
		c.p.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

func (c *compilerState) statement() {
	switch {
	case c.p.match(token.PRINT):
		c.printStatement()
	case c.p.match(token.IF):
		c.ifStatement()
	case c.p.match(token.WHILE):
		c.whileStatement()
	case c.p.match(token.FOR):
		c.forStatement()
	case c.p.match(token.RETURN):
		c.returnStatement()
	case c.p.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *compilerState) printStatement() {
	c.expression()
	c.p.consume(token.SEMI, "Expect ';' after value.")
	c.emitByte(byte(value.OpPrint))
}

func (c *compilerState) expressionStatement() {
	c.expression()
	c.p.consume(token.SEMI, "Expect ';' after expression.")
	c.emitByte(byte(value.OpPop))
}

func (c *compilerState) block() {
	for !c.p.check(token.RBRACE) && !c.p.check(token.EOF) {
		c.declaration()
	}
	c.p.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *compilerState) ifStatement() {
	c.p.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.p.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(byte(value.OpJumpIfFalse))
	c.emitByte(byte(value.OpPop))
	c.statement()

	elseJump := c.emitJump(byte(value.OpJump))
	c.patchJump(thenJump)
	c.emitByte(byte(value.OpPop))

	if c.p.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compilerState) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.p.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.p.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(byte(value.OpJumpIfFalse))
	c.emitByte(byte(value.OpPop))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(value.OpPop))
}

func (c *compilerState) forStatement() {
	c.beginScope()
	c.p.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case c.p.match(token.SEMI):
		// no initializer clause
	case c.p.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.p.match(token.SEMI) {
		c.expression()
		c.p.consume(token.SEMI, "Expect ';' after loop condition.")
		exitJump = c.emitJump(byte(value.OpJumpIfFalse))
		c.emitByte(byte(value.OpPop))
	}

	if !c.p.check(token.RPAREN) {
		bodyJump := c.emitJump(byte(value.OpJump))
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitByte(byte(value.OpPop))
		c.p.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(byte(value.OpPop))
	}
	c.endScope()
}

func (c *compilerState) returnStatement() {
	if c.kind == kindScript {
		c.p.error("Can't return from top-level code.")
	}
	if c.p.match(token.SEMI) {
		c.emitReturn()
		return
	}
	c.expression()
	c.p.consume(token.SEMI, "Expect ';' after return value.")
	c.emitByte(byte(value.OpReturn))
}

// ---- expressions (Pratt parser) ----

func (c *compilerState) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *compilerState) parsePrecedence(prec precedence) {
	c.p.advance()
	prefix := getRule(c.p.previous.Type).prefix
	if prefix == nil {
		c.p.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.p.current.Type).precedence {
		c.p.advance()
		infix := getRule(c.p.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.p.match(token.EQ) {
		c.p.error("Invalid assignment target.")
	}
}

func (c *compilerState) argumentList() byte {
	var count int
	if !c.p.check(token.RPAREN) {
		for {
			c.expression()
			if count == maxCallArgs {
				c.p.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.p.match(token.COMMA) {
				break
			}
		}
	}
	c.p.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

func (c *compilerState) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp value.OpCode
	arg := c.resolveLocal(name.Lexeme)
	if arg != -1 {
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
	} else if arg = c.resolveUpvalue(name.Lexeme); arg != -1 {
		getOp, setOp = value.OpGetUpvalue, value.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && c.p.match(token.EQ) {
		c.expression()
		c.emitBytes(byte(setOp), byte(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func grouping(c *compilerState, _ bool) {
	c.expression()
	c.p.consume(token.RPAREN, "Expect ')' after expression.")
}

func call(c *compilerState, _ bool) {
	argCount := c.argumentList()
	c.emitBytes(byte(value.OpCall), argCount)
}

func unary(c *compilerState, _ bool) {
	opType := c.p.previous.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case token.MINUS:
		c.emitByte(byte(value.OpNegate))
	case token.BANG:
		c.emitByte(byte(value.OpNot))
	}
}

func binary(c *compilerState, _ bool) {
	opType := c.p.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case token.BANG_EQ:
		c.emitBytes(byte(value.OpEqual), byte(value.OpNot))
	case token.EQ_EQ:
		c.emitByte(byte(value.OpEqual))
	case token.GREATER:
		c.emitByte(byte(value.OpGreater))
	case token.GREATER_EQ:
		c.emitBytes(byte(value.OpLess), byte(value.OpNot))
	case token.LESS:
		c.emitByte(byte(value.OpLess))
	case token.LESS_EQ:
		c.emitBytes(byte(value.OpGreater), byte(value.OpNot))
	case token.PLUS:
		c.emitByte(byte(value.OpAdd))
	case token.MINUS:
		c.emitByte(byte(value.OpSubtract))
	case token.STAR:
		c.emitByte(byte(value.OpMultiply))
	case token.SLASH:
		c.emitByte(byte(value.OpDivide))
	}
}

func and_(c *compilerState, _ bool) {
	endJump := c.emitJump(byte(value.OpJumpIfFalse))
	c.emitByte(byte(value.OpPop))
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *compilerState, _ bool) {
	elseJump := c.emitJump(byte(value.OpJumpIfFalse))
	endJump := c.emitJump(byte(value.OpJump))
	c.patchJump(elseJump)
	c.emitByte(byte(value.OpPop))
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func number(c *compilerState, _ bool) {
	n, err := strconv.ParseFloat(c.p.previous.Lexeme, 64)
	if err != nil {
		c.p.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func stringLit(c *compilerState, _ bool) {
	lex := c.p.previous.Lexeme
	s := lex[1 : len(lex)-1] // strip the surrounding quotes
	c.emitConstant(c.heap.NewString(c, s))
}

func literal(c *compilerState, _ bool) {
	switch c.p.previous.Type {
	case token.FALSE:
		c.emitByte(byte(value.OpFalse))
	case token.NIL:
		c.emitByte(byte(value.OpNil))
	case token.TRUE:
		c.emitByte(byte(value.OpTrue))
	}
}

func variable(c *compilerState, canAssign bool) {
	c.namedVariable(c.p.previous, canAssign)
}

func thisExpr(c *compilerState, _ bool) {
	c.p.error("Can't use 'this' outside of a class.")
}

func superExpr(c *compilerState, _ bool) {
	c.p.error("Can't use 'super' outside of a class.")
}

// ---- parser: token-stream state shared by every nested compilerState ----

type parser struct {
	scanner *scanner.Scanner

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errs      []*SyntaxError
}

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Scan()
		if p.current.Type != token.ILLEGAL {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *parser) consume(t token.Type, msg string) {
	if p.current.Type == t {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *parser) check(t token.Type) bool { return p.current.Type == t }

func (p *parser) match(t token.Type) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *parser) error(msg string)          { p.errorAt(p.previous, msg) }

func (p *parser) errorAt(tok token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	var where string
	switch tok.Type {
	case token.EOF:
		where = " at end"
	case token.ILLEGAL:
		// the scanner's own message already names the problem
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	p.errs = append(p.errs, &SyntaxError{Line: tok.Line, Where: where, Msg: msg})
}

// synchronize discards tokens until it reaches what looks like a statement
// boundary, so one malformed statement doesn't cascade into a wall of
// spurious follow-on errors.
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Type != token.EOF {
		if p.previous.Type == token.SEMI {
			return
		}
		switch p.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}

// ---- precedence table ----

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *compilerState, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules = map[token.Type]parseRule{
	token.LPAREN:     {prefix: grouping, infix: call, precedence: precCall},
	token.MINUS:      {prefix: unary, infix: binary, precedence: precTerm},
	token.PLUS:       {infix: binary, precedence: precTerm},
	token.SLASH:      {infix: binary, precedence: precFactor},
	token.STAR:       {infix: binary, precedence: precFactor},
	token.BANG:       {prefix: unary},
	token.BANG_EQ:    {infix: binary, precedence: precEquality},
	token.EQ_EQ:      {infix: binary, precedence: precEquality},
	token.GREATER:    {infix: binary, precedence: precComparison},
	token.GREATER_EQ: {infix: binary, precedence: precComparison},
	token.LESS:       {infix: binary, precedence: precComparison},
	token.LESS_EQ:    {infix: binary, precedence: precComparison},
	token.IDENT:      {prefix: variable},
	token.STRING:     {prefix: stringLit},
	token.NUMBER:     {prefix: number},
	token.AND:        {infix: and_, precedence: precAnd},
	token.OR:         {infix: or_, precedence: precOr},
	token.FALSE:      {prefix: literal},
	token.NIL:        {prefix: literal},
	token.TRUE:       {prefix: literal},
	token.THIS:       {prefix: thisExpr},
	token.SUPER:      {prefix: superExpr},
}

func getRule(t token.Type) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{}
}
