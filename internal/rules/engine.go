package rules

import (
	"container/list"
	"fmt"
	"sync"

	"paper-trading-bot/internal/logging"
)

// Builtin is one function exposed to expressions. The context is
// threaded explicitly so builtins never read hidden engine state.
type Builtin func(ctx *Context, args []Value) (Value, error)

// DefaultCacheSize bounds the program cache when the configuration
// does not set one.
const DefaultCacheSize = 256

// Engine compiles and evaluates expressions. Compiled programs are
// cached by exact text in a bounded LRU so a cache hit never
// recompiles.
type Engine struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	builtins map[string]Builtin
	log      *logging.Logger
}

type cacheEntry struct {
	text    string
	program *Program
}

// NewEngine creates an engine with the full builtin library.
func NewEngine(cacheSize int, log *logging.Logger) *Engine {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	e := &Engine{
		capacity: cacheSize,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		builtins: make(map[string]Builtin),
		log:      log.WithComponent("rules"),
	}
	registerBuiltins(e)
	return e
}

// RegisterBuiltin adds or replaces a builtin function.
func (e *Engine) RegisterBuiltin(name string, fn Builtin) {
	e.builtins[name] = fn
}

// Compile parses the expression, validates its function calls and
// caches the program. Identical text always returns the same program
// instance until eviction.
func (e *Engine) Compile(text string) (*Program, error) {
	e.mu.Lock()
	if elem, ok := e.entries[text]; ok {
		e.order.MoveToFront(elem)
		program := elem.Value.(*cacheEntry).program
		e.mu.Unlock()
		return program, nil
	}
	e.mu.Unlock()

	program, err := parse(text)
	if err != nil {
		return nil, err
	}
	for _, call := range program.calls {
		if _, ok := e.builtins[call.text]; !ok {
			return nil, &CompileError{Pos: call.pos, Msg: fmt.Sprintf("unknown function %q", call.text)}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if elem, ok := e.entries[text]; ok {
		// Lost a compile race; keep the cached instance.
		e.order.MoveToFront(elem)
		return elem.Value.(*cacheEntry).program, nil
	}
	elem := e.order.PushFront(&cacheEntry{text: text, program: program})
	e.entries[text] = elem
	for e.order.Len() > e.capacity {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.entries, oldest.Value.(*cacheEntry).text)
	}
	return program, nil
}

// Evaluate compiles (or reuses) the expression and runs it against the
// context.
func (e *Engine) Evaluate(text string, ctx *Context) (Value, error) {
	program, err := e.Compile(text)
	if err != nil {
		return Null, err
	}
	return e.Run(program, ctx)
}

// Run evaluates a compiled program against the context.
func (e *Engine) Run(program *Program, ctx *Context) (Value, error) {
	return program.root.eval(ctx, e)
}

// EvaluateBool evaluates an expression expected to be boolean. A
// compile error propagates; an evaluation error logs and yields the
// fallback.
func (e *Engine) EvaluateBool(text string, ctx *Context, fallback bool) (bool, error) {
	program, err := e.Compile(text)
	if err != nil {
		return fallback, err
	}
	v, err := e.Run(program, ctx)
	if err != nil {
		e.log.Debug("expression evaluation failed, using fallback",
			"expression", text, "fallback", fallback, "error", err.Error())
		return fallback, nil
	}
	return v.AsBool(), nil
}

// CacheLen reports how many programs are cached.
func (e *Engine) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.order.Len()
}

// ClearCache drops all cached programs.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order.Init()
	e.entries = make(map[string]*list.Element)
}
