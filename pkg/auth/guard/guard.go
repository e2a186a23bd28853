// Package guard marks a call chain as being inside a named operation.
//
// Guards live in the context, so only code that runs with a context derived
// from the one passed to fn observes them. Concurrent call chains that merely
// interleave with a guarded one never do.
package guard

import "context"

type ctxKey struct{}

type frame struct {
	name   string
	parent *frame
}

// Run calls fn with a context in which name is active. The guard ends when fn
// returns because the caller's ctx is never modified.
func Run[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	parent, _ := ctx.Value(ctxKey{}).(*frame)
	return fn(context.WithValue(ctx, ctxKey{}, &frame{name: name, parent: parent}))
}

// Active reports whether name is active in ctx's call chain.
func Active(ctx context.Context, name string) bool {
	for f, _ := ctx.Value(ctxKey{}).(*frame); f != nil; f = f.parent {
		if f.name == name {
			return true
		}
	}
	return false
}

// Names lists the active guards, innermost first.
func Names(ctx context.Context) []string {
	var names []string
	for f, _ := ctx.Value(ctxKey{}).(*frame); f != nil; f = f.parent {
		names = append(names, f.name)
	}
	return names
}
