package block

import "fmt"

// DefaultRule supplies a value for an input the caller did not send.
type DefaultRule interface {
	Value(params map[string]any) (any, error)
}

// Static is a fixed default value.
type Static struct {
	V any
}

func (s Static) Value(map[string]any) (any, error) {
	return s.V, nil
}

// Computed derives a default from the parameters known so far.
type Computed func(params map[string]any) (any, error)

func (f Computed) Value(params map[string]any) (any, error) {
	return f(params)
}

// TransformFunc returns values merged over the hydrated parameters.
type TransformFunc func(params map[string]any) (map[string]any, error)

// BindFunc picks the action id from hydrated parameters.
type BindFunc func(params map[string]any) (string, error)

// safeCall runs fn and converts a panic into an error.
func safeCall[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
