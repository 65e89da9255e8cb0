package models

// LoadStateKind tags a LoadState.
type LoadStateKind string

const (
	LoadStateLoading LoadStateKind = "loading"
	LoadStateLoaded  LoadStateKind = "loaded"
	LoadStateErrored LoadStateKind = "error"
)

// LoadState is the three-state result of one fetch. Only the field matching
// Kind is meaningful.
type LoadState[T any] struct {
	Kind LoadStateKind
	Data T
	Err  error
}

// Loading returns the initial state of a fetch.
func Loading[T any]() LoadState[T] {
	return LoadState[T]{Kind: LoadStateLoading}
}

// Loaded wraps a successful result.
func Loaded[T any](data T) LoadState[T] {
	return LoadState[T]{Kind: LoadStateLoaded, Data: data}
}

// Errored wraps a failed fetch.
func Errored[T any](err error) LoadState[T] {
	return LoadState[T]{Kind: LoadStateErrored, Err: err}
}

// Terminal reports whether the fetch has finished.
func (s LoadState[T]) Terminal() bool {
	return s.Kind == LoadStateLoaded || s.Kind == LoadStateErrored
}
