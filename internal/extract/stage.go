// Package extract turns archive records into cleaned address candidates.
//
// The pipeline is pull-based and single-threaded: each stage handles one
// item at a time and hands its outputs straight to the next stage, so memory
// stays bounded per archive and a consumer that stops pulling stops all
// upstream work.
package extract

// Stage processes one input and emits zero or more outputs. emit returns
// false once the consumer has stopped; Process must then return false.
type Stage[In, Out any] interface {
	Process(in In, emit func(Out) bool) bool
}

// StageFunc adapts a function to the Stage interface.
type StageFunc[In, Out any] func(in In, emit func(Out) bool) bool

// Process calls f.
func (f StageFunc[In, Out]) Process(in In, emit func(Out) bool) bool {
	return f(in, emit)
}

// Chain feeds every output of first into second.
func Chain[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return StageFunc[A, C](func(in A, emit func(C) bool) bool {
		return first.Process(in, func(mid B) bool {
			return second.Process(mid, emit)
		})
	})
}
