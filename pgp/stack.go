package pgp

// evalStack is the scratch value stack of the evaluator. One instance is
// owned by each worker and reused across evaluations.
type evalStack struct {
	stack  []float64
	length int
}

func newEvalStack(capacity int) *evalStack {
	if capacity < 1 {
		capacity = 1
	}
	return &evalStack{
		stack:  make([]float64, capacity),
		length: 0,
	}
}

// Stack is the exported handle on a scratch stack, for callers evaluating
// programs outside an Algorithm
type Stack struct {
	s *evalStack
}

// NewStack allocates a scratch stack. It grows on demand; capacity is a hint.
func NewStack(capacity int) *Stack {
	return &Stack{s: newEvalStack(capacity)}
}

func (s *evalStack) push(v float64) {
	if s.length == len(s.stack) {
		grown := make([]float64, 2*len(s.stack))
		copy(grown, s.stack)
		s.stack = grown
	}

	s.stack[s.length] = v
	s.length++
}

// pop does not check for underflow; callers verify size() first
func (s *evalStack) pop() float64 {
	s.length--
	return s.stack[s.length]
}

func (s *evalStack) size() int {
	return s.length
}

func (s *evalStack) reset() {
	s.length = 0
}
