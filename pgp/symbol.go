package pgp

import (
	"strconv"
)

// Symbol is one element of a postfix Program: a Variable, a Constant or an
// Operation. The set is closed; switch on the concrete type.
type Symbol interface {
	String() string
	isSymbol()
}

// Variable references an input column. Its value is the column's value in
// the evaluated row multiplied by Coefficient.
type Variable struct {
	Name        string
	Index       int
	Coefficient float64
}

// Constant is a literal whose Value may be refined by mutation and the
// constant optimizer
type Constant struct {
	Name  string
	Value float64
}

// Operation applies a catalog Operator to the top Arity stack values
type Operation struct {
	Op *Operator
}

func (Variable) isSymbol()  {}
func (Constant) isSymbol()  {}
func (Operation) isSymbol() {}

func (v Variable) String() string {
	if v.Coefficient == 1 {
		return v.Name
	}
	return strconv.FormatFloat(v.Coefficient, 'g', -1, 64) + "*" + v.Name
}

func (c Constant) String() string {
	return strconv.FormatFloat(c.Value, 'g', -1, 64)
}

func (o Operation) String() string {
	return o.Op.Symbol
}

// arityOf is the number of stack values a symbol consumes
func arityOf(s Symbol) int {
	if op, ok := s.(Operation); ok {
		return op.Op.Arity
	}
	return 0
}

func isOperation(s Symbol) bool {
	_, ok := s.(Operation)
	return ok
}
