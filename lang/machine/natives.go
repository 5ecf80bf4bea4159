package machine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mna/calla/lang/value"
)

// clock() returns the seconds elapsed since the machine was initialized.
func (m *Machine) clockNative(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(m.start).Seconds()), nil
}

// append(list, value) adds value at the end of list.
func appendNative(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil, fmt.Errorf("Function 'append' requires 2 arguments, received %d", len(args))
	}
	list, ok := args[0].(*value.List)
	if !ok {
		return value.Nil, errors.New("Function 'append' requires first argument to be a list.")
	}
	list.Append(args[1])
	return value.Nil, nil
}

// delete(list, index) removes the element at index, shifting the rest down.
func deleteNative(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil, fmt.Errorf("Function 'delete' requires 2 arguments, received %d", len(args))
	}
	list, ok := args[0].(*value.List)
	if !ok {
		return value.Nil, errors.New("Function 'delete' requires first argument to be a list")
	}
	n, ok := value.AsNumber(args[1])
	if !ok {
		return value.Nil, errors.New("Function 'delete' requires second argument to be a number")
	}
	idx := int(n)
	if !list.Delete(idx) {
		return value.Nil, fmt.Errorf("Cannot delete, no element at index %d", idx)
	}
	return value.Nil, nil
}

// input() reads bytes from stdin until a newline or NUL and returns them as
// a string, without the terminator.
func (m *Machine) inputNative(args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return value.Nil, errors.New("Function 'input' takes no arguments.")
	}
	var buf bytes.Buffer
	for {
		c, err := m.stdin().ReadByte()
		if err == io.EOF || (err == nil && (c == '\n' || c == 0)) {
			break
		}
		if err != nil {
			return value.Nil, fmt.Errorf("Function 'input' failed to read: %s", err)
		}
		buf.WriteByte(c)
	}
	return m.heap.Intern(buf.String()), nil
}
