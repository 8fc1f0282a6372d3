package jsonld

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DefaultMaxParseDepth bounds container nesting accepted by Parse.
const DefaultMaxParseDepth = 512

// ErrTooDeep is returned when the document nests containers beyond the limit.
var ErrTooDeep = errors.New("jsonld: nesting too deep")

type frame struct {
	obj     *Map
	arr     []Value
	isObj   bool
	key     string
	haveKey bool
}

// Parse decodes a single JSON document into a Value, keeping object keys in
// document order. Trailing data after the document is an error.
func Parse(data []byte) (Value, error) {
	return ParseDepth(data, DefaultMaxParseDepth)
}

// ParseDepth is Parse with an explicit nesting limit. The document is built
// with an explicit stack, so deep input cannot exhaust the goroutine stack.
func ParseDepth(data []byte, maxDepth int) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var (
		stack []frame
		root  Value
		done  bool
	)

	add := func(v Value) {
		if len(stack) == 0 {
			root = v
			done = true
			return
		}
		top := &stack[len(stack)-1]
		if top.isObj {
			top.obj.set(top.key, v)
			top.haveKey = false
			return
		}
		top.arr = append(top.arr, v)
	}

	for !done {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return Value{}, eris.New("jsonld: unexpected end of input")
			}
			return Value{}, eris.Wrap(err, "jsonld: decode")
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if len(stack) >= maxDepth {
					return Value{}, ErrTooDeep
				}
				f := frame{isObj: t == '{'}
				if f.isObj {
					f.obj = &Map{index: map[string]int{}}
				}
				stack = append(stack, f)
			case '}', ']':
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.isObj {
					add(Value{kind: Object, obj: top.obj})
				} else {
					add(Value{kind: Array, arr: top.arr})
				}
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].isObj && !stack[n-1].haveKey {
				stack[n-1].key = t
				stack[n-1].haveKey = true
				continue
			}
			add(StringValue(t))
		case json.Number:
			add(NumberValue(string(t)))
		case bool:
			add(BoolValue(t))
		case nil:
			add(NullValue())
		}
	}

	if _, err := dec.Token(); err != io.EOF {
		return Value{}, eris.New("jsonld: trailing data after document")
	}
	return root, nil
}
