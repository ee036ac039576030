package scopewire

import "fmt"

// objectContext tracks the object currently being written or read.
type objectContext struct {
	object        Serializable
	header        ObjectHeader
	startPosition uint32 // first header byte
	scope         uint32
}

func (s *Stream) pushObject(obj Serializable) error {
	if len(s.stack) >= s.opts.MaxDepth {
		return fmt.Errorf("%w: object nesting deeper than %d", ErrInsufficientResources, s.opts.MaxDepth)
	}
	s.stack = append(s.stack, objectContext{object: obj})
	return nil
}

func (s *Stream) popObject() (objectContext, error) {
	if len(s.stack) == 0 {
		return objectContext{}, fmt.Errorf("%w: object stack empty", ErrInsufficientResources)
	}
	top := s.stack[len(s.stack)-1]
	s.stack[len(s.stack)-1] = objectContext{}
	s.stack = s.stack[:len(s.stack)-1]
	return top, nil
}

// current returns the innermost context. The pointer is only valid until
// the next push.
func (s *Stream) current() (*objectContext, error) {
	if len(s.stack) == 0 {
		return nil, fmt.Errorf("%w: no object on the stack", ErrInsufficientResources)
	}
	return &s.stack[len(s.stack)-1], nil
}

// truncate unwinds the stack to depth after a failed object call.
func (s *Stream) truncate(depth int) {
	for i := depth; i < len(s.stack); i++ {
		s.stack[i] = objectContext{}
	}
	if depth < len(s.stack) {
		s.stack = s.stack[:depth]
	}
}

// Depth returns the number of objects currently being processed.
func (s *Stream) Depth() int { return len(s.stack) }

// CurrentScope returns the scope index of the innermost object.
func (s *Stream) CurrentScope() (uint32, error) {
	ctx, err := s.current()
	if err != nil {
		return 0, err
	}
	return ctx.scope, nil
}
