package scopewire

import (
	"errors"
	"fmt"
	"math"
)

// WriteStartType opens the next scope of the current object.
func (s *Stream) WriteStartType() error {
	return s.writeMetadata(TagScopeBegin)
}

// WriteEndType re-emits unknown data kept for the current scope and closes it.
func (s *Stream) WriteEndType() error {
	return s.WriteEndTypeWithCallback(nil)
}

// WriteEndTypeWithCallback is WriteEndType that also registers fn to run
// from InvokeCallbacks.
func (s *Stream) WriteEndTypeWithCallback(fn CompletionFunc) error {
	if fn != nil {
		s.bs.AddCompletionCallback(fn)
	}
	ctx, err := s.current()
	if err != nil {
		return err
	}
	data, err := ctx.object.UnknownData(ctx.scope)
	switch {
	case errors.Is(err, ErrNoMoreUnknownBuffers):
	case err != nil:
		return err
	default:
		if err := s.WriteRawBytes(data); err != nil {
			return err
		}
	}
	ctx.scope++
	return s.writeMetadata(TagScopeEnd)
}

// ReadStartType enters the next scope. StatusScopeEnd means the writer
// produced no such scope; the caller should apply defaults.
func (s *Stream) ReadStartType() (Status, error) {
	t, _, err := s.readMetadata()
	if err != nil {
		return StatusOK, err
	}
	switch t {
	case TagScopeBegin:
		return StatusOK, nil
	case TagObjectEnd:
		s.log.Debug("scope missing from stream", "offset", s.lastMetadataPosition)
		return StatusScopeEnd, s.seekToLastMetadata()
	}
	return StatusOK, formatError("expected ScopeBegin, got %s at offset %d", t, s.lastMetadataPosition)
}

// ReadEndType leaves the current scope, preserving any fields still
// pending in it as unknown data.
func (s *Stream) ReadEndType() (Status, error) {
	return s.readEndType(false)
}

func (s *Stream) readEndType(trailing bool) (Status, error) {
	t, _, err := s.readMetadata()
	if err != nil {
		return StatusOK, err
	}
	if t == TagObjectEnd {
		if trailing {
			return StatusOK, formatError("unterminated scope at offset %d", s.lastMetadataPosition)
		}
		return StatusScopeEnd, s.seekToLastMetadata()
	}
	ctx, err := s.current()
	if err != nil {
		return StatusOK, err
	}
	if t != TagScopeEnd {
		if err := s.seekToLastMetadata(); err != nil {
			return StatusOK, err
		}
		if err := s.readUnknownData(); err != nil {
			return StatusOK, err
		}
		if t, _, err = s.readMetadata(); err != nil {
			return StatusOK, err
		}
		if t != TagScopeEnd {
			return StatusOK, formatError("expected ScopeEnd, got %s at offset %d", t, s.lastMetadataPosition)
		}
	} else if trailing {
		// keep empty trailing scopes so they are written back
		if err := ctx.object.SetUnknownData(ctx.scope, []byte{}); err != nil {
			return StatusOK, err
		}
	}
	ctx.scope++
	return StatusOK, nil
}

// WriteSerializable writes obj as a nested object.
func (s *Stream) WriteSerializable(obj Serializable) (err error) {
	if isNil(obj) {
		return fmt.Errorf("%w: nil object", ErrInvalidParameter)
	}
	depth := len(s.stack)
	if err := s.pushObject(obj); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.truncate(depth)
		}
	}()

	if err := s.writeMetadata(TagObject); err != nil {
		return err
	}
	start := s.bs.Position()
	var header ObjectHeader
	header.Encode(s.fixed[:HeaderSize])
	if err := s.bs.WriteBytes(s.fixed[:HeaderSize]); err != nil {
		return err
	}

	if info := obj.TypeInformation(); len(info) > 0 {
		if uint32(len(info)) > s.opts.MaxTypeInfoLength || uint64(len(info)) > math.MaxUint32 {
			return fmt.Errorf("%w: type information of %d bytes", ErrInvalidParameter, len(info))
		}
		header.Flags |= ContainsTypeInformation
		if err := s.WriteUInt32WithNoMetadata(uint32(len(info))); err != nil {
			return err
		}
		if err := s.bs.WriteBytes(info); err != nil {
			return err
		}
	}

	if err := obj.Write(s); err != nil {
		return err
	}
	if err := s.writeUnknownDataInExtraScopes(); err != nil {
		return err
	}
	if err := s.writeMetadata(TagObjectEnd); err != nil {
		return err
	}

	ctx, err := s.popObject()
	if err != nil {
		return err
	}
	header.Flags |= ctx.header.Flags
	header.Size = s.bs.Position() - start
	if err := s.bs.Seek(start); err != nil {
		return err
	}
	header.Encode(s.fixed[:HeaderSize])
	if err := s.bs.WriteBytes(s.fixed[:HeaderSize]); err != nil {
		return err
	}
	if header.Has(ContainsExtensionData) && len(s.stack) > 0 {
		s.stack[len(s.stack)-1].header.Flags |= ContainsExtensionData
	}
	return s.bs.SeekToEnd()
}

// writeUnknownDataInExtraScopes replays scopes this code does not know about.
func (s *Stream) writeUnknownDataInExtraScopes() error {
	for {
		ctx, err := s.current()
		if err != nil {
			return err
		}
		_, err = ctx.object.UnknownData(ctx.scope)
		if errors.Is(err, ErrNoMoreUnknownBuffers) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.WriteStartType(); err != nil {
			return err
		}
		if err := s.WriteEndType(); err != nil {
			return err
		}
	}
}

// readObjectPrefix reads the Object tag, header and type descriptor.
// info is nil when the writer stored none. discardInfo skips the bytes.
func (s *Stream) readObjectPrefix(discardInfo bool) (header ObjectHeader, start uint32, info []byte, st Status, err error) {
	t, end, err := s.readMetadata()
	if err != nil {
		return header, 0, nil, StatusOK, err
	}
	if end {
		return header, 0, nil, StatusScopeEnd, s.seekToLastMetadata()
	}
	if t != TagObject {
		return header, 0, nil, StatusOK, metadataError(t, TagObject)
	}
	start = s.bs.Position()
	if err := s.bs.ReadBytes(s.fixed[:HeaderSize]); err != nil {
		return header, 0, nil, StatusOK, err
	}
	if header, err = ParseHeader(s.fixed[:HeaderSize]); err != nil {
		return header, 0, nil, StatusOK, err
	}
	if !header.Has(ContainsTypeInformation) {
		return header, start, nil, StatusOK, nil
	}
	n, err := s.readCount()
	if err != nil {
		return header, 0, nil, StatusOK, err
	}
	if n == 0 || n > s.opts.MaxTypeInfoLength {
		return header, 0, nil, StatusOK, formatError("type information length %d", n)
	}
	if size := s.bs.Size(); size > 0 && size < n {
		return header, 0, nil, StatusOK, formatError("type information length %d exceeds stream size %d", n, size)
	}
	if discardInfo {
		return header, start, nil, StatusOK, s.bs.Seek(s.bs.Position() + n)
	}
	info = make([]byte, n)
	if err := s.bs.ReadBytes(info); err != nil {
		return header, 0, nil, StatusOK, err
	}
	return header, start, info, StatusOK, nil
}

// ReadSerializable reads a nested object into obj.
func (s *Stream) ReadSerializable(obj Serializable) (Status, error) {
	if isNil(obj) {
		return StatusOK, fmt.Errorf("%w: nil object", ErrInvalidParameter)
	}
	header, start, _, st, err := s.readObjectPrefix(true)
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	return StatusOK, s.readSerializableInternal(obj, header, start)
}

func (s *Stream) readSerializableInternal(obj Serializable, header ObjectHeader, start uint32) (err error) {
	obj.ClearUnknownData()
	depth := len(s.stack)
	if err := s.pushObject(obj); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.truncate(depth)
		}
	}()
	s.stack[depth].header = header
	s.stack[depth].startPosition = start

	if err := obj.Read(s); err != nil {
		return err
	}
	for {
		t, _, err := s.readMetadata()
		if err != nil {
			return err
		}
		if t == TagObjectEnd {
			break
		}
		if t != TagScopeBegin {
			return formatError("expected ScopeBegin or ObjectEnd, got %s at offset %d", t, s.lastMetadataPosition)
		}
		if _, err := s.readEndType(true); err != nil {
			return err
		}
	}
	if _, err := s.popObject(); err != nil {
		return err
	}
	if used := s.bs.Position() - start; used != header.Size {
		return formatError("object at offset %d declares %d bytes, read %d", start, header.Size, used)
	}
	return nil
}

func (s *Stream) readSerializableAsPointer(activator TypeActivator) (Serializable, Status, error) {
	header, start, info, st, err := s.readObjectPrefix(false)
	if err != nil || st == StatusScopeEnd {
		return nil, st, err
	}
	obj, err := activator.Activate(info)
	if err != nil {
		return nil, StatusOK, err
	}
	if isNil(obj) {
		return nil, StatusOK, ErrObjectActivationFailed
	}
	if err := s.readSerializableInternal(obj, header, start); err != nil {
		return nil, StatusOK, err
	}
	return obj, StatusOK, nil
}

// WritePointer writes obj or, for nil, an empty pointer.
func (s *Stream) WritePointer(obj Serializable) error {
	if isNil(obj) {
		return s.writeMetadata(MakeEmpty(TagPointer))
	}
	if err := s.writeMetadata(TagPointer); err != nil {
		return err
	}
	return s.WriteSerializable(obj)
}

// ReadPointer reads a pointer, constructing its target through activator.
// A nil pointer returns a nil object with StatusOK.
func (s *Stream) ReadPointer(activator TypeActivator) (Serializable, Status, error) {
	if activator == nil {
		return nil, StatusOK, fmt.Errorf("%w: nil activator", ErrInvalidParameter)
	}
	t, st, err := s.beginRead(TagPointer)
	if err != nil || st == StatusScopeEnd {
		return nil, st, err
	}
	if t.IsEmpty() {
		return nil, StatusOK, nil
	}
	return s.readSerializableAsPointer(activator)
}

// WriteSerializableArray writes a counted array of objects.
func (s *Stream) WriteSerializableArray(objs []Serializable) error {
	if ok, err := writeArrayHeader(s, TagObject, len(objs)); !ok || err != nil {
		return err
	}
	for _, obj := range objs {
		if err := s.WriteSerializable(obj); err != nil {
			return err
		}
	}
	return nil
}

// ReadSerializableArray reads an object array into the preallocated
// objects of dst.
func (s *Stream) ReadSerializableArray(dst []Serializable) (int, Status, error) {
	count, st, err := s.beginArrayRead(TagObject, len(dst), HeaderSize+2, false)
	if err != nil || st == StatusScopeEnd {
		return int(count), st, err
	}
	for i := range int(count) {
		st, err := s.ReadSerializable(dst[i])
		if err != nil {
			return 0, StatusOK, err
		}
		if st == StatusScopeEnd {
			return 0, StatusOK, formatError("object array ended after %d of %d elements", i, count)
		}
	}
	return int(count), StatusOK, nil
}

// WritePointerArray writes a counted array of nullable objects.
func (s *Stream) WritePointerArray(objs []Serializable) error {
	if ok, err := writeArrayHeader(s, TagPointer, len(objs)); !ok || err != nil {
		return err
	}
	for _, obj := range objs {
		if err := s.WritePointer(obj); err != nil {
			return err
		}
	}
	return nil
}

// ReadPointerArray reads a pointer array into dst, activating each element.
func (s *Stream) ReadPointerArray(dst []Serializable, activator TypeActivator) (int, Status, error) {
	if activator == nil {
		return 0, StatusOK, fmt.Errorf("%w: nil activator", ErrInvalidParameter)
	}
	count, st, err := s.beginArrayRead(TagPointer, len(dst), 1, false)
	if err != nil || st == StatusScopeEnd {
		return int(count), st, err
	}
	for i := range int(count) {
		obj, st, err := s.ReadPointer(activator)
		if err != nil {
			return 0, StatusOK, err
		}
		if st == StatusScopeEnd {
			return 0, StatusOK, formatError("pointer array ended after %d of %d elements", i, count)
		}
		dst[i] = obj
	}
	return int(count), StatusOK, nil
}
