package scopewire

import (
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// readUnknownData consumes every field up to the next ScopeEnd and stores
// the raw bytes on the current object. The stream is left on the ScopeEnd tag.
func (s *Stream) readUnknownData() error {
	start := s.bs.Position()
	for {
		t, _, err := s.readMetadata()
		if err != nil {
			return err
		}
		if t == TagScopeEnd {
			break
		}
		if t.IsSentinel() || !t.Valid() {
			return formatError("unexpected %s in scope at offset %d", t, s.lastMetadataPosition)
		}
		if t.IsEmpty() {
			if t.Kind() == TagByteArrayNoCopy {
				return s.refuseExtension()
			}
			continue
		}
		if err := s.seekToLastMetadata(); err != nil {
			return err
		}
		if t.IsArray() {
			err = s.skipUnknownArray(t)
		} else {
			err = s.skipUnknownValue(t)
		}
		if err != nil {
			return err
		}
	}

	end := s.lastMetadataPosition
	if err := s.bs.Seek(start); err != nil {
		return err
	}
	data := make([]byte, end-start)
	if err := s.ReadRawBytes(data); err != nil {
		return err
	}
	ctx, err := s.current()
	if err != nil {
		return err
	}
	s.log.Debug("preserved unknown data", "scope", ctx.scope, "bytes", len(data), "depth", len(s.stack))
	return ctx.object.SetUnknownData(ctx.scope, data)
}

func (s *Stream) refuseExtension() error {
	s.log.Debug("refusing to skip extension buffers", "offset", s.lastMetadataPosition)
	return fmt.Errorf("%w: at offset %d", ErrInvalidUnknownExtensionBuffers, s.lastMetadataPosition)
}

// skipUnknownValue reads and drops one scalar, object or pointer.
func (s *Stream) skipUnknownValue(t TypeTag) error {
	var err error
	switch t.Kind() {
	case TagBool:
		var v bool
		_, err = s.ReadBool(&v)
	case TagChar:
		var v int8
		_, err = s.ReadChar(&v)
	case TagUChar:
		var v uint8
		_, err = s.ReadUChar(&v)
	case TagGuid:
		var v uuid.UUID
		_, err = s.ReadGuid(&v)
	case TagDouble:
		var v float64
		_, err = s.ReadDouble(&v)
	case TagShort:
		var v int16
		_, err = s.ReadShort(&v)
	case TagUShort:
		var v uint16
		_, err = s.ReadUShort(&v)
	case TagInt32:
		var v int32
		_, err = s.ReadInt32(&v)
	case TagUInt32:
		var v uint32
		_, err = s.ReadUInt32(&v)
	case TagInt64:
		var v int64
		_, err = s.ReadInt64(&v)
	case TagUInt64:
		var v uint64
		_, err = s.ReadUInt64(&v)
	case TagObject:
		err = s.skipObject()
	case TagPointer:
		if _, _, err = s.readMetadata(); err == nil {
			err = s.skipObject()
		}
	case TagByteArrayNoCopy:
		if _, _, err = s.readMetadata(); err == nil {
			err = s.refuseExtension()
		}
	default:
		_, _, err = s.readMetadata()
		if err == nil {
			err = metadataError(t, MakeArray(t))
		}
	}
	return err
}

// skipUnknownArray reads and drops one array.
func (s *Stream) skipUnknownArray(t TypeTag) error {
	var err error
	switch t.Kind() {
	case TagBool:
		_, _, err = readFixedArray(s, TagBool, nil, boolCodec, true)
	case TagChar:
		_, _, err = readFixedArray(s, TagChar, nil, charCodec, true)
	case TagUChar:
		_, _, err = readFixedArray(s, TagUChar, nil, ucharCodec, true)
	case TagGuid:
		_, _, err = readFixedArray(s, TagGuid, nil, guidCodec, true)
	case TagDouble:
		_, _, err = readFixedArray(s, TagDouble, nil, doubleCodec, true)
	case TagWString:
		_, _, err = readFixedArray(s, TagWString, nil, wcharCodec, true)
	case TagShort:
		_, _, err = readCompressedArray[int16](s, TagShort, nil, true, true)
	case TagUShort:
		_, _, err = readCompressedArray[uint16](s, TagUShort, nil, false, true)
	case TagInt32:
		_, _, err = readCompressedArray[int32](s, TagInt32, nil, true, true)
	case TagUInt32:
		_, _, err = readCompressedArray[uint32](s, TagUInt32, nil, false, true)
	case TagInt64:
		_, _, err = readCompressedArray[int64](s, TagInt64, nil, true, true)
	case TagUInt64:
		_, _, err = readCompressedArray[uint64](s, TagUInt64, nil, false, true)
	case TagObject:
		err = s.skipObjectArray()
	case TagPointer:
		err = s.skipPointerArray()
	default:
		_, _, err = s.readMetadata()
		if err == nil {
			err = s.refuseExtension()
		}
	}
	return err
}

func (s *Stream) skipObjectArray() error {
	count, _, err := s.beginArrayRead(TagObject, 0, HeaderSize+2, true)
	if err != nil {
		return err
	}
	for range count {
		if err := s.skipObject(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) skipPointerArray() error {
	count, _, err := s.beginArrayRead(TagPointer, 0, 1, true)
	if err != nil {
		return err
	}
	for range count {
		t, _, err := s.readMetadata()
		if err != nil {
			return err
		}
		switch t {
		case MakeEmpty(TagPointer):
		case TagPointer:
			if err := s.skipObject(); err != nil {
				return err
			}
		default:
			return metadataError(t, TagPointer)
		}
	}
	return nil
}

// skipObject seeks past one object using its header. Objects holding
// extension buffers cannot be skipped.
func (s *Stream) skipObject() error {
	t, _, err := s.readMetadata()
	if err != nil {
		return err
	}
	if t != TagObject {
		return metadataError(t, TagObject)
	}
	start := s.bs.Position()
	if err := s.bs.ReadBytes(s.fixed[:HeaderSize]); err != nil {
		return err
	}
	header, err := ParseHeader(s.fixed[:HeaderSize])
	if err != nil {
		return err
	}
	if header.Has(ContainsExtensionData) {
		return s.refuseExtension()
	}
	if header.Size < HeaderSize+1 {
		return formatError("object at offset %d declares %d bytes", start, header.Size)
	}
	end := uint64(start) + uint64(header.Size)
	if size := s.bs.Size(); size > 0 && end > uint64(size) {
		return formatError("object at offset %d runs past stream size %d", start, size)
	}
	if err := s.bs.Seek(uint32(end - 1)); err != nil {
		return err
	}
	if err := s.bs.ReadBytes(s.one[:]); err != nil {
		return err
	}
	if TypeTag(s.one[0]) != TagObjectEnd {
		return formatError("object at offset %d is not terminated by ObjectEnd", start)
	}
	return nil
}
