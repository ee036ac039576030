package scopewire

import (
	"errors"
	"unicode/utf16"
)

// ReadSlice probes an array read with no capacity, allocates the reported
// size and reads again.
//
//	ids, st, err := scopewire.ReadSlice(s.ReadInt64Array)
func ReadSlice[T any](read func(dst []T) (int, Status, error)) ([]T, Status, error) {
	n, st, err := read(nil)
	if err == nil {
		return nil, st, nil
	}
	var small *BufferTooSmallError
	if !errors.As(err, &small) {
		return nil, st, err
	}
	dst := make([]T, small.Required)
	n, st, err = read(dst)
	if err != nil {
		return nil, st, err
	}
	return dst[:n], st, nil
}

// WriteString writes s as a UTF-16 WString.
func (s *Stream) WriteString(v string) error {
	if v == "" {
		return s.WriteWString(nil)
	}
	return s.WriteWString(utf16.Encode([]rune(v)))
}

// ReadString reads a WString written by WriteString.
func (s *Stream) ReadString() (string, Status, error) {
	units, st, err := ReadSlice(s.ReadWString)
	if err != nil || st == StatusScopeEnd {
		return "", st, err
	}
	return string(utf16.Decode(units)), StatusOK, nil
}

// ReadStringTo is ReadString that leaves dst untouched on scope end.
func (s *Stream) ReadStringTo(dst *string) (Status, error) {
	v, st, err := s.ReadString()
	if err == nil && st == StatusOK {
		*dst = v
	}
	return st, err
}

// WriteScope writes one version layer: ScopeBegin, fields, ScopeEnd.
func (s *Stream) WriteScope(fields func() error) error {
	if err := s.WriteStartType(); err != nil {
		return err
	}
	if err := fields(); err != nil {
		return err
	}
	return s.WriteEndType()
}

// ReadScope reads one version layer. When the writer never produced it,
// fields is not called and StatusScopeEnd is returned.
func (s *Stream) ReadScope(fields func() error) (Status, error) {
	st, err := s.ReadStartType()
	if err != nil || st == StatusScopeEnd {
		return st, err
	}
	if err := fields(); err != nil {
		return StatusOK, err
	}
	if _, err := s.ReadEndType(); err != nil {
		return StatusOK, err
	}
	return StatusOK, nil
}
