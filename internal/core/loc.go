package core

import "fmt"

// Loc is a byte offset range within a file. The zero value is the "no
// location" sentinel.
type Loc struct {
	File    FileRef
	BeginAt int
	EndAt   int
}

// NoLoc returns the "no location" sentinel.
func NoLoc() Loc {
	return Loc{}
}

// IsNone reports whether the loc is the sentinel.
func (l Loc) IsNone() bool {
	return !l.File.Exists()
}

// Contains reports whether the given offset falls within the range.
// The end offset is inclusive so a cursor at the last byte still matches.
func (l Loc) Contains(offset int) bool {
	return offset >= l.BeginAt && offset <= l.EndAt
}

// Position converts the loc into begin and end one-based (line, column)
// pairs using the owning file's newline index.
func (l Loc) Position(gs *GlobalState) (Detail, Detail) {
	f := gs.File(l.File)
	return f.Offset2Pos(l.BeginAt), f.Offset2Pos(l.EndAt)
}

// String renders the loc for log and panic messages.
func (l Loc) String() string {
	if l.IsNone() {
		return "???"
	}
	return fmt.Sprintf("file(%d):%d-%d", l.File, l.BeginAt, l.EndAt)
}
