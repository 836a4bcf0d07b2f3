// Package formatter compiles a "{KEY[:LEN[:EXTRA]]}" column format string
// into a linked chain of column-producer closures, so every row is
// rendered by walking the chain once instead of re-parsing the format
// string per entry.
package formatter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

const (
	keyATime    = "ATIME"
	keyCTime    = "CTIME"
	keyGroup    = "GROUP"
	keyMTime    = "MTIME"
	keyName     = "NAME"
	keyPex      = "PEX"
	keySize     = "SIZE"
	keySymlink  = "SYMLINK"
	keyUser     = "USER"
	defaultFmt  = "{NAME} {PEX} {USER} {SIZE} {MTIME}"
	defaultTime = "Jan 02 2006 15:04"
)

var (
	keyRegex  = regexp.MustCompile(`\{(.*?)\}`)
	attrRegex = regexp.MustCompile(`^([A-Z]+)(?::([0-9]+))?(?::(.+))?$`)
)

// columnFunc renders one column given the entry and the accumulated
// string so far; it returns the new accumulated string.
type columnFunc func(e fsentity.Entity, cur string) string

// block is one link in the compiled call chain: a producer plus the
// literal prefix text that appeared before its token in the format string.
type block struct {
	fn   columnFunc
	next *block
}

// Formatter renders an fsentity.Entity into one formatted row according to
// a compiled format string.
type Formatter struct {
	chain *block
}

// New compiles fmtStr into a Formatter. Unknown keys compile to a no-op
// producer that only emits the literal prefix.
func New(fmtStr string) *Formatter {
	return &Formatter{chain: compile(fmtStr)}
}

// Default returns a Formatter using the conventional "{NAME} {PEX} {USER}
// {SIZE} {MTIME}" layout.
func Default() *Formatter {
	return New(defaultFmt)
}

// Format renders one entry.
func (f *Formatter) Format(e fsentity.Entity) string {
	cur := ""
	for b := f.chain; b != nil; b = b.next {
		cur = b.fn(e, cur)
	}
	return cur
}

func compile(fmtStr string) *block {
	var head, tail *block
	lastIndex := 0
	for _, loc := range keyRegex.FindAllStringSubmatchIndex(fmtStr, -1) {
		tokenStart, tokenEnd := loc[0], loc[1]
		innerStart, innerEnd := loc[2], loc[3]
		prefix := fmtStr[lastIndex:tokenStart]
		lastIndex = tokenEnd

		inner := fmtStr[innerStart:innerEnd]
		fn := columnFor(inner, prefix)
		b := &block{fn: fn}
		if head == nil {
			head, tail = b, b
		} else {
			tail.next = b
			tail = b
		}
	}
	if lastIndex < len(fmtStr) {
		trailing := fmtStr[lastIndex:]
		b := &block{fn: func(e fsentity.Entity, cur string) string { return cur + trailing }}
		if head == nil {
			head, tail = b, b
		} else {
			tail.next = b
		}
	}
	if head == nil {
		head = &block{fn: func(e fsentity.Entity, cur string) string { return cur }}
	}
	return head
}

func columnFor(inner, prefix string) columnFunc {
	m := attrRegex.FindStringSubmatch(inner)
	if m == nil {
		return fallbackColumn(prefix)
	}
	key := m[1]
	var length *int
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil {
			length = &n
		}
	}
	var extra *string
	if m[3] != "" {
		extra = &m[3]
	}

	switch key {
	case keyATime:
		return timeColumn(prefix, length, extra, func(e fsentity.Entity) time.Time { return e.AccTime })
	case keyCTime:
		return timeColumn(prefix, length, extra, func(e fsentity.Entity) time.Time { return e.CrtTime })
	case keyMTime:
		return timeColumn(prefix, length, extra, func(e fsentity.Entity) time.Time { return e.ModTime })
	case keyGroup:
		return groupColumn(prefix)
	case keyUser:
		return userColumn(prefix)
	case keyName:
		return nameColumn(prefix, length)
	case keyPex:
		return pexColumn(prefix)
	case keySize:
		return sizeColumn(prefix)
	case keySymlink:
		return symlinkColumn(prefix, length)
	default:
		return fallbackColumn(prefix)
	}
}

func fallbackColumn(prefix string) columnFunc {
	return func(e fsentity.Entity, cur string) string { return cur + prefix }
}

func timeColumn(prefix string, length *int, extra *string, get func(fsentity.Entity) time.Time) columnFunc {
	width := 17
	if length != nil {
		width = *length
	}
	layout := defaultTime
	if extra != nil {
		layout = *extra
	}
	return func(e fsentity.Entity, cur string) string {
		return cur + prefix + padRight(get(e).Format(layout), width)
	}
}

func groupColumn(prefix string) columnFunc {
	return func(e fsentity.Entity, cur string) string {
		group := "0"
		if e.GID != nil {
			group = strconv.FormatUint(uint64(*e.GID), 10)
		}
		return cur + prefix + group
	}
}

func userColumn(prefix string) columnFunc {
	return func(e fsentity.Entity, cur string) string {
		user := "0"
		if e.UID != nil {
			user = strconv.FormatUint(uint64(*e.UID), 10)
		}
		return cur + prefix + padRight(user, 12)
	}
}

func nameColumn(prefix string, length *int) columnFunc {
	width := 24
	if length != nil {
		width = *length
	}
	return func(e fsentity.Entity, cur string) string {
		last := width - 1
		if e.IsDir() {
			last = width - 2
		}
		name := e.Name
		if runewidth.StringWidth(name) >= width && last > 0 {
			name = runewidth.Truncate(name, last, "…")
		}
		if e.IsDir() {
			name += "/"
		}
		return cur + prefix + padRight(name, width)
	}
}

func pexColumn(prefix string) columnFunc {
	return func(e fsentity.Entity, cur string) string {
		var sb strings.Builder
		switch {
		case e.IsSymlink():
			sb.WriteByte('l')
		case e.IsDir():
			sb.WriteByte('d')
		default:
			sb.WriteByte('-')
		}
		if e.Mode == nil {
			sb.WriteString("?????????")
		} else {
			sb.WriteString(pexTriple(e.Mode.Owner))
			sb.WriteString(pexTriple(e.Mode.Group))
			sb.WriteString(pexTriple(e.Mode.Other))
		}
		return cur + prefix + padRight(sb.String(), 10)
	}
}

func pexTriple(v byte) string {
	r := "r"
	if v&4 == 0 {
		r = "-"
	}
	w := "w"
	if v&2 == 0 {
		w = "-"
	}
	x := "x"
	if v&1 == 0 {
		x = "-"
	}
	return r + w + x
}

func sizeColumn(prefix string) columnFunc {
	return func(e fsentity.Entity, cur string) string {
		if !e.IsFile() {
			return cur + prefix + padRight("", 10)
		}
		return cur + prefix + padRight(humanSize(e.Size), 10)
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func symlinkColumn(prefix string, length *int) columnFunc {
	width := 21
	if length != nil {
		width = *length
	}
	return func(e fsentity.Entity, cur string) string {
		if !e.IsSymlink() || e.Symlink == nil {
			return cur + prefix + padRight("", 24)
		}
		target := e.Symlink.AbsPath
		if runewidth.StringWidth(target) > width-1 {
			target = "…" + runewidth.Truncate(target, width-2, "")
		}
		return cur + prefix + "-> " + padRight(target, width)
	}
}

func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
