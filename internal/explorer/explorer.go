// Package explorer tracks one directory listing: its sort/group/hidden-file
// options and a bounded history of visited directories.
package explorer

import (
	"sort"
	"strings"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

// FileSorting selects the primary sort key applied to a directory listing.
type FileSorting int

const (
	SortByName FileSorting = iota
	SortByModifyTime
	SortByCreationTime
	SortBySize
)

func (s FileSorting) String() string {
	switch s {
	case SortByModifyTime:
		return "by_mtime"
	case SortByCreationTime:
		return "by_creation_time"
	case SortBySize:
		return "by_size"
	default:
		return "by_name"
	}
}

// ParseFileSorting parses the string form FileSorting.String() produces.
func ParseFileSorting(s string) (FileSorting, bool) {
	switch strings.ToLower(s) {
	case "by_name":
		return SortByName, true
	case "by_mtime":
		return SortByModifyTime, true
	case "by_creation_time":
		return SortByCreationTime, true
	case "by_size":
		return SortBySize, true
	default:
		return SortByName, false
	}
}

// GroupDirs selects a secondary sort pass that clusters directories.
type GroupDirs int

const (
	GroupNone GroupDirs = iota
	GroupFirst
	GroupLast
)

func (g GroupDirs) String() string {
	switch g {
	case GroupFirst:
		return "first"
	case GroupLast:
		return "last"
	default:
		return ""
	}
}

// ParseGroupDirs parses the string form GroupDirs.String() produces. Any
// other input, including GroupNone's empty string, yields GroupNone and false.
func ParseGroupDirs(s string) (GroupDirs, bool) {
	switch strings.ToLower(s) {
	case "first":
		return GroupFirst, true
	case "last":
		return GroupLast, true
	default:
		return GroupNone, false
	}
}

// defaultStackSize bounds the directory history FIFO.
const defaultStackSize = 16

// Explorer holds one directory's entries plus the navigation/sort state
// used to present them.
type Explorer struct {
	Wrkdir string

	dirstack    []string
	stackSize   int
	fileSorting FileSorting
	groupDirs   GroupDirs
	showHidden  bool
	files       []fsentity.Entity
	cursor      int
}

// New returns an Explorer rooted at "/" with default options.
func New() *Explorer {
	return &Explorer{
		Wrkdir:    "/",
		stackSize: defaultStackSize,
	}
}

// Pushd records dir in the visited-directory history, evicting the oldest
// entry once the history reaches its capacity.
func (e *Explorer) Pushd(dir string) {
	for len(e.dirstack) >= e.stackSize {
		e.dirstack = e.dirstack[1:]
	}
	e.dirstack = append(e.dirstack, dir)
}

// Popd removes and returns the most recently pushed directory, or ""/false
// if the history is empty.
func (e *Explorer) Popd() (string, bool) {
	if len(e.dirstack) == 0 {
		return "", false
	}
	last := e.dirstack[len(e.dirstack)-1]
	e.dirstack = e.dirstack[:len(e.dirstack)-1]
	return last, true
}

// SetFiles replaces the listing, re-sorts it under the current options, and
// positions the cursor on the first visible entry (0 if there is none).
func (e *Explorer) SetFiles(files []fsentity.Entity) {
	e.files = files
	e.sort()
	e.cursor = 0
}

// DelEntry removes the file at absolute index idx (into the unfiltered
// listing), if present.
func (e *Explorer) DelEntry(idx int) {
	if idx >= 0 && idx < len(e.files) {
		e.files = append(e.files[:idx], e.files[idx+1:]...)
	}
}

func (e *Explorer) passesFilter(entry fsentity.Entity) bool {
	if !e.showHidden && entry.IsHidden() {
		return false
	}
	return true
}

// IterFiles returns the entries visible under the current hidden-file
// option.
func (e *Explorer) IterFiles() []fsentity.Entity {
	out := make([]fsentity.Entity, 0, len(e.files))
	for _, f := range e.files {
		if e.passesFilter(f) {
			out = append(out, f)
		}
	}
	return out
}

// IterFilesAll returns every entry, ignoring the hidden-file option.
func (e *Explorer) IterFilesAll() []fsentity.Entity {
	out := make([]fsentity.Entity, len(e.files))
	copy(out, e.files)
	return out
}

// Get returns the entry at idx within the VISIBLE (filtered) listing.
func (e *Explorer) Get(idx int) (fsentity.Entity, bool) {
	visible := e.IterFiles()
	if idx < 0 || idx >= len(visible) {
		return fsentity.Entity{}, false
	}
	return visible[idx], true
}

// Cursor returns the current index into the visible (filtered) listing.
func (e *Explorer) Cursor() int { return e.cursor }

// IncrIndex moves the cursor one step forward through the visible
// listing, clamping at the last visible entry.
func (e *Explorer) IncrIndex() {
	if max := len(e.IterFiles()) - 1; e.cursor < max {
		e.cursor++
	} else if max < 0 {
		e.cursor = 0
	}
}

// DecrIndex moves the cursor one step back through the visible listing,
// clamping at 0. An empty visible listing (every entry hidden) leaves the
// cursor at 0 rather than recursing or going negative.
func (e *Explorer) DecrIndex() {
	if e.cursor > 0 {
		e.cursor--
	} else {
		e.cursor = 0
	}
}

// SortBy switches the sort criterion, re-sorting only if it actually
// changed.
func (e *Explorer) SortBy(sorting FileSorting) {
	if e.fileSorting != sorting {
		e.fileSorting = sorting
		e.sort()
	}
}

// FileSorting returns the current sort criterion.
func (e *Explorer) FileSorting() FileSorting { return e.fileSorting }

// GroupDirsBy switches the directory-grouping pass, re-sorting only if it
// actually changed.
func (e *Explorer) GroupDirsBy(group GroupDirs) {
	if e.groupDirs != group {
		e.groupDirs = group
		e.sort()
	}
}

// GroupDirs returns the current directory-grouping pass.
func (e *Explorer) GroupDirs() GroupDirs { return e.groupDirs }

func (e *Explorer) sort() {
	switch e.fileSorting {
	case SortByModifyTime:
		e.sortByModifyTime()
	case SortByCreationTime:
		e.sortByCreationTime()
	case SortBySize:
		e.sortBySize()
	default:
		e.sortByName()
	}
	// Directory grouping is a secondary pass and must come after the
	// primary sort: Go's sort.SliceStable preserves the primary order
	// within each group.
	switch e.groupDirs {
	case GroupFirst:
		e.sortDirectoriesFirst()
	case GroupLast:
		e.sortDirectoriesLast()
	}
}

func (e *Explorer) sortByName() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return strings.ToLower(e.files[i].Name) < strings.ToLower(e.files[j].Name)
	})
}

func (e *Explorer) sortByModifyTime() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return e.files[j].ModTime.Before(e.files[i].ModTime)
	})
}

func (e *Explorer) sortByCreationTime() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return e.files[j].CrtTime.Before(e.files[i].CrtTime)
	})
}

func (e *Explorer) sortBySize() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return e.files[i].Size > e.files[j].Size
	})
}

func (e *Explorer) sortDirectoriesFirst() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return e.files[i].IsDir() && !e.files[j].IsDir()
	})
}

func (e *Explorer) sortDirectoriesLast() {
	sort.SliceStable(e.files, func(i, j int) bool {
		return !e.files[i].IsDir() && e.files[j].IsDir()
	})
}

// ToggleHiddenFiles flips whether hidden files are included by IterFiles
// and Get, clamping the cursor back into range if the visible count shrank.
func (e *Explorer) ToggleHiddenFiles() {
	e.showHidden = !e.showHidden
	if max := len(e.IterFiles()) - 1; e.cursor > max {
		if max < 0 {
			max = 0
		}
		e.cursor = max
	}
}

// HiddenFilesVisible reports whether hidden files are currently included.
func (e *Explorer) HiddenFilesVisible() bool { return e.showHidden }
