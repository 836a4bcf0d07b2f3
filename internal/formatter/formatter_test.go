package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoppy-fm/hoppy/internal/fsentity"
)

func TestDefaultFormatContainsName(t *testing.T) {
	f := Default()
	e := fsentity.New("/tmp/report.txt", fsentity.KindFile)
	e.Size = 2048
	out := f.Format(e)
	assert.True(t, strings.Contains(out, "report.txt"))
}

func TestNameColumnMarksDirectories(t *testing.T) {
	f := New("{NAME}")
	e := fsentity.New("/tmp/dir", fsentity.KindDirectory)
	out := f.Format(e)
	assert.True(t, strings.HasPrefix(strings.TrimRight(out, " "), "dir/"))
}

func TestNameColumnElidesLongNames(t *testing.T) {
	f := New("{NAME:8}")
	e := fsentity.New("/tmp/areallylongfilename.txt", fsentity.KindFile)
	out := strings.TrimRight(f.Format(e), " ")
	assert.LessOrEqual(t, len([]rune(out)), 8)
	assert.True(t, strings.Contains(out, "…"))
}

func TestSizeColumnBlankForDirectories(t *testing.T) {
	f := New("{SIZE}")
	e := fsentity.New("/tmp/dir", fsentity.KindDirectory)
	out := f.Format(e)
	assert.Equal(t, strings.TrimRight(out, " "), "")
}

func TestUnknownKeyCompilesToNoop(t *testing.T) {
	f := New("before{BOGUS}after")
	e := fsentity.New("/tmp/x", fsentity.KindFile)
	out := f.Format(e)
	assert.Equal(t, "beforeafter", out)
}

func TestPexColumnReflectsMode(t *testing.T) {
	f := New("{PEX}")
	e := fsentity.New("/tmp/x", fsentity.KindFile)
	e.Mode = &fsentity.Mode{Owner: 7, Group: 5, Other: 4}
	out := strings.TrimSpace(f.Format(e))
	assert.Equal(t, "-rwxr-xr--", out)
}

func TestPexColumnUnknownMode(t *testing.T) {
	f := New("{PEX}")
	e := fsentity.New("/tmp/x", fsentity.KindFile)
	out := strings.TrimSpace(f.Format(e))
	assert.Equal(t, "-?????????", out)
}
