package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource_SingleRegion_PreservesLineCount(t *testing.T) {
	host := "package foo\n\n%%\nmachine M:\n    pass\n%%\n\nfunc main() {}\n"

	got := Default(host)

	assert.Equal(t, strings.Count(host, "\n"), strings.Count(got, "\n"))
	lines := strings.Split(got, "\n")
	assert.Equal(t, "", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "", lines[2]) // the opening delimiter line itself is blanked
	assert.Equal(t, "machine M:", lines[3])
	assert.Equal(t, "    pass", lines[4])
	assert.Equal(t, "", lines[5]) // closing delimiter blanked
	assert.Equal(t, "", lines[6])
	assert.Equal(t, "", lines[7])
}

func TestSource_MultipleRegions(t *testing.T) {
	host := "a\n%%\nb\n%%\nc\n%%\nd\n%%\ne\n"

	got := Default(host)
	lines := strings.Split(got, "\n")

	assert.Equal(t, []string{"", "", "b", "", "", "", "d", "", ""}, lines)
}

func TestSource_UnclosedRegionImplicitlyClosedAtEOF(t *testing.T) {
	host := "%%\nkept\nstill kept"

	got := Default(host)
	lines := strings.Split(got, "\n")

	assert.Equal(t, []string{"", "kept", "still kept"}, lines)
}

func TestSource_AsymmetricDelimiters(t *testing.T) {
	host := "x\n%{\ny\n%}\nz\n"

	got := Source(host, Options{Start: "%{", End: "%}"})
	lines := strings.Split(got, "\n")

	assert.Equal(t, []string{"", "", "y", "", ""}, lines)
}
