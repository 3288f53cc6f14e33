// Package extract implements the source extractor (component A of the
// pipeline): it pulls the DSL region(s) out of a host source file while
// keeping line numbers intact, so that later diagnostics can cite the
// original file.
package extract

import "strings"

// DefaultDelimiter is the marker used to both open and close a DSL
// region when the caller does not configure asymmetric delimiters.
const DefaultDelimiter = "%%"

// Options configures the delimiters an extraction scans for. The zero
// value uses DefaultDelimiter for both Start and End.
type Options struct {
	Start string
	End   string
}

func (o Options) normalize() Options {
	if o.Start == "" && o.End == "" {
		return Options{Start: DefaultDelimiter, End: DefaultDelimiter}
	}
	if o.Start == "" {
		o.Start = o.End
	}
	if o.End == "" {
		o.End = o.Start
	}
	return o
}

// Source scans host text line by line and returns a string with the same
// number of lines as the input. Lines outside a DSL region are replaced
// with empty lines; a line equal to the start delimiter opens a region
// and is itself blanked, and a line equal to the end delimiter closes it
// and is blanked. A host file may contain multiple regions; reaching the
// end of input while a region is still open implicitly closes it.
func Source(host string, opts Options) string {
	opts = opts.normalize()

	lines := strings.Split(host, "\n")
	out := make([]string, len(lines))

	inRegion := false
	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		switch {
		case !inRegion && line == opts.Start:
			out[i] = ""
			inRegion = true
		case inRegion && line == opts.End:
			out[i] = ""
			inRegion = false
		case inRegion:
			out[i] = raw
		default:
			out[i] = ""
		}
	}

	return strings.Join(out, "\n")
}

// Default extracts using DefaultDelimiter for both the start and end
// marker.
func Default(host string) string {
	return Source(host, Options{})
}
