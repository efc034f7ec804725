package archive

import (
	"strings"
	"time"
)

const TimestampFormat = "20060102-150405"

// SplitExt splits name on its last dot. The extension keeps the dot and is
// empty when there is no dot in the final path segment.
// Unlike a plain last-dot split, dots in directory segments are ignored.
func SplitExt(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i < 0 || i < strings.LastIndex(name, "/") {
		return name, ""
	}
	return name[:i], name[i:]
}

// ObjectName builds {subfolder}/{base}_{timestamp}[_{suffix}]{ext}.
func ObjectName(subfolder, blobName string, at time.Time, suffix string) string {
	base, ext := SplitExt(blobName)
	name := base + "_" + at.UTC().Format(TimestampFormat)
	if suffix != "" {
		name += "_" + suffix
	}
	return subfolder + "/" + name + ext
}
