package optimizer

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/report"
)

// Renames reports whether the handler for rec writes its output under a new name,
// and which extension that name gets.
func Renames(rec report.FileRecord) (string, bool) {
	switch {
	case filetype.IsPreprocessed(rec.Type) && !IsPartial(rec.Path):
		return "css", true
	case filetype.Classify(rec.Type) == filetype.Raster:
		return "webp", true
	}
	return "", false
}

// IsPartial reports whether p is a Sass partial (_name.scss). Partials are only ever
// imported, so they are left in place for the stylesheets that include them.
func IsPartial(p string) bool {
	return strings.HasPrefix(path.Base(p), "_")
}

// PlanTargets assigns an output path to every record whose handler renames its file.
// No two tasks are given the same path and no target collides with an inventoried file:
// when x.css (or x.webp) is taken the output becomes x.<oldext>.css, then x.<oldext>-N.css.
// Planning walks paths in sorted order so the outcome does not depend on walk order.
func PlanTargets(records []report.FileRecord) map[string]string {
	claimed := make(map[string]bool, len(records))
	var renaming []report.FileRecord
	for _, rec := range records {
		claimed[rec.Path] = true
		if _, ok := Renames(rec); ok {
			renaming = append(renaming, rec)
		}
	}
	sort.Slice(renaming, func(i, j int) bool { return renaming[i].Path < renaming[j].Path })

	targets := make(map[string]string, len(renaming))
	for _, rec := range renaming {
		ext, _ := Renames(rec)
		oldExt := path.Ext(rec.Path)
		stem := strings.TrimSuffix(rec.Path, oldExt)

		candidate := stem + "." + ext
		if claimed[candidate] {
			stem = stem + oldExt
			candidate = stem + "." + ext
		}
		for n := 1; claimed[candidate]; n++ {
			candidate = stem + "-" + strconv.Itoa(n) + "." + ext
		}
		claimed[candidate] = true
		targets[rec.Path] = candidate
	}
	return targets
}
