package optimizer

import (
	"context"

	"github.com/mtiwari1/siteopt/internal/report"
)

func (d *Dispatcher) script(ctx context.Context, root string, task Task) (report.FileRecord, error) {
	rel := task.Record.Path
	_, src, err := d.read(root, rel)
	if err != nil {
		return report.FileRecord{}, err
	}

	var out string
	if task.Record.Type == "js" {
		out, err = d.min.JS(src)
	} else {
		out, err = JSMin(src)
	}
	if err != nil {
		return report.FileRecord{}, err
	}
	if task.Options.Aggressive {
		out = d.rewrite(ctx, rel, out, "JavaScript")
	}
	return d.commit(ctx, root, task, rel, out)
}
