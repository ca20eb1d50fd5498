package loader

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLayout is the Hive-style partition layout of raw-layer files.
const DefaultLayout = "{table_name}/year={year}/month={month}/day={day}/{load_id}.{file_id}.{ext}"

// FileName holds the values substituted into a layout
type FileName struct {
	TableName string
	LoadID    string
	FileID    string
	Ext       string
	Time      time.Time
}

// Render substitutes the placeholders of layout. Month and day are zero-padded.
func Render(layout string, f FileName) string {
	t := f.Time.UTC()
	r := strings.NewReplacer(
		"{table_name}", f.TableName,
		"{year}", fmt.Sprintf("%04d", t.Year()),
		"{month}", fmt.Sprintf("%02d", int(t.Month())),
		"{day}", fmt.Sprintf("%02d", t.Day()),
		"{load_id}", f.LoadID,
		"{file_id}", f.FileID,
		"{ext}", f.Ext,
	)
	return r.Replace(layout)
}

// PartitionPath returns the day partition directory of a table under a
// dataset, with a trailing slash.
func PartitionPath(dataset, table string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%s/year=%04d/month=%02d/day=%02d/", dataset, table, t.Year(), int(t.Month()), t.Day())
}
