package sqldb

import (
	"fmt"
	"time"
)

// nullTime scans DATETIME columns from either driver.
//
// go-sql-driver/mysql (parseTime=true) yields time.Time. modernc.org/sqlite
// yields time.Time for plainly selected DATETIME columns but a string when the
// declared type is lost, e.g. in aggregate queries.
type nullTime struct {
	t *time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (n nullTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*n.t = v.UTC()
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	case nil:
		*n.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("sqldb: cannot scan %T into time.Time", src)
	}
}

func (n nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*n.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("sqldb: unrecognised timestamp %q", s)
}

// scanTime adapts a *time.Time destination for Row.Scan.
func scanTime(t *time.Time) nullTime {
	return nullTime{t: t}
}
