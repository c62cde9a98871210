package reports

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-case-manager/pkg/utils"
)

type bucket struct {
	Label string
	Total int64
}

func groupCount(q *gorm.DB, expr string) (map[string]int64, error) {
	return group(q, expr, "COUNT(*)")
}

func groupSum(q *gorm.DB, expr string) (map[string]int64, error) {
	return group(q, expr, "COALESCE(SUM(amount_cents), 0)")
}

func group(q *gorm.DB, expr, agg string) (map[string]int64, error) {
	var rows []bucket
	if err := q.Select(expr + " AS label, " + agg + " AS total").Group(expr).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Label] += r.Total
	}
	return out, nil
}

// monthExpr renders col as YYYY-MM in the connected dialect.
func monthExpr(db *gorm.DB, col string) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "to_char(" + col + ", 'YYYY-MM')"
	case "mysql":
		return "DATE_FORMAT(" + col + ", '%Y-%m')"
	case "sqlserver":
		return "FORMAT(" + col + ", 'yyyy-MM')"
	default:
		// SQLite stores timestamps as ISO text.
		return "substr(" + col + ", 1, 7)"
	}
}

/* ================================ Series ================================ */

// fixedSeries lists keys in the given order, zero-filling missing ones.
func fixedSeries(m map[string]int64, keys []string) Series {
	s := Series{Labels: make([]string, len(keys)), Values: make([]int64, len(keys))}
	for i, k := range keys {
		s.Labels[i] = utils.Label(k)
		s.Values[i] = m[k]
	}
	return s
}

// toSeries orders buckets by value, largest first, then by key.
func toSeries(m map[string]int64) Series {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	s := Series{Labels: keys, Values: make([]int64, len(keys))}
	for i, k := range keys {
		s.Values[i] = m[k]
	}
	return s
}

func labelled(s Series) Series {
	for i, l := range s.Labels {
		s.Labels[i] = utils.Label(l)
	}
	return s
}

// monthSeries zero-fills months (YYYY-MM keys) and labels them "Jan 2026".
func monthSeries(m map[string]int64, months []string) Series {
	s := Series{Labels: make([]string, len(months)), Values: make([]int64, len(months))}
	for i, k := range months {
		s.Labels[i] = k
		if t, err := time.Parse("2006-01", k); err == nil {
			s.Labels[i] = t.Format("Jan 2006")
		}
		s.Values[i] = m[k]
	}
	return s
}

/* ================================ Range ================================= */

const maxMonths = 120

// window is [from, to) in local time.
type window struct {
	from, to time.Time
}

// parseRange reads inclusive YYYY-MM-DD bounds. Without from, the window
// starts 11 months before the month of to, giving a 12-month chart.
func parseRange(fromStr, toStr string, now time.Time) (window, error) {
	var w window
	w.to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
	if toStr != "" {
		d, err := utils.ParseDate(toStr)
		if err != nil {
			return w, fiber.NewError(fiber.StatusBadRequest, "invalid to date")
		}
		w.to = d.AddDate(0, 0, 1)
	}

	last := w.to.AddDate(0, 0, -1)
	w.from = time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.Local).AddDate(0, -11, 0)
	if fromStr != "" {
		d, err := utils.ParseDate(fromStr)
		if err != nil {
			return w, fiber.NewError(fiber.StatusBadRequest, "invalid from date")
		}
		w.from = *d
	}
	if !w.to.After(w.from) {
		return w, fiber.NewError(fiber.StatusBadRequest, "from must not be after to")
	}
	return w, nil
}

func (w window) view() Range {
	return Range{From: w.from.Format("2006-01-02"), To: w.to.AddDate(0, 0, -1).Format("2006-01-02")}
}

// months lists the YYYY-MM keys the window touches, capped at maxMonths (latest kept).
func (w window) months() []string {
	last := w.to.AddDate(0, 0, -1)
	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.Local)
	cur := time.Date(w.from.Year(), w.from.Month(), 1, 0, 0, 0, 0, time.Local)
	var out []string
	for !cur.After(end) {
		out = append(out, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	if len(out) > maxMonths {
		out = out[len(out)-maxMonths:]
	}
	return out
}
