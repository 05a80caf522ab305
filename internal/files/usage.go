package files

import (
	"math"
	"strconv"

	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

// Status summarizes how full the archive looks.
type Status string

const (
	StatusEmpty       Status = "empty"
	StatusActive      Status = "active"
	StatusOverflowing Status = "overflowing"
)

const overflowPercent = 90

type Usage struct {
	Files       int     `json:"files"`
	TotalBytes  int64   `json:"totalBytes"`
	BudgetBytes int64   `json:"budgetBytes"`
	Percent     float64 `json:"percent"`
	Status      Status  `json:"status"`
}

// Usage reports the archive size against the display budget.
func (a *Archive) Usage() (Usage, error) {
	res := a.GetAll()
	if !res.Usable() {
		return Usage{}, res.Err
	}
	return usageOf(res.Value, a.budget), nil
}

// UsageRatio is Usage().Percent: total size over budget, clamped to [0, 100].
func (a *Archive) UsageRatio() (float64, error) {
	u, err := a.Usage()
	return u.Percent, err
}

func usageOf(list []schema.FileRecord, budget int64) Usage {
	u := Usage{Files: len(list), BudgetBytes: budget}
	for _, f := range list {
		u.TotalBytes += f.SizeBytes
	}
	if budget > 0 {
		u.Percent = math.Min(math.Max(float64(u.TotalBytes)/float64(budget)*100, 0), 100)
	}
	switch {
	case u.Files == 0:
		u.Status = StatusEmpty
	case u.Percent > overflowPercent:
		u.Status = StatusOverflowing
	default:
		u.Status = StatusActive
	}
	return u
}

var sizeUnits = []string{"Б", "КБ", "МБ", "ГБ"}

// FormatSize renders n bytes with binary units and at most two decimals.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 " + sizeUnits[0]
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}
