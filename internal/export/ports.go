// Package export defines the month-view mirroring ports. The worker
// assembles a MonthView from the query engine and hands it to a Writer;
// adapters decide where it lands.
package export

import (
	"context"
	"time"

	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/services"
)

// MonthView is one user's dashboard month: balance figures plus the
// merged concrete and virtual transaction list.
type MonthView struct {
	User         string
	Month        time.Time
	Balance      services.ExpectedBalance
	Transactions []core.Transaction
}

// Writer mirrors a month view to an external destination. Writes are
// full replacements, so replaying a stale signal is harmless.
type Writer interface {
	WriteMonthView(ctx context.Context, view MonthView) error
}
