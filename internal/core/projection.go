package core

import (
	"time"

	"github.com/google/uuid"
)

// ProjectOccurrences expands recurring parent transactions into virtual
// occurrences for the month starting at monthStart. Parents are the
// canonical templates (Reference == nil, recurring interval) already
// filtered by the caller to those due inside the window and not yet
// materialized there.
//
// Each occurrence gets an id derived from its parent and the requested
// month, so repeated projections of the same month name the same rows,
// and points back at its parent through Reference. DueAt is the
// parent's due date moved forward by the whole interval steps
// separating the parent's month (or year) from the requested one;
// NextDueAt advances exactly one step past the parent's stored next
// due date. Occurrences are unpaid by definition and never persisted;
// paying one materializes it under its derived id.
//
// The returned set is unordered; callers sort the merged result.
func ProjectOccurrences(parents []Transaction, monthStart time.Time) []Transaction {
	if len(parents) == 0 {
		return nil
	}

	occurrences := make([]Transaction, 0, len(parents))
	for _, parent := range parents {
		if !parent.IsParent() {
			continue
		}

		occ := parent
		occ.ID = OccurrenceID(parent.ID, monthStart)
		ref := parent.ID
		occ.Reference = &ref
		occ.PaidAt = nil
		occ.Virtual = true

		switch parent.Interval {
		case Monthly:
			steps := MonthsBetween(StartOfMonth(parent.DueAt), monthStart)
			occ.DueAt = AddMonthsClamped(parent.DueAt, steps)
			if parent.NextDueAt != nil {
				next := AddMonthsClamped(*parent.NextDueAt, 1)
				occ.NextDueAt = &next
			}
		case Yearly:
			steps := YearsBetween(parent.DueAt, monthStart)
			occ.DueAt = addYearsClamped(parent.DueAt, steps)
			if parent.NextDueAt != nil {
				next := addYearsClamped(*parent.NextDueAt, 1)
				occ.NextDueAt = &next
			}
		}

		occurrences = append(occurrences, occ)
	}
	return occurrences
}

// OccurrenceID derives the stable id of a parent's occurrence in the
// month starting at monthStart. Determinism matters: the id printed in
// one rendering of the view must resolve against the next, and paying
// the occurrence materializes it under this id.
func OccurrenceID(parentID string, monthStart time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(parentID+"/"+monthStart.Format("2006-01"))).String()
}
