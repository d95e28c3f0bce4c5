package core

// BalanceDelta is the signed amount a paid-status toggle applies to the
// latest balance snapshot. Marking an income paid credits the account
// and marking an outcome paid debits it; toggling back to unpaid
// reverses the earlier direction ("un-paying" an outcome restores the
// funds).
func BalanceDelta(typ TransactionType, paid bool, value int64) int64 {
	credits := (typ == Income && paid) || (typ == Outcome && !paid)
	if credits {
		return value
	}
	return -value
}
