/*
commission.go - Static level-to-percentage lookup table

PURPOSE:
  Maps a commission level (1..20) to the percentage of the original
  earned amount that the ancestor at that level receives. Pure lookup,
  no state, no I/O.

CRITICAL INVARIANT:
  Every consumer of the table (engine, API, external audit tooling) sees
  the exact same values. The table is a package-level constant array and
  is never read from configuration, so it cannot drift between callers.

THE TABLE:
  Level 1:     100%   (direct inviter earns the full amount again)
  Level 2:      20%
  Level 3:      15%
  Level 4:      10%
  Level 5:       5%
  Levels 6-20:   2% each

  Percentages are independent multipliers of the full original amount,
  not shares of a pool. A fully populated 20-level chain pays out 180%
  of the original amount in aggregate.

SEE ALSO:
  - engine.go: The only production consumer
*/
package referral

import "github.com/shopspring/decimal"

// MaxLevels is the depth of the invitation chain that earns commission.
// Ancestors beyond level 20 receive nothing.
const MaxLevels = 20

// percentByLevel[level-1] holds the commission percentage for that level.
var percentByLevel = [MaxLevels]int64{
	100, // level 1
	20,  // level 2
	15,  // level 3
	10,  // level 4
	5,   // level 5
	2, 2, 2, 2, 2, // levels 6-10
	2, 2, 2, 2, 2, // levels 11-15
	2, 2, 2, 2, 2, // levels 16-20
}

// PercentageFor returns the commission percentage for a level.
// Levels outside [1, MaxLevels] are an error, never a zero value.
func PercentageFor(level int) (decimal.Decimal, error) {
	if level < 1 || level > MaxLevels {
		return decimal.Zero, ErrLevelOutOfRange
	}
	return decimal.NewFromInt(percentByLevel[level-1]), nil
}
