package main

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/defistate/defistate-migrator-go/protocols/tokenregistry"
	"github.com/shopspring/decimal"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// pricePrecision covers a decimal shift of 36 places with six left to show.
const pricePrecision = 42

// renderer prints snapshots for one pair.
type renderer struct {
	w      io.Writer
	token0 tokenregistry.Token
	token1 tokenregistry.Token
	color  bool
}

func (r *renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + Reset
}

func (r *renderer) header(title string) {
	fmt.Fprintln(r.w, "\n"+r.paint(Bold+Cyan, ":: "+title+" ::"))
}

func (r *renderer) amounts(a *migrator.Amounts) (string, string) {
	if a == nil {
		return "-", "-"
	}
	return r.token0.Format(a.Amount0), r.token1.Format(a.Amount1)
}

// price renders token0 in token1, adjusted for decimals.
func (r *renderer) price(raw *big.Rat) string {
	if raw == nil {
		return "-"
	}
	shift := int32(r.token0.Decimals) - int32(r.token1.Decimals)
	return decimal.NewFromBigRat(raw, pricePrecision).Shift(shift).StringFixed(6)
}

func (r *renderer) Snapshot(snap migrator.Snapshot) {
	r.header(fmt.Sprintf("MIGRATION %s/%s @ BLOCK %d", r.token0.Label(), r.token1.Label(), snap.Block))

	venue := r.paint(Green, string(snap.Venue))
	if snap.Venue == migrator.VenueFork {
		venue = r.paint(Yellow, string(snap.Venue))
	}
	fmt.Fprintf(r.w, "Venue %s | Destination %s | Approval %s | Execution %s\n",
		venue, snap.DestState, snap.ApprovalState, snap.ExecutionState)

	w := tabwriter.NewWriter(r.w, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "\t%s\t%s\t\n", r.token0.Label(), r.token1.Label())
	fmt.Fprintln(w, "\t------\t------\t")
	v0, v1 := r.amounts(&snap.Valued)
	fmt.Fprintf(w, "Valued\t%s\t%s\t\n", v0, v1)
	if snap.Projection != nil {
		p0, p1 := r.amounts(&snap.Projection.Position)
		fmt.Fprintf(w, "Deposit\t%s\t%s\t\n", p0, p1)
	}
	m0, m1 := r.amounts(snap.Minimums)
	fmt.Fprintf(w, "Minimum\t%s\t%s\t\n", m0, m1)
	f0, f1 := r.amounts(snap.Refund)
	fmt.Fprintf(w, "Refund\t%s\t%s\t\n", f0, f1)
	w.Flush()

	fmt.Fprintf(r.w, "Source price %s | Destination price %s\n", r.price(snap.SourcePrice), r.price(snap.DestPrice))

	if snap.Divergence != nil {
		line := fmt.Sprintf("Divergence %s%%", snap.Divergence.Decimal(2).StringFixed(2))
		if snap.Divergence.IsLarge {
			line = r.paint(Red+Bold, line+" (large)")
		}
		fmt.Fprintln(r.w, line)
	}

	if snap.Projection != nil {
		fmt.Fprintf(r.w, "Range [%d, %d] current tick %d\n",
			snap.Projection.TickLower, snap.Projection.TickUpper, snap.Projection.TickCurrent)
	}
	if snap.FirstProvider() {
		fmt.Fprintln(r.w, r.paint(Yellow, "First provider: the pool will be created at the source price."))
	}
	if snap.OutOfRange() {
		fmt.Fprintln(r.w, r.paint(Yellow, "Out of range: the deposit is single-sided."))
	}
	if snap.RangeErr != nil {
		fmt.Fprintln(r.w, r.paint(Red, "[ERROR] "+snap.RangeErr.Error()))
	}
}
