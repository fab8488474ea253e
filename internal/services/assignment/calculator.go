package assignment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

// Kind distinguishes the two mutually exclusive federal designations.
type Kind string

const (
	KindCognizant Kind = "cognizant"
	KindOversight Kind = "oversight"
)

// Assignment is the oversight designation written once at submission
// completion; it is never recomputed after dissemination.
type Assignment struct {
	Kind   Kind   `json:"kind"`
	Agency string `json:"agency"`
}

var (
	// Total federal expenditure above which the cognizant designation
	// applies instead of oversight.
	cognizantThreshold = decimal.NewFromInt(50_000_000)

	// Direct awards must reach this share of the total for agency selection
	// to run over direct expenditures only.
	directShareFloor = decimal.RequireFromString("0.25")
)

// BaselineProvider supplies the prior-year reference award schedule used by
// cognizant assignment when available. Implementations return no lines when
// no reference data exists.
type BaselineProvider interface {
	AwardLines(ctx context.Context, uei string, auditYear int) ([]domain.FederalAwardLine, error)
}

// Assign computes the designation from the current-year schedule only.
func Assign(lines []domain.FederalAwardLine) Assignment {
	kind := KindOversight
	if sumExpended(lines).GreaterThan(cognizantThreshold) {
		kind = KindCognizant
	}
	return Assignment{Kind: kind, Agency: selectAgency(lines)}
}

// AssignWithBaseline is Assign plus the cognizant prior-year fallback: when
// total expenditure crosses the threshold and the provider has reference
// lines for the auditee, agency selection runs over those instead of the
// current year. Oversight never consults the baseline.
func AssignWithBaseline(ctx context.Context, lines []domain.FederalAwardLine, uei string, auditYear int, baseline BaselineProvider) (Assignment, error) {
	if !sumExpended(lines).GreaterThan(cognizantThreshold) {
		return Assignment{Kind: KindOversight, Agency: selectAgency(lines)}, nil
	}
	if baseline != nil {
		prior, err := baseline.AwardLines(ctx, uei, auditYear)
		if err != nil {
			return Assignment{}, err
		}
		if len(prior) > 0 {
			return Assignment{Kind: KindCognizant, Agency: selectAgency(prior)}, nil
		}
	}
	return Assignment{Kind: KindCognizant, Agency: selectAgency(lines)}, nil
}

// selectAgency picks the agency prefix with the highest expenditure: over
// direct awards when they reach the 25% floor, over all awards otherwise.
// Ties go to the agency seen first in the schedule, for determinism.
func selectAgency(lines []domain.FederalAwardLine) string {
	total := decimal.Zero
	directTotal := decimal.Zero
	byAgency := map[string]decimal.Decimal{}
	directByAgency := map[string]decimal.Decimal{}
	var order, directOrder []string

	for _, ln := range lines {
		total = total.Add(ln.AmountExpended)
		if _, seen := byAgency[ln.AgencyPrefix]; !seen {
			order = append(order, ln.AgencyPrefix)
		}
		byAgency[ln.AgencyPrefix] = byAgency[ln.AgencyPrefix].Add(ln.AmountExpended)
		if ln.IsDirect {
			directTotal = directTotal.Add(ln.AmountExpended)
			if _, seen := directByAgency[ln.AgencyPrefix]; !seen {
				directOrder = append(directOrder, ln.AgencyPrefix)
			}
			directByAgency[ln.AgencyPrefix] = directByAgency[ln.AgencyPrefix].Add(ln.AmountExpended)
		}
	}

	if directTotal.GreaterThanOrEqual(total.Mul(directShareFloor)) && len(directOrder) > 0 {
		return argmaxAgency(directByAgency, directOrder)
	}
	return argmaxAgency(byAgency, order)
}

func argmaxAgency(totals map[string]decimal.Decimal, order []string) string {
	var best string
	var bestAmount decimal.Decimal
	for i, agency := range order {
		if i == 0 || totals[agency].GreaterThan(bestAmount) {
			best = agency
			bestAmount = totals[agency]
		}
	}
	return best
}

func sumExpended(lines []domain.FederalAwardLine) decimal.Decimal {
	total := decimal.Zero
	for _, ln := range lines {
		total = total.Add(ln.AmountExpended)
	}
	return total
}
