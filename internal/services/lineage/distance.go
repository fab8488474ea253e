package lineage

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

// Component weights for the similarity metric. UEI divergence is the
// strongest same-entity evidence; name and email typos are weak evidence.
// The values are fixed for output compatibility with historical runs.
const (
	weightAuditYear     = 11
	weightUEI           = 8
	weightEIN           = 3
	weightAuditeeEmail  = 1
	weightAuditeeName   = 3
	weightStateMismatch = 8

	// A record joins the cluster with the smallest summed member distance
	// only when that sum stays below this threshold.
	clusterThreshold = 3
)

// Distance scores how unlikely two records are to describe the same legal
// entity. It is symmetric: Distance(a, b) == Distance(b, a).
func Distance(a, b domain.AuditRecord) int {
	ga, gb := a.Payload.GeneralInformation, b.Payload.GeneralInformation

	d := absInt(ga.AuditYear-gb.AuditYear) * weightAuditYear
	d += editDistance(ga.UEI, gb.UEI) * weightUEI
	d += editDistance(ga.EIN, gb.EIN) * weightEIN
	d += editDistance(ga.AuditeeEmail, gb.AuditeeEmail) * weightAuditeeEmail
	d += editDistance(ga.AuditeeName, gb.AuditeeName) * weightAuditeeName
	if strings.ToLower(ga.AuditeeState) != strings.ToLower(gb.AuditeeState) {
		d += weightStateMismatch
	}
	return d
}

func editDistance(a, b string) int {
	return levenshtein.ComputeDistance(strings.ToLower(a), strings.ToLower(b))
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
