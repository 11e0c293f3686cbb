package selection

import "strings"

// Rank orders sample classifications. A higher rank wins.
type Rank int

const (
	RankUnclassified Rank = iota
	RankNormal
	RankOtherTumor
	RankMetastatic
	RankRecurrent
	RankPrimary
)

// rankNoSamples sorts a criterion without samples below every classified one.
const rankNoSamples Rank = -1

func (r Rank) String() string {
	switch r {
	case RankPrimary:
		return "primary"
	case RankRecurrent:
		return "recurrent"
	case RankMetastatic:
		return "metastatic"
	case RankOtherTumor:
		return "other tumor"
	case RankNormal:
		return "normal"
	case rankNoSamples:
		return "none"
	default:
		return "unclassified"
	}
}

// sampleTypeRanks is the precedence table for the GDC sample_type vocabulary.
// Keys are lower case.
var sampleTypeRanks = map[string]Rank{
	"primary tumor":                                   RankPrimary,
	"primary blood derived cancer - bone marrow":      RankPrimary,
	"primary blood derived cancer - peripheral blood": RankPrimary,
	"additional - new primary":                        RankPrimary,

	"recurrent tumor":                                   RankRecurrent,
	"recurrent blood derived cancer - bone marrow":      RankRecurrent,
	"recurrent blood derived cancer - peripheral blood": RankRecurrent,

	"metastatic":            RankMetastatic,
	"additional metastatic": RankMetastatic,

	"blood derived cancer - bone marrow, post-treatment":      RankOtherTumor,
	"blood derived cancer - peripheral blood, post-treatment": RankOtherTumor,
	"post neo-adjuvant therapy":                               RankOtherTumor,
	"primary xenograft tissue":                                RankOtherTumor,
	"xenograft tissue":                                        RankOtherTumor,
	"cell lines":                                              RankOtherTumor,
	"human tumor original cells":                              RankOtherTumor,
	"next generation cancer model":                            RankOtherTumor,
	"expanded next generation cancer model":                   RankOtherTumor,
	"tumor":                                                   RankOtherTumor,

	"solid tissue normal":                       RankNormal,
	"blood derived normal":                      RankNormal,
	"bone marrow normal":                        RankNormal,
	"buccal cell normal":                        RankNormal,
	"ebv immortalized normal":                   RankNormal,
	"normal adjacent tissue":                    RankNormal,
	"lymphoid normal":                           RankNormal,
	"fibroblasts from bone marrow normal":       RankNormal,
	"mononuclear cells from bone marrow normal": RankNormal,
}

// Classify ranks a sample by its sample type, falling back to keywords for
// sample types outside the table and to the tissue type after that.
func Classify(sampleType, tissueType string) Rank {
	st := normalize(sampleType)
	if r, ok := sampleTypeRanks[st]; ok {
		return r
	}

	switch {
	case st == "":
	case strings.Contains(st, "normal"):
		return RankNormal
	case strings.HasPrefix(st, "primary"):
		return RankPrimary
	case strings.Contains(st, "recurrent"):
		return RankRecurrent
	case strings.Contains(st, "metasta"):
		return RankMetastatic
	case strings.Contains(st, "cancer"), strings.Contains(st, "tumor"):
		return RankOtherTumor
	}

	switch normalize(tissueType) {
	case "tumor":
		return RankOtherTumor
	case "normal":
		return RankNormal
	}
	return RankUnclassified
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
