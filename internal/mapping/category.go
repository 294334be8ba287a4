package mapping

import (
	"regexp"
	"strings"
)

// Category is the semantic tag of a unified column.
type Category string

const (
	Identifier   Category = "identifier"
	Clinical     Category = "clinical"
	Demographic  Category = "demographic"
	Treatment    Category = "treatment"
	GenomicKey   Category = "genomic_key"
	GenomicOther Category = "genomic_other"
	Imaging      Category = "imaging"
	Survival     Category = "survival"
	Tumor        Category = "tumor"
	Metadata     Category = "metadata"
	Other        Category = "other"
)

// Precedence is the order in which keyword sets are tried; the first match
// wins. Suggestions and reports list categories in this order too.
var Precedence = []Category{
	Identifier, Clinical, Demographic, Treatment, GenomicKey, GenomicOther,
	Imaging, Survival, Tumor, Metadata, Other,
}

// Rank returns the position of c in Precedence. Unknown categories sort last.
func Rank(c Category) int {
	for i, p := range Precedence {
		if p == c {
			return i
		}
	}
	return len(Precedence)
}

var identifierNames = map[string]bool{"patient_id": true, "patient": true, "sample": true, "id": true}

var keywords = map[Category][]string{
	Clinical:    {"er_", "pr_", "her2", "erbb2", "subtype", "grade", "stage", "ihc", "pam50", "claudin", "intclust"},
	Demographic: {"age", "race", "gender", "ethnicity", "nationality", "smoking", "menopausal", "demographic"},
	Treatment:   {"treatment", "therapy", "chemo", "radiation", "hormone", "surgery", "had_"},
	Imaging: {"nuc_", "radius", "texture", "perimeter", "area", "smoothness",
		"compactness", "concavity", "symmetry", "fractal", "diagnosis"},
	Survival: {"survival", "vital", "death", "followup", "os_", "event", "cohort"},
	Tumor:    {"tumor", "lymph", "node", "size"},
	Metadata: {"date", "year", "region", "hospital", "country", "state", "created"},
}

var knownGenes = map[string]bool{
	"esr1": true, "pgr": true, "erbb2": true, "tp53": true, "brca1": true, "brca2": true,
	"pik3ca": true, "pten": true, "akt1": true, "mki67": true, "gata3": true, "foxa1": true,
	"map3k1": true, "kmt2c": true, "cdh1": true, "rb1": true, "ncor1": true, "macf1": true,
	"arid1a": true, "bap1": true,
}

// Expression matrices use gene placeholders or sample barcodes as headers.
var genomicOtherPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^gene_\d+$`),
	regexp.MustCompile(`^scan-b-\d+$`),
	regexp.MustCompile(`^tcga-[a-z0-9-]+$`),
	regexp.MustCompile(`^mb-\d+$`),
}

// Categorize assigns a heuristic category from the lower-cased raw name.
func Categorize(raw string) Category {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range Precedence {
		if matches(c, name) {
			return c
		}
	}
	return Other
}

func matches(c Category, name string) bool {
	switch c {
	case Identifier:
		return identifierNames[name]
	case GenomicKey:
		return knownGenes[name]
	case GenomicOther:
		for _, re := range genomicOtherPatterns {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	case Other:
		return true
	}
	for _, kw := range keywords[c] {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
