package schema

import "sort"

// FeatureKind is how the preprocessor encodes a feature.
type FeatureKind uint8

const (
	// KindAuto defers to detection from observed values.
	KindAuto FeatureKind = iota
	KindNumeric
	KindCategorical
)

func (k FeatureKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	default:
		return "auto"
	}
}

// Column names with special roles.
const (
	IDColumn      = "CUST_ID"
	LabelColumn   = "CREDIT_SCORE"
	DefaultColumn = "DEFAULT"
	Income        = "INCOME"
	Savings       = "SAVINGS"
	Debt          = "DEBT"
	DebtIncome    = "R_DEBT_INCOME"
	SavingsIncome = "R_SAVINGS_INCOME"
	Expenditure12 = "T_EXPENDITURE_12"
)

var spendingCategories = []string{
	"CLOTHING", "EDUCATION", "ENTERTAINMENT", "FINES", "GAMBLING", "GROCERIES",
	"HEALTH", "HOUSING", "TAX", "TRAVEL", "UTILITIES", "EXPENDITURE",
}

var flagColumns = []string{
	"CAT_GAMBLING", "CAT_DEBT", "CAT_CREDIT_CARD", "CAT_MORTGAGE",
	"CAT_SAVINGS_ACCOUNT", "CAT_DEPENDENTS",
}

var descriptions = map[string]string{
	Income:                "Income Level",
	Savings:               "Savings Amount",
	Debt:                  "Total Debt",
	DebtIncome:            "Debt-to-Income Ratio",
	SavingsIncome:         "Savings-to-Income Ratio",
	"R_DEBT_SAVINGS":      "Debt-to-Savings Ratio",
	Expenditure12:         "Total Expenditure (12 months)",
	"T_EXPENDITURE_6":     "Total Expenditure (6 months)",
	DefaultColumn:         "Default History",
	"CAT_CREDIT_CARD":     "Credit Card Usage",
	"CAT_MORTGAGE":        "Mortgage Status",
	"CAT_SAVINGS_ACCOUNT": "Savings Account",
	"CAT_DEPENDENTS":      "Number of Dependents",
}

// catalog is the closed set of recognized feature names.
var catalog = buildCatalog()

func buildCatalog() map[string]FeatureKind {
	c := map[string]FeatureKind{
		Income:           KindNumeric,
		Savings:          KindNumeric,
		Debt:             KindNumeric,
		SavingsIncome:    KindNumeric,
		DebtIncome:       KindNumeric,
		"R_DEBT_SAVINGS": KindNumeric,
		DefaultColumn:    KindAuto,
	}
	for _, cat := range spendingCategories {
		c["T_"+cat+"_12"] = KindNumeric
		c["T_"+cat+"_6"] = KindNumeric
		c["R_"+cat] = KindNumeric
		c["R_"+cat+"_INCOME"] = KindNumeric
		c["R_"+cat+"_SAVINGS"] = KindNumeric
		c["R_"+cat+"_DEBT"] = KindNumeric
	}
	for _, name := range flagColumns {
		c[name] = KindAuto
	}
	c["CAT_GAMBLING"] = KindCategorical
	return c
}

// IsFeature reports whether name belongs to the recognized feature catalog.
func IsFeature(name string) bool {
	_, ok := catalog[name]
	return ok
}

// DeclaredKind returns the catalog kind for name, KindAuto when the catalog
// leaves it to detection or does not know the name.
func DeclaredKind(name string) FeatureKind {
	return catalog[name]
}

// Describe returns the human-readable label for a feature, falling back to
// the raw name.
func Describe(name string) string {
	if d, ok := descriptions[name]; ok {
		return d
	}
	return name
}

// Features lists the catalog in sorted order.
func Features() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
