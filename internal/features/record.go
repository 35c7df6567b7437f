package features

// Column names of raw passenger records and of the engineered feature set.
const (
	ColPclass     = "pclass"
	ColSex        = "sex"
	ColAge        = "age"
	ColSibSp      = "sibsp"
	ColParch      = "parch"
	ColFare       = "fare"
	ColEmbarked   = "embarked"
	ColSurvived   = "survived"
	ColFamilySize = "family_size"
	ColIsAlone    = "is_alone"
	ColAgeGroup   = "age_group"
)

// DroppedColumns are identifier or free-text columns that never reach a model.
var DroppedColumns = []string{"name", "ticket", "cabin", "boat", "body", "home.dest"}

// baseColumns is the raw column order kept after dropping; engineered columns follow.
var baseColumns = []string{ColPclass, ColSex, ColAge, ColSibSp, ColParch, ColFare, ColEmbarked}

var engineeredColumns = []string{ColFamilySize, ColIsAlone, ColAgeGroup}

// categoricalColumns are label-encoded at fit time.
var categoricalColumns = []string{ColSex, ColEmbarked}

// RawRecord is one passenger as read from the dataset or an API request.
// Age, Fare and Embarked may be missing; Survived is only present for training data.
type RawRecord struct {
	Pclass   int
	Sex      string
	Age      *float64
	SibSp    int
	Parch    int
	Fare     *float64
	Embarked *string
	Survived *int

	// Extra holds columns the model never sees (name, ticket, cabin...).
	Extra map[string]string
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// FeatureVector is a single transformed row in canonical column order.
type FeatureVector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
}

// Get returns the value for a named column.
func (v FeatureVector) Get(name string) (float64, bool) {
	for i, c := range v.Columns {
		if c == name {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Matrix is the output of FitTransform: features, labels and the frozen column list.
type Matrix struct {
	Columns []string
	X       [][]float64
	Y       []int
}

func knownColumn(name string) bool {
	for _, c := range baseColumns {
		if c == name {
			return true
		}
	}
	for _, c := range engineeredColumns {
		if c == name {
			return true
		}
	}
	return false
}
