package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titanic-predictor/internal/common"
)

const sampleCSV = `pclass,survived,name,sex,age,sibsp,parch,ticket,fare,cabin,embarked,boat,body,home.dest
1,1,"Allen, Miss. Elisabeth Walton",female,29,0,0,24160,211.3375,B5,S,2,,"St Louis, MO"
1,0,"Allison, Mr. Hudson Joshua Creighton",male,30,1,2,113781,151.55,C22 C26,S,,135,"Montreal, PQ"
3,0,"Abbing, Mr. Anthony",male,,0,0,C.A. 5547,7.55,,,,,
2,1,"Angle, Mrs. William A",female,36.0,1,0,226875,NA,,c,11,,
`

func TestReadCSV(t *testing.T) {
	records, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 4)

	first := records[0]
	assert.Equal(t, 1, first.Pclass)
	assert.Equal(t, "female", first.Sex)
	require.NotNil(t, first.Age)
	assert.Equal(t, 29.0, *first.Age)
	assert.Equal(t, 211.3375, *first.Fare)
	assert.Equal(t, "S", *first.Embarked)
	assert.Equal(t, 1, *first.Survived)
	assert.Equal(t, "Allen, Miss. Elisabeth Walton", first.Extra["name"])
	assert.Contains(t, first.Extra, "home.dest")
	assert.NotContains(t, first.Extra, "age")

	third := records[2]
	assert.Nil(t, third.Age)
	assert.Nil(t, third.Embarked)

	fourth := records[3]
	assert.Nil(t, fourth.Fare)
	assert.Equal(t, "C", *fourth.Embarked)
	assert.Equal(t, 36.0, *fourth.Age)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"header only", "pclass,survived,sex,age,sibsp,parch,fare,embarked\n"},
		{"missing label column", "pclass,sex,age,sibsp,parch,fare,embarked\n1,male,3,0,0,7,S\n"},
		{"bad integer", "pclass,survived,sex,age,sibsp,parch,fare,embarked\nfirst,1,male,3,0,0,7,S\n"},
		{"fractional count", "pclass,survived,sex,age,sibsp,parch,fare,embarked\n1,1,male,3,0.5,0,7,S\n"},
		{"huge integer", "pclass,survived,sex,age,sibsp,parch,fare,embarked\n1e300,1,male,3,0,0,7,S\n"},
		{"infinite count", "pclass,survived,sex,age,sibsp,parch,fare,embarked\n1,1,male,3,-Inf,0,7,S\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data))
			var cfgErr *common.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titanic.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	records, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	_, err = LoadCSV(filepath.Join(dir, "missing.csv"))
	var cfgErr *common.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]int, 100)
	for i := 0; i < 40; i++ {
		labels[i] = 1
	}

	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	positives := 0
	for _, i := range test {
		positives += labels[i]
	}
	assert.Equal(t, 8, positives)

	seen := make(map[int]bool)
	for _, i := range append(append([]int(nil), train...), test...) {
		assert.False(t, seen[i], "index %d used twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 100)

	train2, test2, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestStratifiedSplit_InvalidSize(t *testing.T) {
	_, _, err := StratifiedSplit([]int{0, 1}, 1.5, 42)
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}}
	y := []int{0, 1, 0}
	xs, ys := Select(X, y, []int{2, 0})
	assert.Equal(t, [][]float64{{2}, {0}}, xs)
	assert.Equal(t, []int{0, 0}, ys)
}
