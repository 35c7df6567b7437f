// Command sample-data writes a synthetic labeled passenger CSV for local
// training and backtest runs. Survival odds follow sex, class and age the way
// they did on the real voyage, so trained models land in a realistic range.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var header = []string{"pclass", "survived", "name", "sex", "age", "sibsp", "parch", "ticket", "fare", "cabin", "embarked", "boat", "body", "home.dest"}

func main() {
	var (
		outPath     = flag.String("out", "data/titanic.csv", "Output CSV path")
		rows        = flag.Int("rows", 1309, "Number of passengers to generate")
		seed        = flag.Int64("seed", 42, "Random seed")
		missingRate = flag.Float64("missing", 0.2, "Fraction of passengers with unknown age")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows <= 0 {
		log.Fatal().Int("rows", *rows).Msg("rows must be positive")
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	survivors, err := generate(csv.NewWriter(f), rand.New(rand.NewSource(*seed)), *rows, *missingRate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate passengers")
	}

	log.Info().
		Str("file", *outPath).
		Int("rows", *rows).
		Float64("survival_rate", float64(survivors)/float64(*rows)).
		Msg("Sample passengers generated")
}

func generate(w *csv.Writer, rng *rand.Rand, rows int, missingRate float64) (int, error) {
	if err := w.Write(header); err != nil {
		return 0, err
	}

	survivors := 0
	for i := 0; i < rows; i++ {
		pclass := pick(rng, []float64{0.25, 0.21, 0.54}) + 1
		sex := "male"
		if rng.Float64() < 0.36 {
			sex = "female"
		}
		age := math.Max(0.17, math.Min(80, 30+rng.NormFloat64()*14-float64(pclass-2)*6))
		sibsp := pick(rng, []float64{0.68, 0.24, 0.03, 0.02, 0.02, 0.01})
		parch := pick(rng, []float64{0.76, 0.13, 0.09, 0.02})
		fare := classFare(rng, pclass) * float64(1+sibsp+parch) / math.Max(1, float64(sibsp+parch))
		embarked := []string{"S", "C", "Q"}[pick(rng, []float64{0.7, 0.2, 0.1})]

		survived := 0
		if rng.Float64() < survivalOdds(sex, pclass, age) {
			survived = 1
			survivors++
		}

		ageField := strconv.FormatFloat(math.Round(age*10)/10, 'f', -1, 64)
		if rng.Float64() < missingRate {
			ageField = ""
		}
		embarkedField := embarked
		if rng.Float64() < 0.002 {
			embarkedField = ""
		}

		rec := []string{
			strconv.Itoa(pclass),
			strconv.Itoa(survived),
			fmt.Sprintf("Passenger, %s. No %d", title(sex, age), i+1),
			sex,
			ageField,
			strconv.Itoa(sibsp),
			strconv.Itoa(parch),
			fmt.Sprintf("T%06d", rng.Intn(1_000_000)),
			strconv.FormatFloat(math.Round(fare*100)/100, 'f', 2, 64),
			"", embarkedField, "", "", "",
		}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return survivors, w.Error()
}

func survivalOdds(sex string, pclass int, age float64) float64 {
	p := 0.19
	if sex == "female" {
		p = 0.73
	}
	p += []float64{0.18, 0.05, -0.12}[pclass-1]
	if age < 12 {
		p += 0.2
	}
	return math.Max(0.02, math.Min(0.98, p))
}

func classFare(rng *rand.Rand, pclass int) float64 {
	base := []float64{84, 21, 13}[pclass-1]
	return base * math.Exp(rng.NormFloat64()*0.4)
}

// pick draws an index from a discrete distribution.
func pick(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	x := rng.Float64() * total
	for i, w := range weights {
		if x < w {
			return i
		}
		x -= w
	}
	return len(weights) - 1
}

func title(sex string, age float64) string {
	switch {
	case sex == "male" && age < 14:
		return "Master"
	case sex == "male":
		return "Mr"
	case age < 18:
		return "Miss"
	default:
		return "Mrs"
	}
}
