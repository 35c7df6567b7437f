package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"titanic-predictor/internal/common"
	"titanic-predictor/internal/dataset"
	"titanic-predictor/internal/features"
	"titanic-predictor/internal/storage"
)

// Sample is one passenger to re-score. Labeled samples come from a dataset;
// replayed samples come from the prediction audit log and carry the
// prediction that was served at the time.
type Sample struct {
	Index    int
	Record   features.RawRecord
	Recorded *storage.PredictionRecord
}

// DataLoader holds samples and serves them in order.
type DataLoader struct {
	samples   []Sample
	index     int
	StartTime time.Time
	EndTime   time.Time
}

func NewDataLoader() *DataLoader {
	return &DataLoader{samples: make([]Sample, 0)}
}

// LoadFromCSV appends every row of a labeled passenger CSV.
func (dl *DataLoader) LoadFromCSV(filePath string) error {
	records, err := dataset.LoadCSV(filePath)
	if err != nil {
		return err
	}
	for i, r := range records {
		if r.Survived == nil {
			return &common.ConfigurationError{Msg: fmt.Sprintf("row %d: %s", i+1, common.ErrMsgMissingLabel), Path: filePath}
		}
		dl.samples = append(dl.samples, Sample{Index: len(dl.samples), Record: r})
	}

	log.Info().
		Str("file", filePath).
		Int("rows", len(records)).
		Msg("Labeled passengers loaded")
	return nil
}

// LoadFromBoltDB appends audit-log predictions served between start and end.
// Records whose input cannot be rebuilt are skipped.
func (dl *DataLoader) LoadFromBoltDB(store *storage.Store, startTime, endTime time.Time) error {
	log.Info().
		Time("start", startTime).
		Time("end", endTime).
		Msg("Loading served predictions from BoltDB")

	recs, err := store.GetPredictions(startTime, endTime)
	if err != nil {
		return fmt.Errorf("failed to load predictions: %w", err)
	}

	skipped := 0
	for i := range recs {
		rec, err := recordFromInput(recs[i].Input)
		if err != nil {
			skipped++
			log.Debug().Err(err).Str("id", recs[i].ID).Msg("Skipping audit record")
			continue
		}
		dl.samples = append(dl.samples, Sample{Index: len(dl.samples), Record: rec, Recorded: &recs[i]})
	}

	if len(recs) > 0 {
		dl.StartTime = recs[0].Timestamp
		dl.EndTime = recs[len(recs)-1].Timestamp
	}
	log.Info().
		Int("replayed", len(recs)-skipped).
		Int("skipped", skipped).
		Time("data_start", dl.StartTime).
		Time("data_end", dl.EndTime).
		Msg("Audit log loaded")
	return nil
}

// recordFromInput rebuilds a RawRecord from a JSON-decoded audit input.
func recordFromInput(in map[string]any) (features.RawRecord, error) {
	var rec features.RawRecord
	ints := map[string]*int{
		features.ColPclass: &rec.Pclass,
		features.ColSibSp:  &rec.SibSp,
		features.ColParch:  &rec.Parch,
	}
	for col, dst := range ints {
		v, ok := in[col].(float64)
		if !ok {
			return rec, fmt.Errorf("%s missing or not a number", col)
		}
		*dst = int(v)
	}

	sex, ok := in[features.ColSex].(string)
	if !ok {
		return rec, fmt.Errorf("%s missing or not a string", features.ColSex)
	}
	rec.Sex = sex

	if v, ok := in[features.ColAge].(float64); ok {
		rec.Age = features.Float(v)
	}
	if v, ok := in[features.ColFare].(float64); ok {
		rec.Fare = features.Float(v)
	}
	if v, ok := in[features.ColEmbarked].(string); ok {
		rec.Embarked = features.String(v)
	}
	return rec, nil
}

// Reset rewinds to the first sample.
func (dl *DataLoader) Reset() {
	dl.index = 0
}

func (dl *DataLoader) HasNext() bool {
	return dl.index < len(dl.samples)
}

func (dl *DataLoader) Next() Sample {
	s := dl.samples[dl.index]
	dl.index++
	return s
}

func (dl *DataLoader) GetDataCount() int {
	return len(dl.samples)
}

// GetProgress returns the fraction of samples served.
func (dl *DataLoader) GetProgress() float64 {
	if len(dl.samples) == 0 {
		return 0
	}
	return float64(dl.index) / float64(len(dl.samples))
}
