package domain

// Element is the measurement kind of an observation.
type Element string

const (
	TMIN Element = "TMIN"
	TMAX Element = "TMAX"
)

// Observation is one validated archive record.
type Observation struct {
	Station string  `json:"station"`
	Date    string  `json:"date"`
	Element Element `json:"element"`
	Value   int     `json:"value"` // tenths of a degree
	MFlag   string  `json:"mflag,omitempty"`
	QFlag   string  `json:"qflag,omitempty"`
	SFlag   string  `json:"sflag,omitempty"`
	ObsTime string  `json:"obstime,omitempty"`
}

// GroupKey identifies a group for extremal selection. Date is empty when
// grouping by station only.
type GroupKey struct {
	Station string `json:"station"`
	Date    string `json:"date,omitempty"`
}

// Less orders keys by station, then date.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Station != o.Station {
		return k.Station < o.Station
	}
	return k.Date < o.Date
}

// KeyFunc derives the grouping key of an observation.
type KeyFunc func(Observation) GroupKey

// StationKey groups observations by station.
func StationKey(o Observation) GroupKey {
	return GroupKey{Station: o.Station}
}

// StationDayKey groups observations by station and date.
func StationDayKey(o Observation) GroupKey {
	return GroupKey{Station: o.Station, Date: o.Date}
}

// Extremum is one ranked entry of a top-k list.
type Extremum struct {
	Key   GroupKey `json:"key"`
	Value int      `json:"value"`
}

// Metric names a statistic computed over one element.
type Metric string

const (
	MetricMean   Metric = "mean"
	MetricMin    Metric = "min"
	MetricMax    Metric = "max"
	MetricMedian Metric = "median"
)

// AggregateResult is a single named statistic.
type AggregateResult struct {
	Element Element `json:"element"`
	Metric  Metric  `json:"metric"`
	Value   float64 `json:"value"`
}
