// Command genmock writes a deterministic synthetic weather archive, one
// {year}.csv file per year, in the station,date,element,value,mflag,qflag,
// sflag,obstime format read by weatherstats. The same flags always produce
// byte-identical files.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock \
//	  -years 2000-2002 \
//	  -stations 50 -days 365 -seed 1 -flagged 0.01
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/weather-archive-stats/internal/config"
	"github.com/couchcryptid/weather-archive-stats/internal/domain"
)

// qualityFlags are assigned to the flagged fraction of records.
var qualityFlags = []string{"D", "G", "I", "K", "N", "O", "S", "X"}

type generator struct {
	stations int
	days     int
	seed     uint64
	flagged  float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory for {year}.csv files")
	yearSpec := flag.String("years", "2000-2002", "years to generate: list or inclusive range")
	stations := flag.Int("stations", 50, "number of stations")
	days := flag.Int("days", 365, "observation days per year, from January 1st")
	seed := flag.Uint64("seed", 1, "random seed")
	flagged := flag.Float64("flagged", 0.01, "fraction of records with a quality flag")
	flag.Parse()

	years, err := config.ParseYears(*yearSpec)
	if err != nil {
		return fmt.Errorf("invalid -years: %w", err)
	}
	if *stations < 1 || *days < 1 || *days > 366 {
		flag.Usage()
		return fmt.Errorf("-stations must be positive and -days within 1..366")
	}
	if *flagged < 0 || *flagged > 1 {
		return fmt.Errorf("-flagged must be within [0, 1]")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	g := generator{stations: *stations, days: *days, seed: *seed, flagged: *flagged}
	var total int
	for _, y := range years {
		path := filepath.Join(*out, fmt.Sprintf("%d.csv", y))
		n, err := g.writeYear(path, y)
		if err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		total += n
		log.Printf("%d: %d records -> %s", y, n, path)
	}
	log.Printf("total: %d records across %d years", total, len(years))
	return nil
}

// writeYear emits TMIN and TMAX for every station-day plus occasional PRCP
// records, which the analysis ignores.
func (g generator) writeYear(path string, year int) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	rng := rand.New(rand.NewPCG(g.seed, uint64(year)))
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	var n int
	for s := range g.stations {
		station := fmt.Sprintf("USW%08d", s+1)
		// Per-station climate offset in tenths of a degree.
		offset := rng.IntN(200) - 100
		for d := range g.days {
			day := start.AddDate(0, 0, d)
			if day.Year() != year {
				break
			}
			date := day.Format("20060102")
			seasonal := seasonalCurve(day.YearDay())

			low := seasonal + offset - 60 + rng.IntN(60)
			high := low + 40 + rng.IntN(120)
			g.writeRecord(w, rng, domain.Observation{Station: station, Date: date, Element: domain.TMIN, Value: low})
			g.writeRecord(w, rng, domain.Observation{Station: station, Date: date, Element: domain.TMAX, Value: high})
			n += 2

			if rng.IntN(4) == 0 {
				g.writeRecord(w, rng, domain.Observation{Station: station, Date: date, Element: "PRCP", Value: rng.IntN(300)})
				n++
			}
		}
	}

	if err := w.Flush(); err != nil {
		return 0, err
	}
	return n, f.Close()
}

func (g generator) writeRecord(w *bufio.Writer, rng *rand.Rand, o domain.Observation) {
	o.SFlag = "7"
	o.ObsTime = "0700"
	if rng.Float64() < g.flagged {
		o.QFlag = qualityFlags[rng.IntN(len(qualityFlags))]
	}
	fmt.Fprintf(w, "%s,%s,%s,%d,%s,%s,%s,%s\n",
		o.Station, o.Date, o.Element, o.Value, o.MFlag, o.QFlag, o.SFlag, o.ObsTime)
}

// seasonalCurve approximates a northern-hemisphere annual cycle peaking in
// mid July, in tenths of a degree.
func seasonalCurve(yearDay int) int {
	// Triangle wave between -50 (mid January) and 250 (mid July).
	d := (yearDay + 365 - 15) % 365
	if d > 182 {
		d = 365 - d
	}
	return -50 + d*300/182
}
