package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/evdnx/gotsrl/types"
)

// bar is one OHLCV row of a bars file.
type bar struct {
	High, Low, Close, Volume float64
}

// parseVotes reads "swing=BUY:0.85,momentum=SELL:0.6,mean_reversion=NONE".
// Strategies left out vote NONE.
func parseVotes(s string) ([]types.StrategyVote, error) {
	var out []types.StrategyVote
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, rest, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("vote %q: want strategy=DIRECTION[:confidence]", part)
		}
		dirStr, confStr, hasConf := strings.Cut(rest, ":")
		dir := types.Direction(strings.ToUpper(strings.TrimSpace(dirStr)))
		if !dir.Valid() {
			return nil, fmt.Errorf("vote %q: unknown direction %q", part, dirStr)
		}
		conf := 0.0
		if hasConf {
			v, err := strconv.ParseFloat(strings.TrimSpace(confStr), 64)
			if err != nil {
				return nil, fmt.Errorf("vote %q: %w", part, err)
			}
			conf = v
		} else if dir != types.DirNone {
			return nil, fmt.Errorf("vote %q: %s needs a confidence", part, dir)
		}
		out = append(out, types.StrategyVote{
			Strategy:   types.StrategyID(strings.ToLower(strings.TrimSpace(id))),
			Direction:  dir,
			Confidence: conf,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("no votes given")
	}
	return out, nil
}

// readBarsFile opens path and parses it with readBars.
func readBarsFile(path string) ([]bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := readBars(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// readBars parses CSV bars. A header row naming high, low, close and
// volume selects the columns; without one the layout is inferred from the
// column count: [time,]open,high,low,close,volume or high,low,close,volume.
// A single column is read as closes only.
func readBars(r io.Reader) ([]bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows")
	}

	cols := map[string]int{"high": -1, "low": -1, "close": -1, "volume": -1}
	if _, err := strconv.ParseFloat(strings.TrimSpace(rows[0][len(rows[0])-1]), 64); err != nil {
		for i, name := range rows[0] {
			if _, ok := cols[strings.ToLower(strings.TrimSpace(name))]; ok {
				cols[strings.ToLower(strings.TrimSpace(name))] = i
			}
		}
		if cols["close"] < 0 {
			return nil, errors.New("header has no close column")
		}
		rows = rows[1:]
	} else {
		switch n := len(rows[0]); n {
		case 1:
			cols["close"] = 0
		case 4:
			cols = map[string]int{"high": 0, "low": 1, "close": 2, "volume": 3}
		case 5, 6:
			off := n - 5
			cols = map[string]int{"high": off + 1, "low": off + 2, "close": off + 3, "volume": off + 4}
		default:
			return nil, fmt.Errorf("cannot infer layout from %d columns", n)
		}
	}

	out := make([]bar, 0, len(rows))
	for i, row := range rows {
		field := func(name string) (float64, error) {
			c := cols[name]
			if c < 0 {
				return 0, nil
			}
			if c >= len(row) {
				return 0, fmt.Errorf("row %d: missing %s", i+1, name)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return 0, fmt.Errorf("row %d %s: %w", i+1, name, err)
			}
			return v, nil
		}
		var b bar
		if b.Close, err = field("close"); err != nil {
			return nil, err
		}
		if b.High, err = field("high"); err != nil {
			return nil, err
		}
		if b.Low, err = field("low"); err != nil {
			return nil, err
		}
		if b.Volume, err = field("volume"); err != nil {
			return nil, err
		}
		if cols["high"] < 0 {
			b.High = b.Close
		}
		if cols["low"] < 0 {
			b.Low = b.Close
		}
		out = append(out, b)
	}
	return out, nil
}

func closesOf(bars []bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
