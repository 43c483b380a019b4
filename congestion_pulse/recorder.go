package congestion_pulse

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sagernet/sing/common"
	E "github.com/sagernet/sing/common/exceptions"
)

// RecorderOptions configures CSV persistence of the sampler logs.
type RecorderOptions struct {
	// Directory receives <Name>_raw.csv and <Name>_scaled.csv.
	Directory string
	Name      string
	// After persists the logs once the connection is older than After. Zero
	// disables the timed trigger.
	After time.Duration
	// SingleFlow persists the logs once nothing has been acknowledged for Grace.
	SingleFlow bool
	Grace      time.Duration
}

// DefaultRecorderGrace is the idle period of single-flow mode.
const DefaultRecorderGrace = 10 * time.Second

// Recorder accumulates raw and scaled snapshots and writes them once.
//
// Recorder is not safe for concurrent use; the Sender only touches it from
// the sampler task and, after the tasks stopped, from Close.
type Recorder struct {
	options   RecorderOptions
	header    []string
	raw       []Snapshot
	scaled    []Snapshot
	lastAcked float64
	saved     bool
}

func NewRecorder(options RecorderOptions, names []string) (*Recorder, error) {
	if options.Name == "" {
		return nil, E.New("missing recorder name")
	}
	if options.SingleFlow && options.Grace <= 0 {
		options.Grace = DefaultRecorderGrace
	}
	return &Recorder{
		options: options,
		header:  Header(names),
	}, nil
}

// Append adds one row to each log. Rows arriving after the logs were written
// are dropped.
func (r *Recorder) Append(scaled, raw Snapshot) {
	if r.saved {
		return
	}
	r.scaled = append(r.scaled, scaled)
	r.raw = append(r.raw, raw)
}

// Due reports whether the persistence trigger fired for a row taken at deltaT
// seconds during which acked bytes were acknowledged.
func (r *Recorder) Due(deltaT float64, acked float64) bool {
	if r.saved {
		return false
	}
	if acked > 0 {
		r.lastAcked = deltaT
	}
	if r.options.SingleFlow {
		return deltaT-r.lastAcked >= r.options.Grace.Seconds()
	}
	return r.options.After > 0 && deltaT > r.options.After.Seconds()
}

func (r *Recorder) Saved() bool {
	return r.saved
}

// Rows returns the number of buffered rows per log.
func (r *Recorder) Rows() int {
	return len(r.scaled)
}

// Paths returns the raw and scaled file paths.
func (r *Recorder) Paths() (raw string, scaled string) {
	raw = filepath.Join(r.options.Directory, r.options.Name+"_raw.csv")
	scaled = filepath.Join(r.options.Directory, r.options.Name+"_scaled.csv")
	return
}

// Persist writes both logs. Only the first call writes; later calls return nil.
func (r *Recorder) Persist() error {
	if r.saved {
		return nil
	}
	r.saved = true
	if r.options.Directory != "" {
		err := os.MkdirAll(r.options.Directory, 0o755)
		if err != nil {
			return E.Cause(err, "create output directory")
		}
	}
	rawPath, scaledPath := r.Paths()
	err := writeLog(rawPath, r.header, r.raw)
	if err != nil {
		return E.Cause(err, "write raw log")
	}
	err = writeLog(scaledPath, r.header, r.scaled)
	if err != nil {
		return E.Cause(err, "write scaled log")
	}
	r.raw = nil
	r.scaled = nil
	return nil
}

func writeLog(path string, header []string, rows []Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	err = writer.Write(header)
	record := make([]string, len(header))
	for _, row := range rows {
		if err != nil {
			break
		}
		for i := range record {
			if i < len(row) {
				record[i] = strconv.FormatFloat(row[i], 'g', -1, 64)
			} else {
				record[i] = ""
			}
		}
		err = writer.Write(record)
	}
	if err == nil {
		writer.Flush()
		err = writer.Error()
	}
	return E.Errors(err, common.Close(file))
}

// ReadLog parses a log written by Recorder.Persist.
func ReadLog(path string) (header []string, rows []Snapshot, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, E.Cause(err, "read ", path)
	}
	if len(records) == 0 {
		return nil, nil, E.New("empty log: ", path)
	}
	header = records[0]
	rows = make([]Snapshot, 0, len(records)-1)
	for line, record := range records[1:] {
		row := make(Snapshot, len(record))
		for i, field := range record {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, E.Cause(err, path, ":", line+2, " column ", header[i])
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}
