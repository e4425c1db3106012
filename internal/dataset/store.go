package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantopia/internal/models"
)

// Dataset sources
const (
	SourceGenerated = "generated"
	SourceTask      = "task"
	SourceImported  = "imported"
)

const fileExt = ".txt"

var idPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Metadata is the header line of a dataset file
type Metadata struct {
	ID              string    `json:"file_id"`
	Source          string    `json:"source"`
	Symbol          string    `json:"symbol,omitempty"`
	Length          int       `json:"length"`
	BaseMean        float64   `json:"base_mean,omitempty"`
	Trend           Trend     `json:"trend,omitempty"`
	StartPrice      float64   `json:"start_price"`
	EndPrice        float64   `json:"end_price"`
	VolatilityProb  float64   `json:"volatility_prob,omitempty"`
	VolatilityScale float64   `json:"volatility_scale,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
	Seed            *int64    `json:"seed,omitempty"`
}

// Store keeps datasets as files in one directory. Each file holds the JSON metadata
// on its first line followed by one "time,session,price" line per point; time and
// session may be empty.
type Store struct {
	dir    string
	logger *logrus.Entry
}

// NewStore creates the directory if needed
func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dataset directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Store{dir: dir, logger: logger.WithField("component", "dataset")}, nil
}

// Dir returns the directory the store writes to
func (s *Store) Dir() string {
	return s.dir
}

// Save writes points under a new id and returns the stored metadata
func (s *Store) Save(meta Metadata, points []models.PricePoint) (Metadata, error) {
	if len(points) == 0 {
		return Metadata{}, models.NewConfigurationError("points", "dataset must not be empty")
	}
	meta.ID = strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	meta.Length = len(points)
	if meta.Source == "" {
		meta.Source = SourceImported
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now().UTC()
	}
	if meta.StartPrice == 0 {
		meta.StartPrice = points[0].Price
	}
	if meta.EndPrice == 0 {
		meta.EndPrice = points[len(points)-1].Price
	}

	tmp, err := os.CreateTemp(s.dir, meta.ID+"-*.tmp")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, meta, points); err != nil {
		tmp.Close()
		return Metadata{}, fmt.Errorf("failed to write dataset %s: %w", meta.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return Metadata{}, fmt.Errorf("failed to write dataset %s: %w", meta.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(meta.ID)); err != nil {
		return Metadata{}, fmt.Errorf("failed to store dataset %s: %w", meta.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"dataset": meta.ID,
		"source":  meta.Source,
		"points":  meta.Length,
	}).Info("Saved dataset")
	return meta, nil
}

func encode(w io.Writer, meta Metadata, points []models.PricePoint) error {
	header, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(append(header, '\n')); err != nil {
		return err
	}

	cw := csv.NewWriter(bw)
	for _, p := range points {
		ts := ""
		if !p.Timestamp.IsZero() {
			ts = p.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if err := cw.Write([]string{ts, string(p.Session), strconv.FormatFloat(p.Price, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads one dataset. Points are numbered from zero in file order.
func (s *Store) Load(id string) (Metadata, []models.PricePoint, error) {
	if !idPattern.MatchString(id) {
		return Metadata{}, nil, fmt.Errorf("dataset %q: %w", id, models.ErrInvalidID)
	}
	f, err := os.Open(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, nil, fmt.Errorf("dataset %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("failed to open dataset %s: %w", id, err)
	}
	defer f.Close()

	return decode(f, id)
}

func decode(r io.Reader, id string) (Metadata, []models.PricePoint, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Metadata{}, nil, fmt.Errorf("failed to read dataset %s: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(line, &meta); err != nil {
		return Metadata{}, nil, fmt.Errorf("dataset %s has an invalid header: %w", id, err)
	}
	meta.ID = id

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	var points []models.PricePoint
	for lineNo := 2; ; lineNo++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Metadata{}, nil, fmt.Errorf("dataset %s line %d: %w", id, lineNo, err)
		}
		if len(record) != 3 {
			return Metadata{}, nil, fmt.Errorf("dataset %s line %d: expected 3 fields, got %d", id, lineNo, len(record))
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil || price <= 0 {
			return Metadata{}, nil, fmt.Errorf("dataset %s line %d: invalid price %q", id, lineNo, record[2])
		}
		point := models.PricePoint{
			Seq:     int64(len(points)),
			Price:   price,
			Session: models.Session(strings.TrimSpace(record[1])),
		}
		if ts := strings.TrimSpace(record[0]); ts != "" {
			point.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return Metadata{}, nil, fmt.Errorf("dataset %s line %d: invalid time %q", id, lineNo, ts)
			}
		}
		points = append(points, point)
	}
	meta.Length = len(points)
	return meta, points, nil
}

// List returns the metadata of every readable dataset, newest first. Unreadable
// files are skipped.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	out := make([]Metadata, 0, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), fileExt)
		if e.IsDir() || !ok || !idPattern.MatchString(id) {
			continue
		}
		meta, _, err := s.Load(id)
		if err != nil {
			s.logger.WithError(err).WithField("dataset", id).Warn("Skipping unreadable dataset")
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.After(out[j].GeneratedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a dataset
func (s *Store) Delete(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("dataset %q: %w", id, models.ErrInvalidID)
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dataset %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}
