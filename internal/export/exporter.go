package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ratefeed/internal/domain"
)

// Exporter renders canonical rates into the XML feed and writes it
// atomically. The last valid snapshot is retained in memory behind an atomic
// pointer so HTTP readers can serve it lock-free while an export runs.
type Exporter struct {
	path     string
	validate bool

	last atomic.Pointer[domain.Snapshot]
}

func NewExporter(path string, validate bool) *Exporter {
	return &Exporter{path: path, validate: validate}
}

// Feed element order is a wire contract; do not reorder the struct fields.
type xmlItem struct {
	From      string `xml:"from"`
	To        string `xml:"to"`
	In        string `xml:"in"`
	Out       string `xml:"out"`
	Amount    string `xml:"amount"`
	MinAmount string `xml:"minamount"`
	MaxAmount string `xml:"maxamount"`
	Param     string `xml:"param"`
}

type xmlRates struct {
	XMLName   xml.Name  `xml:"rates"`
	Generated string    `xml:"generated,attr"`
	Count     int       `xml:"count,attr"`
	Items     []xmlItem `xml:"item"`
}

// Export renders, validates and atomically writes the snapshot. On any
// failure the target path is left untouched and the previous in-memory
// snapshot stays authoritative.
func (e *Exporter) Export(rates []domain.CanonicalRate) error {
	generatedAt := time.Now()
	content, err := render(rates, generatedAt)
	if err != nil {
		return fmt.Errorf("failed to render snapshot: %w", err)
	}

	if e.validate {
		if err = validateWellFormed(content); err != nil {
			return err
		}
	}

	if err = writeAtomic(e.path, content); err != nil {
		return err
	}

	e.last.Store(&domain.Snapshot{
		Content:     content,
		GeneratedAt: generatedAt,
		Count:       len(rates),
	})
	logrus.Infof("Exported %d rates to %s", len(rates), e.path)
	return nil
}

// LastSnapshot returns the most recent successfully exported snapshot. Safe
// to call concurrently with an in-progress export.
func (e *Exporter) LastSnapshot() (*domain.Snapshot, bool) {
	snap := e.last.Load()
	return snap, snap != nil
}

func render(rates []domain.CanonicalRate, generatedAt time.Time) (string, error) {
	doc := xmlRates{
		Generated: generatedAt.Format(time.RFC3339),
		Count:     len(rates),
		Items:     make([]xmlItem, 0, len(rates)),
	}
	for _, r := range rates {
		doc.Items = append(doc.Items, xmlItem{
			From:      r.FromCurrency,
			To:        r.ToCurrency,
			In:        r.InAmount,
			Out:       r.OutAmount,
			Amount:    r.Reserve,
			MinAmount: r.MinAmount,
			MaxAmount: r.MaxAmount,
			Param:     r.Param,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(body) + "\n", nil
}

func validateWellFormed(content string) error {
	var parsed xmlRates
	if err := xml.Unmarshal([]byte(content), &parsed); err != nil {
		logrus.WithError(err).Error("Snapshot validation failed")
		return fmt.Errorf("%w: %v", domain.ErrMalformedSnapshot, err)
	}
	return nil
}

// writeAtomic writes content to a temp file in the target's directory,
// flushes it, then renames it over the target. The target keeps its old
// content (or stays absent) whenever any step fails.
func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".rates-*.xml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()

	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return cause
	}

	if _, err = tmp.WriteString(content); err != nil {
		return cleanup(fmt.Errorf("failed to write snapshot: %w", err))
	}
	if err = tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync snapshot: %w", err))
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %q: %w", path, err)
	}
	return nil
}
