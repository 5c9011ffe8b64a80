package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ratefeed/internal/domain"
)

func sampleRate() domain.CanonicalRate {
	return domain.CanonicalRate{
		FromCurrency: "USDTTRC20",
		ToCurrency:   "SBERRUB",
		InAmount:     "1",
		OutAmount:    "95.5",
		Reserve:      "150000",
		MinAmount:    "1000",
		MaxAmount:    "100000",
		Param:        "0",
		SourceID:     "s1",
	}
}

// --- Export ---

func TestExporter_WritesFeedWithWireOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xml")
	e := NewExporter(path, true)

	require.NoError(t, e.Export([]domain.CanonicalRate{sampleRate()}))

	snap, ok := e.LastSnapshot()
	require.True(t, ok)

	want := xml.Header + fmt.Sprintf(`<rates generated="%s" count="1">
  <item>
    <from>USDTTRC20</from>
    <to>SBERRUB</to>
    <in>1</in>
    <out>95.5</out>
    <amount>150000</amount>
    <minamount>1000</minamount>
    <maxamount>100000</maxamount>
    <param>0</param>
  </item>
</rates>
`, snap.GeneratedAt.Format(time.RFC3339))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, want, string(content))
	require.Equal(t, want, snap.Content)
	require.Equal(t, 1, snap.Count)
}

func TestExporter_CountMatchesItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xml")
	e := NewExporter(path, true)

	second := sampleRate()
	second.FromCurrency = "BTC"
	require.NoError(t, e.Export([]domain.CanonicalRate{sampleRate(), second}))

	snap, ok := e.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, 2, snap.Count)
	require.Contains(t, snap.Content, `count="2"`)
}

func TestExporter_CreatesOutputDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rates.xml")
	e := NewExporter(path, true)

	require.NoError(t, e.Export([]domain.CanonicalRate{sampleRate()}))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestExporter_ValidationDisabledStillExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xml")
	e := NewExporter(path, false)

	require.NoError(t, e.Export([]domain.CanonicalRate{sampleRate()}))
	_, ok := e.LastSnapshot()
	require.True(t, ok)
}

// --- LastSnapshot ---

func TestExporter_NoSnapshotBeforeFirstExport(t *testing.T) {
	e := NewExporter(filepath.Join(t.TempDir(), "rates.xml"), true)

	snap, ok := e.LastSnapshot()
	require.False(t, ok)
	require.Nil(t, snap)
}

// --- atomicity ---

func TestExporter_FailedWriteLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.xml")
	e := NewExporter(path, true)

	require.NoError(t, e.Export([]domain.CanonicalRate{sampleRate()}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	snapBefore, _ := e.LastSnapshot()

	// Replace the target with a non-empty directory so the final rename
	// cannot succeed.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "occupied"), []byte("x"), 0o644))

	err = e.Export([]domain.CanonicalRate{sampleRate()})
	require.Error(t, err)

	// Previous snapshot stays authoritative and no temp files leak.
	snapAfter, ok := e.LastSnapshot()
	require.True(t, ok)
	require.Equal(t, snapBefore, snapAfter)
	require.Equal(t, string(before), snapBefore.Content)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestExporter_UnwritableDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// Parent of the target path is a regular file.
	e := NewExporter(filepath.Join(blocker, "rates.xml"), true)

	err := e.Export([]domain.CanonicalRate{sampleRate()})
	require.Error(t, err)

	_, ok := e.LastSnapshot()
	require.False(t, ok)
}
