package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/curvefit"
	"github.com/banshee-data/mitosis.report/internal/pairing"
	"github.com/banshee-data/mitosis.report/internal/report"
	"github.com/banshee-data/mitosis.report/internal/testutil"
	"github.com/banshee-data/mitosis.report/internal/tracks"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-q"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCSV(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
}

func writeTracks(t *testing.T, path string, withMovie bool, records []tracks.Record) {
	t.Helper()
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	header := []string{"trackId", "frame", "x", "y", "intensity"}
	if withMovie {
		header = append([]string{"movieId"}, header...)
	}
	rows := [][]string{header}
	for _, r := range records {
		row := []string{r.TrackID, strconv.Itoa(r.Frame), ff(r.X), ff(r.Y), ff(r.Intensity)}
		if withMovie {
			row = append([]string{r.MovieID}, row...)
		}
		rows = append(rows, row)
	}
	writeCSV(t, path, rows)
}

// writeTrainingSet writes six spindle pairs and six pairs of unrelated
// tracks with their labels.
func writeTrainingSet(t *testing.T, dir string) (tracksPath, labelsPath string) {
	t.Helper()
	var records []tracks.Record
	labels := [][]string{{"pairId", "label"}}
	for i := 0; i < 6; i++ {
		p := testutil.DefaultProfile()
		p.NEBD += i
		p.CongS += i
		p.CongE -= 2 * i
		p.Plateau += 0.4 * float64(i)
		a, b := fmt.Sprintf("s%da", i), fmt.Sprintf("s%db", i)
		records = append(records, testutil.PairRecordsAt("train", a, b, float64(1000*i), 0, p)...)
		labels = append(labels, []string{pairing.PairID("train", a, b), "true"})

		x, y := float64(1000*i), 5000.0
		a, b = fmt.Sprintf("w%da", i), fmt.Sprintf("w%db", i)
		records = append(records, testutil.WanderRecords("train", a, x, y, 0, 60, int64(10+i))...)
		records = append(records, testutil.WanderRecords("train", b, x+10, y+6, 0, 60, int64(100+i))...)
		labels = append(labels, []string{pairing.PairID("train", a, b), "no"})
	}
	tracksPath = filepath.Join(dir, "train.csv")
	labelsPath = filepath.Join(dir, "labels.csv")
	writeTracks(t, tracksPath, true, records)
	writeCSV(t, labelsPath, labels)
	return tracksPath, labelsPath
}

func writeBatch(t *testing.T, dir string) (tracksPath, scoresPath string) {
	t.Helper()
	records := testutil.PairRecords("m1", "1", "2", testutil.DefaultProfile())
	records = append(records, testutil.WanderRecords("m1", "5", 2000, 2000, 0, 80, 3)...)
	tracksPath = filepath.Join(dir, "m1.csv")
	scoresPath = filepath.Join(dir, "m1_scores.csv")
	writeTracks(t, tracksPath, false, records)
	writeCSV(t, scoresPath, [][]string{
		{"movieId", "cellId", "NEBD", "CongS", "CongE"},
		{"m1", "Cell_1", "10", "15", "60"},
	})
	return tracksPath, scoresPath
}

func TestTrainThenRun(t *testing.T) {
	dir := t.TempDir()
	trainTracks, labels := writeTrainingSet(t, dir)
	batchTracks, scores := writeBatch(t, dir)
	dbPath := filepath.Join(dir, "mitosis.db")
	modelPath := filepath.Join(dir, "models", "model.json")

	out, err := execute(t, "train", "--tracks", trainTracks, "--labels", labels, "--out", modelPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(version 1) trained on 12 pairs, 6 positive")

	model, err := readModel(modelPath)
	require.NoError(t, err)
	assert.Equal(t, 1, model.Version())

	out, err = execute(t, "train", "--tracks", trainTracks, "--labels", labels, "--out", modelPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(version 2)")

	outDir := filepath.Join(dir, "out")
	metricsPath := filepath.Join(dir, "mitosis.prom")
	out, err = execute(t, "run", "--tracks", batchTracks, "--scores", scores, "--out", outDir,
		"--db", dbPath, "--dashboard", "--metrics-file", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "m1")
	assert.NotContains(t, out, "No cell for score")

	for _, name := range []string{report.CellsFile, report.MoviesFile, report.ManifestFile, report.PairsFile, report.DashboardFile} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	cells, err := os.ReadFile(filepath.Join(outDir, report.CellsFile))
	require.NoError(t, err)
	assert.Contains(t, string(cells), "m1,Cell_1,m1:1+2,10,human")

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "mitosis_cells_cells_total")
}

func TestRun_WithoutModel(t *testing.T) {
	dir := t.TempDir()
	batchTracks, _ := writeBatch(t, dir)

	_, err := execute(t, "run", "--tracks", batchTracks, "--out", filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, classifier.ErrClassifierUntrained)
}

func TestRun_OutputLocked(t *testing.T) {
	dir := t.TempDir()
	batchTracks, _ := writeBatch(t, dir)
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))

	lock := flock.New(filepath.Join(outDir, lockFile))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	_, err = execute(t, "run", "--tracks", batchTracks, "--out", outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another run")
}

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mitosis.db")

	out, err := execute(t, "migrate", "version", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 0 of 1 (clean)")

	out, err = execute(t, "migrate", "up", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 1 of 1 (clean)")

	out, err = execute(t, "migrate", "down", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 0 of 1")

	_, err = execute(t, "migrate", "version")
	assert.Error(t, err)
}

func TestFitCommand(t *testing.T) {
	dir := t.TempDir()
	p := testutil.DefaultProfile()
	frames, lengths := p.NoisySeries(0.02, 7)
	rows := [][]string{{"frame", "length"}}
	for i := range frames {
		rows = append(rows, []string{strconv.Itoa(frames[i]), strconv.FormatFloat(lengths[i], 'f', 6, 64)})
	}
	seriesPath := filepath.Join(dir, "Cell_7.csv")
	writeCSV(t, seriesPath, rows)

	out, err := execute(t, "fit", "--series", seriesPath, "--json")
	require.NoError(t, err)

	var res curvefit.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Cell_7", res.CellID)
	require.True(t, res.HasCandidates)
	assert.InDelta(t, p.NEBD, res.NEBD, 1)
	assert.InDelta(t, p.CongS, res.CongS, 1)
	assert.InDelta(t, p.CongE, res.CongE, 1)

	out, err = execute(t, "fit", "--series", seriesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "prometaphase")
}

func TestReadSeries_Errors(t *testing.T) {
	_, _, err := readSeries(bytes.NewBufferString("frame,size\n1,2\n"))
	assert.Error(t, err)

	_, _, err = readSeries(bytes.NewBufferString("frame,length\n1,abc\n"))
	assert.Error(t, err)

	frames, lengths, err := readSeries(bytes.NewBufferString("frame,length\n0,1.5\n2,2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, frames)
	assert.Equal(t, []float64{1.5, 2.5}, lengths)
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "mitosis version dev")
}

func TestFitCommand_Units(t *testing.T) {
	dir := t.TempDir()
	frames, lengths := testutil.DefaultProfile().Series()
	rows := [][]string{{"frame", "length"}}
	for i := range frames {
		rows = append(rows, []string{strconv.Itoa(frames[i]), strconv.FormatFloat(lengths[i], 'f', 6, 64)})
	}
	seriesPath := filepath.Join(dir, "Cell_1.csv")
	writeCSV(t, seriesPath, rows)

	_, err := execute(t, "fit", "--series", seriesPath, "--units", "hours")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frames, s, min")

	out, err := execute(t, "fit", "--series", seriesPath, "--units", "min")
	require.NoError(t, err)
	assert.Contains(t, out, "no frame_interval configured")

	t.Setenv("MITOSIS_FRAME_INTERVAL", "30s")
	out, err = execute(t, "fit", "--series", seriesPath, "--units", "min")
	require.NoError(t, err)
	assert.Contains(t, out, "Congression lasted")
	assert.Contains(t, out, " min\n")
	assert.NotContains(t, out, "no frame_interval")
}

func TestTrain_WithoutDB(t *testing.T) {
	dir := t.TempDir()
	trainTracks, labels := writeTrainingSet(t, dir)
	modelPath := filepath.Join(dir, "model.json")

	out, err := execute(t, "train", "--tracks", trainTracks, "--labels", labels, "--out", modelPath, "--model-version", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "(version 3)")

	model, err := readModel(modelPath)
	require.NoError(t, err)
	assert.Equal(t, 3, model.Version())

	_, err = execute(t, "train", "--tracks", trainTracks, "--out", modelPath)
	assert.Error(t, err, "labels are required")
}

func TestRun_ScoreTableWithoutMovieColumn(t *testing.T) {
	dir := t.TempDir()
	trainTracks, labels := writeTrainingSet(t, dir)
	batchTracks, _ := writeBatch(t, dir)
	modelPath := filepath.Join(dir, "model.json")
	_, err := execute(t, "train", "--tracks", trainTracks, "--labels", labels, "--out", modelPath)
	require.NoError(t, err)

	scores := filepath.Join(dir, "scores.csv")
	writeCSV(t, scores, [][]string{
		{"cellId", "NEBD", "CongS", "CongE"},
		{"Cell_1", "before", "15", "60"},
	})
	decisions := filepath.Join(dir, "decisions.csv")
	writeCSV(t, decisions, [][]string{
		{"pairId", "event", "value"},
		{"m1:9+10", "CongS", "16"},
	})

	outDir := filepath.Join(dir, "out")
	out, err := execute(t, "run", "--tracks", batchTracks, "--scores", scores, "--decisions", decisions,
		"--model", modelPath, "--out", outDir)
	require.NoError(t, err)
	assert.NotContains(t, out, "No cell for score")

	cells, err := os.ReadFile(filepath.Join(outDir, report.CellsFile))
	require.NoError(t, err)
	assert.Contains(t, string(cells), "m1,Cell_1,m1:1+2,before,human,15,human,60,human")
}
