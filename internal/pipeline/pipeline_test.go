package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"graph-loader/internal/mapping"
	"graph-loader/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink stores rows per operation and records the order operations
// arrived in.
type memorySink struct {
	mu    sync.Mutex
	rows  map[string][]map[string]any
	order []string
	fail  map[string]error
}

func newMemorySink() *memorySink {
	return &memorySink{rows: make(map[string][]map[string]any), fail: make(map[string]error)}
}

func (m *memorySink) RunTransaction(ctx context.Context, op any, batch []map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := op.(string)
	if err := m.fail[name]; err != nil {
		return err
	}
	m.rows[name] = append(m.rows[name], batch...)
	m.order = append(m.order, name)
	return nil
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func writeTSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func testConfig(t *testing.T, dir string, workers int) *types.Config {
	t.Helper()
	cfg := &types.Config{
		Input: types.Input{Dir: dir, Delimiter: "\t", Encoding: "utf-8"},
		Entities: []types.FileSpec{
			{
				Name: "companies", File: "companies.tsv", Table: "companies",
				Enabled: true, Key: []string{"id"}, BatchSize: 2,
				Fields: []types.FieldSpec{{Source: "id"}, {Source: "name"}},
			},
			{
				Name: "people", File: "people.tsv", Table: "people",
				Enabled: true, Key: []string{"id"}, BatchSize: 2,
				Fields: []types.FieldSpec{{Source: "id"}, {Source: "full_name"}},
			},
		},
		Relationships: []types.FileSpec{
			{
				Name: "employment", File: "works_at.tsv", Table: "employment",
				Enabled: true, Key: []string{"person_id", "company_id"}, BatchSize: 2,
				Fields: []types.FieldSpec{
					{Source: "person", Target: "person_id"},
					{Source: "company", Target: "company_id"},
				},
			},
		},
		Processing: types.Processing{Workers: workers, MaxRetries: 1, BaseBackoffMs: 1},
	}
	return cfg
}

func writeTestData(t *testing.T, dir string) {
	writeTSV(t, dir, "companies.tsv", "id\tname\nc1\tAcme\nc2\tGlobex\nc3\tInitech\n")
	writeTSV(t, dir, "people.tsv", "id\tfull_name\np1\tAda\np2\tGrace\n")
	writeTSV(t, dir, "works_at.tsv", "person\tcompany\np1\tc1\np2\tc2\n")
}

func newTestPipeline(t *testing.T, cfg *types.Config, sink *memorySink) *Pipeline {
	t.Helper()
	registry, err := mapping.FromConfig(cfg)
	require.NoError(t, err)
	return New(cfg, sink, registry, testLogger())
}

func TestRun_LoadsAllFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	sink := newMemorySink()

	p := newTestPipeline(t, testConfig(t, dir, 1), sink)
	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, result.Summary.SuccessfulFiles)
	assert.Equal(t, int64(7), result.Summary.TotalRecords)
	assert.Len(t, sink.rows["companies"], 3)
	assert.Len(t, sink.rows["people"], 2)
	assert.Len(t, sink.rows["employment"], 2)

	row := sink.rows["employment"][0]
	assert.Equal(t, "p1", row["person_id"])
	assert.Equal(t, "c1", row["company_id"])
}

func TestRun_EntitiesBeforeRelationships(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	sink := newMemorySink()

	p := newTestPipeline(t, testConfig(t, dir, 2), sink)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	lastEntity, firstRel := -1, len(sink.order)
	for i, op := range sink.order {
		if op == "employment" && i < firstRel {
			firstRel = i
		}
		if op != "employment" && i > lastEntity {
			lastEntity = i
		}
	}
	assert.Less(t, lastEntity, firstRel, "relationship batch arrived before entities finished: %v", sink.order)
}

func boolPtr(b bool) *bool { return &b }

func TestRun_StrictModeStopsOnFailedFile(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "people.tsv")))
	sink := newMemorySink()

	cfg := testConfig(t, dir, 1)
	cfg.Processing.ContinueOnError = boolPtr(false)
	p := newTestPipeline(t, cfg, sink)

	result, err := p.Run(context.Background())
	assert.Error(t, err)
	assert.GreaterOrEqual(t, result.Failed, 1)
}

func TestRun_MissingFileDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "people.tsv")))
	sink := newMemorySink()

	// default config: the failed file is counted, siblings and the
	// relationships phase still run
	p := newTestPipeline(t, testConfig(t, dir, 2), sink)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, sink.rows["companies"], 3)
	assert.Len(t, sink.rows["employment"], 2)
}

func TestRun_SinkFailureMarksFile(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	sink := newMemorySink()
	sink.fail["people"] = fmt.Errorf("table gone")

	p := newTestPipeline(t, testConfig(t, dir, 1), sink)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, sink.rows["companies"], 3)
}

func TestRun_SkipsRowsWithoutKey(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	writeTSV(t, dir, "companies.tsv", "id\tname\nc1\tAcme\n\tNoID\nc3\tInitech\n")
	sink := newMemorySink()

	p := newTestPipeline(t, testConfig(t, dir, 1), sink)
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, sink.rows["companies"], 2)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	sink := newMemorySink()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, testConfig(t, dir, 1), sink)
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)

	p := newTestPipeline(t, testConfig(t, dir, 1), newMemorySink())
	infos, err := p.Analyze()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, int64(3), infos[0].EstimatedRows)
	assert.Equal(t, []string{"id", "name"}, infos[0].Columns)
}

func TestWriteSamples(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)

	cfg := testConfig(t, dir, 1)
	cfg.Processing.SampleDir = filepath.Join(t.TempDir(), "samples")
	cfg.Processing.SampleRows = 1

	derived, err := WriteSamples(cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.Processing.SampleDir, derived.Input.Dir)
	assert.Equal(t, "sample_companies.tsv", derived.Entities[0].File)

	sink := newMemorySink()
	p := newTestPipeline(t, derived, sink)
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Summary.TotalRecords) // one row per file
	assert.Len(t, sink.rows["companies"], 1)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)

	counts := map[string]int64{"companies": 3, "people": 0, "employment": 2}
	p := newTestPipeline(t, testConfig(t, dir, 1), newMemorySink())

	results, err := p.Validate(func(table string) (int64, error) {
		n, ok := counts[table]
		require.True(t, ok, "unexpected table %s", table)
		return n, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	byTable := make(map[string]ValidationResult, len(results))
	for _, res := range results {
		byTable[res.Table] = res
	}

	assert.True(t, byTable["companies"].OK)
	assert.Equal(t, int64(3), byTable["companies"].Rows)
	assert.Positive(t, byTable["companies"].EstimatedRows)

	// people.tsv has rows but the table came back empty
	assert.False(t, byTable["people"].OK)

	assert.True(t, byTable["employment"].OK)
}

func TestValidate_CountError(t *testing.T) {
	dir := t.TempDir()
	writeTestData(t, dir)
	p := newTestPipeline(t, testConfig(t, dir, 1), newMemorySink())

	_, err := p.Validate(func(table string) (int64, error) {
		return 0, fmt.Errorf("table %s does not exist", table)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "companies")
}

func TestDelimiterRune(t *testing.T) {
	assert.Equal(t, '\t', delimiterRune(""))
	assert.Equal(t, ',', delimiterRune(","))
	assert.Equal(t, '|', delimiterRune("|"))
}
