package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"compsynth/internal/archive"
	"compsynth/internal/config"
	"compsynth/internal/testutil"
)

// testConfig returns a config with an in-memory ledger, a filesystem archive
// and a four-user corpus of 47 records.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewConfig("app-test", dir)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.TweetFile = testutil.WriteCorpus(t, dir, "tweets.tsv.gz", testutil.CorpusLines(
		testutil.CorpusUser{Name: "alice", Records: 10},
		testutil.CorpusUser{Name: "bob", Records: 20},
		testutil.CorpusUser{Name: "carol", Records: 5},
		testutil.CorpusUser{Name: "dave", Records: 12},
	))
	cfg.Archives = []config.ArchiveConfig{
		{Type: "filesystem", Name: "local", FSArchiveRoot: filepath.Join(dir, "archive")},
	}
	cfg.Encryption.Type = "test"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *App {
	t.Helper()
	a, err := newAppWith(context.Background(), cfg, operation, testutil.FixedClock(), testutil.RunIDs("id"))
	if err != nil {
		t.Fatalf("newAppWith() error = %v", err)
	}
	return a
}

func TestApp_Generate(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProbCompromised = 0
	seed := int64(7)

	a := newTestApp(t, cfg, "Generate")
	datasets, err := a.Generate(context.Background(), GenerateOverrides{Seed: &seed, KeepUnpaired: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(datasets) != 1 {
		t.Fatalf("len(datasets) = %d, want 1", len(datasets))
	}
	ds := datasets[0]
	if ds.Seed != 7 {
		t.Errorf("Seed = %d, want 7", ds.Seed)
	}
	if ds.Written != 47 {
		t.Errorf("Written = %d, want 47", ds.Written)
	}
	if ds.ArchiveKey != "datasets/synth_0.5.tsv.gz" {
		t.Errorf("ArchiveKey = %q, want %q", ds.ArchiveKey, "datasets/synth_0.5.tsv.gz")
	}
	if !a.op.Persisted() {
		t.Error("operation not persisted")
	}
	if !strings.Contains(a.op.Parameters, "seed=7") || !strings.Contains(a.op.Parameters, "keep_unpaired=true") {
		t.Errorf("Parameters = %q, want seed=7 and keep_unpaired=true", a.op.Parameters)
	}

	lines := testutil.ReadDataset(t, ds.OutputPath)
	if len(lines) != 47 {
		t.Errorf("dataset lines = %d, want 47", len(lines))
	}

	if a.RunUUID() != "id-1" {
		t.Errorf("RunUUID() = %q, want %q", a.RunUUID(), "id-1")
	}
	run, got, err := a.GetRunDatasets(a.RunUUID())
	if err != nil {
		t.Fatalf("GetRunDatasets() error = %v", err)
	}
	if run.Operation != "Generate" {
		t.Errorf("run.Operation = %q, want %q", run.Operation, "Generate")
	}
	if len(got) != 1 {
		t.Errorf("len(run datasets) = %d, want 1", len(got))
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	arch, err := archive.NewFileSystemArchive("local", cfg.Archives[0].FSArchiveRoot)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	version, err := arch.GetMetadataVersion(ledgerMetadata)
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 1 {
		t.Errorf("ledger version = %d, want 1", version)
	}
}

func TestApp_Generate_overrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	seed := int64(3)
	prob := 1.0

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	datasets, err := a.Generate(context.Background(), GenerateOverrides{
		Seed:  &seed,
		Percs: []float64{0.2, 0.4},
		Prob:  &prob,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("len(datasets) = %d, want 2", len(datasets))
	}
	for i, ds := range datasets {
		if ds.Seed != seed+int64(i) {
			t.Errorf("datasets[%d].Seed = %d, want %d", i, ds.Seed, seed+int64(i))
		}
		if ds.ProbCompromised != 1 {
			t.Errorf("datasets[%d].ProbCompromised = %v, want 1", i, ds.ProbCompromised)
		}
		if ds.Injected != 0 {
			t.Errorf("datasets[%d].Injected = %d, want 0", i, ds.Injected)
		}
		if ds.ArchiveKey != "" {
			t.Errorf("datasets[%d].ArchiveKey = %q, want empty", i, ds.ArchiveKey)
		}
	}
	if !strings.HasSuffix(datasets[1].OutputPath, "synth_0.4.tsv.gz") {
		t.Errorf("OutputPath = %q, want suffix synth_0.4.tsv.gz", datasets[1].OutputPath)
	}
}

func TestApp_Generate_failureMarksRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	cfg.ProbCompromised = 0
	cfg.PercsCompromised = []float64{0.9}
	seed := int64(1)

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	if _, err := a.Generate(context.Background(), GenerateOverrides{Seed: &seed}); err == nil {
		t.Fatal("Generate() expected no-suitable-donor error")
	}
	if a.op.Status != "error" {
		t.Errorf("Status = %q, want %q", a.op.Status, "error")
	}
}

func TestApp_Generate_encrypted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	cfg.ProbCompromised = 1
	cfg.Encryption.Enabled = true

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	datasets, err := a.Generate(context.Background(), GenerateOverrides{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	ds := datasets[0]
	if !ds.Encrypted {
		t.Error("Encrypted = false, want true")
	}
	if !strings.HasSuffix(ds.OutputPath, ".tsv.gz.age") {
		t.Errorf("OutputPath = %q, want .age suffix", ds.OutputPath)
	}

	plain := filepath.Join(t.TempDir(), "plain.tsv.gz")
	if err := a.DecryptDataset("passphrase", ds.OutputPath, plain); err != nil {
		t.Fatalf("DecryptDataset() error = %v", err)
	}
	if lines := testutil.ReadDataset(t, plain); len(lines) != 47 {
		t.Errorf("decrypted lines = %d, want 47", len(lines))
	}
}

func TestApp_Generate_seedFromClock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	cfg.ProbCompromised = 1

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	datasets, err := a.Generate(context.Background(), GenerateOverrides{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := testutil.Epoch.UnixNano()
	if datasets[0].Seed != want {
		t.Errorf("Seed = %d, want %d", datasets[0].Seed, want)
	}
}

func TestApp_BuildIndex(t *testing.T) {
	cfg := testConfig(t)

	a := newTestApp(t, cfg, "BuildIndex")
	corpus, err := a.BuildIndex(context.Background())
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if corpus.Users() != 4 {
		t.Errorf("Users() = %d, want 4", corpus.Users())
	}
	if corpus.Records() != 47 {
		t.Errorf("Records() = %d, want 47", corpus.Records())
	}

	runs, err := a.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Operation != "BuildIndex" {
		t.Errorf("GetHistory() = %v, want one BuildIndex run", runs)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewApp_refusesStaleLedger(t *testing.T) {
	cfg := testConfig(t)

	// The memory ledger starts empty every time, so the second app sees the
	// archive one run ahead.
	a := newTestApp(t, cfg, "BuildIndex")
	if _, err := a.BuildIndex(context.Background()); err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := NewApp(context.Background(), cfg, "GetHistory")
	if err == nil {
		t.Fatal("NewApp() expected error for stale ledger")
	}
	if !strings.Contains(err.Error(), "behind") {
		t.Errorf("NewApp() error = %q, want mention of behind", err)
	}
}

func TestApp_Close_readOnlyDoesNotUpload(t *testing.T) {
	cfg := testConfig(t)

	a := newTestApp(t, cfg, "GetHistory")
	if _, err := a.GetHistory(5); err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	arch, err := archive.NewFileSystemArchive("local", cfg.Archives[0].FSArchiveRoot)
	if err != nil {
		t.Fatalf("NewFileSystemArchive() error = %v", err)
	}
	version, err := arch.GetMetadataVersion(ledgerMetadata)
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("ledger version = %d, want 0", version)
	}
}

func TestApp_SetupKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	keyDir := t.TempDir()
	cfg.Encryption = config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(keyDir, "compsynth.pub"),
		PrivateKeyPath: filepath.Join(keyDir, "compsynth.key"),
	}

	a := newTestApp(t, cfg, "SetupKeys")
	defer a.Close()

	if err := a.SetupKeys("correct horse"); err != nil {
		t.Fatalf("SetupKeys() error = %v", err)
	}
	if err := a.SetupKeys("correct horse"); err == nil {
		t.Fatal("second SetupKeys() expected error")
	}
}

func TestApp_Generate_encryptionWithoutKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil
	keyDir := t.TempDir()
	cfg.Encryption = config.EncryptionConfig{
		Enabled:        true,
		Type:           "age",
		PublicKeyPath:  filepath.Join(keyDir, "compsynth.pub"),
		PrivateKeyPath: filepath.Join(keyDir, "compsynth.key"),
	}

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	_, err := a.Generate(context.Background(), GenerateOverrides{})
	if err == nil {
		t.Fatal("Generate() expected error without key pair")
	}
	if a.op.Persisted() {
		t.Error("operation persisted despite failing precondition")
	}
}

func TestApp_Generate_invalidOverrides(t *testing.T) {
	zero := 0.0
	badProb := 1.5

	tests := []struct {
		name string
		o    GenerateOverrides
	}{
		{name: "zero perc", o: GenerateOverrides{Percs: []float64{0}}},
		{name: "perc above one", o: GenerateOverrides{Percs: []float64{0.5, 1.2}}},
		{name: "negative perc", o: GenerateOverrides{Percs: []float64{-0.5}}},
		{name: "prob above one", o: GenerateOverrides{Prob: &badProb}},
		{name: "zero perc with zero prob", o: GenerateOverrides{Percs: []float64{0}, Prob: &zero}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Archives = nil

			a := newTestApp(t, cfg, "Generate")
			defer a.Close()

			_, err := a.Generate(context.Background(), tt.o)
			if err == nil {
				t.Fatal("Generate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), "invalid generate options") {
				t.Errorf("Generate() error = %q, want invalid generate options", err)
			}
			if a.op.Persisted() {
				t.Error("operation persisted despite invalid overrides")
			}
		})
	}
}

func TestApp_FetchDataset(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProbCompromised = 0
	seed := int64(7)

	a := newTestApp(t, cfg, "Generate")
	defer a.Close()

	datasets, err := a.Generate(context.Background(), GenerateOverrides{Seed: &seed, KeepUnpaired: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	dst := filepath.Join(t.TempDir(), "synth_0.5.tsv.gz")
	if err := a.FetchDataset("synth_0.5.tsv.gz", dst); err != nil {
		t.Fatalf("FetchDataset() error = %v", err)
	}
	got, want := testutil.ReadDataset(t, dst), testutil.ReadDataset(t, datasets[0].OutputPath)
	if len(got) != len(want) {
		t.Fatalf("fetched lines = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
			break
		}
	}

	if err := a.FetchDataset("synth_0.9.tsv.gz", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("FetchDataset(unknown) expected error, got nil")
	}
}

func TestApp_FetchDataset_noArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archives = nil

	a := newTestApp(t, cfg, "FetchDataset")
	defer a.Close()

	if err := a.FetchDataset("synth_0.5.tsv.gz", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("FetchDataset() expected error without archive, got nil")
	}
}
