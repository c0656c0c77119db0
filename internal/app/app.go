package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"compsynth/internal/archive"
	"compsynth/internal/config"
	"compsynth/internal/database"
	"compsynth/internal/encryption"
	"compsynth/internal/model"
	"compsynth/internal/synth"
)

// ledgerMetadata is the archive metadata name the ledger snapshot is stored under.
const ledgerMetadata = "ledger"

// App is the application layer between the CLI and SynthService.
// It constructs all dependencies from config, applies command-line overrides
// and manages the ledger lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	archive   synth.Archive // nil when no archive is configured
	encryptor synth.Encryptor
	service   *synth.SynthService
	clock     synth.Clock
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Generate", "BuildIndex").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	return newAppWith(ctx, cfg, operation, synth.RealClock{}, synth.UUIDGenerator{})
}

// newAppWith is NewApp with the clock and run id source supplied by the caller.
func newAppWith(ctx context.Context, cfg *config.Config, operation string, clock synth.Clock, ids synth.IDGenerator) (*App, error) {
	var arch synth.Archive
	if len(cfg.Archives) > 0 {
		a, err := archive.NewArchiveFromConfig(ctx, cfg.Archives[0])
		if err != nil {
			return nil, fmt.Errorf("creating archive: %w", err)
		}
		if err := a.ValidateSetup(); err != nil {
			return nil, fmt.Errorf("validating archive: %w", err)
		}
		arch = a
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.ProjectID, clock)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger schema out of date: %w", err)
	}

	if arch != nil {
		if err := checkLedgerVersion(db, arch); err != nil {
			db.Close()
			return nil, err
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	runID := ids.New()
	logger, logFile, err := newLogger(cfg.LogDir, runID, parseLevel(cfg.LogLevel))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := synth.NewSynthService(db, arch, enc, logger, clock)

	return &App{
		cfg:       cfg,
		db:        db,
		archive:   arch,
		encryptor: enc,
		service:   svc,
		clock:     clock,
		op:        NewOperation(operation, runID),
		logFile:   logFile,
	}, nil
}

// checkLedgerVersion refuses to continue when the archived ledger holds runs
// the local ledger has never seen.
func checkLedgerVersion(db *database.SQLiteDatabase, arch synth.Archive) error {
	remoteVersion, err := arch.GetMetadataVersion(ledgerMetadata)
	if err != nil {
		return fmt.Errorf("checking remote ledger version: %w", err)
	}

	localMax, err := db.MaxRunID()
	if err != nil {
		return fmt.Errorf("checking local ledger version: %w", err)
	}

	if remoteVersion > localMax {
		return fmt.Errorf("local ledger is behind archive (local=%d, remote=%d): restore it from the archive or re-initialize", localMax, remoteVersion)
	}
	return nil
}

// persistOperation records the operation as a ledger run, giving it an auto-increment ID.
// Only commands that produce files call this.
func (a *App) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	run, err := a.db.CreateRun(a.op.UUID, a.op.Name, parameters)
	if err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// RunUUID returns the identifier of the current operation.
func (a *App) RunUUID() string {
	return a.op.UUID
}

// GenerateOverrides are command-line values that take precedence over config.
type GenerateOverrides struct {
	Seed         *int64
	Percs        []float64
	Prob         *float64
	KeepUnpaired bool
}

// Generate synthesizes one dataset per configured percentage.
func (a *App) Generate(ctx context.Context, o GenerateOverrides) ([]*model.Dataset, error) {
	req := synth.GenerateRequest{
		CorpusPath:      a.cfg.TweetFile,
		UserListPath:    a.cfg.UserList,
		DatasetTemplate: a.cfg.SynthDataset,
		Percs:           a.cfg.PercsCompromised,
		ProbCompromised: a.cfg.ProbCompromised,
		KeepUnpaired:    a.cfg.KeepUnpaired || o.KeepUnpaired,
		Encrypt:         a.cfg.Encryption.Enabled,
		Group: synth.GroupOptions{
			MaxLineSize: a.cfg.MaxLineSize,
			Strict:      a.cfg.StrictRecords,
		},
	}

	switch {
	case o.Seed != nil:
		req.Seed = *o.Seed
	case a.cfg.Seed != nil:
		req.Seed = *a.cfg.Seed
	default:
		req.Seed = synth.SeedFromClock(a.clock)
	}
	if len(o.Percs) > 0 {
		req.Percs = o.Percs
	}
	if o.Prob != nil {
		req.ProbCompromised = *o.Prob
	}

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generate options: %w", err)
	}
	if req.Encrypt && !a.encryptor.IsConfigured() {
		return nil, errors.New("encryption is enabled but no key pair exists: run 'compsynth keys init'")
	}

	if err := a.persistOperation(generateParameters(req)); err != nil {
		return nil, err
	}
	req.RunID = a.op.ID

	datasets, err := a.service.Generate(ctx, req)
	return datasets, a.op.Fail(err)
}

func generateParameters(req synth.GenerateRequest) string {
	percs := make([]string, len(req.Percs))
	for i, p := range req.Percs {
		percs[i] = synth.FormatPerc(p)
	}
	params := []string{
		"seed=" + strconv.FormatInt(req.Seed, 10),
		"percs=" + strings.Join(percs, ","),
		"prob=" + strconv.FormatFloat(req.ProbCompromised, 'g', -1, 64),
	}
	if req.KeepUnpaired {
		params = append(params, "keep_unpaired=true")
	}
	if req.Encrypt {
		params = append(params, "encrypt=true")
	}
	return strings.Join(params, " ")
}

// BuildIndex groups the corpus and writes the user index without synthesizing.
func (a *App) BuildIndex(ctx context.Context) (*synth.Corpus, error) {
	if err := a.persistOperation("corpus=" + a.cfg.TweetFile); err != nil {
		return nil, err
	}
	opts := synth.GroupOptions{MaxLineSize: a.cfg.MaxLineSize, Strict: a.cfg.StrictRecords}
	corpus, err := a.service.BuildIndex(ctx, a.cfg.TweetFile, a.cfg.UserList, opts)
	return corpus, a.op.Fail(err)
}

// GetHistory returns the most recent runs.
func (a *App) GetHistory(limit int) ([]*model.Run, error) {
	return a.service.GetHistory(limit)
}

// GetRunDatasets returns a run and the datasets it produced.
func (a *App) GetRunDatasets(runUUID string) (*model.Run, []*model.Dataset, error) {
	return a.service.GetRunDatasets(runUUID)
}

// SetupKeys generates the key pair used to seal datasets.
// It refuses to overwrite an existing key pair.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return errors.New("key pair already exists")
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// DecryptDataset restores the gzip plaintext of a sealed dataset.
func (a *App) DecryptDataset(passphrase, src, dst string) error {
	return a.service.DecryptDataset(passphrase, src, dst)
}

// FetchDataset downloads an archived dataset (or user list) by name to dst.
func (a *App) FetchDataset(name, dst string) error {
	return a.service.FetchDataset(name, dst)
}

// Close finalizes the operation and closes all resources.
// For persisted operations with an archive: finishes the run record, snapshots the
// ledger and uploads it with version = run ID.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishRun(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing run: %w", err)
		}

		if a.archive != nil {
			if err := a.snapshotLedger(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing ledger: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// snapshotLedger copies the ledger with VACUUM INTO and uploads the copy.
func (a *App) snapshotLedger() error {
	tmpFile, err := os.CreateTemp("", "compsynth-ledger-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for ledger snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("snapshotting ledger: %w", err)
	}
	return a.uploadMetadata(tmpPath, a.op.ID)
}

// uploadMetadata opens the snapshot file and uploads it to the archive as metadata.
func (a *App) uploadMetadata(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening ledger snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger snapshot: %w", err)
	}

	if err := a.archive.PutMetadata(ledgerMetadata, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading ledger to archive: %w", err)
	}
	return nil
}
