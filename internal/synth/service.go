package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"compsynth/internal/model"
)

// SynthService is the orchestration layer that turns a corpus into datasets
// and keeps the ledger, archive and encryption in step with each output.
type SynthService struct {
	ledger    Ledger
	archive   Archive   // nil when publishing is disabled
	encryptor Encryptor // nil when no key pair is configured
	logger    Logger
	clock     Clock
}

// NewSynthService creates a new SynthService. archive and encryptor may be nil.
func NewSynthService(ledger Ledger, archive Archive, encryptor Encryptor, logger Logger, clock Clock) *SynthService {
	return &SynthService{
		ledger:    ledger,
		archive:   archive,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
	}
}

// GenerateRequest describes one generate run: a dataset per percentage.
type GenerateRequest struct {
	RunID           int64
	CorpusPath      string
	UserListPath    string
	DatasetTemplate string // PercPlaceholder is replaced by each percentage
	Percs           []float64
	ProbCompromised float64
	Seed            int64
	KeepUnpaired    bool
	Encrypt         bool // seal outputs with the service's encryptor
	Group           GroupOptions
}

// Validate checks the request before any file is touched.
func (r GenerateRequest) Validate() error {
	if r.CorpusPath == "" {
		return errors.New("corpus path is required")
	}
	if r.UserListPath == "" {
		return errors.New("user list path is required")
	}
	if r.DatasetTemplate == "" {
		return errors.New("dataset path template is required")
	}
	if len(r.Percs) == 0 {
		return errors.New("at least one compromise percentage is required")
	}
	if len(r.Percs) > 1 && !HasPercPlaceholder(r.DatasetTemplate) {
		return fmt.Errorf("dataset template %q has no %s placeholder but %d percentages are configured", r.DatasetTemplate, PercPlaceholder, len(r.Percs))
	}
	for _, perc := range r.Percs {
		if perc <= 0 || perc > 1 {
			return fmt.Errorf("perc_compromised must be within (0, 1], got %v", perc)
		}
		opts := SynthOptions{PercCompromised: perc, ProbIntact: r.ProbCompromised}
		if err := opts.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Generate runs one full group-and-synthesize pass per percentage and returns
// the recorded datasets in order. The first failure aborts the run.
func (s *SynthService) Generate(ctx context.Context, req GenerateRequest) ([]*model.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Encrypt && s.encryptor == nil {
		return nil, errors.New("encryption requested but no encryptor is configured")
	}

	datasets := make([]*model.Dataset, 0, len(req.Percs))
	for n, perc := range req.Percs {
		ds, err := s.generateOne(ctx, req, n, perc)
		if err != nil {
			return datasets, fmt.Errorf("generating dataset for perc %s: %w", FormatPerc(perc), err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (s *SynthService) generateOne(ctx context.Context, req GenerateRequest, n int, perc float64) (*model.Dataset, error) {
	seed := DeriveSeed(req.Seed, n)
	s.logger.Info("loading corpus", "corpus", req.CorpusPath, "perc", perc, "seed", seed)

	corpus, err := s.BuildIndex(ctx, req.CorpusPath, req.UserListPath, req.Group)
	if err != nil {
		return nil, err
	}

	outPath := DatasetPath(req.DatasetTemplate, perc)
	if req.Encrypt {
		outPath += ".age"
	}

	s.logger.Info("generating compromised accounts", "users", corpus.Users(), "output", outPath)
	opts := SynthOptions{PercCompromised: perc, ProbIntact: req.ProbCompromised, KeepUnpaired: req.KeepUnpaired}
	stats, err := s.writeDataset(ctx, corpus, opts, NewRand(seed), outPath, req.Encrypt)
	if err != nil {
		return nil, err
	}

	ds := &model.Dataset{
		RunID:           req.RunID,
		PercCompromised: perc,
		ProbCompromised: req.ProbCompromised,
		Seed:            seed,
		CorpusPath:      req.CorpusPath,
		UserListPath:    req.UserListPath,
		OutputPath:      outPath,
		Users:           int64(stats.Users),
		Written:         stats.Written,
		Injected:        stats.Injected,
		Omitted:         stats.Omitted,
		Encrypted:       req.Encrypt,
		CreatedAt:       s.clock.Now(),
	}

	if s.archive != nil {
		key, err := s.publish(outPath)
		if err != nil {
			return nil, err
		}
		if _, err := s.publish(req.UserListPath); err != nil {
			return nil, err
		}
		ds.ArchiveKey = key
	}

	if err := s.ledger.CreateDataset(ds); err != nil {
		return nil, fmt.Errorf("recording dataset: %w", err)
	}

	s.logger.Info("dataset written", "output", outPath, "written", stats.Written, "injected", stats.Injected, "omitted", stats.Omitted)
	return ds, nil
}

// BuildIndex groups the corpus at corpusPath and writes the user index to
// userListPath. The returned corpus is fully resident in memory.
func (s *SynthService) BuildIndex(ctx context.Context, corpusPath, userListPath string, opts GroupOptions) (*Corpus, error) {
	in, err := OpenCorpus(corpusPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(userListPath), 0755); err != nil {
		return nil, fmt.Errorf("creating user list directory: %w", err)
	}
	f, err := os.Create(userListPath)
	if err != nil {
		return nil, fmt.Errorf("creating user list: %w", err)
	}

	corpus, err := Group(ctx, in, f, opts, s.logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("grouping corpus: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing user list: %w", err)
	}
	return corpus, nil
}

// writeDataset synthesizes into a temp file next to path and renames it into
// place once every layer (gzip, optional encryption) is finalized.
func (s *SynthService) writeDataset(ctx context.Context, corpus *Corpus, opts SynthOptions, rng *rand.Rand, path string, seal bool) (*SynthStats, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var sink io.Writer = tmp
	var sealer io.WriteCloser
	if seal {
		sealer, err = s.encryptor.Seal(tmp)
		if err != nil {
			return nil, fmt.Errorf("opening encrypted writer: %w", err)
		}
		sink = sealer
	}

	gz := gzip.NewWriter(sink)
	tw := NewTSVWriter(gz)

	stats, err := Synthesize(ctx, corpus.Groups, opts, rng, tw, s.logger)
	if err != nil {
		return nil, err
	}

	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing dataset: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalizing gzip stream: %w", err)
	}
	if sealer != nil {
		if err := sealer.Close(); err != nil {
			return nil, fmt.Errorf("finalizing encryption: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return stats, nil
}

// publish uploads a local file to the archive under its base name.
func (s *SynthService) publish(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for archive: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	name := filepath.Base(path)
	if err := s.archive.PutDataset(name, f, info.Size()); err != nil {
		return "", fmt.Errorf("archiving %s: %w", name, err)
	}

	s.logger.Info("file archived", "key", DatasetKey(name), "size", info.Size())
	return DatasetKey(name), nil
}
