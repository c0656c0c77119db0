package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Config represents the main configuration for compsynth.
type Config struct {
	ProjectID string `toml:"project_id" validate:"required"`
	BaseDir   string `toml:"base_dir"`
	LogDir    string `toml:"log_dir" validate:"required"`
	LogLevel  string `toml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// Corpus and outputs.
	TweetFile    string `toml:"tweet_file" validate:"required"`
	UserList     string `toml:"user_list" validate:"required"`
	SynthDataset string `toml:"synth_dataset" validate:"required"` // "{}" is replaced by the percentage

	// PercsCompromised lists the share of a user's records replaced on the
	// injection branch; one dataset is generated per value.
	PercsCompromised []float64 `toml:"percs_compromised" validate:"required,min=1,dive,gt=0,lte=1"`

	// ProbCompromised is the probability that a user is emitted untouched.
	// The key name is historical: the branch it selects injects nothing.
	ProbCompromised float64 `toml:"prob_compromised" validate:"gte=0,lte=1"`

	Seed          *int64 `toml:"seed,omitempty"`           // unset picks a seed per run and records it
	StrictRecords bool   `toml:"strict_records,omitempty"` // fail on short records instead of omitting them
	KeepUnpaired  bool   `toml:"keep_unpaired,omitempty"`  // keep users with no eligible donor instead of failing
	MaxLineSize   int    `toml:"max_line_size,omitempty" validate:"gte=0"`

	Archives   []ArchiveConfig  `toml:"archives" validate:"dive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// EncryptionConfig holds paths to the age key pair used to seal datasets.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type,omitempty" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path" validate:"required_if=Enabled true"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ArchiveConfig represents configuration for an archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type" validate:"required,oneof=memory s3 filesystem"`
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible endpoints such as MinIO
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" validate:"required_with=S3AccessKeyID"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty" validate:"required_if=Type filesystem"`
}

// DatabaseConfig represents configuration for the run ledger.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"required,oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"`
}

// NewConfig creates a Config with starter values rooted at baseDir.
func NewConfig(projectID, baseDir string) *Config {
	dataDir := filepath.Join(baseDir, "data")
	return &Config{
		ProjectID:        projectID,
		BaseDir:          baseDir,
		LogDir:           filepath.Join(baseDir, "log"),
		LogLevel:         "info",
		TweetFile:        filepath.Join(dataDir, "tweets.tsv.gz"),
		UserList:         filepath.Join(dataDir, "user_lst.tsv"),
		SynthDataset:     filepath.Join(dataDir, "synth_{}.tsv.gz"),
		PercsCompromised: []float64{0.5},
		ProbCompromised:  0.5,
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "compsynth.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "compsynth.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
	}
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

// initValidator builds the shared validator with english messages keyed by toml names.
func initValidator() {
	validatorOnce.Do(func() {
		enLoc := en.New()
		trans, _ := ut.New(enLoc, enLoc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		validate, translator = v, trans
	})
}

// Validate reports every invalid field in one error.
func (c *Config) Validate() error {
	initValidator()

	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Translate(translator)))
		}
	}

	if len(c.PercsCompromised) > 1 && !strings.Contains(c.SynthDataset, "{}") {
		msgs = append(msgs, "synth_dataset: must contain {} when more than one percentage is configured")
	}

	if len(msgs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path, creating parent directories.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
