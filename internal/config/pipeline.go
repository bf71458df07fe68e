package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default location of the pipeline configuration file.
const DefaultConfigPath = ".rcm.yaml"

// ConfigPathEnvVar is the environment variable naming a custom config path.
const ConfigPathEnvVar = "RCM_CONFIG_PATH"

// Dimension key orders accepted by dimension_key_order.
const (
	KeyOrderFirstSeen = "first_seen"
	KeyOrderSorted    = "sorted"
)

var (
	// ErrInvalidPipelineConfig is returned when the pipeline file fails to parse or validate.
	ErrInvalidPipelineConfig = errors.New("invalid pipeline configuration")

	validate = validator.New()
)

type (
	// PipelineConfig is the YAML-backed configuration of one warehouse build.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	PipelineConfig struct {
		PatientDimension PatientDimensionConfig `yaml:"patient_dimension"`
		// DateColumns names the transaction columns feeding the date dimension.
		DateColumns       []string `yaml:"date_columns" validate:"required,min=1,dive,oneof=VisitDate ServiceDate PaidDate"`
		DimensionKeyOrder string   `yaml:"dimension_key_order" validate:"oneof=first_seen sorted"`
		// StrictIntegrity fails the batch before persistence when any fact reference is unresolved.
		StrictIntegrity bool `yaml:"strict_integrity"`
		// ColumnAliases maps a source name to {source column: canonical column}.
		ColumnAliases map[string]map[string]string `yaml:"column_aliases"`
		Source        SourceConfig                 `yaml:"source"`
		Sink          SinkConfig                   `yaml:"sink"`
		Metrics       MetricsConfig                `yaml:"metrics"`
		Notify        NotifyConfig                 `yaml:"notify"`
	}

	// PatientDimensionConfig describes the historized patient dimension.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	PatientDimensionConfig struct {
		KeyField          string   `yaml:"key_field" validate:"required"`
		TrackedAttributes []string `yaml:"tracked_attributes" validate:"required,min=1,unique,dive,oneof=FirstName LastName MiddleName SSN PhoneNumber Gender DOB Address"`
		DateAttributes    []string `yaml:"date_attributes" validate:"dive,required"`
	}

	// SourceConfig locates the cleansed staging inputs and the existing snapshot.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	SourceConfig struct {
		InputDir string `yaml:"input_dir" validate:"required"`
		Snapshot string `yaml:"snapshot" validate:"oneof=parquet postgres"`
	}

	// SinkConfig selects where the rebuilt warehouse tables are written.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	SinkConfig struct {
		Kinds              []string `yaml:"kinds" validate:"required,min=1,dive,oneof=parquet postgres gcs"`
		OutputDir          string   `yaml:"output_dir" validate:"required"`
		GCSBucket          string   `yaml:"gcs_bucket" validate:"required_if_gcs"`
		GCSPrefix          string   `yaml:"gcs_prefix"`
		GCSCredentialsFile string   `yaml:"gcs_credentials_file"`
	}

	// MetricsConfig controls the Prometheus textfile written after each run.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	MetricsConfig struct {
		TextfilePath string `yaml:"textfile_path"`
	}

	// NotifyConfig controls publication of the run report.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	NotifyConfig struct {
		KafkaBrokers []string `yaml:"kafka_brokers" validate:"dive,hostname_port"`
		KafkaTopic   string   `yaml:"kafka_topic" validate:"required_with=KafkaBrokers"`
	}
)

func init() {
	// gcs_bucket is only required when the gcs sink is selected.
	_ = validate.RegisterValidation("required_if_gcs", func(fl validator.FieldLevel) bool {
		sink, ok := fl.Parent().Interface().(SinkConfig)
		if !ok || !sink.HasKind("gcs") {
			return true
		}

		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// DefaultPipelineConfig returns the configuration used when no file is present.
// It mirrors the patient dimension of the hospital RCM warehouse.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		PatientDimension: PatientDimensionConfig{
			KeyField: "unified_patient_id",
			TrackedAttributes: []string{
				"Address", "PhoneNumber", "FirstName", "LastName", "MiddleName", "SSN", "Gender", "DOB",
			},
			DateAttributes: []string{"DOB"},
		},
		DateColumns:       []string{"VisitDate", "ServiceDate", "PaidDate"},
		DimensionKeyOrder: KeyOrderFirstSeen,
		ColumnAliases: map[string]map[string]string{
			"hospital_b": {
				"ID":     "PatientID",
				"F_Name": "FirstName",
				"L_Name": "LastName",
				"M_Name": "MiddleName",
			},
		},
		Source: SourceConfig{
			InputDir: "staging",
			Snapshot: "parquet",
		},
		Sink: SinkConfig{
			Kinds:     []string{"parquet"},
			OutputDir: "warehouse",
		},
	}
}

// LoadPipelineConfig loads the pipeline configuration from a YAML file at path.
//
// Behavior:
//   - Missing file: defaults are used (a first run needs no configuration)
//   - Unreadable or invalid YAML: ErrInvalidPipelineConfig, the batch must not start
//   - Environment overrides (RCM_STRICT_INTEGRITY, RCM_SINKS, RCM_OUTPUT_DIR, RCM_INPUT_DIR,
//     RCM_KAFKA_BROKERS) are applied after the file, then the result is validated
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("Pipeline config not found, using defaults", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidPipelineConfig, path, err)
	case len(data) > 0:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidPipelineConfig, path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadPipelineConfigFromEnv loads the file named by RCM_CONFIG_PATH, falling back to .rcm.yaml.
func LoadPipelineConfigFromEnv() (*PipelineConfig, error) {
	return LoadPipelineConfig(GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}

func (c *PipelineConfig) applyEnv() {
	c.StrictIntegrity = GetEnvBool("RCM_STRICT_INTEGRITY", c.StrictIntegrity)
	c.Sink.Kinds = GetEnvList("RCM_SINKS", c.Sink.Kinds)
	c.Sink.OutputDir = GetEnvStr("RCM_OUTPUT_DIR", c.Sink.OutputDir)
	c.Source.InputDir = GetEnvStr("RCM_INPUT_DIR", c.Source.InputDir)
	c.Notify.KafkaBrokers = GetEnvList("RCM_KAFKA_BROKERS", c.Notify.KafkaBrokers)
	c.Metrics.TextfilePath = GetEnvStr("RCM_METRICS_TEXTFILE", c.Metrics.TextfilePath)
}

// Validate checks struct constraints and the cross-field rules of the patient dimension.
func (c *PipelineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPipelineConfig, formatValidationError(err))
	}

	tracked := make(map[string]bool, len(c.PatientDimension.TrackedAttributes))
	for _, attr := range c.PatientDimension.TrackedAttributes {
		tracked[attr] = true
	}

	for _, attr := range c.PatientDimension.DateAttributes {
		if !tracked[attr] {
			return fmt.Errorf("%w: date attribute %q is not a tracked attribute", ErrInvalidPipelineConfig, attr)
		}
	}

	return nil
}

// HasKind reports whether the named sink is selected.
func (s SinkConfig) HasKind(kind string) bool {
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}

	return false
}

// formatValidationError turns validator field errors into one readable message.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))

	for _, e := range validationErrors {
		field := e.Namespace()

		switch e.Tag() {
		case "required", "required_if_gcs", "required_with":
			messages = append(messages, field+" is required")
		case "min":
			messages = append(messages, fmt.Sprintf("%s must have at least %s entries", field, e.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "unique":
			messages = append(messages, field+" must not repeat entries")
		case "hostname_port":
			messages = append(messages, field+" must be host:port")
		default:
			messages = append(messages, field+" is invalid")
		}
	}

	return errors.New(strings.Join(messages, "; "))
}
