// Package config loads and validates a launchpad deployment configuration.
//
// The file is YAML. Load keeps the raw text (it is shipped verbatim inside
// the artifact), checks the required keys against RequiredSchema, rejects API
// names that cannot be used as a URL path segment, then decodes the typed
// Deployment and validates field values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// DefaultTrainModule is the Python module run with "-c <config> -t" to train
// the model when deploy.train_module is not set.
const DefaultTrainModule = "mllaunchpad"

// Deployment is the typed view of the keys launchpad reads. Scalars are
// decoded from their literal text, so "python: 3.10" stays "3.10".
type Deployment struct {
	ModelStore ModelStore `yaml:"model_store"`
	Model      Model      `yaml:"model"`
	Deploy     Deploy     `yaml:"deploy"`
	API        API        `yaml:"api"`
}

type ModelStore struct {
	Location string `yaml:"location" validate:"required"`
}

type Model struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
}

type Deploy struct {
	// Include holds glob patterns relative to the config directory; "**"
	// matches any number of directories.
	Include []string `yaml:"include" validate:"required,min=1,dive,required"`
	// Exclude drops every included path that contains one of these
	// substrings.
	Exclude []string `yaml:"exclude"`
	// DeploymentRequires lists extra paths the target needs; written to
	// LAUNCHPAD_REQ_FILES.txt.
	DeploymentRequires []string     `yaml:"deployment_requires"`
	Requirements       Requirements `yaml:"requirements"`
	TrainModule        string       `yaml:"train_module"`
}

// Requirements describes the manifest and the target platform.
type Requirements struct {
	File              string   `yaml:"file" validate:"required"`
	Python            string   `yaml:"python" validate:"required,majorminor"`
	Platforms         []string `yaml:"platforms" validate:"required,min=1,dive,required"`
	SaveTo            string   `yaml:"save_to" validate:"required"`
	VulnerabilityDB   string   `yaml:"vulnerability_db"`
	IndexURL          string   `yaml:"pip_index_url" validate:"omitempty,url"`
	TrustedHosts      []string `yaml:"pip_trusted_hosts" validate:"dive,required"`
	Implementation    string   `yaml:"implementation"`
	ConstrainDownload bool     `yaml:"constrain_download"`
	StrictBinaries    bool     `yaml:"strict_binaries"`
}

type API struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
}

// File is a loaded configuration together with where it came from.
type File struct {
	// Path is absolute.
	Path string
	// Text is the file content exactly as read.
	Text string
	Deployment
}

// Load reads, validates and decodes the configuration at path.
func Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &File{Path: abs, Text: string(data), Deployment: *d}, nil
}

// Parse validates and decodes configuration text.
func Parse(data []byte) (*Deployment, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc.Kind == 0 {
		return nil, &ConfigError{Reason: "empty configuration"}
	}
	if err := Validate(&doc, RequiredSchema); err != nil {
		return nil, err
	}
	if err := checkAPIName(&doc); err != nil {
		return nil, err
	}
	var d Deployment
	if err := unwrapDocument(&doc).Decode(&d); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := validate.Struct(&d); err != nil {
		return nil, fieldError(err)
	}
	return &d, nil
}

// checkAPIName rejects API names containing "_"; the name becomes a URL
// path segment.
func checkAPIName(doc *yaml.Node) error {
	n, ok := lookupPath(doc, "api", "name")
	if !ok {
		return nil
	}
	if strings.Contains(n.Value, "_") {
		return &ConfigError{
			Path:   "api:name",
			Reason: fmt.Sprintf("%q must not contain underscores", n.Value),
		}
	}
	return nil
}

// Dir is the directory every relative path in the config resolves against.
func (f *File) Dir() string {
	return filepath.Dir(f.Path)
}

// Resolve makes p absolute relative to Dir.
func (f *File) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.Dir(), filepath.FromSlash(p))
}

// PythonMajorMinor splits deploy.requirements.python ("3.9") into "3", "9".
func (d *Deployment) PythonMajorMinor() (major, minor string) {
	major, minor, _ = strings.Cut(d.Deploy.Requirements.Python, ".")
	return major, minor
}

// APIMajorVersion is the first segment of api.version.
func (d *Deployment) APIMajorVersion() string {
	v := "v" + d.API.Version
	if semver.IsValid(v) {
		return strings.TrimPrefix(semver.Major(v), "v")
	}
	major, _, _ := strings.Cut(d.API.Version, ".")
	return major
}

// BaseURL is "<api-name>/v<major>/".
func (d *Deployment) BaseURL() string {
	return fmt.Sprintf("%s/v%s/", d.API.Name, d.APIMajorVersion())
}

// ArtifactName is "<api-name>_<api-version>.zip".
func (d *Deployment) ArtifactName() string {
	return fmt.Sprintf("%s_%s.zip", d.API.Name, d.API.Version)
}

// ModelID is "<model-name>_<model-version>", the key of a serialized model
// in the store.
func (d *Deployment) ModelID() string {
	return fmt.Sprintf("%s_%s", d.Model.Name, d.Model.Version)
}

// TrainModule returns deploy.train_module or DefaultTrainModule.
func (d *Deployment) TrainModule() string {
	if d.Deploy.TrainModule != "" {
		return d.Deploy.TrainModule
	}
	return DefaultTrainModule
}

// ---------------------------------------------------------------------------
// Field validation
// ---------------------------------------------------------------------------

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("majorminor", func(fl validator.FieldLevel) bool {
		return isMajorMinor(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// isMajorMinor accepts exactly "<major>.<minor>", e.g. "3.9" or "3.10".
func isMajorMinor(s string) bool {
	return strings.Count(s, ".") == 1 && semver.IsValid("v"+s)
}

// fieldError converts the first validator failure into a ConfigError.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Reason: err.Error()}
	}
	fe := verrs[0]
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	path = strings.ReplaceAll(path, ".", ":")

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "must not be empty"
	case "min":
		reason = fmt.Sprintf("needs at least %s entries", fe.Param())
	case "majorminor":
		reason = fmt.Sprintf("must be <major>.<minor>, got %q", fe.Value())
	case "url":
		reason = fmt.Sprintf("%q is not a valid URL", fe.Value())
	default:
		reason = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return &ConfigError{Path: path, Reason: reason}
}
