// Package config turns flags, the config file, the environment and an
// optional .env file into validated options and wires the feed clients,
// the composite engine and the assessor from them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"trivy-plugin-exposure-risk/internal/assess"
	"trivy-plugin-exposure-risk/internal/composite"
	"trivy-plugin-exposure-risk/internal/cvss"
	"trivy-plugin-exposure-risk/internal/epss"
	"trivy-plugin-exposure-risk/internal/feed"
	"trivy-plugin-exposure-risk/internal/kev"
	"trivy-plugin-exposure-risk/internal/lev"
	"trivy-plugin-exposure-risk/internal/nvd"
	"trivy-plugin-exposure-risk/internal/risk"
	"trivy-plugin-exposure-risk/internal/score"
)

const (
	DefaultTimeout = 15 * time.Second
	// APIKeyEnv is read when no NVD API key was configured otherwise.
	APIKeyEnv = "NVD_API_KEY"
)

var validate = validator.New()

// Options of a run. The mapstructure keys are the flag names.
type Options struct {
	Date    string        `mapstructure:"date" validate:"omitempty,datetime=2006-01-02"`
	Lambda  float64       `mapstructure:"lambda" validate:"gte=0,lte=1"`
	WC      float64       `mapstructure:"wc" validate:"gte=0"`
	WI      float64       `mapstructure:"wi" validate:"gte=0"`
	WA      float64       `mapstructure:"wa" validate:"gte=0"`
	MC      string        `mapstructure:"mc" validate:"omitempty,oneof=X N L H"`
	MI      string        `mapstructure:"mi" validate:"omitempty,oneof=X N L H"`
	MA      string        `mapstructure:"ma" validate:"omitempty,oneof=X N L H"`
	Smart   bool          `mapstructure:"smart"`
	Window  int           `mapstructure:"window" validate:"gt=0"`
	Step    int           `mapstructure:"step" validate:"gt=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Output  string        `mapstructure:"output" validate:"oneof=table json yaml"`

	AVC     int     `mapstructure:"av-c" validate:"min=1,max=3"`
	AVI     int     `mapstructure:"av-i" validate:"min=1,max=3"`
	AVA     int     `mapstructure:"av-a" validate:"min=1,max=3"`
	ARO     float64 `mapstructure:"aro" validate:"gte=0"`
	Workers int     `mapstructure:"workers" validate:"gte=1"`

	NVDAPIKey string `mapstructure:"nvd-api-key"`
	NVDURL    string `mapstructure:"nvd-url" validate:"omitempty,url"`
	EPSSURL   string `mapstructure:"epss-url" validate:"omitempty,url"`
	KEVURL    string `mapstructure:"kev-url" validate:"omitempty,url"`
}

// Defaults returns the options used when nothing is configured.
func Defaults() Options {
	return Options{
		Lambda:  risk.DefaultLambda,
		WC:      1,
		WI:      1,
		WA:      1,
		Window:  lev.DefaultWindow,
		Step:    assess.DefaultTimelineStep,
		Timeout: DefaultTimeout,
		Output:  "table",
		AVC:     int(risk.Moderate),
		AVI:     int(risk.Moderate),
		AVA:     int(risk.Moderate),
		ARO:     1,
		Workers: assess.DefaultWorkers,
	}
}

// SetDefaults registers Defaults on v so options without a flag still decode to them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("lambda", d.Lambda)
	v.SetDefault("wc", d.WC)
	v.SetDefault("wi", d.WI)
	v.SetDefault("wa", d.WA)
	v.SetDefault("window", d.Window)
	v.SetDefault("step", d.Step)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("output", d.Output)
	v.SetDefault("av-c", d.AVC)
	v.SetDefault("av-i", d.AVI)
	v.SetDefault("av-a", d.AVA)
	v.SetDefault("aro", d.ARO)
	v.SetDefault("workers", d.Workers)
}

// LoadDotEnv loads environment variables from the given files, .env by
// default. Missing files are ignored.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load decodes and validates the options held by v.
func Load(v *viper.Viper) (Options, error) {
	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("%w: %v", score.ErrInvalidParameter, err)
	}
	o.MC, o.MI, o.MA = strings.ToUpper(o.MC), strings.ToUpper(o.MI), strings.ToUpper(o.MA)
	o.Output = strings.ToLower(o.Output)
	if o.NVDAPIKey == "" {
		o.NVDAPIKey = os.Getenv(APIKeyEnv)
	}
	if err := validate.Struct(o); err != nil {
		return Options{}, fmt.Errorf("%w: %v", score.ErrInvalidParameter, err)
	}
	return o, nil
}

// EvaluationDate returns the configured date, or nil for today.
func (o Options) EvaluationDate() (*time.Time, error) {
	if o.Date == "" {
		return nil, nil
	}
	d, err := feed.ParseDate(o.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q: %v", score.ErrInvalidParameter, o.Date, err)
	}
	return &d, nil
}

func (o Options) Parameters() assess.Parameters {
	return assess.Parameters{
		Weights: cvss.Weights{C: o.WC, I: o.WI, A: o.WA},
		Impact:  cvss.ImpactOptions{MC: o.MC, MI: o.MI, MA: o.MA, Smart: o.Smart},
		Lambda:  o.Lambda,
	}
}

func (o Options) Asset() assess.Asset {
	return assess.Asset{
		C:              risk.Rating(o.AVC),
		I:              risk.Rating(o.AVI),
		A:              risk.Rating(o.AVA),
		OccurrenceRate: o.ARO,
	}
}

// Runtime holds the components of a run.
type Runtime struct {
	Options  Options
	KEV      *kev.Client
	Engine   *composite.Engine
	Assessor *assess.Assessor
}

// Build creates the three feed clients with the same timeout and wires
// them into an engine and an assessor. A nil clock uses time.Now.
func Build(o Options, clock composite.Clock) (*Runtime, error) {
	nvdClient := nvd.NewClient(nvd.Credentials{APIKey: o.NVDAPIKey}, o.Timeout)
	if o.NVDURL != "" {
		nvdClient.BaseURL = o.NVDURL
	}
	epssClient := epss.NewClient(o.Timeout)
	if o.EPSSURL != "" {
		epssClient.BaseURL = o.EPSSURL
	}
	kevClient := kev.NewClient(o.Timeout)
	if o.KEVURL != "" {
		kevClient.URL = o.KEVURL
	}
	if o.NVDAPIKey == "" {
		slog.Debug("no NVD API key configured, requests are throttled to one every 6 seconds")
	}

	opts := []composite.Option{composite.WithWindow(o.Window)}
	if clock != nil {
		opts = append(opts, composite.WithClock(clock))
	}
	engine, err := composite.NewEngine(nvdClient, epssClient, kevClient, opts...)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Options:  o,
		KEV:      kevClient,
		Engine:   engine,
		Assessor: assess.New(nvdClient, engine, o.Parameters(), assess.WithKEVDates(kevClient)),
	}, nil
}
