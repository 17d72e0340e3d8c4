// Package config holds the pipeline's configuration: the site
// configuration shared by every stage and the per-lane analysis parameters
// handed from one batch job to the next.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"gopkg.in/yaml.v3"
)

// EnvSitePath names the environment variable consulted when no site
// configuration path is given.
const EnvSitePath = "SEQPIPE_CONFIG"

// Queue names used by the stages.
const (
	DefaultQueue = "normal"
	CasavaQueue  = "high"
)

// QueueLimits describes the nodes behind a queue. MaxMemory is in
// megabytes.
type QueueLimits struct {
	MaxCores  int `yaml:"maxCores"`
	MaxMemory int `yaml:"maxMemory"`
}

// Site is the site configuration, read from config_params.yml.
type Site struct {
	Sequencers struct {
		// RootDir contains one directory per instrument.
		RootDir string `yaml:"rootDir"`
		// DoneList is the per-instrument file listing flowcells already
		// handed to the pipeline.
		DoneList string `yaml:"doneList"`
	} `yaml:"sequencers"`
	Casava struct {
		BclToFastqPath string `yaml:"bclToFastqPath"`
	} `yaml:"casava"`
	BWA struct {
		Path string `yaml:"path"`
	} `yaml:"bwa"`
	Picard struct {
		Path            string `yaml:"path"`
		Stringency      string `yaml:"stringency"`
		TempDir         string `yaml:"tempDir"`
		MaxRecordsInRAM int    `yaml:"maxRecordsInRAM"`
		MaxHeapSize     string `yaml:"maxHeapSize"`
	} `yaml:"picard"`
	Scheduler struct {
		Program   string                 `yaml:"program"`
		Queue     map[string]QueueLimits `yaml:"queue"`
		HighQueue QueueLimits            `yaml:"highQueue"`
	} `yaml:"scheduler"`
	LIMS struct {
		ScriptDir string `yaml:"scriptDir"`
		Perl      string `yaml:"perl"`
	} `yaml:"lims"`
	Email struct {
		From           string `yaml:"from"`
		SMTPHost       string `yaml:"smtpHost"`
		SMTPPort       int    `yaml:"smtpPort"`
		RecipientsFile string `yaml:"recipientsFile"`
	} `yaml:"email"`
	Tools struct {
		// JavaDir holds the in-house analyzer jars.
		JavaDir string `yaml:"javaDir"`
		// Seqpipe is the pipeline binary that batch jobs run.
		Seqpipe string `yaml:"seqpipe"`
		// BarcodeLabels maps barcode tags to index sequences.
		BarcodeLabels string `yaml:"barcodeLabels"`
	} `yaml:"tools"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-"`
}

// ParseSite parses a YAML site configuration, applies defaults and validates
// the result.
func ParseSite(data []byte) (*Site, error) {
	s := &Site{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.E(errors.Invalid, err, "parse site configuration")
	}
	s.setDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSite reads the site configuration at path. An empty path means the
// file named by $SEQPIPE_CONFIG.
func LoadSite(ctx context.Context, path string) (*Site, error) {
	if path == "" {
		path = os.Getenv(EnvSitePath)
	}
	if path == "" {
		return nil, errors.E(errors.Invalid, "no site configuration: pass -config or set", EnvSitePath)
	}
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "read site configuration")
	}
	s, err := ParseSite(data)
	if err != nil {
		return nil, errors.E(err, path)
	}
	if s.Path, err = filepath.Abs(path); err != nil {
		s.Path = path
	}
	return s, nil
}

func (s *Site) setDefaults() {
	if s.Sequencers.DoneList == "" {
		s.Sequencers.DoneList = "done_list.txt"
	}
	if s.Scheduler.Program == "" {
		s.Scheduler.Program = "msub"
	}
	if s.Scheduler.HighQueue.MaxCores == 0 {
		s.Scheduler.HighQueue.MaxCores = 8
	}
	if s.LIMS.Perl == "" {
		s.LIMS.Perl = "perl"
	}
	if s.Picard.Stringency == "" {
		s.Picard.Stringency = "LENIENT"
	}
	if s.Picard.MaxHeapSize == "" {
		s.Picard.MaxHeapSize = "-Xmx22G"
	}
	if s.Picard.MaxRecordsInRAM == 0 {
		s.Picard.MaxRecordsInRAM = 3000000
	}
	if s.Picard.TempDir == "" {
		s.Picard.TempDir = os.TempDir()
	}
	if s.Email.From == "" {
		s.Email.From = "sol-pipe@bcm.edu"
	}
	if s.Email.SMTPHost == "" {
		s.Email.SMTPHost = "smtp.bcm.tmc.edu"
	}
	if s.Email.SMTPPort == 0 {
		s.Email.SMTPPort = 25
	}
	if s.Tools.Seqpipe == "" {
		s.Tools.Seqpipe = "seqpipe"
	}
}

// Validate checks that every required setting is present.
func (s *Site) Validate() error {
	var missing []string
	for _, f := range []struct{ key, val string }{
		{"sequencers.rootDir", s.Sequencers.RootDir},
		{"casava.bclToFastqPath", s.Casava.BclToFastqPath},
		{"bwa.path", s.BWA.Path},
		{"picard.path", s.Picard.Path},
		{"lims.scriptDir", s.LIMS.ScriptDir},
		{"tools.javaDir", s.Tools.JavaDir},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return errors.E(errors.Invalid, "site configuration: missing "+strings.Join(missing, ", "))
	}
	return nil
}

// Jar returns the path of an in-house analyzer jar.
func (s *Site) Jar(name string) string {
	return filepath.Join(s.Tools.JavaDir, name)
}

// PicardJar returns the path of a Picard tool jar.
func (s *Site) PicardJar(name string) string {
	return filepath.Join(s.Picard.Path, name)
}
