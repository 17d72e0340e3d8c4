package flowcell

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
)

// Relative locations inside a flowcell directory.
const (
	BaseCallsSubdir = "Data/Intensities/BaseCalls"
	IntensitiesDir  = "Data/Intensities"
	ResultsSubdir   = "Results"
	CasavaFastqDir  = "casava_fastq"
)

// Layout locates flowcells below the sequencers root directory, which has
// one subdirectory per instrument.
type Layout struct {
	Root string
}

// Instruments returns the instrument directories, sorted.
func (l Layout) Instruments() ([]string, error) {
	return subdirs(l.Root)
}

// Flowcells returns the names of the flowcell directories of an instrument
// directory, sorted.
func (l Layout) Flowcells(instrumentDir string) ([]string, error) {
	dirs, err := subdirs(instrumentDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = filepath.Base(d)
	}
	return names, nil
}

func subdirs(dir string) ([]string, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.E(err, "list", dir)
	}
	var dirs []string
	for _, info := range infos {
		if info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			dirs = append(dirs, filepath.Join(dir, info.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Find returns the directory of the named flowcell, searching every
// instrument directory.
func (l Layout) Find(fc string) (string, error) {
	if fc == "" || strings.ContainsRune(fc, '/') {
		return "", errors.E(errors.Invalid, "invalid flowcell name", fc)
	}
	instruments, err := l.Instruments()
	if err != nil {
		return "", err
	}
	for _, dir := range instruments {
		path := filepath.Join(dir, fc)
		if isDir(path) {
			return path, nil
		}
	}
	return "", errors.E(errors.Precondition, "did not find path for flowcell", fc, "under", l.Root)
}

// BaseCallsDir returns the base calls directory of the named flowcell.
func (l Layout) BaseCallsDir(fc string) (string, error) {
	fcDir, err := l.Find(fc)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(fcDir, BaseCallsSubdir)
	if !isDir(dir) {
		return "", errors.E(errors.Precondition, "did not find base calls directory for flowcell", fc)
	}
	return dir, nil
}

// ResultsDirFor maps a base calls directory to the directory CASAVA writes
// the flowcell's FASTQ files to. It need not exist yet.
func ResultsDirFor(baseCallsDir string) string {
	return filepath.Join(strings.TrimSuffix(filepath.Clean(baseCallsDir), BaseCallsSubdir), ResultsSubdir)
}

// AnalysisDir returns the directory of one lane barcode below the results
// directory.
func AnalysisDir(resultsDir, fc, laneBarcode string) string {
	return filepath.Join(resultsDir, "Project_"+fc, "Sample_"+Barcode(fc, laneBarcode))
}

// SequenceFiles returns the sorted read files of an analysis directory:
// *_sequence.txt, or their bzip2 archives when there are no plain files.
func SequenceFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*_sequence.txt"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if files, err = filepath.Glob(filepath.Join(dir, "*_sequence.txt.bz2")); err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
