package flowcell

import (
	"bufio"
	"encoding/xml"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Marker files in a flowcell directory.
const (
	// RsyncFinished is created once the copy from the instrument is
	// complete.
	RsyncFinished = ".rsync_finished"
	// RTAComplete is written by RTA at the end of a run.
	RTAComplete     = "RTAComplete.txt"
	NetcopyComplete = "Basecalling_Netcopy_complete.txt"
	runParameters   = "runParameters.xml"
)

// NetcopySettleTime is how long the netcopy markers of an RTA 1.9 run must
// be left alone before the flowcell is considered copied.
const NetcopySettleTime = time.Hour

var (
	netcopyMarkers = []string{
		NetcopyComplete,
		"Basecalling_Netcopy_complete_READ1.txt",
		"Basecalling_Netcopy_complete_READ2.txt",
	}
	rtaLine    = regexp.MustCompile(`Illumina\s+RTA\s*`)
	rta19      = regexp.MustCompile(`1\.9`)
	disabledFC = regexp.MustCompile(`SN601`)
)

// Ready reports whether the flowcell in fcDir is completely copied and can
// be analyzed. A flowcell whose RTAComplete.txt marker is present gets its
// rsync marker now and is picked up by the next scan.
func Ready(fcDir string, now time.Time) (bool, error) {
	if exists(filepath.Join(fcDir, RsyncFinished)) {
		return true, nil
	}
	name := filepath.Base(fcDir)
	if disabledFC.MatchString(name) {
		log.Printf("flowcell %s is not configured for automatic analysis", name)
		return false, nil
	}
	if exists(filepath.Join(fcDir, RTAComplete)) {
		if err := touch(filepath.Join(fcDir, RsyncFinished), now); err != nil {
			return false, err
		}
		return false, nil
	}
	version, ok := RTAVersion(fcDir)
	if !ok || !rta19.MatchString(version) {
		return false, nil
	}
	for _, m := range netcopyMarkers {
		if !exists(filepath.Join(fcDir, m)) {
			return false, nil
		}
	}
	info, err := os.Stat(filepath.Join(fcDir, NetcopyComplete))
	if err != nil {
		return false, errors.E(err, "stat netcopy marker of", name)
	}
	return now.Sub(info.ModTime()) >= NetcopySettleTime, nil
}

func touch(path string, now time.Time) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.E(err, "touch", path)
	}
	if err := f.Close(); err != nil {
		return errors.E(err, "touch", path)
	}
	return os.Chtimes(path, now, now)
}

// RTAVersion returns the version of the real time analysis software that
// produced the flowcell, from runParameters.xml or, for GAIIx runs, from the
// netcopy marker.
func RTAVersion(fcDir string) (string, bool) {
	if data, err := ioutil.ReadFile(filepath.Join(fcDir, runParameters)); err == nil {
		var params struct {
			Setup struct {
				RTAVersion string
			}
		}
		if err := xml.Unmarshal(data, &params); err != nil || params.Setup.RTAVersion == "" {
			return "", false
		}
		return params.Setup.RTAVersion, true
	}
	f, err := os.Open(filepath.Join(fcDir, NetcopyComplete))
	if err != nil {
		return "", false
	}
	defer f.Close() // nolint: errcheck
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); rtaLine.MatchString(line) {
			return strings.TrimSpace(rtaLine.ReplaceAllString(line, "")), true
		}
	}
	return "", false
}

// CleanAge is how long after the copy finished the intermediate intensity
// files of a flowcell are kept.
const CleanAge = 20 * 24 * time.Hour

// NeedsCleaning reports whether the intensity files of the flowcell in fcDir
// are old enough to be removed and still present.
func NeedsCleaning(fcDir string, now time.Time) bool {
	info, err := os.Stat(filepath.Join(fcDir, RsyncFinished))
	if err != nil || now.Sub(info.ModTime()) <= CleanAge {
		return false
	}
	lanes, _ := filepath.Glob(filepath.Join(fcDir, IntensitiesDir, "L00*"))
	return len(lanes) > 0
}

// CleaningCandidates returns the flowcell directories of every instrument
// that need cleaning.
func (l Layout) CleaningCandidates(now time.Time) ([]string, error) {
	instruments, err := l.Instruments()
	if err != nil {
		return nil, err
	}
	var fcs []string
	for _, inst := range instruments {
		dirs, err := subdirs(inst)
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			if NeedsCleaning(d, now) {
				fcs = append(fcs, d)
			}
		}
	}
	return fcs, nil
}

var cleanPatterns = []string{
	"Data/Intensities/*_pos.txt",
	"Data/Intensities/L00*",
	"Data/Intensities/BaseCalls/*.filter",
	"Data/Intensities/BaseCalls/*_qseq.txt",
	"Data/Intensities/BaseCalls/L00*",
	"Thumbnail_Images",
}

// Clean removes the intensity, filter, qseq and thumbnail files of the
// flowcell in fcDir. It returns the paths removed.
func Clean(fcDir string) ([]string, error) {
	if !isDir(fcDir) {
		return nil, errors.E(errors.Precondition, "no flowcell directory", fcDir)
	}
	var removed []string
	for _, pat := range cleanPatterns {
		matches, err := filepath.Glob(filepath.Join(fcDir, pat))
		if err != nil {
			return removed, err
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				return removed, errors.E(err, "clean", fcDir)
			}
			removed = append(removed, m)
		}
	}
	log.Printf("cleaned %s: removed %d paths", fcDir, len(removed))
	return removed, nil
}
