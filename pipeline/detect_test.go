package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/seqpipe/flowcell"
	"github.com/grailbio/seqpipe/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fcReady   = "110930_SN142_0212_BC0AK6ABXX"
	fcCopying = "111002_SN142_0213_AD0B8KACXX"
	fcDone    = "110901_SN142_0207_AC0A1BBXX"
	fcRTA     = "111001_SN142_0214_BD0BN2ACXX"
)

// instrument lays out one instrument holding a flowcell in each state the
// detector distinguishes.
func instrument(t *testing.T, f *fixture) string {
	inst := filepath.Join(f.root, "SN142")
	touchFiles(t, inst,
		filepath.Join(fcReady, flowcell.RsyncFinished),
		filepath.Join(fcDone, flowcell.RsyncFinished),
		filepath.Join(fcRTA, flowcell.RTAComplete),
		filepath.Join(fcCopying, "RunInfo.xml"))
	done, err := flowcell.OpenDoneList(filepath.Join(inst, "done_list.txt"))
	require.NoError(t, err)
	require.NoError(t, done.Add(fcDone))
	return inst
}

func detector(f *fixture, started *[]string, err error) *Detector {
	return &Detector{
		Env:  f.env,
		Lock: lock.New(filepath.Join(f.root, ".detect.lock")),
		Process: func(ctx context.Context, fc string) error {
			*started = append(*started, fc)
			return err
		},
	}
}

func TestDetector(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	inst := instrument(t, f)
	var processed []string
	d := detector(f, &processed, nil)

	started, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fcReady}, started)
	assert.Equal(t, started, processed)
	// RTAComplete gets the rsync marker now and is picked up next time.
	assert.True(t, exists(filepath.Join(inst, fcRTA, flowcell.RsyncFinished)))
	assert.False(t, exists(d.Lock.Path()))

	started, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fcRTA}, started)

	started, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, started)
	assert.Equal(t, []string{fcReady, fcRTA}, processed)

	done, err := flowcell.OpenDoneList(filepath.Join(inst, "done_list.txt"))
	require.NoError(t, err)
	assert.Equal(t, 3, done.Len())
	assert.False(t, done.Contains(fcCopying))
}

func TestDetectorLockHeld(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	instrument(t, f)
	var processed []string
	d := detector(f, &processed, nil)
	other := lock.New(d.Lock.Path())
	ok, err := other.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	started, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, started)
	assert.Empty(t, processed)
	// The holder's lock is left alone.
	assert.True(t, exists(d.Lock.Path()))
	require.NoError(t, other.Release())

	started, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fcReady}, started)
}

func TestDetectorReleasesLockOnError(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	inst := instrument(t, f)
	// An unreadable done list stops the scan.
	list := filepath.Join(inst, "done_list.txt")
	require.NoError(t, os.Remove(list))
	require.NoError(t, os.Mkdir(list, 0755))
	var processed []string
	d := detector(f, &processed, nil)

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, processed)
	assert.False(t, exists(d.Lock.Path()))

	// The next scan can take the lock.
	ok, err := d.Lock.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, d.Lock.Release())
}

func TestDetectorReportsFailures(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	inst := instrument(t, f)
	var processed []string
	d := detector(f, &processed, errors.New("LIMS is down"))

	started, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fcReady}, started)
	assert.Contains(t, f.stderr.String(), "Error in pre-processing flowcell "+fcReady)
	require.Len(t, f.mailer.Sent, 1)
	assert.Contains(t, f.mailer.Sent[0].Body, "LIMS is down")
	assert.Contains(t, f.mailer.Sent[0].Body, "Working Directory : "+inst)

	// A failed flowcell stays on the done list.
	started, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fcRTA}, started)
}

func TestClean(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()
	inst := filepath.Join(f.root, "SN142")
	touchFiles(t, filepath.Join(inst, testFC),
		flowcell.RsyncFinished,
		"Data/Intensities/L001/C1.1/s_1_1101.cif",
		"Data/Intensities/s_1_0001_pos.txt",
		"Data/Intensities/BaseCalls/s_1_1101.filter",
		"Data/Intensities/BaseCalls/L001/s_1_1101.bcl",
		"Thumbnail_Images/L001/C1.1/s_1_1101_a.jpg",
		"Data/Intensities/BaseCalls/"+flowcell.SampleSheetFile)
	touchFiles(t, filepath.Join(inst, fcCopying), "Data/Intensities/L001/C1.1/s_1_1101.cif")
	old := testNow.Add(-flowcell.CleanAge - time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(inst, testFC, flowcell.RsyncFinished), old, old))

	fcs, err := CleaningCandidates(f.env)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(inst, testFC)}, fcs)

	removed, err := Clean(f.env, testFC)
	require.NoError(t, err)
	assert.Len(t, removed, 5)
	assert.True(t, exists(filepath.Join(inst, testFC, "Data/Intensities/BaseCalls", flowcell.SampleSheetFile)))
	fcs, err = CleaningCandidates(f.env)
	require.NoError(t, err)
	assert.Empty(t, fcs)

	_, err = Clean(f.env, "111231_SN142_0299_AXXXXXXXXX")
	assert.Error(t, err)
}

func TestErrorClasses(t *testing.T) {
	assert.False(t, IsConfiguration(nil))
	assert.False(t, IsDependencyNotMet(nil))
	assert.False(t, IsSubmission(nil))
	assert.False(t, IsExternalTool(errors.New("plain")))
}
