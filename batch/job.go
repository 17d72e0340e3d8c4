package batch

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
)

const (
	// DefaultQueue is the queue used when none is set.
	DefaultQueue = "normal"
	// DefaultMemoryMB is the default memory request.
	DefaultMemoryMB = 4000
	// DefaultCores is the default core request.
	DefaultCores = 1

	wholeNodeMemoryMB = 28000
	wholeNodeCores    = 8
	// Nodes on the hptest queue have twice the cores of the regular nodes.
	hptestQueue      = "hptest"
	hptestNodeCores  = 16
	maxNameSuffixRnd = 5000
)

// Allocation is the resource request of a job. It is either Partial or
// WholeNode.
type Allocation interface {
	// Resources returns the memory (MB) and the cores requested.
	Resources() (memoryMB, cores int)
	isAllocation()
}

// Partial requests part of a node.
type Partial struct {
	MemoryMB, Cores int
}

// Resources implements Allocation.
func (p Partial) Resources() (int, int) { return p.MemoryMB, p.Cores }

func (Partial) isAllocation() {}

// WholeNode reserves every core and all of the usable memory of a node on
// Queue.
type WholeNode struct {
	Queue string
}

// Resources implements Allocation.
func (w WholeNode) Resources() (int, int) {
	if w.Queue == hptestQueue {
		return wholeNodeMemoryMB, hptestNodeCores
	}
	return wholeNodeMemoryMB, wholeNodeCores
}

func (WholeNode) isAllocation() {}

// Handle identifies a submitted job.
type Handle struct {
	JobName string
	JobID   string
}

// Valid reports whether the handle carries a batch job ID.
func (h Handle) Valid() bool { return h.JobID != "" }

func (h Handle) String() string { return fmt.Sprintf("%s(%s)", h.JobName, h.JobID) }

var (
	rndMu sync.Mutex
	rnd   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func nameSuffix() int {
	rndMu.Lock()
	defer rndMu.Unlock()
	return rnd.Intn(maxNameSuffixRnd)
}

// Job describes one batch job. The zero value is not usable; use NewJob.
// A Job is not safe for concurrent use.
type Job struct {
	name      string
	prefix    string
	command   string
	queue     string
	alloc     Allocation
	manual    bool
	workDir   string
	deps      []Handle
	submitted *Handle
}

// NewJob creates a job running command. The job name is prefix followed by
// the process ID and a random suffix; the batch logs go to prefix.o and
// prefix.e in the working directory.
func NewJob(prefix, command string) *Job {
	return &Job{
		name:    fmt.Sprintf("%s_%d_%d", prefix, os.Getpid(), nameSuffix()),
		prefix:  prefix,
		command: command,
		queue:   DefaultQueue,
		alloc:   Partial{MemoryMB: DefaultMemoryMB, Cores: DefaultCores},
	}
}

// Name returns the unique job name.
func (j *Job) Name() string { return j.name }

// Command returns the command line the job runs.
func (j *Job) Command() string { return j.command }

// Queue returns the queue the job is submitted to.
func (j *Job) Queue() string { return j.queue }

// Allocation returns the job's resource request.
func (j *Job) Allocation() Allocation { return j.alloc }

// Stdout returns the file that receives the job's standard output.
func (j *Job) Stdout() string { return j.prefix + ".o" }

// Stderr returns the file that receives the job's standard error.
func (j *Job) Stderr() string { return j.prefix + ".e" }

// WorkDir returns the job's working directory. Empty means the directory
// the scheduler is invoked from.
func (j *Job) WorkDir() string { return j.workDir }

// Dependencies returns the jobs that must succeed before this one starts, in
// the order they were added.
func (j *Job) Dependencies() []Handle {
	return append([]Handle(nil), j.deps...)
}

// Handle returns the job's handle once it has been submitted.
func (j *Job) Handle() (Handle, bool) {
	if j.submitted == nil {
		return Handle{}, false
	}
	return *j.submitted, true
}

func (j *Job) wholeNode() bool {
	_, ok := j.alloc.(WholeNode)
	return ok
}

// SetMemory sets the memory request in megabytes. It fails once the job
// holds a whole node.
func (j *Job) SetMemory(mb int) error {
	if j.wholeNode() {
		return errors.E(errors.Invalid, "job", j.name, "holds a whole node; cannot set memory")
	}
	if mb <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("job %s: invalid memory %dMB", j.name, mb))
	}
	p := j.alloc.(Partial)
	p.MemoryMB = mb
	j.alloc, j.manual = p, true
	return nil
}

// SetCores sets the number of cores requested. It fails once the job holds
// a whole node.
func (j *Job) SetCores(n int) error {
	if j.wholeNode() {
		return errors.E(errors.Invalid, "job", j.name, "holds a whole node; cannot set cores")
	}
	if n <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("job %s: invalid core count %d", j.name, n))
	}
	p := j.alloc.(Partial)
	p.Cores = n
	j.alloc, j.manual = p, true
	return nil
}

// SetQueue sets the queue. An empty queue keeps the current one. It fails
// once the job holds a whole node, since the node shape depends on the queue.
func (j *Job) SetQueue(queue string) error {
	if j.wholeNode() {
		return errors.E(errors.Invalid, "job", j.name, "holds a whole node; cannot change queue")
	}
	if queue = strings.ToLower(strings.TrimSpace(queue)); queue != "" {
		j.queue = queue
	}
	return nil
}

// LockWholeNode reserves a complete node on queue. It may not be combined
// with SetMemory or SetCores in either order.
func (j *Job) LockWholeNode(queue string) error {
	queue = strings.ToLower(strings.TrimSpace(queue))
	if queue == "" {
		return errors.E(errors.Invalid, "job", j.name, "queue name for a whole node is empty")
	}
	if j.manual {
		return errors.E(errors.Invalid, "job", j.name, "has explicit memory or cores; cannot lock a whole node")
	}
	j.queue = queue
	j.alloc = WholeNode{Queue: queue}
	return nil
}

// SetWorkDir sets the directory the job runs in.
func (j *Job) SetWorkDir(dir string) { j.workDir = dir }

// DependOn makes the job wait for the successful completion of the job
// identified by h. Handles are deduplicated. Dependencies cannot be added
// after the job has been submitted.
func (j *Job) DependOn(h Handle) error {
	if j.submitted != nil {
		return errors.E(errors.Invalid, "job", j.name, "already submitted; cannot add dependency on", h.JobName)
	}
	if !h.Valid() {
		return errors.E(errors.Invalid, "job", j.name, "cannot depend on unsubmitted job", h.JobName)
	}
	for _, d := range j.deps {
		if d.JobID == h.JobID {
			return nil
		}
	}
	j.deps = append(j.deps, h)
	return nil
}
