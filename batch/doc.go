// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package batch describes jobs for the cluster batch system and submits them.
//
// A Job carries everything needed to submit one command: a unique name, the
// command line, a resource request, a queue, log destinations and the handles
// of the jobs it must wait for. Render turns a Job into a single msub
// invocation; Scheduler runs that invocation and returns a Handle carrying
// the batch-assigned job ID. Handles are the only way to express a dependency
// between jobs, so a dependent job can never be submitted before its
// prerequisites have an ID.
package batch
