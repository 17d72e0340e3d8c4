// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package flowcell knows how sequencer output is laid out on disk and how
// flowcells are named.
//
// A flowcell directory, such as 110930_SN142_0212_BC0AK6ABXX, lives in one
// instrument directory under the sequencers root. CASAVA reads the base
// calls under Data/Intensities/BaseCalls and writes FASTQ under Results;
// each lane barcode is analyzed in Results/Project_<flowcell>/Sample_<fc
// barcode>. The package also maintains the files the pipeline keeps next to
// the data: the per-instrument done list, the readiness markers,
// FCDefinition.xml, the barcode definition and SampleSheet.csv.
package flowcell
