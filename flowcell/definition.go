package flowcell

import (
	"bytes"
	"context"
	"encoding/xml"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// DefinitionFile is the name of the flowcell definition in the base calls
// directory.
const DefinitionFile = "FCDefinition.xml"

// NoReference is the reference path of lanes that are not aligned.
const NoReference = "sequence"

// Definition is the content of FCDefinition.xml: what LIMS knows about each
// lane barcode of a flowcell at the time the analysis starts.
type Definition struct {
	XMLName   xml.Name      `xml:"FCInfo"`
	Name      string        `xml:"Name,attr"`
	NumCycles string        `xml:"NumCycles,attr"`
	Type      string        `xml:"Type,attr"`
	Barcodes  []BarcodeName `xml:"LaneBarcodeList>LaneBarcode"`
	Lanes     []Lane        `xml:"LaneBarcodeInfo>LaneBarcode"`
}

// BarcodeName is an entry of the lane barcode list.
type BarcodeName struct {
	Name string `xml:"Name,attr"`
}

// Lane describes one lane barcode.
type Lane struct {
	ID            string `xml:"ID,attr"`
	ReferencePath string `xml:"ReferencePath,attr,omitempty"`
	Sample        string `xml:"Sample,attr,omitempty"`
	Library       string `xml:"Library,attr,omitempty"`
	ChipDesign    string `xml:"ChipDesign,attr,omitempty"`
}

// AddLane appends a lane barcode to both lists of d.
func (d *Definition) AddLane(l Lane) {
	d.Barcodes = append(d.Barcodes, BarcodeName{l.ID})
	d.Lanes = append(d.Lanes, l)
}

// LaneBarcodes returns the lane barcodes in file order.
func (d *Definition) LaneBarcodes() []string {
	var names []string
	for _, b := range d.Barcodes {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	return names
}

// Lane returns the description of a lane barcode. An unlisted barcode is a
// configuration error. A lane without reference gets NoReference.
func (d *Definition) Lane(barcode string) (Lane, error) {
	for _, l := range d.Lanes {
		if l.ID == barcode {
			if l.ReferencePath == "" {
				l.ReferencePath = NoReference
			}
			return l, nil
		}
	}
	return Lane{}, errors.E(errors.Invalid, "invalid barcode specified:", barcode)
}

var digits = regexp.MustCompile(`\d+`)

// ReadLength returns the number of cycles of one read without the phasing
// cycle.
func (d *Definition) ReadLength() (int, error) {
	n, err := strconv.Atoi(digits.FindString(d.NumCycles))
	if err != nil {
		return 0, errors.E(errors.Invalid, "invalid cycle count", d.NumCycles)
	}
	return n - 1, nil
}

// Paired reports whether the flowcell was sequenced paired-end.
func (d *Definition) Paired() bool { return d.Type == "paired" }

// WriteDefinition writes d to FCDefinition.xml in dir.
func WriteDefinition(ctx context.Context, dir string, d *Definition) (err error) {
	data, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, DefinitionFile)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if _, err = w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// ReadDefinition reads FCDefinition.xml from dir. A missing file means the
// flowcell has not been preprocessed.
func ReadDefinition(ctx context.Context, dir string) (*Definition, error) {
	path := filepath.Join(dir, DefinitionFile)
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Precondition, err, "read flowcell definition")
	}
	d := &Definition{}
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(d); err != nil {
		return nil, errors.E(errors.Invalid, err, "parse", path)
	}
	return d, nil
}
