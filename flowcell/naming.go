package flowcell

import (
	"regexp"
	"strings"
)

var (
	trailingToken = regexp.MustCompile(`[a-zA-Z0-9-]+$`)
	leadingDigits = regexp.MustCompile(`^\d+`)
	leadingDate   = regexp.MustCompile(`^\d+_`)
	firstToken    = regexp.MustCompile(`[A-Za-z0-9-]+`)
)

// LIMSName returns the name LIMS knows the flowcell by: the last token of
// the directory name without the "FC" prefix and without the position letter
// HiSeq puts in front of the flowcell ID.
func LIMSName(fc string) string {
	name := trailingToken.FindString(fc)
	name = strings.TrimPrefix(name, "FC")
	if len(name) > 0 && isLetter(name[0]) {
		name = name[1:]
	}
	return name
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Barcode returns the flowcell barcode of a lane barcode, e.g.
// "C0AK6ABXX-2-ID03". It is the name of the lane in LIMS.
func Barcode(fc, laneBarcode string) string {
	return LIMSName(fc) + "-" + laneBarcode
}

// PUField returns the platform unit for read groups:
// <machine>_<yyyymmdd>_<flowcell barcode>. HiSeq serial numbers "SNnnn"
// become "700nnn".
func PUField(fc, laneBarcode string) string {
	runDate := "20" + leadingDigits.FindString(fc)
	machine := firstToken.FindString(leadingDate.ReplaceAllString(fc, ""))
	machine = strings.Replace(machine, "SN", "700", -1)
	return machine + "_" + runDate + "_" + Barcode(fc, laneBarcode)
}

// IsHiSeq reports whether the flowcell was run on a HiSeq. The two GAIIx
// instruments are recognized by name.
func IsHiSeq(fc string) bool {
	return !strings.Contains(fc, "EAS034") && !strings.Contains(fc, "EAS376")
}

// LaneNumber returns the lane of a lane barcode ("3" for "3-ID05").
func LaneNumber(laneBarcode string) string {
	if laneBarcode == "" {
		return ""
	}
	return laneBarcode[:1]
}

// BarcodeTag returns the index tag of a lane barcode ("ID05" for "3-ID05"),
// or "" for a lane without index.
func BarcodeTag(laneBarcode string) string {
	if i := strings.IndexByte(laneBarcode, '-'); i >= 0 {
		return laneBarcode[i+1:]
	}
	return ""
}
