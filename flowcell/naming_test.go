package flowcell

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestNaming(t *testing.T) {
	for _, test := range []struct {
		fc, lims, barcode, pu string
		hiseq                 bool
	}{
		{"110930_SN142_0212_BC0AK6ABXX", "C0AK6ABXX", "C0AK6ABXX-2-ID03", "700142_20110930_C0AK6ABXX-2-ID03", true},
		{"110101_EAS034_0001_FC62J3EAAXX", "62J3EAAXX", "62J3EAAXX-2-ID03", "EAS034_20110101_62J3EAAXX-2-ID03", false},
		{"101122_EAS376_0082_FC629LKAAXX", "629LKAAXX", "629LKAAXX-2-ID03", "EAS376_20101122_629LKAAXX-2-ID03", false},
	} {
		expect.EQ(t, LIMSName(test.fc), test.lims)
		expect.EQ(t, Barcode(test.fc, "2-ID03"), test.barcode)
		expect.EQ(t, PUField(test.fc, "2-ID03"), test.pu)
		expect.EQ(t, IsHiSeq(test.fc), test.hiseq)
	}
}

func TestLaneBarcodeParts(t *testing.T) {
	expect.EQ(t, LaneNumber("3-ID05"), "3")
	expect.EQ(t, LaneNumber("7"), "7")
	expect.EQ(t, LaneNumber(""), "")
	expect.EQ(t, BarcodeTag("3-ID05"), "ID05")
	expect.EQ(t, BarcodeTag("7"), "")
}
