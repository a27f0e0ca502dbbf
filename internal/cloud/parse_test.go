package cloud

import (
	"encoding/binary"
	"testing"
)

// statusPayload builds a STATUS payload skeleton of the given length with
// switchID, responseID and subtype filled in.
func statusPayload(length int, switchID uint32, responseID uint16, subtype uint8) []byte {
	p := make([]byte, length)
	binary.BigEndian.PutUint32(p[0:4], switchID)
	binary.BigEndian.PutUint16(p[4:6], responseID)
	if length > 13 {
		p[13] = subtype
	}
	return p
}

func TestParseStatusHeader(t *testing.T) {
	p := statusPayload(25, 1000, 7, SubtypeGetStatus)
	hdr, err := ParseStatusHeader(p)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.SwitchID != 1000 {
		t.Errorf("switchID: got %d, want 1000", hdr.SwitchID)
	}
	if hdr.ResponseID != 7 {
		t.Errorf("responseID: got %d, want 7", hdr.ResponseID)
	}

	if _, err := ParseStatusHeader([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for short header")
	}
}

func TestParseAuthResult(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"success", []byte{0x00, 0x00}, true},
		{"failure", []byte{0x00, 0x01}, false},
		{"failure high byte", []byte{0x01, 0x00}, false},
		{"empty", nil, false},
		{"one byte", []byte{0x00}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAuthResult(tt.payload); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatusSingle(t *testing.T) {
	p := statusPayload(29, 1000, 1, SubtypeGetStatus)
	p[21] = 7  // meshID
	p[27] = 1  // on
	p[28] = 55 // brightness

	statuses := ParseStatus(p)
	if len(statuses) != 1 {
		t.Fatalf("records: got %d, want 1", len(statuses))
	}
	st := statuses[0]
	if st.MeshID != 7 || !st.On || st.Brightness != 55 {
		t.Errorf("got %+v", st)
	}

	// Off device reports zero brightness even if the byte is set.
	p[27] = 0
	p[28] = 99
	st = ParseStatus(p)[0]
	if st.On || st.Brightness != 0 {
		t.Errorf("off device: got on=%v brightness=%d", st.On, st.Brightness)
	}
}

func TestParseStatusPaginatedTwoRecords(t *testing.T) {
	// Length 70: 22-byte prefix + two 24-byte records.
	p := statusPayload(70, 1000, 1, SubtypeGetStatusPaginated)

	rec := p[22:46]
	rec[0] = 5   // meshID
	rec[8] = 1   // on
	rec[12] = 80 // brightness
	rec[16] = 30 // cyncTemp
	rec[20] = 10
	rec[21] = 20
	rec[22] = 30

	rec = p[46:70]
	rec[0] = 6
	rec[8] = 0
	rec[12] = 77 // ignored while off

	statuses := ParseStatus(p)
	if len(statuses) != 2 {
		t.Fatalf("records: got %d, want 2", len(statuses))
	}

	first := statuses[0]
	if first.MeshID != 5 || !first.On || first.Brightness != 80 || first.CyncTemp != 30 {
		t.Errorf("first record: got %+v", first)
	}
	if first.R != 10 || first.G != 20 || first.B != 30 {
		t.Errorf("first record rgb: got (%d,%d,%d)", first.R, first.G, first.B)
	}
	if first.RGBActive {
		t.Error("first record: RGBActive should be false for temp 30")
	}
	if !first.HasColor {
		t.Error("first record: HasColor should be true")
	}

	second := statuses[1]
	if second.MeshID != 6 || second.On || second.Brightness != 0 {
		t.Errorf("second record: got %+v", second)
	}
}

func TestParseStatusPaginatedRGBActive(t *testing.T) {
	p := statusPayload(46, 1000, 1, SubtypeGetStatusPaginated)
	rec := p[22:46]
	rec[0] = 3
	rec[8] = 1
	rec[12] = 10
	rec[16] = 254 // RGB mode marker
	rec[20] = 255

	statuses := ParseStatus(p)
	if len(statuses) != 1 {
		t.Fatalf("records: got %d, want 1", len(statuses))
	}
	if !statuses[0].RGBActive {
		t.Error("RGBActive not set for temp byte 254")
	}
}

func TestParseStatusPaginatedPartialRecordDropped(t *testing.T) {
	// One full record plus 10 trailing bytes that do not fit a record.
	p := statusPayload(56, 1000, 1, SubtypeGetStatusPaginated)
	p[22] = 9
	p[30] = 1

	statuses := ParseStatus(p)
	if len(statuses) != 1 {
		t.Errorf("records: got %d, want 1", len(statuses))
	}
}

func TestParseStatusShortPayload(t *testing.T) {
	// Acks and other short STATUS traffic decode to no records.
	if statuses := ParseStatus(statusPayload(7, 1, 1, 0)); statuses != nil {
		t.Errorf("got %d records, want none", len(statuses))
	}
}

func TestParseStatusUnknownSubtype(t *testing.T) {
	p := statusPayload(40, 1, 1, 0x99)
	if statuses := ParseStatus(p); statuses != nil {
		t.Errorf("got %d records for unknown subtype", len(statuses))
	}
}

func TestParseSync(t *testing.T) {
	// 7-byte header + two 19-byte records.
	p := make([]byte, 7+19*2)
	binary.BigEndian.PutUint32(p[0:4], 1000)

	rec := p[7:26]
	rec[3] = 4  // meshID
	rec[4] = 1  // on
	rec[5] = 60 // brightness
	rec[6] = 25 // cyncTemp

	rec = p[26:45]
	rec[3] = 5
	rec[4] = 0
	rec[5] = 90 // ignored while off

	statuses := ParseSync(p)
	if len(statuses) != 2 {
		t.Fatalf("records: got %d, want 2", len(statuses))
	}
	if statuses[0].MeshID != 4 || !statuses[0].On || statuses[0].Brightness != 60 || statuses[0].CyncTemp != 25 {
		t.Errorf("first record: got %+v", statuses[0])
	}
	if statuses[1].MeshID != 5 || statuses[1].On || statuses[1].Brightness != 0 {
		t.Errorf("second record: got %+v", statuses[1])
	}
}

func TestParseSyncHeaderOnly(t *testing.T) {
	if statuses := ParseSync(make([]byte, 7)); statuses != nil {
		t.Errorf("got %d records for header-only SYNC", len(statuses))
	}
}

func TestParseStatusSync(t *testing.T) {
	p := make([]byte, 33)
	binary.BigEndian.PutUint32(p[0:4], 1000)
	p[21] = 8
	p[27] = 1
	p[28] = 45

	statuses := ParseStatusSync(p)
	if len(statuses) != 1 {
		t.Fatalf("records: got %d, want 1", len(statuses))
	}
	if statuses[0].MeshID != 8 || !statuses[0].On || statuses[0].Brightness != 45 {
		t.Errorf("got %+v", statuses[0])
	}

	if statuses := ParseStatusSync(make([]byte, 32)); statuses != nil {
		t.Error("expected no records below minimum length")
	}
}
