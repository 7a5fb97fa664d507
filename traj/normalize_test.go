package traj

import (
	"errors"
	"testing"
	"time"
)

// TestNormalize_FeatureOrder verifies the fixed output order
// [timestamp, numeric fields in schema order] and the float32 conversion of
// calendar timestamps to epoch seconds.
func TestNormalize_FeatureOrder(t *testing.T) {
	raw := &RawTrack{
		Fields: []string{"lat", "date", "lon", "sog", "cog"},
		Rows: [][]string{
			{"31.5", "2019-07-01 00:00:00", "-118.25", "12.3", "270"},
			{"31.6", "2019-07-01 00:10:00", "-118.20", "11.9", "268"},
		},
	}
	art, err := Normalize(raw, DefaultSchema())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if art.Len != 2 {
		t.Fatalf("expected Len 2, got %d", art.Len)
	}
	if art.Features != 5 {
		t.Fatalf("expected 5 features, got %d", art.Features)
	}
	if len(art.Data) != art.Len*art.Features {
		t.Fatalf("buffer length %d does not match shape (%d, %d)", len(art.Data), art.Len, art.Features)
	}

	wantTS := float32(time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC).Unix())
	row0 := art.Row(0)
	want0 := []float32{wantTS, 31.5, -118.25, 12.3, 270}
	for f, want := range want0 {
		if row0[f] != want {
			t.Fatalf("row 0 feature %d: got %v want %v", f, row0[f], want)
		}
	}
}

// TestNormalize_MissingValuesBecomeZero exercises the lossy missing-value
// policy: empty cells, unparseable cells and short rows all read as 0, while
// thousands separators are stripped before coercion.
func TestNormalize_MissingValuesBecomeZero(t *testing.T) {
	raw := &RawTrack{
		Fields: []string{"date", "lat", "lon", "sog", "cog"},
		Rows: [][]string{
			{"1561939200", "", "n/a", "1,234.5", "90"},
			{"1561939260", "31.5"}, // row shorter than the schema
		},
	}
	art, err := Normalize(raw, DefaultSchema())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	row0 := art.Row(0)
	if row0[1] != 0 || row0[2] != 0 {
		t.Fatalf("expected missing lat/lon to be 0, got %v %v", row0[1], row0[2])
	}
	if row0[3] != 1234.5 {
		t.Fatalf("expected comma-stripped sog 1234.5, got %v", row0[3])
	}
	row1 := art.Row(1)
	if row1[1] != 31.5 {
		t.Fatalf("expected lat 31.5, got %v", row1[1])
	}
	for f := 2; f < 5; f++ {
		if row1[f] != 0 {
			t.Fatalf("expected absent column %d to be 0, got %v", f, row1[f])
		}
	}
}

// TestNormalize_MissingFieldFails checks that an absent schema column fails
// with a MalformedTrackError naming the field.
func TestNormalize_MissingFieldFails(t *testing.T) {
	raw := &RawTrack{
		Fields: []string{"date", "lat", "lon", "sog"}, // no cog
		Rows:   [][]string{{"1561939200", "31.5", "-118.25", "12.3"}},
	}
	_, err := Normalize(raw, DefaultSchema())
	if err == nil {
		t.Fatalf("expected error for missing cog column, got nil")
	}
	var merr *MalformedTrackError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedTrackError, got %T: %v", err, err)
	}
	if merr.Field != "cog" {
		t.Fatalf("expected error to name field cog, got %q", merr.Field)
	}
}

// TestNormalize_BadTimestampFailsTrack checks that one unparseable timestamp
// fails the whole track, naming the time field.
func TestNormalize_BadTimestampFailsTrack(t *testing.T) {
	raw := &RawTrack{
		Fields: []string{"date", "lat", "lon", "sog", "cog"},
		Rows: [][]string{
			{"2019-07-01 00:00:00", "31.5", "-118.25", "12.3", "270"},
			{"yesterday about noon", "31.6", "-118.20", "11.9", "268"},
		},
	}
	_, err := Normalize(raw, DefaultSchema())
	if err == nil {
		t.Fatalf("expected error for unparseable timestamp, got nil")
	}
	var merr *MalformedTrackError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedTrackError, got %T: %v", err, err)
	}
	if merr.Field != "date" {
		t.Fatalf("expected error to name field date, got %q", merr.Field)
	}
}

// TestNormalize_RowWithoutTimestampFails covers rows too short to carry the
// time column at all.
func TestNormalize_RowWithoutTimestampFails(t *testing.T) {
	raw := &RawTrack{
		Fields: []string{"lat", "lon", "sog", "cog", "date"},
		Rows:   [][]string{{"31.5", "-118.25"}},
	}
	_, err := Normalize(raw, DefaultSchema())
	var merr *MalformedTrackError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedTrackError for short row, got %v", err)
	}
}

// TestNormalize_EmptyTrack yields a valid zero-length artifact rather than an
// error; the batcher drops it later.
func TestNormalize_EmptyTrack(t *testing.T) {
	raw := &RawTrack{Fields: []string{"date", "lat", "lon", "sog", "cog"}}
	art, err := Normalize(raw, DefaultSchema())
	if err != nil {
		t.Fatalf("Normalize failed on empty track: %v", err)
	}
	if art.Len != 0 || len(art.Data) != 0 {
		t.Fatalf("expected empty artifact, got Len=%d buffer=%d", art.Len, len(art.Data))
	}
	if art.Valid() {
		t.Fatalf("zero-length artifact must not count as batchable")
	}
}

func TestNormalize_NilTrack(t *testing.T) {
	if _, err := Normalize(nil, DefaultSchema()); err == nil {
		t.Fatalf("expected error for nil track")
	}
}

// TestParseTimestamp_Layouts runs the accepted layouts plus bare epoch
// seconds through the parser.
func TestParseTimestamp_Layouts(t *testing.T) {
	noon := time.Date(2019, 7, 1, 12, 30, 0, 0, time.UTC).Unix()
	midnight := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC).Unix()
	cases := []struct {
		in   string
		want int64
	}{
		{"2019-07-01T12:30:00Z", noon},
		{"2019-07-01 12:30:00", noon},
		{"2019-07-01T12:30:00", noon},
		{"2019-07-01 12:30", noon},
		{"2019-07-01", midnight},
		{"07/01/2019 12:30:00", noon},
		{"07/01/2019", midnight},
		{"1561984200", noon},
		{"  1561984200  ", noon},
	}
	for _, c := range cases {
		got, err := ParseTimestamp(c.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseTimestamp(%q) = %d, want %d", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "2019/13/40", "12:30"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Fatalf("ParseTimestamp(%q) should fail", bad)
		}
	}
}

// TestParseNumeric_Coercion covers separator stripping and the missing-value
// signalling for unparseable or non-finite values.
func TestParseNumeric_Coercion(t *testing.T) {
	cases := []struct {
		in   string
		want float32
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"1,234.5", 1234.5, true},
		{" 7 ", 7, true},
		{"-118.25", -118.25, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumeric(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseNumeric(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

// TestArtifactTruncated checks the view semantics: the cap applies to the
// leading rows, the receiver stays intact and short artifacts pass through.
func TestArtifactTruncated(t *testing.T) {
	art := &Artifact{Data: make([]float32, 10*3), Len: 10, Features: 3}
	for i := range art.Data {
		art.Data[i] = float32(i)
	}

	cut := art.Truncated(4)
	if cut.Len != 4 || cut.Features != 3 || len(cut.Data) != 12 {
		t.Fatalf("unexpected truncated shape: Len=%d Features=%d buffer=%d", cut.Len, cut.Features, len(cut.Data))
	}
	for i := range cut.Data {
		if cut.Data[i] != float32(i) {
			t.Fatalf("truncation must keep leading rows: index %d got %v", i, cut.Data[i])
		}
	}
	if art.Len != 10 || len(art.Data) != 30 {
		t.Fatalf("original artifact was modified: Len=%d buffer=%d", art.Len, len(art.Data))
	}
	if same := art.Truncated(10); same != art {
		t.Fatalf("artifact at the cap should be returned as-is")
	}
	if same := art.Truncated(99); same != art {
		t.Fatalf("artifact under the cap should be returned as-is")
	}
}

func TestArtifactValid(t *testing.T) {
	good := &Artifact{Data: make([]float32, 6), Len: 2, Features: 3}
	if !good.Valid() {
		t.Fatalf("consistent artifact should be valid")
	}
	cases := []*Artifact{
		nil,
		{Data: nil, Len: 0, Features: 3},
		{Data: make([]float32, 5), Len: 2, Features: 3},
		{Data: make([]float32, 6), Len: 2, Features: 0},
	}
	for i, a := range cases {
		if a.Valid() {
			t.Fatalf("case %d should be invalid", i)
		}
	}
}

func TestSchemaValidate(t *testing.T) {
	if err := DefaultSchema().Validate(); err != nil {
		t.Fatalf("default schema should validate: %v", err)
	}
	bad := []Schema{
		{TimeField: "", NumericFields: []string{"lat"}},
		{TimeField: "date", NumericFields: nil},
		{TimeField: "date", NumericFields: []string{"lat", ""}},
		{TimeField: "date", NumericFields: []string{"lat", "lat"}},
		{TimeField: "date", NumericFields: []string{"date"}},
	}
	for i, s := range bad {
		err := s.Validate()
		if err == nil {
			t.Fatalf("schema case %d should fail validation", i)
		}
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("schema case %d: expected ConfigError, got %T", i, err)
		}
	}
	if got := DefaultSchema().Features(); got != 5 {
		t.Fatalf("default schema feature count: got %d want 5", got)
	}
}
