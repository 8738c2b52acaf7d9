package pdu

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/ringdht/internal/testutil/testlog"
)

func mustInsert(t *testing.T, ssn, name, email string) Insert {
	t.Helper()
	p, err := NewInsert(ssn, name, email)
	if err != nil {
		t.Fatalf("new insert: %v", err)
	}
	return p
}

func mustLookupResponse(t *testing.T, ssn, name, email string) LookupResponse {
	t.Helper()
	p, err := NewLookupResponse(ssn, name, email)
	if err != nil {
		t.Fatalf("new lookup response: %v", err)
	}
	return p
}

func samplePDUs(t *testing.T) []PDU {
	t.Helper()
	remove, err := NewRemove("000000000000")
	if err != nil {
		t.Fatalf("new remove: %v", err)
	}
	lookup, err := NewLookup("999999999999", 0xffffffff, 0xffff)
	if err != nil {
		t.Fatalf("new lookup: %v", err)
	}
	return []PDU{
		NewAlive(),
		NewGetNode(),
		NewGetNodeResponse(0, 0),
		NewGetNodeResponse(0xffffffff, 0xffff),
		NewJoin(0x01020304, 1000, 50, 0x05060708, 2000),
		NewJoin(0xffffffff, 0xffff, 0xff, 0xffffffff, 0xffff),
		NewJoinResponse(0x7f000001, 4000, 0, 255),
		NewCloseConnection(),
		NewNewRange(128, 255),
		NewLeaving(0xc0a80001, 4321),
		NewNewRangeResponse(),
		mustInsert(t, "111111111111", "Test", "Emai"),
		mustInsert(t, "abcdefghijkl", "", ""),
		remove,
		lookup,
		mustLookupResponse(t, "123456789012", "Ada", "ada@example.com"),
		NewStunLookup(),
		NewStunResponse(0),
		NewStunResponse(0xffffffff),
	}
}

func TestRoundTripEveryVariant(t *testing.T) {
	testlog.Start(t)
	for _, p := range samplePDUs(t) {
		enc := Encode(p)
		if len(enc) != p.Size() {
			t.Fatalf("%s: encoded %d bytes, Size()=%d", p.PDUType(), len(enc), p.Size())
		}
		if Type(enc[0]) != p.PDUType() {
			t.Fatalf("%s: first byte %d", p.PDUType(), enc[0])
		}
		out := TryDecode(enc)
		if out.Status != Parsed {
			t.Fatalf("%s: status=%s", p.PDUType(), out.Status)
		}
		if out.Consumed != len(enc) {
			t.Fatalf("%s: consumed=%d want %d", p.PDUType(), out.Consumed, len(enc))
		}
		if out.PDU != p {
			t.Fatalf("%s: decoded %+v want %+v", p.PDUType(), out.PDU, p)
		}
	}
}

func TestFixedSizesMatchWireTable(t *testing.T) {
	testlog.Start(t)
	want := map[Type]int{
		TypeAlive:            1,
		TypeGetNode:          1,
		TypeGetNodeResponse:  7,
		TypeJoin:             14,
		TypeJoinResponse:     9,
		TypeCloseConnection:  1,
		TypeNewRange:         3,
		TypeLeaving:          7,
		TypeNewRangeResponse: 1,
		TypeRemove:           13,
		TypeLookup:           19,
		TypeStunLookup:       1,
		TypeStunResponse:     5,
	}
	seen := 0
	for _, p := range samplePDUs(t) {
		size, ok := want[p.PDUType()]
		if !ok {
			continue
		}
		seen++
		if got := len(Encode(p)); got != size {
			t.Fatalf("%s: encoded %d bytes want %d", p.PDUType(), got, size)
		}
	}
	if seen == 0 {
		t.Fatalf("no fixed variants checked")
	}
}

func TestJoinScenarioBytes(t *testing.T) {
	testlog.Start(t)
	p := NewJoin(0x01020304, 1000, 50, 0x05060708, 2000)
	want := []byte{3, 1, 2, 3, 4, 3, 232, 50, 5, 6, 7, 8, 7, 208}
	got := Encode(p)
	if !bytes.Equal(got, want) {
		t.Fatalf("join bytes: got=%v want=%v", got, want)
	}
	out := TryDecode(got)
	if out.Status != Parsed || out.Consumed != 14 {
		t.Fatalf("decode status=%s consumed=%d", out.Status, out.Consumed)
	}
	j, ok := out.PDU.(Join)
	if !ok {
		t.Fatalf("decoded %T", out.PDU)
	}
	if j.SrcAddr != 0x01020304 || j.SrcPort != 1000 || j.MaxSpan != 50 || j.MaxAddr != 0x05060708 || j.MaxPort != 2000 {
		t.Fatalf("join fields: %+v", j)
	}
	if j.Src().String() != "1.2.3.4:1000" || j.Max().String() != "5.6.7.8:2000" {
		t.Fatalf("join addresses: %s %s", j.Src(), j.Max())
	}
}

func TestInsertScenarioBytes(t *testing.T) {
	testlog.Start(t)
	p := mustInsert(t, "111111111111", "Test", "Emai")
	enc := Encode(p)
	if len(enc) != 23 {
		t.Fatalf("insert length=%d want 23", len(enc))
	}
	want := append([]byte{100}, "111111111111"...)
	want = append(want, 4, 'T', 'e', 's', 't', 4, 'E', 'm', 'a', 'i')
	if !bytes.Equal(enc, want) {
		t.Fatalf("insert bytes: got=%v want=%v", enc, want)
	}
	out := TryDecode(enc)
	if out.Status != Parsed || out.Consumed != 23 {
		t.Fatalf("decode status=%s consumed=%d", out.Status, out.Consumed)
	}
	got := out.PDU.(Insert)
	if got.SSN != "111111111111" || got.Name != "Test" || got.Email != "Emai" {
		t.Fatalf("insert fields: %+v", got)
	}
}

func TestVariableConsumption(t *testing.T) {
	testlog.Start(t)
	lengths := []int{0, 1, 255}
	for _, nameLen := range lengths {
		for _, emailLen := range lengths {
			name := strings.Repeat("n", nameLen)
			email := strings.Repeat("e", emailLen)
			want := 1 + 12 + 1 + nameLen + 1 + emailLen
			for _, p := range []PDU{
				mustInsert(t, "111111111111", name, email),
				mustLookupResponse(t, "111111111111", name, email),
			} {
				buf := append(Encode(p), 0xde, 0xad)
				out := TryDecode(buf)
				if out.Status != Parsed {
					t.Fatalf("%s name=%d email=%d: status=%s", p.PDUType(), nameLen, emailLen, out.Status)
				}
				if out.Consumed != want {
					t.Fatalf("%s name=%d email=%d: consumed=%d want %d", p.PDUType(), nameLen, emailLen, out.Consumed, want)
				}
			}
		}
	}
}

func TestStrictPrefixesNeedMoreData(t *testing.T) {
	testlog.Start(t)
	for _, p := range samplePDUs(t) {
		enc := Encode(p)
		for i := 0; i < len(enc); i++ {
			out := TryDecode(enc[:i])
			if out.Status != NeedMoreData {
				t.Fatalf("%s prefix %d/%d: status=%s", p.PDUType(), i, len(enc), out.Status)
			}
		}
	}
}

func TestDeclaredLengthBeyondBufferNeedsMore(t *testing.T) {
	testlog.Start(t)
	buf := append([]byte{byte(TypeInsert)}, "111111111111"...)
	buf = append(buf, 10, 'a', 'b', 'c')
	if out := TryDecode(buf); out.Status != NeedMoreData {
		t.Fatalf("name overrun: status=%s", out.Status)
	}
	buf = append([]byte{byte(TypeLookupResponse)}, "111111111111"...)
	buf = append(buf, 1, 'a', 200, 'x')
	if out := TryDecode(buf); out.Status != NeedMoreData {
		t.Fatalf("email overrun: status=%s", out.Status)
	}
}

func TestUnknownDiscriminant(t *testing.T) {
	testlog.Start(t)
	out := TryDecode([]byte{255, 1, 2, 3})
	if out.Status != UnknownDiscriminant || out.Discriminant != 255 {
		t.Fatalf("status=%s discriminant=%d", out.Status, out.Discriminant)
	}
	if out.PDU != nil || out.Consumed != 0 {
		t.Fatalf("unknown discriminant carried a result: %+v", out)
	}
	if out := TryDecode(nil); out.Status != NeedMoreData {
		t.Fatalf("empty buffer status=%s", out.Status)
	}
}

func TestLookupResponseKeepsOwnDiscriminant(t *testing.T) {
	testlog.Start(t)
	p := mustLookupResponse(t, "111111111111", "a", "b")
	out := TryDecode(Encode(p))
	got, ok := out.PDU.(LookupResponse)
	if !ok || got.Type != TypeLookupResponse {
		t.Fatalf("decoded %T %+v", out.PDU, out.PDU)
	}
}

func TestConstructorsRejectBadIdentifiers(t *testing.T) {
	testlog.Start(t)
	if _, err := NewRemove("ABC"); !errors.Is(err, ErrInvalidSSN) {
		t.Fatalf("short remove: expected ErrInvalidSSN, got %v", err)
	}
	if _, err := NewLookup("1234567890123", 0, 0); !errors.Is(err, ErrInvalidSSN) {
		t.Fatalf("long lookup: expected ErrInvalidSSN, got %v", err)
	}
	if _, err := NewInsert("111111111111", strings.Repeat("x", 256), ""); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("long name: expected ErrFieldTooLong, got %v", err)
	}
	if _, err := NewLookupResponse("111111111111", "", strings.Repeat("x", 256)); !errors.Is(err, ErrFieldTooLong) {
		t.Fatalf("long email: expected ErrFieldTooLong, got %v", err)
	}
}

// A short identifier built without the constructor encodes to fewer bytes
// than the receiver expects. The receiver either waits for bytes that belong
// to the next message or folds them into the identifier.
func TestShortIdentifierFramingHazard(t *testing.T) {
	testlog.Start(t)
	p := Remove{Type: TypeRemove, SSN: "ABC"}
	enc := Encode(p)
	if len(enc) != 4 || p.Size() != 4 {
		t.Fatalf("short remove: encoded %d bytes, Size()=%d", len(enc), p.Size())
	}
	if out := TryDecode(enc); out.Status != NeedMoreData {
		t.Fatalf("short remove alone: status=%s", out.Status)
	}

	stream := append(enc, Encode(NewJoin(0x01020304, 1000, 50, 0x05060708, 2000))...)
	out := TryDecode(stream)
	if out.Status != Parsed || out.Consumed != 13 {
		t.Fatalf("short remove in stream: status=%s consumed=%d", out.Status, out.Consumed)
	}
	got := out.PDU.(Remove)
	if got.SSN == "ABC" || !strings.HasPrefix(got.SSN, "ABC") {
		t.Fatalf("expected identifier to absorb following bytes, got %q", got.SSN)
	}
	tail := TryDecode(stream[out.Consumed:])
	if tail.Status == Parsed && tail.PDU.PDUType() == TypeJoin {
		t.Fatalf("expected the following join to be misframed")
	}
}

func TestOverlongFieldsClampToPrefixWidth(t *testing.T) {
	testlog.Start(t)
	p := Insert{Type: TypeInsert, Record: Record{SSN: "111111111111xyz", Name: strings.Repeat("n", 300)}}
	enc := Encode(p)
	if len(enc) != p.Size() || len(enc) != 1+12+1+255+1 {
		t.Fatalf("clamped insert length=%d size=%d", len(enc), p.Size())
	}
	out := TryDecode(enc)
	got := out.PDU.(Insert)
	if got.SSN != "111111111111" || len(got.Name) != 255 {
		t.Fatalf("clamped insert decoded ssn=%q name=%d", got.SSN, len(got.Name))
	}
}
