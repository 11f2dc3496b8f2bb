package monitor

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Veraticus/linescan/pkg/diag"
	"github.com/Veraticus/linescan/pkg/registry"
	"github.com/Veraticus/linescan/pkg/testutil"
	"github.com/Veraticus/linescan/pkg/types"
)

func newMonitor(t *testing.T, kinds types.KindSet) (*OutputMonitor, *testutil.MockRecordWriter) {
	t.Helper()
	reg, err := registry.Build(kinds)
	if err != nil {
		t.Fatalf("registry.Build() error = %v", err)
	}
	writer := testutil.NewMockRecordWriter()
	om, err := NewOutputMonitor(reg, writer, nil)
	if err != nil {
		t.Fatalf("NewOutputMonitor() error = %v", err)
	}
	return om, writer
}

func spanTexts(r types.LineRecord, field string) []string {
	var out []string
	for _, s := range r.Result[field] {
		out = append(out, s.Text(r.Text))
	}
	return out
}

func TestOutputMonitor_HandleData(t *testing.T) {
	tests := []struct {
		name      string
		data      [][]byte
		wantLines []string
	}{
		{
			name:      "single complete line",
			data:      [][]byte{[]byte("host 10.0.0.1\n")},
			wantLines: []string{"host 10.0.0.1"},
		},
		{
			name:      "line split across chunks",
			data:      [][]byte{[]byte("host 10.0"), []byte(".0.1\n")},
			wantLines: []string{"host 10.0.0.1"},
		},
		{
			name:      "multiple lines in one chunk",
			data:      [][]byte{[]byte("a\nb\nc\n")},
			wantLines: []string{"a", "b", "c"},
		},
		{
			name:      "incomplete line is held back",
			data:      [][]byte{[]byte("done\npartial")},
			wantLines: []string{"done"},
		},
		{
			name:      "carriage return is dropped",
			data:      [][]byte{[]byte("crlf\r\n")},
			wantLines: []string{"crlf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			om, writer := newMonitor(t, types.AllKinds())

			for _, d := range tt.data {
				om.HandleData(d)
			}

			records := writer.GetRecords()
			if len(records) != len(tt.wantLines) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.wantLines))
			}
			for i, r := range records {
				if r.Text != tt.wantLines[i] {
					t.Errorf("record %d text = %q, want %q", i, r.Text, tt.wantLines[i])
				}
				if r.Index != i+1 {
					t.Errorf("record %d index = %d, want %d", i, r.Index, i+1)
				}
			}
		})
	}
}

func TestOutputMonitor_ProjectsEachLine(t *testing.T) {
	om, writer := newMonitor(t, types.AllKinds())
	om.SetSource("stream")

	om.HandleData([]byte("from 10.0.0.1 to bob@example.com\n\"abc\" and \"def\"\n"))

	records := writer.GetRecords()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	if got := spanTexts(records[0], types.FieldIP); len(got) != 1 || got[0] != "10.0.0.1" {
		t.Errorf("ip = %v, want [10.0.0.1]", got)
	}
	if got := spanTexts(records[0], types.FieldEmail); len(got) != 1 || got[0] != "bob@example.com" {
		t.Errorf("email = %v, want [bob@example.com]", got)
	}
	if got := spanTexts(records[1], types.FieldQuoted); len(got) != 2 || got[0] != "abc" || got[1] != "def" {
		t.Errorf("quoted = %v, want [abc def]", got)
	}
	if records[0].Source != "stream" {
		t.Errorf("source = %q, want stream", records[0].Source)
	}

	// every enabled field is present even when empty
	if len(records[1].Result) != len(types.PublicKinds) {
		t.Errorf("got %d fields, want %d", len(records[1].Result), len(types.PublicKinds))
	}
}

func TestOutputMonitor_Flush(t *testing.T) {
	om, writer := newMonitor(t, types.NewKindSet(types.IP))

	om.HandleData([]byte("last 192.168.0.1"))
	if got := len(writer.GetRecords()); got != 0 {
		t.Fatalf("got %d records before Flush, want 0", got)
	}

	om.Flush()
	records := writer.GetRecords()
	if len(records) != 1 {
		t.Fatalf("got %d records after Flush, want 1", len(records))
	}
	if got := spanTexts(records[0], types.FieldIP); len(got) != 1 || got[0] != "192.168.0.1" {
		t.Errorf("ip = %v, want [192.168.0.1]", got)
	}

	// nothing left to flush
	om.Flush()
	if got := len(writer.GetRecords()); got != 1 {
		t.Errorf("got %d records after second Flush, want 1", got)
	}
}

func TestOutputMonitor_HandleLine(t *testing.T) {
	om, writer := newMonitor(t, types.NewKindSet(types.Email))
	om.SetLineOffset(41)

	om.HandleLine("mail a@b.io")

	records := writer.GetRecords()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Index != 42 {
		t.Errorf("index = %d, want 42", records[0].Index)
	}
	if om.Lines() != 42 {
		t.Errorf("Lines() = %d, want 42", om.Lines())
	}
}

func TestOutputMonitor_IndexWrap(t *testing.T) {
	om, writer := newMonitor(t, types.NewKindSet(types.IP))
	// the next line reuses store key 0
	om.SetLineOffset(65536)

	om.HandleLine("1.2.3.4")
	om.HandleLine("5.6.7.8")

	records := writer.GetRecords()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Index != 65537 || records[1].Index != 65538 {
		t.Errorf("indices = %d,%d, want 65537,65538", records[0].Index, records[1].Index)
	}
	if got := spanTexts(records[1], types.FieldIP); len(got) != 1 || got[0] != "5.6.7.8" {
		t.Errorf("ip = %v, want [5.6.7.8]", got)
	}
}

func TestOutputMonitor_WriteError(t *testing.T) {
	reg, err := registry.Build(types.AllKinds())
	if err != nil {
		t.Fatal(err)
	}
	writer := testutil.NewMockRecordWriter()
	writer.SetError(errors.New("sink closed"))

	var logBuf bytes.Buffer
	om, err := NewOutputMonitor(reg, writer, diag.New(&logBuf, false))
	if err != nil {
		t.Fatal(err)
	}

	om.HandleData([]byte("one\ntwo\n"))

	// monitoring continues after a failed write
	if got := len(writer.GetAttempts()); got != 2 {
		t.Errorf("got %d attempts, want 2", got)
	}
	if om.Err() == nil || !strings.Contains(om.Err().Error(), "sink closed") {
		t.Errorf("Err() = %v, want sink closed", om.Err())
	}
	if !strings.Contains(logBuf.String(), "output error on line 1") {
		t.Errorf("log = %q, want output error", logBuf.String())
	}
}

func TestOutputMonitor_StripEscapes(t *testing.T) {
	om, writer := newMonitor(t, types.NewKindSet(types.IP))
	om.SetStripEscapes(true)

	om.HandleData([]byte("\033[1;31m10.0.0.1\033[0m\n\033]0;title\007ok\n"))

	records := writer.GetRecords()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Text != "10.0.0.1" {
		t.Errorf("text = %q, want 10.0.0.1", records[0].Text)
	}
	if records[1].Text != "ok" {
		t.Errorf("text = %q, want ok", records[1].Text)
	}
}

func TestOutputMonitor_ConcurrentAccess(t *testing.T) {
	om, writer := newMonitor(t, types.AllKinds())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			om.HandleLine("x 10.1.1.1")
			_ = om.Lines()
		}()
	}
	wg.Wait()

	if got := len(writer.GetRecords()); got != 10 {
		t.Errorf("got %d records, want 10", got)
	}
	if om.Lines() != 10 {
		t.Errorf("Lines() = %d, want 10", om.Lines())
	}
}

func TestNewOutputMonitor_NoRegistry(t *testing.T) {
	if _, err := NewOutputMonitor(nil, nil, nil); !errors.Is(err, registry.ErrNoDatabase) {
		t.Errorf("NewOutputMonitor(nil) error = %v, want ErrNoDatabase", err)
	}
}
