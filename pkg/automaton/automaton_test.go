package automaton

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	id       uint32
	from, to uint64
}

func collectEvents(t *testing.T, db *Database, text string) []recorded {
	t.Helper()
	scratch, err := db.AllocScratch()
	require.NoError(t, err)

	var got []recorded
	err = db.Scan([]byte(text), scratch, func(id uint32, from, to uint64, _ uint32, _ interface{}) error {
		got = append(got, recorded{id: id, from: from, to: to})
		return nil
	}, nil)
	require.NoError(t, err)
	return got
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrNoPatterns)

	_, err = Compile([]Pattern{{Expression: "(", ID: 4}})
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.ID)

	_, err = Compile([]Pattern{{Expression: "", ID: 1}})
	assert.Error(t, err)

	_, err = Compile([]Pattern{{Expression: "a", ID: 1, Literals: []string{""}}})
	assert.Error(t, err)
}

func TestScan_ReportsEveryEndOffset(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a+", ID: 3, Flags: SomLeftmost}})
	require.NoError(t, err)

	got := collectEvents(t, db, "xaaa")
	assert.Equal(t, []recorded{
		{id: 3, from: 1, to: 2},
		{id: 3, from: 1, to: 3},
		{id: 3, from: 1, to: 4},
	}, got)
}

func TestScan_WithoutSomLeftmostStartIsZero(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "b", ID: 1}})
	require.NoError(t, err)

	got := collectEvents(t, db, "aab")
	assert.Equal(t, []recorded{{id: 1, from: 0, to: 3}}, got)
}

func TestScan_OrdersByEndThenID(t *testing.T) {
	db, err := Compile([]Pattern{
		{Expression: "b", ID: 2, Flags: SomLeftmost},
		{Expression: "ab", ID: 1, Flags: SomLeftmost},
	})
	require.NoError(t, err)

	got := collectEvents(t, db, "abab")
	assert.Equal(t, []recorded{
		{id: 1, from: 0, to: 2},
		{id: 2, from: 1, to: 2},
		{id: 1, from: 2, to: 4},
		{id: 2, from: 3, to: 4},
	}, got)
}

func TestScan_QuotedOverExtends(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: `(("(.*?)")|'(.*?)')`, ID: 3, Flags: Caseless | SomLeftmost}})
	require.NoError(t, err)

	got := collectEvents(t, db, `"abc" and "def"`)
	assert.Equal(t, []recorded{
		{id: 3, from: 0, to: 5},
		{id: 3, from: 0, to: 11},
		{id: 3, from: 0, to: 15},
	}, got)
}

func TestScan_Caseless(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "mozilla", ID: 6, Flags: Caseless | SomLeftmost}})
	require.NoError(t, err)

	got := collectEvents(t, db, "UA: Mozilla/5.0")
	assert.Equal(t, []recorded{{id: 6, from: 4, to: 11}}, got)
}

func TestScan_StartsAfterLineStart(t *testing.T) {
	db, err := Compile([]Pattern{
		{Expression: `(("(.*?)")|'(.*?)')`, ID: 3, Flags: Caseless | SomLeftmost},
		{Expression: `[\(]?(\d{3})[\)-]?[- ]?(\d{3})[- ]?(\d{4})`, ID: 5, Flags: Caseless | SomLeftmost},
	})
	require.NoError(t, err)

	assert.Equal(t, []recorded{
		{id: 3, from: 4, to: 8},
		{id: 3, from: 4, to: 14},
		{id: 3, from: 4, to: 17},
	}, collectEvents(t, db, `say "ab" and "cd"`))
	assert.Equal(t, []recorded{{id: 5, from: 5, to: 17}}, collectEvents(t, db, "call 555-123-4567"))
}

func TestScan_Anchors(t *testing.T) {
	db, err := Compile([]Pattern{
		{Expression: `^ab`, ID: 1, Flags: SomLeftmost},
		{Expression: `\bcd\b`, ID: 2, Flags: SomLeftmost},
		{Expression: `ef$`, ID: 3, Flags: SomLeftmost},
	})
	require.NoError(t, err)

	assert.Equal(t, []recorded{
		{id: 1, from: 0, to: 2},
		{id: 2, from: 3, to: 5},
		{id: 3, from: 11, to: 13},
	}, collectEvents(t, db, "ab cd abef ef"))
	assert.Empty(t, collectEvents(t, db, "xab abcd efx"))
}

func TestScan_LongLine(t *testing.T) {
	db, err := Compile([]Pattern{
		{Expression: `(("(.*?)")|'(.*?)')`, ID: 3, Flags: Caseless | SomLeftmost},
		{Expression: `\d{3}-\d{4}`, ID: 5, Flags: Caseless | SomLeftmost},
	})
	require.NoError(t, err)

	line := `"` + strings.Repeat("1 2 3 a ", 1024) + `" 555-1234`
	got := collectEvents(t, db, line)
	assert.Equal(t, []recorded{
		{id: 3, from: 0, to: uint64(len(line) - 9)},
		{id: 5, from: uint64(len(line) - 8), to: uint64(len(line))},
	}, got)
}

func BenchmarkScan_LongLine(b *testing.B) {
	db, err := Compile([]Pattern{
		{Expression: `(("(.*?)")|'(.*?)')`, ID: 3, Flags: Caseless | SomLeftmost},
		{Expression: `[\(]?(\d{3})[\)-]?[- ]?(\d{3})[- ]?(\d{4})`, ID: 5, Flags: Caseless | SomLeftmost},
	})
	require.NoError(b, err)
	scratch, err := db.AllocScratch()
	require.NoError(b, err)

	line := []byte(`"` + strings.Repeat("555 12 a ", 1000) + `"`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.Scan(line, scratch, nil, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func TestScan_SingleMatch(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a+", ID: 1, Flags: SomLeftmost | SingleMatch}})
	require.NoError(t, err)

	got := collectEvents(t, db, "xaaa")
	assert.Equal(t, []recorded{{id: 1, from: 1, to: 2}}, got)
}

func TestScan_LiteralPrefilterSkipsPattern(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "sign", ID: 1, Flags: SomLeftmost, Literals: []string{"@"}}})
	require.NoError(t, err)

	assert.Empty(t, collectEvents(t, db, "no at sign"))
	assert.Len(t, collectEvents(t, db, "@ sign"), 1)
}

func TestScan_EmptyInput(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a", ID: 1}})
	require.NoError(t, err)
	assert.Empty(t, collectEvents(t, db, ""))
}

func TestScan_HandlerTermination(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a", ID: 1, Flags: SomLeftmost}})
	require.NoError(t, err)
	scratch, err := db.AllocScratch()
	require.NoError(t, err)

	calls := 0
	err = db.Scan([]byte("aaaa"), scratch, func(uint32, uint64, uint64, uint32, interface{}) error {
		calls++
		return ErrScanTerminated
	}, nil)
	assert.ErrorIs(t, err, ErrScanTerminated)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = db.Scan([]byte("a"), scratch, func(uint32, uint64, uint64, uint32, interface{}) error {
		return boom
	}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestScan_ScratchInUse(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a", ID: 1}})
	require.NoError(t, err)
	scratch, err := db.AllocScratch()
	require.NoError(t, err)

	err = db.Scan([]byte("a"), scratch, func(uint32, uint64, uint64, uint32, interface{}) error {
		return db.Scan([]byte("a"), scratch, nil, nil)
	}, nil)
	assert.ErrorIs(t, err, ErrScratchInUse)

	// released after the outer scan returns
	assert.NoError(t, db.Scan([]byte("a"), scratch, nil, nil))
}

func TestScan_ScratchMismatch(t *testing.T) {
	db1, err := Compile([]Pattern{{Expression: "a", ID: 1}})
	require.NoError(t, err)
	db2, err := Compile([]Pattern{{Expression: "b", ID: 1}})
	require.NoError(t, err)
	scratch, err := db2.AllocScratch()
	require.NoError(t, err)

	assert.ErrorIs(t, db1.Scan([]byte("a"), scratch, nil, nil), ErrScratchMismatch)
	assert.ErrorIs(t, db1.Scan([]byte("a"), nil, nil, nil), ErrScratchMismatch)
}

func TestScan_ContextPassedThrough(t *testing.T) {
	db, err := Compile([]Pattern{{Expression: "a", ID: 1}})
	require.NoError(t, err)
	scratch, err := db.AllocScratch()
	require.NoError(t, err)

	type lineCtx struct{ line int }
	want := &lineCtx{line: 7}
	err = db.Scan([]byte("a"), scratch, func(_ uint32, _, _ uint64, _ uint32, ctx interface{}) error {
		assert.Same(t, want, ctx)
		return nil
	}, want)
	require.NoError(t, err)
}
