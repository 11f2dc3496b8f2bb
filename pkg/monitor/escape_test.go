package monitor

import "testing"

func TestEscapeStripper(t *testing.T) {
	tests := []struct {
		name  string
		input [][]byte // multiple chunks to test carried state
		want  string
	}{
		{
			name:  "plain text",
			input: [][]byte{[]byte("normal text output")},
			want:  "normal text output",
		},
		{
			name:  "color codes",
			input: [][]byte{[]byte("\033[31mred\033[0m")},
			want:  "red",
		},
		{
			name:  "clear screen",
			input: [][]byte{[]byte("hello\033[2Jworld")},
			want:  "helloworld",
		},
		{
			name:  "sequence split across chunks",
			input: [][]byte{[]byte("text\033[2"), []byte("Jmore")},
			want:  "textmore",
		},
		{
			name:  "escape at chunk end",
			input: [][]byte{[]byte("start\033"), []byte("[2J\033["), []byte("3Jend")},
			want:  "startend",
		},
		{
			name:  "reset terminal",
			input: [][]byte{[]byte("before\033cafter")},
			want:  "beforeafter",
		},
		{
			name:  "title terminated by BEL",
			input: [][]byte{[]byte("\033]0;my title\007rest")},
			want:  "rest",
		},
		{
			name:  "title terminated by ST",
			input: [][]byte{[]byte("\033]2;t\033\\rest")},
			want:  "rest",
		},
		{
			name:  "charset designation",
			input: [][]byte{[]byte("a\033(Bb")},
			want:  "ab",
		},
		{
			name:  "private mode",
			input: [][]byte{[]byte("\033[?1004hx\033[?25l")},
			want:  "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEscapeStripper()
			var got []byte
			for _, chunk := range tt.input {
				got = append(got, s.Strip(chunk)...)
			}
			if string(got) != tt.want {
				t.Errorf("Strip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeStripper_Reset(t *testing.T) {
	s := NewEscapeStripper()
	_ = s.Strip([]byte("\033[31"))
	s.Reset()
	if got := string(s.Strip([]byte("mtext"))); got != "mtext" {
		t.Errorf("Strip() after Reset = %q, want %q", got, "mtext")
	}
}
