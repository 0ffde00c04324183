package ssml

import (
	"strings"
	"testing"
	"time"
)

func TestAnnotate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "plain text",
			text: "just some words",
			want: "<speak>just some words</speak>",
		},
		{
			name: "empty text",
			text: "",
			want: "<speak></speak>",
		},
		{
			name: "ampersand with spaces",
			text: "salt & pepper",
			want: "<speak>salt and pepper</speak>",
		},
		{
			name: "ampersand without spaces",
			text: "R&D",
			want: "<speak>R and D</speak>",
		},
		{
			name: "angle brackets escaped",
			text: "a < b > c",
			want: "<speak>a &lt; b &gt; c</speak>",
		},
		{
			name: "quoted span",
			text: `he said "hi" twice`,
			want: `<speak>he said <break time="250ms"/><emphasis level="moderate">"hi"</emphasis><break time="250ms"/> twice</speak>`,
		},
		{
			name: "quote does not span lines",
			text: "an \"open\nquote\" here",
			want: "<speak>an \"open<break time=\"1000ms\"/>\nquote\" here</speak>",
		},
		{
			name: "level two heading",
			text: "== Intro ==",
			want: `<speak><break time="3500ms"/>Topic <emphasis level="strong">Intro</emphasis><break time="3500ms"/></speak>`,
		},
		{
			name: "level three heading",
			text: "=== Deeper Part ===",
			want: `<speak><break time="3250ms"/>Topic <emphasis level="strong">Deeper Part</emphasis><break time="3250ms"/></speak>`,
		},
		{
			name: "ellipsis",
			text: "and then...",
			want: `<speak>and then<break time="1500ms"/>...</speak>`,
		},
		{
			name: "em dash",
			text: "wait—what",
			want: `<speak>wait<break time="500ms"/>—what</speak>`,
		},
		{
			name: "newlines collapse",
			text: "one\n\n\ntwo\nthree",
			want: "<speak>one<break time=\"1000ms\"/>\ntwo<break time=\"1000ms\"/>\nthree</speak>",
		},
		{
			name: "crlf line breaks collapse",
			text: "one\r\n\r\ntwo\r\nthree",
			want: "<speak>one<break time=\"1000ms\"/>\ntwo<break time=\"1000ms\"/>\nthree</speak>",
		},
		{
			name: "form feed becomes space",
			text: "page one\fpage two",
			want: "<speak>page one page two</speak>",
		},
		{
			name: "control characters become spaces",
			text: "bell\x07here\x00",
			want: "<speak>bell here </speak>",
		},
		{
			name: "invalid utf-8 dropped",
			text: "bad \xff byte",
			want: "<speak>bad  byte</speak>",
		},
		{
			name: "noncharacter replaced",
			text: "odd\uFFFEone",
			want: "<speak>odd one</speak>",
		},
		{
			name: "tab kept",
			text: "col\tcol",
			want: "<speak>col\tcol</speak>",
		},
	}

	a := NewAnnotator(DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Annotate(tt.text)
			if got != tt.want {
				t.Errorf("Annotate(%q)\n got: %q\nwant: %q", tt.text, got, tt.want)
			}
			if err := Validate(got); err != nil {
				t.Errorf("Annotate(%q) produced invalid markup: %v", tt.text, err)
			}
		})
	}
}

// TestAnnotate_RuleOrder pins the output of an input that exercises every
// rule at once. Reordering the rules changes this output.
func TestAnnotate_RuleOrder(t *testing.T) {
	text := "Hello \"world\"\n\n== Intro ==\nThis & that... \"so—\"\n"
	want := `<speak>Hello <break time="250ms"/><emphasis level="moderate">"world"</emphasis><break time="250ms"/><break time="1000ms"/>` + "\n" +
		`<break time="3500ms"/>Topic <emphasis level="strong">Intro</emphasis><break time="3500ms"/><break time="1000ms"/>` + "\n" +
		`This and that<break time="1500ms"/>... <break time="250ms"/><emphasis level="moderate">"so<break time="500ms"/>—"</emphasis><break time="250ms"/><break time="1000ms"/>` + "\n" +
		`</speak>`

	got := NewAnnotator(DefaultOptions()).Annotate(text)
	if got != want {
		t.Errorf("Annotate()\n got: %q\nwant: %q", got, want)
	}
	if err := Validate(got); err != nil {
		t.Errorf("invalid markup: %v", err)
	}
}

func TestAnnotate_CustomOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.QuoteBreak = 100 * time.Millisecond
	opts.QuoteEmphasis = EmphasisReduced
	opts.HeadingBreak = time.Second
	opts.HeadingDifference = 100 * time.Millisecond
	opts.HeadingEmphasis = EmphasisModerate
	opts.NewlineBreak = 2 * time.Second

	got := NewAnnotator(opts).Annotate("\"x\"\n= T =")
	want := `<speak><break time="100ms"/><emphasis level="reduced">"x"</emphasis><break time="100ms"/><break time="2000ms"/>` + "\n" +
		`<break time="900ms"/>Topic <emphasis level="moderate">T</emphasis><break time="900ms"/></speak>`
	if got != want {
		t.Errorf("Annotate()\n got: %q\nwant: %q", got, want)
	}
}

func TestAnnotate_EmDashScenario(t *testing.T) {
	text := "the quick brown fox — jumps over the lazy dog"
	got := NewAnnotator(DefaultOptions()).Annotate(text)

	if n := strings.Count(got, `<break time="500ms"/>`); n != 1 {
		t.Fatalf("expected exactly one 500ms break, got %d in %q", n, got)
	}
	if !strings.Contains(got, `<break time="500ms"/>—`) {
		t.Errorf("500ms break does not immediately precede the dash: %q", got)
	}
}

func TestAnnotate_Deterministic(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"\"a\" & \"b\"\n\n== H ==\n...—",
		"=== one === and == two ==\n\n\n\"three\"",
		"unterminated \" quote & < tags >",
	}

	for _, in := range inputs {
		a := NewAnnotator(DefaultOptions())
		first := a.Annotate(in)
		for i := 0; i < 5; i++ {
			if got := NewAnnotator(DefaultOptions()).Annotate(in); got != first {
				t.Fatalf("Annotate(%q) not deterministic: %q vs %q", in, got, first)
			}
		}
		if err := Validate(first); err != nil {
			t.Errorf("Annotate(%q) produced invalid markup %q: %v", in, first, err)
		}
	}
}

func TestHeadingBreak(t *testing.T) {
	a := NewAnnotator(DefaultOptions())

	tests := []struct {
		level int
		want  time.Duration
	}{
		{1, 3750 * time.Millisecond},
		{2, 3500 * time.Millisecond},
		{4, 3000 * time.Millisecond},
		{16, 0},
		{40, 0},
	}
	for _, tt := range tests {
		if got := a.HeadingBreak(tt.level); got != tt.want {
			t.Errorf("HeadingBreak(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Options) {}},
		{name: "negative break", modify: func(o *Options) { o.DashBreak = -time.Millisecond }, wantErr: true},
		{name: "unknown quote emphasis", modify: func(o *Options) { o.QuoteEmphasis = "loud" }, wantErr: true},
		{name: "unknown heading emphasis", modify: func(o *Options) { o.HeadingEmphasis = "" }, wantErr: true},
		{name: "none emphasis", modify: func(o *Options) { o.HeadingEmphasis = EmphasisNone }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
