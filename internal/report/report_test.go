package report

import (
	"strings"
	"testing"

	"github.com/m3rciful/cowinbot/internal/cowin"
)

func center(name, pincode, fee string, sessions ...cowin.Session) cowin.Center {
	return cowin.Center{
		Name:     name,
		Pincode:  cowin.Pincode(pincode),
		FeeType:  fee,
		Sessions: sessions,
	}
}

func session(date, vaccine string, age, capacity int) cowin.Session {
	return cowin.Session{Date: date, Vaccine: vaccine, MinAgeLimit: age, AvailableCapacity: capacity}
}

func TestRenderSkipsUnavailable(t *testing.T) {
	centers := []cowin.Center{
		center("Empty Center", "110001", "Free",
			session("14/05/2021", "COVISHIELD", 45, 0),
		),
		center("Open Center", "110002", "Free",
			session("14/05/2021", "COVISHIELD", 45, 0),
			session("15/05/2021", "COVISHIELD", 18, 7),
		),
	}

	out := Render(centers)
	if strings.Contains(out, "Empty Center") {
		t.Error("center with no capacity should be dropped")
	}
	if !strings.Contains(out, "Open Center") {
		t.Error("center with capacity missing from report")
	}
	if strings.Contains(out, "14/05/2021") {
		t.Error("session with zero capacity should be dropped")
	}
	if !strings.HasPrefix(out, "1\\. ") {
		t.Errorf("report should start with numbered entry, got %q", out)
	}
}

func TestRenderEmpty(t *testing.T) {
	if out := Render(nil); out != "" {
		t.Errorf("Render(nil) = %q, want empty", out)
	}
	centers := []cowin.Center{
		center("Closed", "110001", "Free", session("14/05/2021", "COVAXIN", 18, 0)),
	}
	if out := Render(centers); out != "" {
		t.Errorf("Render(all unavailable) = %q, want empty", out)
	}
}

func TestRenderLayout(t *testing.T) {
	centers := []cowin.Center{
		center("GTB Hospital", "110095", "Free",
			session("14/05/2021", "COVISHIELD", 45, 12),
			session("16/05/2021", "COVISHIELD", 18, 3),
		),
		center("Max Clinic", "110092", "Paid",
			session("15/05/2021", "COVAXIN", 18, 5),
		),
	}

	out := Render(centers)
	want := "1\\. *`GTB Hospital`* 18\\+ _Free_\n" +
		"\t\t`14/05/2021` COVISHIELD `12` slots\n" +
		"\t\t`16/05/2021` COVISHIELD `3` slots\n" +
		"\n" +
		"2\\. *`Max Clinic`* 18\\+ _Paid_\n" +
		"\t\t`15/05/2021` COVAXIN `5` slots\n"
	if out != want {
		t.Errorf("Render mismatch:\ngot:\n%q\nwant:\n%q", out, want)
	}
}

func TestRenderAgeFromLastAvailableSession(t *testing.T) {
	centers := []cowin.Center{
		center("Mixed Ages", "110001", "Free",
			session("14/05/2021", "COVISHIELD", 45, 2),
			session("15/05/2021", "COVISHIELD", 18, 4),
		),
	}
	out := Render(centers)
	if !strings.Contains(out, " 18\\+ ") {
		t.Errorf("headline age should come from last available session, got %q", out)
	}
}

func TestFilterByPincode(t *testing.T) {
	centers := []cowin.Center{
		center("A", "110001", "Free"),
		center("B", "110002", "Free"),
		center("C", "110001", "Paid"),
	}

	got := FilterByPincode(centers, "110001")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "A" || got[1].Name != "C" {
		t.Errorf("order not preserved: %v, %v", got[0].Name, got[1].Name)
	}

	if got := FilterByPincode(centers, "999999"); len(got) != 0 {
		t.Errorf("no-match filter returned %d centers", len(got))
	}
}

func TestSplitChunksShortText(t *testing.T) {
	got := SplitChunks("hello\nworld", 100)
	if len(got) != 1 || got[0] != "hello\nworld" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitChunksRoundTrip(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", 40))
	}
	text := strings.Join(lines, "\n")

	chunks := SplitChunks(text, 500)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 500 {
			t.Errorf("chunk %d length %d exceeds limit", i, len(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d has dangling newline: %q", i, c)
		}
	}
	if joined := strings.Join(chunks, "\n"); joined != text {
		t.Error("joining chunks does not restore input")
	}
}

func TestSplitChunksNoMidLineSplit(t *testing.T) {
	text := strings.Repeat("abcde\n", 50) + "abcde"
	for _, c := range SplitChunks(text, 17) {
		for _, line := range strings.Split(c, "\n") {
			if line != "abcde" {
				t.Fatalf("line split mid-way: %q", line)
			}
		}
	}
}

func TestSplitChunksOversizedLine(t *testing.T) {
	long := strings.Repeat("y", 80)
	text := "short\n" + long + "\nshort"

	chunks := SplitChunks(text, 20)
	found := false
	for _, c := range chunks {
		if c == long {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized line should become its own chunk: %q", chunks)
	}
	if joined := strings.Join(chunks, "\n"); joined != text {
		t.Error("joining chunks does not restore input")
	}
}

func TestSplitChunksTrailingNewline(t *testing.T) {
	// An exact-fill chunk followed by a trailing newline must not
	// produce an empty chunk.
	got := SplitChunks(strings.Repeat("x", 10)+"\n", 10)
	if len(got) != 1 || got[0] != strings.Repeat("x", 10) {
		t.Fatalf("got %q", got)
	}

	got = SplitChunks("abcde\nabcde\n", 5)
	for i, c := range got {
		if c == "" {
			t.Fatalf("chunk %d is empty: %q", i, got)
		}
	}
}

func TestSplitChunksEmpty(t *testing.T) {
	if got := SplitChunks("", 10); got != nil {
		t.Errorf("SplitChunks(\"\") = %q, want nil", got)
	}
}
