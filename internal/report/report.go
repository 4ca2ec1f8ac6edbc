package report

import (
	"fmt"
	"strings"

	"github.com/m3rciful/cowinbot/core/telegram/format"
	"github.com/m3rciful/cowinbot/internal/cowin"
)

// Render formats centers that have at least one session with free capacity
// into a MarkdownV2 report. Centers with no capacity anywhere are dropped.
// Returns the empty string when nothing is available.
//
// Per-center layout:
//
//	1\. *`Center Name`* 45\+ _Free_
//			`14/05/2021` COVISHIELD `12` slots
//
// The headline age limit is taken from the center's last available session.
func Render(centers []cowin.Center) string {
	var b strings.Builder
	n := 0
	for _, center := range centers {
		available := availableSessions(center.Sessions)
		if len(available) == 0 {
			continue
		}
		n++
		if n > 1 {
			b.WriteByte('\n')
		}
		last := available[len(available)-1]
		fmt.Fprintf(&b, "%d\\. *`%s`* %d\\+ _%s_\n",
			n, center.Name, last.MinAgeLimit, format.EscapeMarkdownV2(center.FeeType))
		for _, s := range available {
			fmt.Fprintf(&b, "\t\t`%s` %s `%d` slots\n",
				s.Date, format.EscapeMarkdownV2(s.Vaccine), s.AvailableCapacity)
		}
	}
	return b.String()
}

func availableSessions(sessions []cowin.Session) []cowin.Session {
	var out []cowin.Session
	for _, s := range sessions {
		if s.AvailableCapacity > 0 {
			out = append(out, s)
		}
	}
	return out
}

// FilterByPincode returns centers whose pincode matches exactly,
// preserving input order.
func FilterByPincode(centers []cowin.Center, pincode string) []cowin.Center {
	var out []cowin.Center
	for _, c := range centers {
		if c.Pincode.String() == pincode {
			out = append(out, c)
		}
	}
	return out
}

// SplitChunks splits text into chunks no longer than limit characters,
// breaking only at line boundaries. Joining chunks with "\n" restores the
// input, except that trailing newlines are dropped rather than emitted as
// an empty chunk. A single line longer than limit becomes its own oversized
// chunk rather than being cut mid-line.
func SplitChunks(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var cur strings.Builder
	for _, line := range lines {
		if cur.Len() == 0 {
			cur.WriteString(line)
			continue
		}
		if cur.Len()+1+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
			cur.WriteString(line)
			continue
		}
		cur.WriteByte('\n')
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
