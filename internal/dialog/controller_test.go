package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/cowinbot/internal/cowin"
)

type fakeProvider struct {
	states    func() ([]cowin.State, error)
	districts func(stateID int) ([]cowin.District, error)
	byDist    func(districtID int, date string) ([]cowin.Center, error)
	byPin     func(pincode, date string) ([]cowin.Center, error)
}

func (f *fakeProvider) States(context.Context) ([]cowin.State, error) {
	if f.states == nil {
		return []cowin.State{{StateID: 9, StateName: "Delhi"}, {StateID: 17, StateName: "Kerala"}}, nil
	}
	return f.states()
}

func (f *fakeProvider) Districts(_ context.Context, stateID int) ([]cowin.District, error) {
	if f.districts == nil {
		return []cowin.District{{DistrictID: 145, DistrictName: "East Delhi"}}, nil
	}
	return f.districts(stateID)
}

func (f *fakeProvider) CentersByDistrict(_ context.Context, districtID int, date string) ([]cowin.Center, error) {
	if f.byDist == nil {
		return nil, nil
	}
	return f.byDist(districtID, date)
}

func (f *fakeProvider) CentersByPincode(_ context.Context, pincode, date string) ([]cowin.Center, error) {
	if f.byPin == nil {
		return nil, nil
	}
	return f.byPin(pincode, date)
}

type sentMsg struct {
	kind string
	text string
	rows [][]string
}

type fakeOutbox struct {
	msgs []sentMsg
}

func (o *fakeOutbox) Markdown(text string, rows [][]string) error {
	o.msgs = append(o.msgs, sentMsg{"markdown", text, rows})
	return nil
}

func (o *fakeOutbox) Plain(text string, rows [][]string) error {
	o.msgs = append(o.msgs, sentMsg{"plain", text, rows})
	return nil
}

func (o *fakeOutbox) RemoveKeyboard(text string) error {
	o.msgs = append(o.msgs, sentMsg{"remove", text, nil})
	return nil
}

func (o *fakeOutbox) last(t *testing.T) sentMsg {
	t.Helper()
	if len(o.msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return o.msgs[len(o.msgs)-1]
}

type recordedSearches struct {
	recs []SearchRecord
}

func (r *recordedSearches) Record(_ context.Context, rec SearchRecord) {
	r.recs = append(r.recs, rec)
}

func fixedNow() time.Time {
	return time.Date(2021, 5, 14, 10, 0, 0, 0, time.UTC)
}

func newController(t *testing.T, p Provider, opts ...func(*Options)) *Controller {
	t.Helper()
	o := Options{Provider: p, MessageCharLimit: 4096, Now: fixedNow}
	for _, fn := range opts {
		fn(&o)
	}
	ctl, err := NewController(o)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctl
}

func openCenter(name, pincode string) cowin.Center {
	return cowin.Center{
		Name:    name,
		Pincode: cowin.Pincode(pincode),
		FeeType: "Free",
		Sessions: []cowin.Session{
			{Date: "14/05/2021", Vaccine: "COVISHIELD", MinAgeLimit: 18, AvailableCapacity: 5},
		},
	}
}

const userID = int64(42)

func TestStartListsStates(t *testing.T) {
	ctl := newController(t, &fakeProvider{})
	out := &fakeOutbox{}

	if err := ctl.Start(context.Background(), userID, "/start", out); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msg := out.last(t)
	if msg.text != "Enter *PINCODE* or select *STATE*:" {
		t.Errorf("text = %q", msg.text)
	}
	if len(msg.rows) != 1 || len(msg.rows[0]) != 2 {
		t.Errorf("rows = %v, want one row of two states", msg.rows)
	}
	if msg.rows[0][0] != "9. Delhi" {
		t.Errorf("label = %q", msg.rows[0][0])
	}
	if !ctl.InProgress(userID) {
		t.Error("conversation should be in progress after start")
	}
}

func TestStateChoiceListsDistricts(t *testing.T) {
	ctl := newController(t, &fakeProvider{})
	out := &fakeOutbox{}
	ctx := context.Background()

	mustStart(t, ctl, out)
	if err := ctl.HandleText(ctx, userID, "9. Delhi", out); err != nil {
		t.Fatalf("HandleText: %v", err)
	}

	msg := out.last(t)
	if msg.text != "Select district:" {
		t.Errorf("text = %q", msg.text)
	}
	if msg.rows[0][0] != "145. East Delhi" {
		t.Errorf("label = %q", msg.rows[0][0])
	}
	if got := ctl.store.Stage(userID); got != StageDistrict {
		t.Errorf("stage = %v, want district", got)
	}
}

func TestDistrictSearchSmallReport(t *testing.T) {
	provider := &fakeProvider{
		byDist: func(districtID int, date string) ([]cowin.Center, error) {
			if districtID != 145 {
				t.Errorf("districtID = %d", districtID)
			}
			if date != "14/05/2021" {
				t.Errorf("date = %q", date)
			}
			return []cowin.Center{openCenter("GTB Hospital", "110095")}, nil
		},
	}
	recs := &recordedSearches{}
	ctl := newController(t, provider, func(o *Options) { o.Recorder = recs })
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	out.msgs = nil
	mustHandle(t, ctl, out, "145. East Delhi")

	if len(out.msgs) != 3 {
		t.Fatalf("sent %d messages, want header+report+instruction", len(out.msgs))
	}
	if out.msgs[0].text != "Slots for next *7* days from *14/05/2021* :" {
		t.Errorf("header = %q", out.msgs[0].text)
	}
	if !strings.Contains(out.msgs[1].text, "GTB Hospital") {
		t.Errorf("report = %q", out.msgs[1].text)
	}
	if !strings.Contains(out.msgs[2].text, "selfregistration.cowin.gov.in") {
		t.Errorf("instruction = %q", out.msgs[2].text)
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
	if len(recs.recs) != 1 || recs.recs[0].Method != "district" || recs.recs[0].Centers != 1 {
		t.Errorf("records = %+v", recs.recs)
	}
}

func TestDistrictSearchNoSlots(t *testing.T) {
	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return nil, nil },
	})
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	out.msgs = nil
	mustHandle(t, ctl, out, "145. East Delhi")

	if len(out.msgs) != 1 || out.msgs[0].text != "No slots available" {
		t.Fatalf("msgs = %+v", out.msgs)
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
}

func TestOversizedDistrictReportAsksPincode(t *testing.T) {
	var centers []cowin.Center
	for i := 0; i < 10; i++ {
		centers = append(centers, openCenter("Center "+strings.Repeat("A", 30), "110001"))
	}
	centers = append(centers, openCenter("Target Hospital", "110095"))

	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return centers, nil },
	}, func(o *Options) { o.MessageCharLimit = 300 })
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	out.msgs = nil
	mustHandle(t, ctl, out, "145. East Delhi")

	if len(out.msgs) != 1 || out.msgs[0].text != "Too many results! Enter pincode to filter:" {
		t.Fatalf("msgs = %+v", out.msgs)
	}
	if got := ctl.store.Stage(userID); got != StagePincode {
		t.Fatalf("stage = %v, want pincode", got)
	}

	out.msgs = nil
	mustHandle(t, ctl, out, "110095")

	if len(out.msgs) != 3 {
		t.Fatalf("sent %d messages after filter, want 3", len(out.msgs))
	}
	if !strings.Contains(out.msgs[1].text, "Target Hospital") {
		t.Errorf("filtered report = %q", out.msgs[1].text)
	}
	if strings.Contains(out.msgs[1].text, "Center A") {
		t.Error("filter leaked other pincodes into report")
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
}

func TestPincodeCacheClearedAfterFilter(t *testing.T) {
	var centers []cowin.Center
	for i := 0; i < 20; i++ {
		centers = append(centers, openCenter("Center "+strings.Repeat("A", 30), "110001"))
	}
	centers = append(centers, openCenter("Target Hospital", "110095"))

	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return centers, nil },
	}, func(o *Options) { o.MessageCharLimit = 300 })
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	mustHandle(t, ctl, out, "145. East Delhi")

	if ctl.store.Get(userID).Centers == nil {
		t.Fatal("oversized report should cache the calendar for filtering")
	}

	mustHandle(t, ctl, out, "110095")
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Fatalf("stage = %v, want done", got)
	}
	if cached := ctl.store.Get(userID).Centers; cached != nil {
		t.Errorf("calendar still cached after filter: %d centers", len(cached))
	}
}

func TestDirectPincodeSearchChunked(t *testing.T) {
	var centers []cowin.Center
	for i := 0; i < 15; i++ {
		centers = append(centers, openCenter("Hospital "+strings.Repeat("C", 30), "110095"))
	}
	const limit = 300

	ctl := newController(t, &fakeProvider{
		byPin: func(string, string) ([]cowin.Center, error) { return centers, nil },
	}, func(o *Options) { o.MessageCharLimit = limit })
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	out.msgs = nil
	mustHandle(t, ctl, out, "110095")

	if len(out.msgs) < 4 {
		t.Fatalf("sent %d messages, want header + several chunks + instruction", len(out.msgs))
	}
	if out.msgs[0].text != "Slots for next *7* days from *14/05/2021* :" {
		t.Errorf("header = %q", out.msgs[0].text)
	}
	last := out.msgs[len(out.msgs)-1]
	if last.kind != "plain" || !strings.Contains(last.text, "selfregistration.cowin.gov.in") {
		t.Errorf("closing message = %+v", last)
	}

	chunks := out.msgs[1 : len(out.msgs)-1]
	for i, chunk := range chunks {
		if chunk.text == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if len(chunk.text) > limit {
			t.Errorf("chunk %d length %d exceeds %d", i, len(chunk.text), limit)
		}
		if !strings.Contains(chunk.text, "Hospital") {
			t.Errorf("chunk %d carries no centers: %q", i, chunk.text)
		}
	}

	var joined strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			joined.WriteByte('\n')
		}
		joined.WriteString(chunk.text)
	}
	if got := strings.Count(joined.String(), "Hospital"); got != len(centers) {
		t.Errorf("chunks carry %d centers, want %d", got, len(centers))
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
}

func TestPincodeFilterNoMatch(t *testing.T) {
	var centers []cowin.Center
	for i := 0; i < 20; i++ {
		centers = append(centers, openCenter("Center "+strings.Repeat("B", 30), "110001"))
	}
	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return centers, nil },
	}, func(o *Options) { o.MessageCharLimit = 300 })
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	mustHandle(t, ctl, out, "145. East Delhi")
	out.msgs = nil
	mustHandle(t, ctl, out, "999999")

	if len(out.msgs) != 1 || out.msgs[0].text != "No slots available" {
		t.Fatalf("msgs = %+v", out.msgs)
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
}

func TestDirectPincodeSearch(t *testing.T) {
	ctl := newController(t, &fakeProvider{
		byPin: func(pincode, date string) ([]cowin.Center, error) {
			if pincode != "110095" {
				t.Errorf("pincode = %q", pincode)
			}
			return []cowin.Center{openCenter("GTB Hospital", "110095")}, nil
		},
	})
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	out.msgs = nil
	mustHandle(t, ctl, out, "110095")

	if len(out.msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(out.msgs))
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
}

func TestRepeatPincodeOffer(t *testing.T) {
	calls := 0
	ctl := newController(t, &fakeProvider{
		byPin: func(pincode, date string) ([]cowin.Center, error) {
			calls++
			return []cowin.Center{openCenter("GTB Hospital", "110095")}, nil
		},
	})
	out := &fakeOutbox{}
	ctx := context.Background()

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "110095")
	mustHandle(t, ctl, out, "Done")

	out.msgs = nil
	if err := ctl.Start(ctx, userID, "/start", out); err != nil {
		t.Fatalf("restart: %v", err)
	}
	msg := out.last(t)
	if msg.text != "Do you want to repeat previous search? " {
		t.Fatalf("text = %q", msg.text)
	}
	if msg.rows[0][0] != "PINCODE: 110095" {
		t.Errorf("repeat row = %q", msg.rows[0][0])
	}

	mustHandle(t, ctl, out, "PINCODE: 110095")
	if calls != 2 {
		t.Errorf("provider called %d times, want 2", calls)
	}
}

func TestRepeatDistrictOffer(t *testing.T) {
	calls := 0
	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) {
			calls++
			return []cowin.Center{openCenter("GTB Hospital", "110095")}, nil
		},
	})
	out := &fakeOutbox{}
	ctx := context.Background()

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	mustHandle(t, ctl, out, "145. East Delhi")
	mustHandle(t, ctl, out, "Done")

	out.msgs = nil
	if err := ctl.Start(ctx, userID, "/start", out); err != nil {
		t.Fatalf("restart: %v", err)
	}
	msg := out.last(t)
	if msg.rows[0][0] != "Delhi : East Delhi" {
		t.Errorf("repeat row = %q", msg.rows[0][0])
	}

	mustHandle(t, ctl, out, "Delhi : East Delhi")
	if calls != 2 {
		t.Errorf("provider called %d times, want 2", calls)
	}
}

func TestNewSearchResets(t *testing.T) {
	ctl := newController(t, &fakeProvider{
		byPin: func(string, string) ([]cowin.Center, error) {
			return []cowin.Center{openCenter("GTB Hospital", "110095")}, nil
		},
	})
	out := &fakeOutbox{}
	ctx := context.Background()

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "110095")
	mustHandle(t, ctl, out, "Done")
	if err := ctl.Start(ctx, userID, "/start", out); err != nil {
		t.Fatalf("restart: %v", err)
	}

	out.msgs = nil
	mustHandle(t, ctl, out, "New Search")
	if out.last(t).text != "Enter *PINCODE* or select *STATE*:" {
		t.Errorf("New Search should restart state listing, got %q", out.last(t).text)
	}
}

func TestProviderFailure(t *testing.T) {
	boom := errors.New("connection refused")
	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return nil, boom },
	})
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	out.msgs = nil
	mustHandle(t, ctl, out, "145. East Delhi")

	if len(out.msgs) != 1 || out.msgs[0].text != "API Error" {
		t.Fatalf("msgs = %+v", out.msgs)
	}
	if got := ctl.store.Stage(userID); got != StageDone {
		t.Errorf("stage = %v, want done", got)
	}
	if centers := ctl.store.Get(userID).Centers; centers != nil {
		t.Error("failed search must not cache centers")
	}
}

func TestStartProviderFailure(t *testing.T) {
	ctl := newController(t, &fakeProvider{
		states: func() ([]cowin.State, error) { return nil, errors.New("timeout") },
	})
	out := &fakeOutbox{}

	if err := ctl.Start(context.Background(), userID, "/start", out); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if out.last(t).text != "API Error" {
		t.Errorf("text = %q", out.last(t).text)
	}
}

func TestMalformedInputIgnored(t *testing.T) {
	ctl := newController(t, &fakeProvider{})
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	out.msgs = nil
	for _, text := range []string{"hello", "12345", "1234567", "9.Delhi", "random words?"} {
		mustHandle(t, ctl, out, text)
	}
	if len(out.msgs) != 0 {
		t.Fatalf("malformed input produced replies: %+v", out.msgs)
	}
	if got := ctl.store.Stage(userID); got != StageState {
		t.Errorf("stage = %v, want state (unchanged)", got)
	}
}

func TestDoneStageTotality(t *testing.T) {
	ctl := newController(t, &fakeProvider{
		byDist: func(int, string) ([]cowin.Center, error) { return nil, nil },
	})
	out := &fakeOutbox{}

	mustStart(t, ctl, out)
	mustHandle(t, ctl, out, "9. Delhi")
	mustHandle(t, ctl, out, "145. East Delhi")

	out.msgs = nil
	mustHandle(t, ctl, out, "anything else")
	if len(out.msgs) != 0 {
		t.Fatalf("done stage replied to arbitrary text: %+v", out.msgs)
	}

	mustHandle(t, ctl, out, "Done")
	if out.last(t).kind != "remove" || !strings.HasPrefix(out.last(t).text, "Thank you !") {
		t.Errorf("farewell = %+v", out.last(t))
	}
	if ctl.InProgress(userID) {
		t.Error("conversation should be idle after farewell")
	}
}

func TestIdleIgnoresText(t *testing.T) {
	ctl := newController(t, &fakeProvider{})
	out := &fakeOutbox{}
	mustHandle(t, ctl, out, "hello")
	if len(out.msgs) != 0 {
		t.Fatalf("idle stage replied: %+v", out.msgs)
	}
	if ctl.InProgress(userID) {
		t.Error("idle user should not be in progress")
	}
}

func mustStart(t *testing.T, ctl *Controller, out *fakeOutbox) {
	t.Helper()
	if err := ctl.Start(context.Background(), userID, "/start", out); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func mustHandle(t *testing.T, ctl *Controller, out *fakeOutbox, text string) {
	t.Helper()
	if err := ctl.HandleText(context.Background(), userID, text, out); err != nil {
		t.Fatalf("HandleText(%q): %v", text, err)
	}
}
