package dialog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/cowinbot/core/logger"
	"github.com/m3rciful/cowinbot/core/telegram/keyboard"
	"github.com/m3rciful/cowinbot/internal/cowin"
	"github.com/m3rciful/cowinbot/internal/report"

	"log/slog"
)

// Provider fetches location and slot data. *cowin.Client satisfies it.
type Provider interface {
	States(ctx context.Context) ([]cowin.State, error)
	Districts(ctx context.Context, stateID int) ([]cowin.District, error)
	CentersByDistrict(ctx context.Context, districtID int, date string) ([]cowin.Center, error)
	CentersByPincode(ctx context.Context, pincode, date string) ([]cowin.Center, error)
}

// Outbox delivers replies for the update being handled. Rows, when
// non-nil, become a one-time reply keyboard.
type Outbox interface {
	Markdown(text string, rows [][]string) error
	Plain(text string, rows [][]string) error
	RemoveKeyboard(text string) error
}

// SearchRecord describes one completed slot search for the audit trail.
type SearchRecord struct {
	UserID       int64
	Method       string
	StateName    string
	DistrictName string
	Pincode      string
	Centers      int
	Chunks       int
}

// Recorder persists completed searches. Implementations must tolerate
// being called from handler goroutines.
type Recorder interface {
	Record(ctx context.Context, rec SearchRecord)
}

const (
	msgChooseStateOrPin = "Enter *PINCODE* or select *STATE*:"
	msgChooseDistrict   = "Select district:"
	msgRepeatSearch     = "Do you want to repeat previous search? "
	msgTooManyResults   = "Too many results! Enter pincode to filter:"
	msgNoSlots          = "No slots available"
	msgAPIError         = "API Error"
	msgInstruction      = "Visit https://selfregistration.cowin.gov.in/ to book your slots.\nHappy vaccination!"
	msgFarewell         = "Thank you !\n\nIf you want to start a new search, Press /start again."

	labelNewSearch = "New Search"
	labelDone      = "Done"
)

var (
	reMenuChoice    = regexp.MustCompile(`^\d+\.\s[\s\w]+$`)
	rePincode       = regexp.MustCompile(`^\d{6}$`)
	reRepeatPincode = regexp.MustCompile(`^PINCODE: \d{6}$`)
	reRepeatRegion  = regexp.MustCompile(`^[\s\w]+\s:\s[\s\w]+$`)
)

const (
	methodDistrict        = "district"
	methodPincode         = "pincode"
	methodDistrictPincode = "district_pincode"
)

// Options configure a Controller.
type Options struct {
	Provider Provider
	Recorder Recorder
	// MessageCharLimit caps a single outbound message; reports longer than
	// this are narrowed by pincode or split into chunks.
	MessageCharLimit int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Controller drives the slot search conversation: state pick, district
// pick, optional pincode narrowing, then a formatted report.
type Controller struct {
	store    *Store
	provider Provider
	recorder Recorder
	limit    int
	now      func() time.Time
}

// NewController builds a Controller. Provider is required.
func NewController(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("dialog: provider is required")
	}
	limit := opts.MessageCharLimit
	if limit <= 0 {
		limit = 4096
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:    NewStore(),
		provider: opts.Provider,
		recorder: opts.Recorder,
		limit:    limit,
		now:      now,
	}, nil
}

// InProgress reports whether the user has an active conversation.
func (ctl *Controller) InProgress(userID int64) bool {
	return ctl.store.Stage(userID) != StageIdle
}

// Start begins or restarts the conversation. If a previous search is
// remembered it offers to repeat it; otherwise it lists states.
func (ctl *Controller) Start(ctx context.Context, userID int64, text string, out Outbox) error {
	sess := ctl.store.Get(userID)
	sess.Lock()
	defer sess.Unlock()
	return ctl.start(ctx, userID, sess, text, out)
}

// HandleText routes a plain text update according to the current stage.
// Input that matches nothing at the current stage is silently ignored.
func (ctl *Controller) HandleText(ctx context.Context, userID int64, text string, out Outbox) error {
	sess := ctl.store.Get(userID)
	sess.Lock()
	defer sess.Unlock()

	switch sess.Stage {
	case StageIdle:
		return nil
	case StageState:
		return ctl.handleStateStage(ctx, userID, sess, text, out)
	case StageDistrict:
		return ctl.handleDistrictStage(ctx, userID, sess, text, out)
	case StagePincode:
		return ctl.handlePincodeStage(ctx, userID, sess, text, out)
	case StageDone:
		if text == labelDone {
			return ctl.farewell(sess, out)
		}
		return nil
	}
	return nil
}

func (ctl *Controller) start(ctx context.Context, userID int64, sess *Session, text string, out Outbox) error {
	if text == labelNewSearch {
		sess.Reset()
	}

	if sess.HasDistrictSearch() {
		rows := [][]string{
			{sess.StateName + " : " + sess.DistrictName},
			{labelNewSearch, labelDone},
		}
		ctl.transition(ctx, sess, StageDistrict, "repeat_offer")
		return out.Plain(msgRepeatSearch, rows)
	}
	if sess.Pincode != "" {
		rows := [][]string{
			{"PINCODE: " + sess.Pincode},
			{labelNewSearch, labelDone},
		}
		ctl.transition(ctx, sess, StageState, "repeat_offer")
		return out.Plain(msgRepeatSearch, rows)
	}

	states, err := ctl.provider.States(ctx)
	if err != nil {
		return ctl.apiError(ctx, sess, "states", err, out)
	}

	labels := make([]string, 0, len(states))
	for _, s := range states {
		labels = append(labels, fmt.Sprintf("%d. %s", s.StateID, s.StateName))
	}
	ctl.transition(ctx, sess, StageState, "states_listed")
	return out.Markdown(msgChooseStateOrPin, keyboard.ChunkLabels(labels, 2))
}

func (ctl *Controller) handleStateStage(ctx context.Context, userID int64, sess *Session, text string, out Outbox) error {
	switch {
	case reMenuChoice.MatchString(text):
		id, name, ok := parseMenuChoice(text)
		if !ok {
			return nil
		}
		return ctl.stateChosen(ctx, sess, id, name, out)
	case rePincode.MatchString(text):
		sess.Pincode = text
		return ctl.pincodeSearch(ctx, userID, sess, text, out)
	case reRepeatPincode.MatchString(text):
		pincode := strings.TrimPrefix(text, "PINCODE: ")
		sess.Pincode = pincode
		return ctl.pincodeSearch(ctx, userID, sess, pincode, out)
	case text == labelNewSearch:
		return ctl.start(ctx, userID, sess, text, out)
	case text == labelDone:
		return ctl.farewell(sess, out)
	}
	return nil
}

func (ctl *Controller) handleDistrictStage(ctx context.Context, userID int64, sess *Session, text string, out Outbox) error {
	switch {
	case reMenuChoice.MatchString(text):
		if sess.DistrictID == 0 {
			id, name, ok := parseMenuChoice(text)
			if !ok {
				return nil
			}
			sess.DistrictID = id
			sess.DistrictName = name
		}
		return ctl.districtSearch(ctx, userID, sess, out)
	case reRepeatRegion.MatchString(text):
		if sess.DistrictID == 0 {
			return nil
		}
		return ctl.districtSearch(ctx, userID, sess, out)
	case text == labelNewSearch:
		return ctl.start(ctx, userID, sess, text, out)
	case text == labelDone:
		return ctl.farewell(sess, out)
	}
	return nil
}

func (ctl *Controller) handlePincodeStage(ctx context.Context, userID int64, sess *Session, text string, out Outbox) error {
	if !rePincode.MatchString(text) {
		return nil
	}
	filtered := report.FilterByPincode(sess.Centers, text)
	rendered := report.Render(filtered)
	return ctl.deliverReport(ctx, sess, out, rendered, SearchRecord{
		UserID:       userID,
		Method:       methodDistrictPincode,
		StateName:    sess.StateName,
		DistrictName: sess.DistrictName,
		Pincode:      text,
		Centers:      len(filtered),
	})
}

func (ctl *Controller) stateChosen(ctx context.Context, sess *Session, id int, name string, out Outbox) error {
	districts, err := ctl.provider.Districts(ctx, id)
	if err != nil {
		return ctl.apiError(ctx, sess, "districts", err, out)
	}
	sess.StateID = id
	sess.StateName = name

	labels := make([]string, 0, len(districts))
	for _, d := range districts {
		labels = append(labels, fmt.Sprintf("%d. %s", d.DistrictID, d.DistrictName))
	}
	ctl.transition(ctx, sess, StageDistrict, "districts_listed")
	return out.Plain(msgChooseDistrict, keyboard.ChunkLabels(labels, 2))
}

func (ctl *Controller) districtSearch(ctx context.Context, userID int64, sess *Session, out Outbox) error {
	today := ctl.now().Format(cowin.DateLayout)
	centers, err := ctl.provider.CentersByDistrict(ctx, sess.DistrictID, today)
	if err != nil {
		return ctl.apiError(ctx, sess, "calendar_by_district", err, out)
	}

	rendered := report.Render(centers)
	if len(rendered) > ctl.limit {
		// Too big for one message: keep the raw calendar and ask the
		// user to narrow by pincode instead of flooding the chat.
		sess.Centers = centers
		ctl.transition(ctx, sess, StagePincode, "oversized_report")
		logger.Info(ctx, "dialog", "search.oversized",
			slog.Int("district_id", sess.DistrictID),
			slog.Int("centers", len(centers)),
			slog.Int("report_len", len(rendered)),
		)
		return out.Plain(msgTooManyResults, nil)
	}

	return ctl.deliverReport(ctx, sess, out, rendered, SearchRecord{
		UserID:       userID,
		Method:       methodDistrict,
		StateName:    sess.StateName,
		DistrictName: sess.DistrictName,
		Centers:      countAvailable(centers),
	})
}

func (ctl *Controller) pincodeSearch(ctx context.Context, userID int64, sess *Session, pincode string, out Outbox) error {
	today := ctl.now().Format(cowin.DateLayout)
	centers, err := ctl.provider.CentersByPincode(ctx, pincode, today)
	if err != nil {
		return ctl.apiError(ctx, sess, "calendar_by_pin", err, out)
	}

	rendered := report.Render(centers)
	return ctl.deliverReport(ctx, sess, out, rendered, SearchRecord{
		UserID:  userID,
		Method:  methodPincode,
		Pincode: pincode,
		Centers: countAvailable(centers),
	})
}

// deliverReport finishes a search: empty reports say so, short reports go
// out as a single message, long ones are split at line boundaries. Every
// path ends in StageDone.
func (ctl *Controller) deliverReport(ctx context.Context, sess *Session, out Outbox, rendered string, rec SearchRecord) error {
	doneRows := [][]string{{labelDone}}
	today := ctl.now().Format(cowin.DateLayout)

	if rendered == "" {
		ctl.transition(ctx, sess, StageDone, "no_slots")
		ctl.record(ctx, rec)
		return out.Markdown(msgNoSlots, doneRows)
	}

	var chunks []string
	if len(rendered) <= ctl.limit {
		chunks = []string{rendered}
	} else {
		chunks = report.SplitChunks(rendered, ctl.limit)
	}
	rec.Chunks = len(chunks)

	header := fmt.Sprintf("Slots for next *7* days from *%s* :", today)
	if err := out.Markdown(header, doneRows); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		if err := out.Markdown(chunk, doneRows); err != nil {
			return err
		}
	}
	if err := out.Plain(msgInstruction, doneRows); err != nil {
		return err
	}

	ctl.transition(ctx, sess, StageDone, "report_sent")
	logger.Info(ctx, "dialog", "search.complete",
		slog.String("method", rec.Method),
		slog.Int("centers", rec.Centers),
		slog.Int("chunks", len(chunks)),
		slog.Int("report_len", len(rendered)),
	)
	ctl.record(ctx, rec)
	return nil
}

func (ctl *Controller) apiError(ctx context.Context, sess *Session, op string, err error, out Outbox) error {
	logger.Warn(ctx, "dialog", "search.provider_error",
		slog.String("op", op),
		slog.String("err", err.Error()),
	)
	ctl.transition(ctx, sess, StageDone, "provider_error")
	return out.Markdown(msgAPIError, [][]string{{labelDone}})
}

func (ctl *Controller) farewell(sess *Session, out Outbox) error {
	sess.Stage = StageIdle
	sess.Centers = nil
	return out.RemoveKeyboard(msgFarewell)
}

func (ctl *Controller) transition(ctx context.Context, sess *Session, to Stage, cause string) {
	from := sess.Stage
	sess.Stage = to
	if from == StagePincode && to != StagePincode {
		// The raw calendar is only held while waiting for a pincode.
		sess.Centers = nil
	}
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, "dialog", "stage.transition",
			slog.String("stage", from.String()+">"+to.String()),
			slog.String("cause", cause),
		)
	}
}

func (ctl *Controller) record(ctx context.Context, rec SearchRecord) {
	if ctl.recorder == nil {
		return
	}
	ctl.recorder.Record(ctx, rec)
}

func parseMenuChoice(text string) (int, string, bool) {
	idx := strings.Index(text, ".")
	if idx <= 0 {
		return 0, "", false
	}
	id, err := strconv.Atoi(text[:idx])
	if err != nil {
		return 0, "", false
	}
	return id, strings.TrimSpace(text[idx+1:]), true
}

func countAvailable(centers []cowin.Center) int {
	n := 0
	for _, c := range centers {
		for _, s := range c.Sessions {
			if s.AvailableCapacity > 0 {
				n++
				break
			}
		}
	}
	return n
}
