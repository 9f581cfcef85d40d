// Package pipeline drives one listing from photo to persisted record:
// capture, detect, confirm the item name, generate copy, edit, upload and
// save. Only one step runs at a time and every failure leaves the run in a
// state the user can continue from.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/backend"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/state"
	"github.com/raine/hotpotato/internal/storage"
	"github.com/raine/hotpotato/internal/vision"
)

const (
	MsgNoImage       = "No image selected"
	MsgSignInToSave  = "Please sign in to save listings"
	MsgNothingFailed = "Nothing to retry"
)

// ErrBusy is returned when a step is started while another is in progress.
var ErrBusy = apperr.Validation("Another step is still in progress")

// Form is the editable listing copy. Price is kept as text while editing.
type Form struct {
	Title       string
	Description string
	Price       string
}

// Snapshot is an immutable view of the pipeline.
type Snapshot struct {
	RunID     string
	Stage     Stage
	ImageRef  string
	Detection *vision.DetectionResult
	ItemName  string
	Form      Form
	ImageURL  string
	Listing   *model.Listing
	Error     string
	ErrorKind apperr.Kind
	// FailedStage is the stage Retry re-enters while in Errored.
	FailedStage Stage
}

// ListingAdder is the part of the listings store the pipeline writes to.
type ListingAdder interface {
	Add(ctx context.Context, draft model.NewListing) (*model.Listing, error)
}

// Identity reports the signed-in user.
type Identity interface {
	Current() (*model.Identity, bool)
}

// Recorder keeps the history of runs.
type Recorder interface {
	SaveRun(run *storage.Run) error
}

type Deps struct {
	Vision   vision.Service
	Uploader backend.ImageUploader
	Listings ListingAdder
	Session  Identity
	// Bucket defaults to backend.DefaultBucket.
	Bucket string
	// RunLog and Recorder are optional.
	RunLog   *RunLog
	Recorder Recorder
}

type Pipeline struct {
	deps Deps

	mu    sync.Mutex
	st    Snapshot
	busy  bool
	epoch uint64

	subs state.Observers[Snapshot]
}

func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Vision == nil:
		return nil, apperr.Config("pipeline: vision service is required")
	case deps.Uploader == nil:
		return nil, apperr.Config("pipeline: image uploader is required")
	case deps.Listings == nil:
		return nil, apperr.Config("pipeline: listings store is required")
	case deps.Session == nil:
		return nil, apperr.Config("pipeline: session is required")
	}
	if deps.Bucket == "" {
		deps.Bucket = backend.DefaultBucket
	}
	return &Pipeline{deps: deps, st: Snapshot{Stage: Idle}}, nil
}

func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

// Subscribe registers fn to be called after every change. The returned
// function unsubscribes.
func (p *Pipeline) Subscribe(fn func(Snapshot)) func() {
	return p.subs.Subscribe(fn)
}

func (p *Pipeline) copyLocked() Snapshot {
	snap := p.st
	if snap.Detection != nil {
		d := *snap.Detection
		snap.Detection = &d
	}
	if snap.Listing != nil {
		l := *snap.Listing
		snap.Listing = &l
	}
	return snap
}

func invalidStep(op string, stage Stage) error {
	return apperr.Validation(fmt.Sprintf("Cannot %s while %s", op, stage))
}

func stageAllowed(stage Stage, allowed []Stage) bool {
	for _, s := range allowed {
		if s == stage {
			return true
		}
	}
	return false
}

// enter claims the pipeline for op. fn runs under the lock and sets up the
// first working stage.
func (p *Pipeline) enter(op string, allowed []Stage, fn func(st *Snapshot) error) (uint64, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return 0, ErrBusy
	}
	if !stageAllowed(p.st.Stage, allowed) {
		stage := p.st.Stage
		p.mu.Unlock()
		return 0, invalidStep(op, stage)
	}
	from := p.st.Stage
	if err := fn(&p.st); err != nil {
		p.setErrorLocked(err)
		snap := p.copyLocked()
		p.mu.Unlock()
		p.subs.Notify(snap)
		return 0, err
	}
	p.busy = true
	epoch := p.epoch
	snap := p.copyLocked()
	p.mu.Unlock()

	p.changed(from, snap)
	return epoch, nil
}

// step applies fn if the run was not reset since epoch. When done is true
// the pipeline is released for the next operation.
func (p *Pipeline) step(epoch uint64, done bool, fn func(st *Snapshot)) bool {
	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		log.Debug().Uint64("epoch", epoch).Msg("discarding result of reset run")
		return false
	}
	from := p.st.Stage
	fn(&p.st)
	if done {
		p.busy = false
	}
	snap := p.copyLocked()
	p.mu.Unlock()

	p.changed(from, snap)
	return true
}

func (p *Pipeline) setErrorLocked(err error) {
	if err == nil {
		p.st.Error = ""
		p.st.ErrorKind = apperr.KindUnknown
		return
	}
	p.st.Error = apperr.Message(err)
	p.st.ErrorKind = apperr.KindOf(err)
}

// changed logs, records and publishes a new snapshot. It runs outside the
// lock; entering Capturing starts the run's log file.
func (p *Pipeline) changed(from Stage, snap Snapshot) {
	if from != snap.Stage {
		ev := log.Info()
		if snap.Stage == Errored {
			ev = log.Warn()
		}
		ev.Str("runId", snap.RunID).
			Str("from", from.String()).
			Str("stage", snap.Stage.String()).
			Str("error", snap.Error).
			Msg("pipeline transition")
		if snap.Stage == Capturing {
			p.deps.RunLog.Start(snap.RunID, snap.ImageRef)
		}
		p.deps.RunLog.State(snap.RunID, "%s -> %s", from, snap.Stage)
		if snap.Error != "" {
			p.deps.RunLog.Error(snap.RunID, "%s: %s", snap.ErrorKind, snap.Error)
		}
		p.record(snap, snap.Stage.String())
	}
	p.subs.Notify(snap)
}

func (p *Pipeline) record(snap Snapshot, stage string) {
	if p.deps.Recorder == nil || snap.RunID == "" {
		return
	}
	run := &storage.Run{
		ID:           snap.RunID,
		ImageRef:     snap.ImageRef,
		DetectedItem: snap.ItemName,
		Stage:        stage,
		Error:        snap.Error,
	}
	if user, ok := p.deps.Session.Current(); ok {
		run.UserID = user.ID
	}
	if snap.Listing != nil {
		run.ListingID = snap.Listing.ID
	}
	if err := p.deps.Recorder.SaveRun(run); err != nil {
		log.Error().Err(err).Str("runId", snap.RunID).Msg("failed to record run")
	}
}

// Capture starts a new run with imageRef and immediately detects the item.
func (p *Pipeline) Capture(ctx context.Context, imageRef string) error {
	imageRef = strings.TrimSpace(imageRef)
	runID := uuid.NewString()

	epoch, err := p.enter("capture", []Stage{Idle, Done, Errored}, func(st *Snapshot) error {
		if imageRef == "" {
			return apperr.Codec(nil, MsgNoImage)
		}
		*st = Snapshot{RunID: runID, Stage: Capturing, ImageRef: imageRef}
		return nil
	})
	if err != nil {
		return err
	}
	p.deps.RunLog.User(runID, "captured %s", imageRef)

	if !p.step(epoch, false, func(st *Snapshot) { st.Stage = Detecting }) {
		return nil
	}
	return p.detect(ctx, epoch, runID, imageRef)
}

func (p *Pipeline) detect(ctx context.Context, epoch uint64, runID, imageRef string) error {
	p.deps.RunLog.API(runID, "detectItem")
	res, err := p.deps.Vision.DetectItem(ctx, imageRef)

	p.step(epoch, true, func(st *Snapshot) {
		st.FailedStage = Idle
		p.setErrorLocked(err)
		switch {
		case err == nil:
			st.Stage = AwaitingConfirmation
			st.Detection = res
			st.ItemName = res.DetectedItem
		case errors.Is(err, vision.ErrNoItemDetected):
			// The model answered but named nothing; the user names the
			// item instead.
			st.Stage = AwaitingConfirmation
			st.Detection = nil
			st.ItemName = ""
		default:
			st.Stage = Errored
			st.FailedStage = Detecting
		}
	})
	if err == nil {
		p.deps.RunLog.API(runID, "detected %q (confidence %d)", res.DetectedItem, res.Confidence)
	}
	return err
}

// SetItemName overrides the detected item name.
func (p *Pipeline) SetItemName(name string) error {
	p.mu.Lock()
	if p.st.Stage != AwaitingConfirmation {
		stage := p.st.Stage
		p.mu.Unlock()
		return invalidStep("edit the item name", stage)
	}
	p.st.ItemName = name
	runID := p.st.RunID
	snap := p.copyLocked()
	p.mu.Unlock()

	p.deps.RunLog.User(runID, "item name %q", name)
	p.subs.Notify(snap)
	return nil
}

// Generate creates listing copy for the confirmed item name.
func (p *Pipeline) Generate(ctx context.Context) error {
	var runID, itemName, imageRef string
	epoch, err := p.enter("generate", []Stage{AwaitingConfirmation}, func(st *Snapshot) error {
		name := strings.TrimSpace(st.ItemName)
		if name == "" {
			return apperr.Validation(vision.MsgItemNameRequired)
		}
		st.ItemName = name
		st.Stage = Generating
		st.Error = ""
		st.ErrorKind = apperr.KindUnknown
		runID, itemName, imageRef = st.RunID, name, st.ImageRef
		return nil
	})
	if err != nil {
		return err
	}
	return p.generate(ctx, epoch, runID, itemName, imageRef)
}

func (p *Pipeline) generate(ctx context.Context, epoch uint64, runID, itemName, imageRef string) error {
	p.deps.RunLog.API(runID, "generateListing %q", itemName)
	res, err := p.deps.Vision.GenerateListing(ctx, itemName, imageRef)

	p.step(epoch, true, func(st *Snapshot) {
		p.setErrorLocked(err)
		if err != nil {
			st.Stage = Errored
			st.FailedStage = Generating
			return
		}
		st.Stage = AwaitingEdits
		st.FailedStage = Idle
		st.Form = Form{
			Title:       res.Title,
			Description: res.Description,
			Price:       seedPrice(res.SuggestedPrice),
		}
	})
	return err
}

func seedPrice(price float64) string {
	if price <= 0 {
		return ""
	}
	return model.FormatPrice(price)
}

// Retry re-runs the step that moved the pipeline to Errored, with the same
// image and item name.
func (p *Pipeline) Retry(ctx context.Context) error {
	var failed Stage
	var runID, itemName, imageRef string
	epoch, err := p.enter("retry", []Stage{Errored}, func(st *Snapshot) error {
		failed = st.FailedStage
		if failed != Detecting && failed != Generating {
			return apperr.Validation(MsgNothingFailed)
		}
		st.Stage = failed
		st.Error = ""
		st.ErrorKind = apperr.KindUnknown
		runID, itemName, imageRef = st.RunID, st.ItemName, st.ImageRef
		return nil
	})
	if err != nil {
		return err
	}
	p.deps.RunLog.User(runID, "retry %s", failed)

	if failed == Detecting {
		return p.detect(ctx, epoch, runID, imageRef)
	}
	return p.generate(ctx, epoch, runID, itemName, imageRef)
}

// Form returns the listing copy being edited.
func (p *Pipeline) Form() Form {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.Form
}

// SetForm replaces the listing copy being edited.
func (p *Pipeline) SetForm(form Form) error {
	p.mu.Lock()
	if p.st.Stage != AwaitingEdits {
		stage := p.st.Stage
		p.mu.Unlock()
		return invalidStep("edit the listing", stage)
	}
	p.st.Form = form
	runID := p.st.RunID
	snap := p.copyLocked()
	p.mu.Unlock()

	p.deps.RunLog.User(runID, "edited form: title=%q price=%q", form.Title, form.Price)
	p.subs.Notify(snap)
	return nil
}

// ParsePrice parses a user-entered price. Surrounding whitespace and a
// leading currency sign are ignored; the result must be positive.
func ParsePrice(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "$"))
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsPositive() {
		return 0, apperr.Validation(model.MsgEnterValidPrice)
	}
	return d.InexactFloat64(), nil
}

// draft validates the form and builds the insert payload. Nothing remote is
// touched here.
func (p *Pipeline) draft(st *Snapshot) (model.NewListing, error) {
	draft := model.NewListing{
		Title:        st.Form.Title,
		Description:  st.Form.Description,
		DetectedItem: st.ItemName,
	}
	if st.Detection != nil {
		c := st.Detection.Confidence
		draft.Confidence = &c
	}
	user, signedIn := p.deps.Session.Current()
	if signedIn {
		draft.UserID = user.ID
	}

	price, priceErr := ParsePrice(st.Form.Price)
	draft.Price = price
	draft = draft.Normalized()

	if err := draft.Validate(); err != nil {
		if !signedIn && apperr.Message(err) == model.MsgMissingOwner {
			return draft, apperr.New(apperr.KindUnauthenticated, MsgSignInToSave)
		}
		return draft, err
	}
	if priceErr != nil {
		return draft, priceErr
	}
	return draft, nil
}

// Save validates the form, uploads the image and creates the listing. An
// image already uploaded in this run is not uploaded again. Any failure
// returns to AwaitingEdits with the form intact.
func (p *Pipeline) Save(ctx context.Context) error {
	var draft model.NewListing
	var runID, imageRef, imageURL string
	epoch, err := p.enter("save", []Stage{AwaitingEdits}, func(st *Snapshot) error {
		d, err := p.draft(st)
		if err != nil {
			return err
		}
		draft = d
		runID, imageRef, imageURL = st.RunID, st.ImageRef, st.ImageURL
		st.Error = ""
		st.ErrorKind = apperr.KindUnknown
		if imageURL == "" {
			st.Stage = Uploading
		} else {
			st.Stage = Persisting
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.deps.RunLog.User(runID, "save")

	if imageURL == "" {
		p.deps.RunLog.API(runID, "uploadImage bucket=%s", p.deps.Bucket)
		url, err := p.deps.Uploader.UploadImage(ctx, imageRef, p.deps.Bucket)
		if err != nil {
			p.step(epoch, true, func(st *Snapshot) {
				st.Stage = AwaitingEdits
				p.setErrorLocked(err)
			})
			return err
		}
		imageURL = url
		if !p.step(epoch, false, func(st *Snapshot) {
			st.ImageURL = url
			st.Stage = Persisting
		}) {
			return nil
		}
	}

	draft.ImageURL = imageURL
	p.deps.RunLog.API(runID, "createListing %q", draft.Title)
	created, err := p.deps.Listings.Add(ctx, draft)

	p.step(epoch, true, func(st *Snapshot) {
		p.setErrorLocked(err)
		if err != nil {
			st.Stage = AwaitingEdits
			return
		}
		st.Stage = Done
		st.Listing = created
		st.Detection = nil
		st.ItemName = ""
		st.Form = Form{}
	})
	if err == nil {
		log.Info().Str("runId", runID).Str("listingId", created.ID).Msg("listing saved")
	}
	return err
}

// Reset abandons the current run. Results of a step still in flight are
// discarded.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	prev := p.copyLocked()
	p.epoch++
	p.busy = false
	p.st = Snapshot{Stage: Idle}
	snap := p.copyLocked()
	p.mu.Unlock()

	if prev.RunID != "" && prev.Stage != Done {
		p.deps.RunLog.User(prev.RunID, "reset from %s", prev.Stage)
		p.record(prev, "Reset")
	}
	p.subs.Notify(snap)
}
