package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/model"
	"github.com/raine/hotpotato/internal/pipeline"
	"github.com/raine/hotpotato/internal/vision"
)

// progress prints one line per working stage.
func progress(w io.Writer) func(pipeline.Snapshot) {
	last := pipeline.Idle
	return func(s pipeline.Snapshot) {
		if s.Stage == last {
			return
		}
		last = s.Stage
		switch s.Stage {
		case pipeline.Detecting:
			printMuted(w, "Looking at the photo...")
		case pipeline.Generating:
			printMuted(w, "Writing the listing for %s...", s.ItemName)
		case pipeline.Uploading:
			printMuted(w, "Uploading photo...")
		case pipeline.Persisting:
			printMuted(w, "Saving listing...")
		}
	}
}

// runCreate drives p from imageRef to a saved listing, asking prompter at
// every decision point. Interactive runs recover from failures by asking
// again; when interactive is false the first failure is returned.
func runCreate(ctx context.Context, p *pipeline.Pipeline, prompter Prompter, w io.Writer, imageRef string, interactive bool) (*model.Listing, error) {
	unsubscribe := p.Subscribe(progress(w))
	defer unsubscribe()

	err := p.Capture(ctx, imageRef)
	if err != nil && p.Snapshot().Stage == pipeline.Idle {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			p.Reset()
			return nil, ctx.Err()
		}

		snap := p.Snapshot()
		if err != nil {
			// Nothing recognised: the prompter may still supply a name.
			manual := snap.Stage == pipeline.AwaitingConfirmation && errors.Is(err, vision.ErrNoItemDetected)
			if !interactive && !manual {
				return nil, err
			}
			if snap.Stage != pipeline.Errored {
				printError(w, apperr.Message(err))
			}
		}

		switch snap.Stage {
		case pipeline.Errored:
			retry, perr := prompter.Retry(snap.Error)
			if perr != nil || !retry {
				p.Reset()
				return nil, firstErr(perr, err)
			}
			err = p.Retry(ctx)

		case pipeline.AwaitingConfirmation:
			name, perr := prompter.ItemName(snap.Detection, snap.ItemName)
			if perr != nil {
				p.Reset()
				return nil, perr
			}
			if err = p.SetItemName(name); err == nil {
				err = p.Generate(ctx)
			}

		case pipeline.AwaitingEdits:
			form, perr := prompter.EditForm(p.Form())
			if perr != nil {
				p.Reset()
				return nil, perr
			}
			if err = p.SetForm(form); err == nil {
				err = p.Save(ctx)
			}

		case pipeline.Done:
			return snap.Listing, nil

		default:
			return nil, fmt.Errorf("unexpected pipeline stage %s", snap.Stage)
		}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return errors.New("cancelled")
}
