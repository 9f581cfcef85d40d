package vision

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultScanConcurrency bounds parallel detections in Scan.
const DefaultScanConcurrency = 3

// ScanResult is the detection outcome for one image.
type ScanResult struct {
	ImageRef  string
	Detection *DetectionResult
	Err       error
}

// Scan detects the item in each image, running up to concurrency requests
// at once. A failed image does not stop the others. Results keep the order
// of refs.
func Scan(ctx context.Context, svc Service, refs []string, concurrency int) []ScanResult {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}

	results := make([]ScanResult, len(refs))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i := range refs {
		g.Go(func() error {
			ref := refs[i]
			res, err := svc.DetectItem(ctx, ref)
			if err != nil {
				log.Warn().Err(err).Str("imageRef", ref).Msg("scan: detection failed")
			}
			results[i] = ScanResult{ImageRef: ref, Detection: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
