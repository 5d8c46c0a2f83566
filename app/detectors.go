package app

import (
	"context"
	"sync"

	"gohypo/domain/evidence"
	"gohypo/internal/errors"
)

// evidenceGather is the result of fanning out to the detector, vision
// labeler, and optional segmentation service.
type evidenceGather struct {
	Records          []evidence.Record
	LowEvidence      bool
	Structured       bool
	NumDamageSites   int
	SceneGraphScalar float64
	// Halt is set when zero detectors succeeded and the GPT-only fallback
	// flag does not permit proceeding without detector evidence; the caller
	// must stop the pipeline and force an escalate decision rather than
	// call the VLM.
	Halt       bool
	HaltReason string
}

// gatherEvidence fans out to every configured detector concurrently, each
// call bounded by its own timeout and a weighted semaphore slot, per the
// concurrency model's "detector calls ... concurrent via structured I/O
// concurrency" requirement. A failed or timed-out detector degrades to an
// absent source rather than failing the call.
func (o *Orchestrator) gatherEvidence(ctx context.Context, req AssessRequest) evidenceGather {
	var (
		mu      sync.Mutex
		records []evidence.Record
		succeeded int
	)

	var wg sync.WaitGroup

	call := func(name string, fn func(ctx context.Context) (evidence.Record, bool, error)) {
		defer wg.Done()
		if err := o.detectorSem.Acquire(ctx, 1); err != nil {
			o.logger.Warn("[Orchestrator] could not acquire detector slot for %s: %v", name, err)
			return
		}
		defer o.detectorSem.Release(1)

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Detector.Timeout)
		defer cancel()

		rec, ok, err := fn(callCtx)
		if err != nil {
			o.logger.Warn("[Orchestrator] %v", errors.DetectorUnavailable(name, err))
			return
		}
		if !ok {
			return
		}
		mu.Lock()
		records = append(records, rec)
		succeeded++
		mu.Unlock()
	}

	structured := false
	numSites := 0
	sceneGraphAccum := 0.0
	sceneGraphWeight := 0.0

	if o.detector != nil {
		wg.Add(1)
		go call("primary_object_detector", func(callCtx context.Context) (evidence.Record, bool, error) {
			dets, err := o.detector.DetectObjects(callCtx, req.ImageRefs)
			if err != nil {
				return evidence.Record{}, false, err
			}
			if len(dets) == 0 {
				return evidence.Record{}, false, nil
			}
			instances := make([]evidence.InstanceScore, len(dets))
			sum := 0.0
			for i, d := range dets {
				instances[i] = evidence.InstanceScore{
					Score: d.Confidence / 100.0,
					Box:   evidence.BoundingBox{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
				}
				sum += d.Confidence / 100.0
			}
			mu.Lock()
			structured = true
			numSites += len(dets)
			sceneGraphAccum += sum
			sceneGraphWeight += float64(len(dets))
			mu.Unlock()
			return evidence.Record{
				Source:     evidence.SourcePrimaryObjectDetector,
				Confidence: sum / float64(len(dets)),
				Count:      len(dets),
				Instances:  instances,
			}, true, nil
		})
	}

	if o.labeler != nil {
		wg.Add(1)
		go call("secondary_masker", func(callCtx context.Context) (evidence.Record, bool, error) {
			va, err := o.labeler.AnalyzeVision(callCtx, req.ImageRefs)
			if err != nil {
				return evidence.Record{}, false, err
			}
			mu.Lock()
			if len(va.DetectedFeatures) > numSites {
				numSites += len(va.DetectedFeatures)
			}
			mu.Unlock()
			return evidence.Record{
				Source:     evidence.SourceSecondaryMasker,
				Confidence: va.Confidence / 100.0,
				Count:      len(va.Objects),
			}, true, nil
		})
	}

	if o.segmentation != nil && o.cfg.Vision.SegmentationEnable {
		wg.Add(1)
		go call("segmentation", func(callCtx context.Context) (evidence.Record, bool, error) {
			if len(req.ImageRefs) == 0 {
				return evidence.Record{}, false, nil
			}
			damageTypes := []string{req.DamageTypeHint}
			masks, err := o.segmentation.SegmentDamage(callCtx, req.ImageRefs[0], damageTypes)
			if err != nil {
				return evidence.Record{}, false, err
			}
			if len(masks) == 0 {
				return evidence.Record{}, false, nil
			}
			sum, count := 0.0, 0
			for _, m := range masks {
				for _, s := range m.Scores {
					sum += s
				}
				count += m.NumInstances
			}
			if count == 0 {
				return evidence.Record{}, false, nil
			}
			mu.Lock()
			structured = true
			numSites += count
			sceneGraphAccum += sum
			sceneGraphWeight += float64(count)
			mu.Unlock()
			return evidence.Record{
				Source:     evidence.SourceSegmentation,
				Confidence: clamp01(sum / float64(count)),
				Count:      count,
			}, true, nil
		})
	}

	wg.Wait()

	lowEvidence := succeeded == 0
	haltFlag := false
	haltReason := ""
	if lowEvidence && !o.cfg.Flags.GPTOnlyFallback {
		haltFlag = true
		haltReason = "no detector evidence available and GPT-only fallback is disabled"
	}

	sceneGraphScalar := 0.5
	if sceneGraphWeight > 0 {
		sceneGraphScalar = clamp01(sceneGraphAccum / sceneGraphWeight)
	}

	return evidenceGather{
		Records:          records,
		LowEvidence:      lowEvidence,
		Structured:       structured,
		NumDamageSites:   numSites,
		SceneGraphScalar: sceneGraphScalar,
		Halt:             haltFlag,
		HaltReason:       haltReason,
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
