package videogen

// PlanStrategy describes how a requested duration is reconciled against a
// provider's native clip length.
type PlanStrategy string

const (
	StrategySingleShot      PlanStrategy = "single_shot"
	StrategyMultiExtend     PlanStrategy = "multi_extend"
	StrategyFallbackShorter PlanStrategy = "fallback_shorter"
)

// SegmentKind distinguishes the first hop from continuation hops.
type SegmentKind string

const (
	SegmentInitial SegmentKind = "initial"
	SegmentExtend  SegmentKind = "extend"
)

// PlanSegment is one generation hop of a render plan.
type PlanSegment struct {
	Kind    SegmentKind `json:"kind"`
	Seconds int         `json:"seconds"`
}

// RenderPlan is the segmentation plan for a requested duration.
// Invariant: the segment seconds sum to FinalPlannedSeconds, and a
// single_shot plan has exactly one initial segment.
type RenderPlan struct {
	Provider            string        `json:"provider"`
	ModelID             string        `json:"modelId"`
	Strategy            PlanStrategy  `json:"strategy"`
	Segments            []PlanSegment `json:"segments"`
	FinalPlannedSeconds int           `json:"finalPlannedSeconds"`
}

// ComputeRenderPlan reconciles a requested duration window [minSeconds,
// maxSeconds] against a provider whose first call yields baseSeconds and each
// continuation hop adds extendSeconds.
//
// When minSeconds exceeds the base clip, extend hops are added until the
// minimum is reached, then trimmed while the plan overshoots maxSeconds, and
// the result is clamped into [minSeconds, maxSeconds].
//
// When maxSeconds < baseSeconds the clamp yields a plan shorter than a single
// base clip; callers that cannot serve sub-base plans reject them upstream.
func ComputeRenderPlan(minSeconds, maxSeconds, baseSeconds, extendSeconds int) RenderPlan {
	extendsNeeded := 0
	if minSeconds > baseSeconds && extendSeconds > 0 {
		deficit := minSeconds - baseSeconds
		extendsNeeded = (deficit + extendSeconds - 1) / extendSeconds
	}

	planned := baseSeconds + extendsNeeded*extendSeconds
	for planned > maxSeconds && extendsNeeded > 0 {
		extendsNeeded--
		planned = baseSeconds + extendsNeeded*extendSeconds
	}

	final := planned
	if final < minSeconds {
		final = minSeconds
	}
	if final > maxSeconds {
		final = maxSeconds
	}

	strategy := StrategySingleShot
	switch {
	case extendsNeeded > 0:
		strategy = StrategyMultiExtend
	case final != baseSeconds:
		strategy = StrategyFallbackShorter
	}

	segments := make([]PlanSegment, 0, extendsNeeded+1)
	if extendsNeeded == 0 {
		segments = append(segments, PlanSegment{Kind: SegmentInitial, Seconds: final})
	} else {
		segments = append(segments, PlanSegment{Kind: SegmentInitial, Seconds: baseSeconds})
		for i := 0; i < extendsNeeded; i++ {
			segments = append(segments, PlanSegment{Kind: SegmentExtend, Seconds: extendSeconds})
		}
		// The clamp may have moved the total; the last hop absorbs the delta
		// so the segment sum always matches the final plan.
		if delta := final - planned; delta != 0 {
			segments[len(segments)-1].Seconds += delta
		}
	}

	return RenderPlan{
		Strategy:            strategy,
		Segments:            segments,
		FinalPlannedSeconds: final,
	}
}
