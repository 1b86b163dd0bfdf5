package model

// Video providers
type Provider string

const (
	ProviderVeo  Provider = "veo"
	ProviderSora Provider = "sora"
)

var ValidProviders = []Provider{ProviderVeo, ProviderSora}

// Aspect ratios accepted on render requests. Providers that cannot express a
// ratio omit it on the wire rather than guessing.
type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
	AspectSquare    AspectRatio = "1:1"
)

var ValidAspectRatios = []AspectRatio{AspectPortrait, AspectLandscape, AspectSquare}

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Render modes, carried from the creative manifest into the task record.
type RenderMode string

const (
	RenderModeJobAd  RenderMode = "job_ad"
	RenderModeOutro  RenderMode = "outro"
	RenderModeTeaser RenderMode = "teaser"
)

var ValidRenderModes = []RenderMode{RenderModeJobAd, RenderModeOutro, RenderModeTeaser}

// Model tiers for metrics reporting
type ModelTier string

const (
	TierStandard ModelTier = "standard"
	TierPro      ModelTier = "pro"
)
