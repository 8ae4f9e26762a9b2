package types

// Tier is the subscription tier of a User (spec §3).
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// VideoStatus is the lifecycle state of a Video (spec §3).
type VideoStatus string

const (
	VideoStatusPending       VideoStatus = "pending"
	VideoStatusDownloading   VideoStatus = "downloading"
	VideoStatusTranscribing  VideoStatus = "transcribing"
	VideoStatusChunking      VideoStatus = "chunking"
	VideoStatusEnriching     VideoStatus = "enriching"
	VideoStatusIndexing      VideoStatus = "indexing"
	VideoStatusCompleted     VideoStatus = "completed"
	VideoStatusFailed        VideoStatus = "failed"
	VideoStatusCanceled      VideoStatus = "canceled"
)

// IsTerminal reports whether status ∈ {completed, failed, canceled}
// (spec §3 invariant).
func (s VideoStatus) IsTerminal() bool {
	switch s {
	case VideoStatusCompleted, VideoStatusFailed, VideoStatusCanceled:
		return true
	default:
		return false
	}
}

// TranscriptSource records which fast path produced a transcript
// (spec §4.10 caption fast path).
type TranscriptSource string

const (
	TranscriptSourceCaptions TranscriptSource = "captions"
	TranscriptSourceWhisper  TranscriptSource = "whisper"
)

// CleanupOption selects what cancel() does to persisted state
// (spec §4.11).
type CleanupOption string

const (
	CleanupKeepVideo  CleanupOption = "keep_video"
	CleanupFullDelete CleanupOption = "full_delete"
)

// FactCategory classifies a ConversationFact (spec §3, §4.15).
type FactCategory string

const (
	FactCategoryIdentity   FactCategory = "identity"
	FactCategoryTopic      FactCategory = "topic"
	FactCategoryPreference FactCategory = "preference"
	FactCategorySession    FactCategory = "session"
	FactCategoryEphemeral  FactCategory = "ephemeral"
)

// Priority implements the category_priority term of the
// composite memory score (spec §4.15).
func (c FactCategory) Priority() float64 {
	switch c {
	case FactCategoryIdentity:
		return 1.0
	case FactCategoryTopic:
		return 0.75
	case FactCategoryPreference:
		return 0.5
	case FactCategorySession:
		return 0.25
	case FactCategoryEphemeral:
		return 0.1
	default:
		return 0.1
	}
}

// Intent is the query-routing decision made by the intent classifier
// (spec §4.13, GLOSSARY).
type Intent string

const (
	IntentCoverage  Intent = "COVERAGE"
	IntentPrecision Intent = "PRECISION"
	IntentHybrid    Intent = "HYBRID"
)

// RetrievalType labels which path the retriever actually took
// (spec §4.14).
type RetrievalType string

const (
	RetrievalTypeChunks    RetrievalType = "chunks"
	RetrievalTypeSummaries RetrievalType = "summaries"
	RetrievalTypeHybrid    RetrievalType = "hybrid"
)

// QueryMode is the caller-supplied hint used as an intent tiebreaker
// and to parameterize retrieval limits (spec §4.14).
type QueryMode string

const (
	ModeSummarize      QueryMode = "summarize"
	ModeCompareSources  QueryMode = "compare_sources"
	ModeDeepDive        QueryMode = "deep_dive"
	ModeTimeline        QueryMode = "timeline"
	ModeExtractActions  QueryMode = "extract_actions"
	ModeQuizMe          QueryMode = "quiz_me"
	ModeOther           QueryMode = "other"
)

// JobType enumerates the background task types dispatched through the
// queue consumer pool (spec §4.10, §5).
type JobType string

const (
	JobTypeIngestVideo        JobType = "ingest_video"
	JobTypeStalePipelineGC    JobType = "stale_pipeline_gc"
	JobTypeOrphanFileGC       JobType = "orphan_file_gc"
	JobTypeQuotaReconcile     JobType = "quota_reconcile"
	JobTypeMemoryConsolidate  JobType = "memory_consolidate"
)

// MessageRole is the role of a Message in a Conversation (spec §3).
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)
